package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are banking boilerplate that says nothing about the counterparty.
var stopwords = map[string]struct{}{
	// Portuguese
	"pix": {}, "ted": {}, "doc": {}, "tef": {}, "compra": {}, "pagamento": {}, "pagto": {}, "pgto": {},
	"debito": {}, "deb": {}, "credito": {}, "cred": {}, "cartao": {}, "transferencia": {}, "transf": {},
	"enviado": {}, "enviada": {}, "recebido": {}, "recebida": {}, "boleto": {}, "saque": {},
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "em": {}, "para": {}, "com": {}, "no": {}, "na": {},
	"ltda": {}, "me": {}, "sa": {}, "eireli": {},
	// Spanish
	"pago": {}, "compras": {}, "del": {}, "la": {}, "el": {}, "los": {},
	// English
	"the": {}, "purchase": {}, "payment": {}, "pos": {}, "card": {}, "debit": {}, "credit": {},
	"transfer": {}, "to": {}, "from": {}, "inc": {}, "llc": {},
}

// stripMarks builds a fresh transformer per call; chained transformers are stateful.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold lower-cases s and removes diacritics.
func Fold(s string) string {
	folded, _, err := transform.String(stripMarks(), s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// CanonicalKey reduces a description to the stable key used for pattern memory.
// Two descriptions of the same counterparty that differ only in case, accents,
// digits (dates, installment counters, document numbers), punctuation or
// banking boilerplate yield the same key. The result may be empty.
func CanonicalKey(description string) string {
	folded := Fold(description)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r):
			return r
		case unicode.IsDigit(r):
			return -1
		default:
			return ' '
		}
	}, folded)

	tokens := strings.Fields(cleaned)
	kept := tokens[:0]
	for _, token := range tokens {
		if len(token) < 2 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		kept = append(kept, token)
	}

	return strings.Join(kept, " ")
}

// Description collapses runs of whitespace and trims the result.
func Description(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
