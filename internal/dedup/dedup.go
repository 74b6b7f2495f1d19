// Package dedup fingerprints parsed statement lines and filters out those
// already stored for an account.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ingest/internal/model"
)

// FingerprintLookup reports which fingerprints already exist for an account.
type FingerprintLookup interface {
	ExistingFingerprints(ctx context.Context, accountID string, fingerprints []string) (map[string]bool, error)
}

// Fingerprinted pairs a candidate with its fingerprint.
type Fingerprinted struct {
	Fingerprint string
	Candidate   model.Candidate
}

// Fingerprint returns the SHA-256 hex digest of
// accountID|YYYY-MM-DD|signed amount (2 places)|raw description.
func Fingerprint(accountID string, c model.Candidate) string {
	parts := []string{
		accountID,
		c.Date.Format("2006-01-02"),
		c.SignedAmount().StringFixed(2),
		c.RawDescription,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Deduplicator partitions candidates into new and already-seen records.
type Deduplicator struct {
	lookup FingerprintLookup
}

// New creates a Deduplicator backed by the given lookup.
func New(lookup FingerprintLookup) *Deduplicator {
	return &Deduplicator{lookup: lookup}
}

// FilterNew returns the candidates whose fingerprint is not stored for the
// account, in input order, and the number filtered out. A candidate repeated
// within the same input counts as a duplicate after its first occurrence.
func (d *Deduplicator) FilterNew(ctx context.Context, accountID string, candidates []model.Candidate) ([]Fingerprinted, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	all := make([]Fingerprinted, len(candidates))
	fingerprints := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for i, c := range candidates {
		fp := Fingerprint(accountID, c)
		all[i] = Fingerprinted{Fingerprint: fp, Candidate: c}
		if !seen[fp] {
			seen[fp] = true
			fingerprints = append(fingerprints, fp)
		}
	}

	existing, err := d.lookup.ExistingFingerprints(ctx, accountID, fingerprints)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to look up fingerprints: %w", err)
	}

	fresh := make([]Fingerprinted, 0, len(candidates))
	emitted := make(map[string]bool, len(candidates))
	duplicates := 0
	for _, f := range all {
		if existing[f.Fingerprint] || emitted[f.Fingerprint] {
			duplicates++
			continue
		}
		emitted[f.Fingerprint] = true
		fresh = append(fresh, f)
	}

	return fresh, duplicates, nil
}
