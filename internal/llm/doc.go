// Package llm provides a provider-neutral generative completion client used
// for statement image extraction and taxonomy classification. It supports
// Gemini, OpenAI and Anthropic, with client-side rate limiting, typed upstream
// errors and response caching for classification suggestions.
package llm
