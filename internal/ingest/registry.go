package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/Veraticus/spice-ingest/internal/common"
	"github.com/Veraticus/spice-ingest/internal/model"
)

// Parser turns a raw statement of one format into candidates.
type Parser interface {
	Format() model.Format
	Parse(ctx context.Context, stmt model.RawStatement) ([]model.Candidate, error)
}

// sizeLimited is implemented by parsers with their own payload ceiling.
type sizeLimited interface {
	MaxBytes() int64
}

// Registry maps formats to parsers.
type Registry struct {
	parsers map[model.Format]Parser
}

// NewRegistry creates a registry holding parsers. Later parsers replace
// earlier ones registered for the same format.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[model.Format]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the parser for p.Format().
func (r *Registry) Register(p Parser) {
	r.parsers[p.Format()] = p
}

// Lookup returns the parser for format.
func (r *Registry) Lookup(format model.Format) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: no parser registered for %q", common.ErrUnsupportedFormat, format)
	}
	return p, nil
}

// Formats returns the registered formats, sorted.
func (r *Registry) Formats() []model.Format {
	formats := make([]model.Format, 0, len(r.parsers))
	for f := range r.parsers {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
