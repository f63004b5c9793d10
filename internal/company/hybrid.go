package company

import (
	"context"
	"errors"
	"log/slog"
)

// IndexPicker asks an external model which canonical name the text refers to.
// It returns the zero-based index into names.
type IndexPicker interface {
	PickCompany(ctx context.Context, text string, names []string) (int, error)
}

// Hybrid consults an IndexPicker first and falls back to the deterministic
// Resolver on any error or out-of-range answer.
type Hybrid struct {
	picker   IndexPicker
	fallback *Resolver
}

func NewHybrid(p IndexPicker, fallback *Resolver) (*Hybrid, error) {
	if p == nil {
		return nil, errors.New("company: index picker must not be nil")
	}
	if fallback == nil {
		return nil, errors.New("company: fallback resolver must not be nil")
	}
	return &Hybrid{picker: p, fallback: fallback}, nil
}

func (h *Hybrid) Resolve(ctx context.Context, text string) Result {
	names := h.fallback.names
	idx, err := h.picker.PickCompany(ctx, text, h.fallback.Names())
	if err != nil {
		slog.Debug("company picker failed, using deterministic match", "err", err)
		return h.fallback.Match(text)
	}
	if idx < 0 || idx >= len(names) {
		slog.Debug("company picker returned no usable index", "index", idx)
		return h.fallback.Match(text)
	}
	return Result{Name: names[idx], Matched: true, Method: MethodModel, Score: 1}
}
