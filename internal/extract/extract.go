// Package extract turns free-text inspection reports into structured fields
// with a chat-completion model. Callers treat it as optional: every result it
// produces has a deterministic fallback elsewhere.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"inspection-bot/internal/domain"
)

const defaultMaxInput = 1000

var (
	// ErrNoMatch is returned by PickCompany when the model says no name fits.
	ErrNoMatch = errors.New("extract: no matching company")
	// ErrMalformed wraps model output that breaks the response contract.
	ErrMalformed = errors.New("extract: malformed model output")
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, schemaName string, schema json.RawMessage) (string, error)
}

type Service struct {
	llm      LLMClient
	model    string
	maxInput int
}

func NewService(llm LLMClient, model string) (*Service, error) {
	if llm == nil {
		return nil, errors.New("extract: llm client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("extract: model must not be empty")
	}
	return &Service{llm: llm, model: model, maxInput: defaultMaxInput}, nil
}

// Extract parses a report. Fields the model cannot determine are
// domain.NoData.
func (s *Service) Extract(ctx context.Context, text string) (domain.Extraction, error) {
	text = normalizeInput(text)
	if text == "" {
		return domain.Extraction{}, errors.New("extract: empty input")
	}
	if len(text) > s.maxInput {
		return domain.Extraction{}, fmt.Errorf("extract: input longer than %d bytes", s.maxInput)
	}
	raw, err := s.llm.Chat(ctx, s.model, buildExtractionMessages(text), extractionSchemaName, extractionSchema)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract: chat: %w", err)
	}
	return parseExtraction(raw)
}

// PickCompany asks the model for the zero-based index of the name text refers
// to. Any answer other than a single in-range integer is an error.
func (s *Service) PickCompany(ctx context.Context, text string, names []string) (int, error) {
	text = normalizeInput(text)
	if text == "" || len(names) == 0 {
		return -1, ErrNoMatch
	}
	raw, err := s.llm.Chat(ctx, s.model, buildPickMessages(text, names), "", nil)
	if err != nil {
		return -1, fmt.Errorf("extract: chat: %w", err)
	}
	idx, err := parseIndex(raw)
	if err != nil {
		return -1, err
	}
	if idx == -1 {
		return -1, ErrNoMatch
	}
	if idx < 0 || idx >= len(names) {
		return -1, fmt.Errorf("%w: index %d out of range", ErrMalformed, idx)
	}
	return idx, nil
}
