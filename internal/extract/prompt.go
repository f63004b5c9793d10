package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"inspection-bot/internal/domain"
)

const extractionSchemaName = "inspection_report"

var extractionSchema = json.RawMessage(`{
	"type":"object",
	"additionalProperties":false,
	"properties":{
		"unit_label":{"type":"string"},
		"defect_text":{"type":"string"},
		"company_name":{"type":"string"}
	},
	"required":["unit_label","defect_text","company_name"]
}`)

func buildExtractionMessages(text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: strings.Join([]string{
			"Task:",
			"Read one construction inspection report and extract three fields.",
			"",
			"Fields:",
			"- unit_label: the unit or block the defect is in, e.g. \"46/2\" or \"B5\". Keep the label as written.",
			"- defect_text: a short description of the defect.",
			"- company_name: the company responsible for fixing it.",
			"",
			"Rules:",
			fmt.Sprintf("1) If a field cannot be determined, use exactly %q.", domain.NoData),
			"2) Do not invent information that is not in the report.",
			"3) Keep the language of the report.",
			"",
			"Output Contract:",
			"Return JSON only with keys unit_label, defect_text and company_name, all strings.",
		}, "\n")},
		{Role: domain.RoleUser, Content: text},
	}
}

func buildPickMessages(text string, names []string) []domain.ChatMessage {
	var list strings.Builder
	for i, n := range names {
		fmt.Fprintf(&list, "%d: %s\n", i, n)
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: strings.Join([]string{
			"Task:",
			"Match a company name typed by a user to one entry of the list below.",
			"",
			"Companies:",
			strings.TrimRight(list.String(), "\n"),
			"",
			"Output Contract:",
			"Reply with the number of the matching company and nothing else.",
			"If no company matches, reply with -1.",
		}, "\n")},
		{Role: domain.RoleUser, Content: text},
	}
}

func normalizeInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

func parseExtraction(raw string) (domain.Extraction, error) {
	var out domain.Extraction
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return domain.Extraction{}, fmt.Errorf("%w: decode extraction: %v", ErrMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return domain.Extraction{}, fmt.Errorf("%w: multiple JSON values", ErrMalformed)
		}
		return domain.Extraction{}, fmt.Errorf("%w: trailing data: %v", ErrMalformed, err)
	}
	out.UnitLabel = orNoData(out.UnitLabel)
	out.DefectText = orNoData(out.DefectText)
	out.CompanyName = orNoData(out.CompanyName)
	return out, nil
}

func orNoData(v string) string {
	v = strings.TrimSpace(v)
	if !domain.Known(v) {
		return domain.NoData
	}
	return v
}

// parseIndex accepts exactly one integer token.
func parseIndex(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(strings.Fields(raw)) != 1 {
		return 0, fmt.Errorf("%w: expected a single number, got %q", ErrMalformed, raw)
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: expected a single number, got %q", ErrMalformed, raw)
	}
	return idx, nil
}
