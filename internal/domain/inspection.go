package domain

import "strings"

// Mode tells whether a session inspects a single unit or a block of units.
type Mode int

const (
	ModeUnit Mode = iota
	ModeBlock
)

func (m Mode) String() string {
	if m == ModeBlock {
		return "block"
	}
	return "unit"
}

// NoData is the placeholder the extraction service puts in fields it could not
// determine.
const NoData = "NO DATA"

// Row is one line of the inspection sheet. Column order is the durable
// external contract and must not change.
type Row struct {
	Date        string `json:"date"`
	UnitLabel   string `json:"unitLabel"`
	DefectText  string `json:"defectText"`
	CompanyName string `json:"companyName"`
	PhotoLink   string `json:"photoLink"`
}

// Columns returns the row in sheet column order.
func (r Row) Columns() []string {
	return []string{r.Date, r.UnitLabel, r.DefectText, r.CompanyName, r.PhotoLink}
}

// RowFromColumns is the inverse of Columns. Missing trailing columns are left
// empty.
func RowFromColumns(cols []string) Row {
	get := func(i int) string {
		if i < len(cols) {
			return cols[i]
		}
		return ""
	}
	return Row{
		Date:        get(0),
		UnitLabel:   get(1),
		DefectText:  get(2),
		CompanyName: get(3),
		PhotoLink:   get(4),
	}
}

// FileHandle points at an uploaded photo in file storage.
type FileHandle struct {
	ID   string
	Name string
	Link string
}

// IsZero reports whether the handle refers to no file.
func (h FileHandle) IsZero() bool {
	return strings.TrimSpace(h.ID) == ""
}

// Extraction is the structured result of parsing a free-text report.
type Extraction struct {
	UnitLabel   string `json:"unit_label"`
	DefectText  string `json:"defect_text"`
	CompanyName string `json:"company_name"`
}

// Known reports whether v carries a real value rather than the placeholder.
func Known(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, NoData)
}

// Button is one inline keyboard button. Token is echoed back on press.
type Button struct {
	Label string
	Token string
}

// Reply is one outbound chat message produced by a turn.
type Reply struct {
	Text     string
	Keyboard [][]Button
	// CloseKeyboard asks the transport to strip the keyboard from the message
	// whose button triggered the turn.
	CloseKeyboard bool
}
