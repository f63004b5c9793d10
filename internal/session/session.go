// Package session runs one inspection workflow per conversation: target
// selection, company collection, entry recording and finalization.
package session

import (
	"inspection-bot/internal/catalog"
	"inspection-bot/internal/domain"
	"inspection-bot/internal/ledger"
)

type State int

const (
	StateIdle State = iota
	StateSelectingTarget
	StateAwaitingCompany
	StateActive
)

func (s State) String() string {
	switch s {
	case StateSelectingTarget:
		return "SELECTING_TARGET"
	case StateAwaitingCompany:
		return "AWAITING_COMPANY"
	case StateActive:
		return "ACTIVE"
	default:
		return "IDLE"
	}
}

// blockCursor exists only for block targets, so a current sub-unit cannot be
// set on a unit session.
type blockCursor struct {
	subUnits []string
	current  string
}

// Session is the per-conversation record. The zero value is an idle session.
type Session struct {
	state       State
	target      catalog.Target
	photoFolder string
	company     string
	block       *blockCursor
	entries     *ledger.Ledger
}

func (s *Session) State() State { return s.state }

func (s *Session) Active() bool { return s.state == StateActive }

func (s *Session) Target() catalog.Target { return s.target }

func (s *Session) Company() string { return s.company }

func (s *Session) Mode() domain.Mode { return s.target.Mode }

// CurrentSubUnit is empty in unit mode and before a sub-unit is picked.
func (s *Session) CurrentSubUnit() string {
	if s.block == nil {
		return ""
	}
	return s.block.current
}

func (s *Session) Entries() []ledger.Entry {
	if s.entries == nil {
		return nil
	}
	return s.entries.List()
}

func (s *Session) beginSelection() {
	s.reset()
	s.state = StateSelectingTarget
}

func (s *Session) chooseTarget(t catalog.Target, photoFolder string) {
	s.target = t
	s.photoFolder = photoFolder
	s.block = nil
	if t.Mode == domain.ModeBlock {
		subs := make([]string, len(t.SubUnits))
		copy(subs, t.SubUnits)
		s.block = &blockCursor{subUnits: subs}
	}
	s.state = StateAwaitingCompany
}

func (s *Session) activate(company string) {
	s.company = company
	s.entries = ledger.New()
	s.state = StateActive
}

func (s *Session) reset() {
	if s.entries != nil {
		s.entries.Clear()
	}
	*s = Session{}
}
