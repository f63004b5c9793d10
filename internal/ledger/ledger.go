// Package ledger holds the ordered, individually removable defect entries of
// one inspection session.
//
// A Ledger is owned by exactly one session and is not safe for concurrent use;
// callers serialize access through the per-conversation turn lock.
package ledger

import (
	"errors"

	"github.com/google/uuid"

	"inspection-bot/internal/domain"
)

// ErrNotFound is returned when an entry id is not (or no longer) present.
var ErrNotFound = errors.New("ledger: entry not found")

// Kind tells text-only entries from photo-backed ones.
type Kind int

const (
	KindText Kind = iota
	KindPhoto
)

func (k Kind) String() string {
	if k == KindPhoto {
		return "photo"
	}
	return "text"
}

// Entry is one recorded defect. Photo is set if and only if Kind is KindPhoto.
type Entry struct {
	ID          string
	Kind        Kind
	Description string
	Photo       domain.FileHandle
}

// Ledger is the ordered list of entries recorded during one session.
type Ledger struct {
	entries []Entry
	ids     map[string]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{ids: make(map[string]struct{})}
}

// AddText records a text-only entry and returns its id.
func (l *Ledger) AddText(description string) string {
	return l.add(KindText, description, domain.FileHandle{})
}

// AddPhoto records a photo-backed entry. The photo must already be uploaded.
func (l *Ledger) AddPhoto(description string, photo domain.FileHandle) (string, error) {
	if photo.IsZero() {
		return "", errors.New("ledger: photo entry requires an uploaded file")
	}
	return l.add(KindPhoto, description, photo), nil
}

func (l *Ledger) add(kind Kind, description string, photo domain.FileHandle) string {
	l.init()
	id := newID()
	for {
		if _, taken := l.ids[id]; !taken {
			break
		}
		id = newID()
	}
	l.ids[id] = struct{}{}
	l.entries = append(l.entries, Entry{ID: id, Kind: kind, Description: description, Photo: photo})
	return id
}

// RemoveByID removes and returns the entry. A second removal of the same id
// returns ErrNotFound and leaves the ledger untouched.
func (l *Ledger) RemoveByID(id string) (Entry, error) {
	for i, e := range l.entries {
		if e.ID != id {
			continue
		}
		l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
		delete(l.ids, id)
		return e, nil
	}
	return Entry{}, ErrNotFound
}

// Last returns the most recently added entry still present.
func (l *Ledger) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// List returns a snapshot in insertion order.
func (l *Ledger) List() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns the number of entries still present.
func (l *Ledger) Count() int {
	return len(l.entries)
}

// Clear drops every entry. Used only when a session ends.
func (l *Ledger) Clear() {
	l.entries = nil
	l.ids = make(map[string]struct{})
}

func (l *Ledger) init() {
	if l.ids == nil {
		l.ids = make(map[string]struct{})
	}
}

var newID = func() string {
	return uuid.NewString()
}
