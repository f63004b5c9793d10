package session

import "sync"

// Store keys sessions by conversation id. Each conversation has its own mutex
// so turns within a conversation are serialized while other conversations run
// in parallel.
type Store struct {
	mu    sync.Mutex
	slots map[int64]*chatSlot
}

type chatSlot struct {
	mu      sync.Mutex
	session Session
}

func NewStore() *Store {
	return &Store{slots: make(map[int64]*chatSlot)}
}

func (s *Store) slot(chatID int64) *chatSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots == nil {
		s.slots = make(map[int64]*chatSlot)
	}
	sl, ok := s.slots[chatID]
	if !ok {
		sl = &chatSlot{}
		s.slots[chatID] = sl
	}
	return sl
}

// View runs fn with the conversation's session locked.
func (s *Store) View(chatID int64, fn func(*Session)) {
	sl := s.slot(chatID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(&sl.session)
}
