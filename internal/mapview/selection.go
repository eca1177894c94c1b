package mapview

import "sync"

// Selection tracks the one focused organization driving the detail overlay.
type Selection struct {
	mu sync.RWMutex
	id string
}

func (s *Selection) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
}

func (s *Selection) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// clearIf drops the selection only when it still points at id.
func (s *Selection) clearIf(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == id {
		s.id = ""
	}
}
