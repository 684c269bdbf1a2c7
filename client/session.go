package client

import (
	"sync"

	"github.com/semanticallynull/gocab-backend/user"
)

// Session holds the signed-in user. The zero value is signed out.
type Session struct {
	mu   sync.RWMutex
	user *user.User
}

// User returns a copy of the signed-in user.
func (s *Session) User() (user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return user.User{}, false
	}
	return *s.user, true
}

func (s *Session) set(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}
