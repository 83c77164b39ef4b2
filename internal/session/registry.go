package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Registry maps a user id onto the thread id of that user's conversation.
// The first resolve of a user mints a new thread id.
type Registry struct {
	mu      sync.Mutex
	threads map[string]string
	newID   func() string
}

func NewRegistry() *Registry {
	return &Registry{threads: map[string]string{}, newID: uuid.NewString}
}

// Resolve returns the user's thread id, creating it on first use.
func (r *Registry) Resolve(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("registry: empty user id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.threads[userID]; ok {
		return id, nil
	}
	id := r.newID()
	if id == "" {
		return "", errors.New("registry: minted empty thread id")
	}
	r.threads[userID] = id
	return id, nil
}

// Lookup returns the user's thread id without creating one.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.threads[userID]
	return id, ok
}

// Len returns the number of known users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}
