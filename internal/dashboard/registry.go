package dashboard

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for ids that are not registered or
// belong to another user.
var ErrUnknownSession = errors.New("unknown dashboard session")

// Registry tracks the live controllers of streaming staff clients so
// commands sent on separate requests reach the right one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]registered
}

type registered struct {
	owner uint64
	ctrl  *Controller
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]registered{}}
}

// Add registers c for owner and returns its session id.
func (r *Registry) Add(owner uint64, c *Controller) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = registered{owner: owner, ctrl: c}
	r.mu.Unlock()
	return id
}

// Get returns the controller for id if owner registered it.
func (r *Registry) Get(id string, owner uint64) (*Controller, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.owner != owner {
		return nil, ErrUnknownSession
	}
	return s.ctrl, nil
}

// Remove forgets id.  It does not dispose the controller.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DisposeAll disposes and forgets every controller, for shutdown.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]registered{}
	r.mu.Unlock()
	for _, s := range all {
		s.ctrl.Dispose()
	}
}
