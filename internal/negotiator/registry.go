package negotiator

import (
	"sync"

	"github.com/pbaille/coffeechat/internal/domain"
)

type role int

const (
	roleCandidate role = iota
	roleRequester
)

// entry is the live state of one negotiation
type entry struct {
	match        domain.Match
	candAccepted bool
	reqAccepted  bool
	// provisioning is set between requester acceptance and the provisioner's
	// answer; it is never persisted.
	provisioning bool
}

// registry holds live negotiations keyed by match id. Every precondition
// check and mutation happens under mu.
type registry struct {
	mu   sync.Mutex
	live map[string]*entry
}

func newRegistry() *registry {
	return &registry{live: make(map[string]*entry)}
}

// reserve inserts m under the first id from newID not already live
func (r *registry) reserve(m domain.Match, newID func() string) domain.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		m.ID = newID()
		if _, taken := r.live[m.ID]; !taken {
			break
		}
	}
	r.live[m.ID] = &entry{match: m}
	return m
}

// restore inserts a durable record without generating an id. Existing live
// entries win.
func (r *registry) restore(m domain.Match) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[m.ID]; ok {
		return false
	}
	r.live[m.ID] = &entry{
		match:        m,
		candAccepted: m.Status == domain.StatusCandAccepted,
	}
	return true
}

// step validates and applies one transition atomically. mutate runs under the
// lock and reports whether the entry should be purged.
func (r *registry) step(id, actor string, who role, from domain.MatchStatus, mutate func(e *entry) (purge bool)) (domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live[id]
	if !ok {
		return domain.Match{}, ErrUnknownMatch
	}
	want := e.match.CandidateID
	if who == roleRequester {
		want = e.match.RequesterID
	}
	if actor != want {
		return e.match, ErrWrongActor
	}
	if e.provisioning || e.match.Status != from {
		return e.match, ErrInvalidTransition
	}

	if mutate(e) {
		delete(r.live, id)
	}
	return e.match, nil
}

func (r *registry) purge(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, id)
}

func (r *registry) get(id string) (domain.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.live[id]
	if !ok {
		return domain.Match{}, false
	}
	return e.match, true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
