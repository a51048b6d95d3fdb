package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pbaille/coffeechat/internal/domain"
)

// Memory is a process-local Store used when no database is configured and in
// tests
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	messages []domain.Message
	seenMsg  map[string]struct{}
	matches  map[string]domain.Match
	now      func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]domain.Profile),
		seenMsg:  make(map[string]struct{}),
		matches:  make(map[string]domain.Match),
		now:      time.Now,
	}
}

func (m *Memory) UpsertProfile(_ context.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now().UTC()
	}
	p.Interests = slices.Clone(p.Interests)
	m.profiles[p.MemberID] = p
	return nil
}

func (m *Memory) GetProfile(_ context.Context, memberID string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[memberID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Interests = slices.Clone(p.Interests)
	return &p, nil
}

func (m *Memory) ListGroupProfilesExcept(_ context.Context, guildID, memberID string) ([]domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Profile
	for _, p := range m.profiles {
		if p.GuildID != guildID || p.MemberID == memberID {
			continue
		}
		p.Interests = slices.Clone(p.Interests)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

func (m *Memory) InsertMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seenMsg[msg.ID]; ok {
		return nil
	}
	m.seenMsg[msg.ID] = struct{}{}
	msg.Content = clipContent(msg.Content)
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) RecentTexts(_ context.Context, guildID, memberID string, limit int) ([]string, error) {
	m.mu.RLock()
	var picked []domain.Message
	for _, msg := range m.messages {
		if msg.GuildID == guildID && msg.MemberID == memberID {
			picked = append(picked, msg)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].Timestamp.Before(picked[j].Timestamp)
	})
	if limit > 0 && len(picked) > limit {
		picked = picked[len(picked)-limit:]
	}
	texts := make([]string, len(picked))
	for i, msg := range picked {
		texts[i] = msg.Content
	}
	return texts, nil
}

func (m *Memory) InsertMatch(_ context.Context, match domain.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[match.ID]; ok {
		return nil
	}
	m.matches[match.ID] = match
	return nil
}

func (m *Memory) UpdateMatch(_ context.Context, id string, patch domain.MatchPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(&match, m.now().UTC())
	m.matches[id] = match
	return nil
}

func (m *Memory) GetMatch(_ context.Context, id string) (*domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &match, nil
}

func (m *Memory) ListMatchesByStatus(_ context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Match
	for _, match := range m.matches {
		if slices.Contains(statuses, match.Status) {
			out = append(out, match)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }
