package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/coffeechat/internal/domain"
	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Supabase is a Store talking to a hosted Postgres through its REST gateway.
// Tables are created out of band with migrations/postgres.sql.
type Supabase struct {
	client *supabase.Client
}

// NewSupabase creates a REST-backed store using a service role key
func NewSupabase(url, key string) (*Supabase, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

func (s *Supabase) Close() error { return nil }

// isDuplicate matches postgres unique_violation as surfaced by postgrest
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "(23505)")
}

func (s *Supabase) UpsertProfile(_ context.Context, p domain.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	p.Interests = nonNil(p.Interests)
	_, _, err := s.client.From("profiles").
		Upsert(p, "user_id", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Supabase) GetProfile(_ context.Context, memberID string) (*domain.Profile, error) {
	var rows []domain.Profile
	_, err := s.client.From("profiles").
		Select("*", "", false).
		Eq("user_id", memberID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *Supabase) ListGroupProfilesExcept(_ context.Context, guildID, memberID string) ([]domain.Profile, error) {
	var rows []domain.Profile
	_, err := s.client.From("profiles").
		Select("*", "", false).
		Eq("guild_id", guildID).
		Neq("user_id", memberID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Order("user_id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return rows, nil
}

func (s *Supabase) InsertMessage(_ context.Context, m domain.Message) error {
	m.Content = clipContent(m.Content)
	_, _, err := s.client.From("messages").
		Insert(m, false, "", "minimal", "").
		Execute()
	if err != nil && !isDuplicate(err) {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Supabase) RecentTexts(_ context.Context, guildID, memberID string, limit int) ([]string, error) {
	var rows []struct {
		Content string `json:"content"`
	}
	_, err := s.client.From("messages").
		Select("content", "", false).
		Eq("guild_id", guildID).
		Eq("user_id", memberID).
		Order("ts", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Content
	}
	reverse(texts)
	return texts, nil
}

func (s *Supabase) InsertMatch(_ context.Context, m domain.Match) error {
	_, _, err := s.client.From("matches").
		Insert(m, false, "", "minimal", "").
		Execute()
	if err != nil && !isDuplicate(err) {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *Supabase) UpdateMatch(_ context.Context, id string, patch domain.MatchPatch) error {
	cols, args := matchColumns(patch, time.Now())
	body := make(map[string]any, len(cols))
	for i, c := range cols {
		body[c] = args[i]
	}

	var rows []domain.Match
	_, err := s.client.From("matches").
		Update(body, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Supabase) GetMatch(_ context.Context, id string) (*domain.Match, error) {
	var rows []domain.Match
	_, err := s.client.From("matches").
		Select("*", "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *Supabase) ListMatchesByStatus(_ context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var rows []domain.Match
	_, err := s.client.From("matches").
		Select("*", "", false).
		In("status", statusStrings(statuses)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return rows, nil
}
