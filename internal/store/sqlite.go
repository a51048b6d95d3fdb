package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/coffeechat/internal/domain"
)

//go:embed schema.sql
var schema string

// SQLite handles database operations against a local sqlite file
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dbPath and applies the schema
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertProfile creates or overwrites a member's profile
func (s *SQLite) UpsertProfile(ctx context.Context, p domain.Profile) error {
	interests, err := json.Marshal(nonNil(p.Interests))
	if err != nil {
		return fmt.Errorf("encode interests: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, guild_id, name, purpose, interests, intro, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			guild_id = excluded.guild_id,
			name = excluded.name,
			purpose = excluded.purpose,
			interests = excluded.interests,
			intro = excluded.intro,
			updated_at = excluded.updated_at
	`, p.MemberID, p.GuildID, p.Name, p.Purpose, string(interests), p.Intro, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by member id
func (s *SQLite) GetProfile(ctx context.Context, memberID string) (*domain.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT user_id, guild_id, name, purpose, interests, intro, updated_at FROM profiles WHERE user_id = ?",
		memberID,
	)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListGroupProfilesExcept returns the guild's profiles without memberID
func (s *SQLite) ListGroupProfilesExcept(ctx context.Context, guildID, memberID string) ([]domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, guild_id, name, purpose, interests, intro, updated_at
		FROM profiles
		WHERE guild_id = ? AND user_id <> ?
		ORDER BY updated_at DESC, user_id
	`, guildID, memberID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// InsertMessage appends a history entry, ignoring duplicates
func (s *SQLite) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO messages (id, guild_id, channel_id, user_id, content, ts) VALUES (?, ?, ?, ?, ?, ?)",
		m.ID, m.GuildID, m.ChannelID, m.MemberID, clipContent(m.Content), m.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentTexts returns the latest limit message contents, oldest first
func (s *SQLite) RecentTexts(ctx context.Context, guildID, memberID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content FROM messages
		WHERE guild_id = ? AND user_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`, guildID, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		texts = append(texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	reverse(texts)
	return texts, nil
}

// InsertMatch writes a new match record, ignoring duplicates
func (s *SQLite) InsertMatch(ctx context.Context, m domain.Match) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO matches
			(id, guild_id, requester_id, candidate_id, status, voice_channel_id,
			 created_at, updated_at, started_at, close_due_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.GuildID, m.RequesterID, m.CandidateID, string(m.Status), m.RoomID,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(), nullTime(m.StartedAt), nullTime(m.CloseDueAt), nullTime(m.ClosedAt))
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// UpdateMatch applies a partial update to a match record
func (s *SQLite) UpdateMatch(ctx context.Context, id string, patch domain.MatchPatch) error {
	cols, args := matchColumns(patch, time.Now())
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE matches SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMatch retrieves a match by id
func (s *SQLite) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+matchSelect+" FROM matches WHERE id = ?", id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// ListMatchesByStatus returns matches in the given statuses, oldest first
func (s *SQLite) ListMatchesByStatus(ctx context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+matchSelect+" FROM matches WHERE status IN ("+marks+") ORDER BY created_at, id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

const matchSelect = `id, guild_id, requester_id, candidate_id, status, voice_channel_id,
	created_at, updated_at, started_at, close_due_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(sc scanner) (*domain.Profile, error) {
	var p domain.Profile
	var interests string
	if err := sc.Scan(&p.MemberID, &p.GuildID, &p.Name, &p.Purpose, &interests, &p.Intro, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(interests), &p.Interests); err != nil {
		return nil, fmt.Errorf("decode interests: %w", err)
	}
	return &p, nil
}

func scanMatch(sc scanner) (*domain.Match, error) {
	var m domain.Match
	var status string
	var started, closeDue, closed sql.NullTime
	err := sc.Scan(&m.ID, &m.GuildID, &m.RequesterID, &m.CandidateID, &status, &m.RoomID,
		&m.CreatedAt, &m.UpdatedAt, &started, &closeDue, &closed)
	if err != nil {
		return nil, err
	}
	m.Status = domain.MatchStatus(status)
	m.StartedAt = timePtr(started)
	m.CloseDueAt = timePtr(closeDue)
	m.ClosedAt = timePtr(closed)
	return &m, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func reverse(xs []string) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
