package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pbaille/coffeechat/internal/domain"
)

//go:embed migrations/postgres.sql
var postgresSchema string

// Postgres is a Store backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and applies the embedded migration
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the embedded schema; every statement is idempotent
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

// Ready pings the database
func (s *Postgres) Ready(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "select 1").Scan(&one)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) UpsertProfile(ctx context.Context, p domain.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		insert into profiles (user_id, guild_id, name, purpose, interests, intro, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (user_id) do update set
			guild_id = excluded.guild_id,
			name = excluded.name,
			purpose = excluded.purpose,
			interests = excluded.interests,
			intro = excluded.intro,
			updated_at = excluded.updated_at
	`, p.MemberID, p.GuildID, p.Name, p.Purpose, nonNil(p.Interests), p.Intro, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Postgres) GetProfile(ctx context.Context, memberID string) (*domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx, `
		select user_id, guild_id, name, purpose, interests, intro, updated_at
		from profiles where user_id = $1
	`, memberID).Scan(&p.MemberID, &p.GuildID, &p.Name, &p.Purpose, &p.Interests, &p.Intro, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *Postgres) ListGroupProfilesExcept(ctx context.Context, guildID, memberID string) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		select user_id, guild_id, name, purpose, interests, intro, updated_at
		from profiles
		where guild_id = $1 and user_id <> $2
		order by updated_at desc, user_id
	`, guildID, memberID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.MemberID, &p.GuildID, &p.Name, &p.Purpose, &p.Interests, &p.Intro, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *Postgres) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := s.pool.Exec(ctx, `
		insert into messages (id, guild_id, channel_id, user_id, content, ts)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (id) do nothing
	`, m.ID, m.GuildID, m.ChannelID, m.MemberID, clipContent(m.Content), m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Postgres) RecentTexts(ctx context.Context, guildID, memberID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		select content from messages
		where guild_id = $1 and user_id = $2
		order by ts desc
		limit $3
	`, guildID, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	reverse(texts)
	return texts, nil
}

func (s *Postgres) InsertMatch(ctx context.Context, m domain.Match) error {
	_, err := s.pool.Exec(ctx, `
		insert into matches
			(id, guild_id, requester_id, candidate_id, status, voice_channel_id,
			 created_at, updated_at, started_at, close_due_at, closed_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		on conflict (id) do nothing
	`, m.ID, m.GuildID, m.RequesterID, m.CandidateID, string(m.Status), m.RoomID,
		m.CreatedAt, m.UpdatedAt, m.StartedAt, m.CloseDueAt, m.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateMatch(ctx context.Context, id string, patch domain.MatchPatch) error {
	cols, args := matchColumns(patch, time.Now())
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("update matches set %s where id = $%d", strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	rows, err := s.pool.Query(ctx, "select "+matchSelect+" from matches where id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanPgMatch)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return &m, nil
}

func (s *Postgres) ListMatchesByStatus(ctx context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		"select "+matchSelect+" from matches where status = any($1) order by created_at, id",
		statusStrings(statuses),
	)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	matches, err := pgx.CollectRows(rows, scanPgMatch)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

func scanPgMatch(row pgx.CollectableRow) (domain.Match, error) {
	var m domain.Match
	var status string
	err := row.Scan(&m.ID, &m.GuildID, &m.RequesterID, &m.CandidateID, &status, &m.RoomID,
		&m.CreatedAt, &m.UpdatedAt, &m.StartedAt, &m.CloseDueAt, &m.ClosedAt)
	m.Status = domain.MatchStatus(status)
	return m, err
}
