// Package store persists profiles, interaction history and match records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/pbaille/coffeechat/internal/config"
	"github.com/pbaille/coffeechat/internal/domain"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a profile or match does not exist
var ErrNotFound = errors.New("not found")

// Store is the durable backend shared by every component
type Store interface {
	UpsertProfile(ctx context.Context, p domain.Profile) error
	GetProfile(ctx context.Context, memberID string) (*domain.Profile, error)
	// ListGroupProfilesExcept returns every profile last submitted from
	// guildID, minus memberID, most recently updated first.
	ListGroupProfilesExcept(ctx context.Context, guildID, memberID string) ([]domain.Profile, error)

	// InsertMessage appends to the history log; re-inserting an id is a no-op.
	InsertMessage(ctx context.Context, m domain.Message) error
	// RecentTexts returns up to limit most recent message contents of a
	// member in a guild, oldest first.
	RecentTexts(ctx context.Context, guildID, memberID string, limit int) ([]string, error)

	// InsertMatch writes a match once; re-inserting an id is a no-op.
	InsertMatch(ctx context.Context, m domain.Match) error
	UpdateMatch(ctx context.Context, id string, patch domain.MatchPatch) error
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	// ListMatchesByStatus returns matches in any of the given statuses,
	// oldest first.
	ListMatchesByStatus(ctx context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error)

	Close() error
}

// Open builds the backend selected by cfg.Driver
func Open(ctx context.Context, cfg config.Store, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	switch cfg.Driver {
	case "", "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return NewMemory(), nil
	case "sqlite":
		logger.Info("opening sqlite store", zap.String("path", cfg.SQLitePath))
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		logger.Info("connecting to postgres")
		return NewPostgres(ctx, cfg.PostgresDSN)
	case "supabase":
		logger.Info("connecting to supabase", zap.String("url", cfg.SupabaseURL))
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// clipContent bounds logged message content to domain.MaxMessageLen runes
func clipContent(s string) string {
	if utf8.RuneCountInString(s) <= domain.MaxMessageLen {
		return s
	}
	r := []rune(s)
	return string(r[:domain.MaxMessageLen])
}

func statusStrings(statuses []domain.MatchStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// matchColumns lists the columns a patch sets, in a fixed order, with their
// values. updated_at is always last.
func matchColumns(patch domain.MatchPatch, now time.Time) ([]string, []any) {
	var cols []string
	var args []any
	if patch.Status != nil {
		cols = append(cols, "status")
		args = append(args, string(*patch.Status))
	}
	if patch.RoomID != nil {
		cols = append(cols, "voice_channel_id")
		args = append(args, *patch.RoomID)
	}
	if patch.StartedAt != nil {
		cols = append(cols, "started_at")
		args = append(args, patch.StartedAt.UTC())
	}
	if patch.CloseDueAt != nil {
		cols = append(cols, "close_due_at")
		args = append(args, patch.CloseDueAt.UTC())
	}
	if patch.ClosedAt != nil {
		cols = append(cols, "closed_at")
		args = append(args, patch.ClosedAt.UTC())
	}
	cols = append(cols, "updated_at")
	args = append(args, now.UTC())
	return cols, args
}
