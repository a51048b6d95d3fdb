package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every store that runs without
// external services
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestProfileUpsertIsLatestWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertProfile(ctx, domain.Profile{
			MemberID: "u1", GuildID: "g1", Name: "Ada", Purpose: "first",
			Interests: []string{"AI"}, UpdatedAt: base,
		}))
		require.NoError(t, s.UpsertProfile(ctx, domain.Profile{
			MemberID: "u1", GuildID: "g2", Name: "Ada L", Purpose: "second",
			Interests: []string{"ML", "PM"}, Intro: "hi", UpdatedAt: base.Add(time.Hour),
		}))

		p, err := s.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ada L", p.Name)
		assert.Equal(t, "g2", p.GuildID)
		assert.Equal(t, "second", p.Purpose)
		assert.Equal(t, []string{"ML", "PM"}, p.Interests)
		assert.Equal(t, "hi", p.Intro)
		assert.True(t, p.UpdatedAt.Equal(base.Add(time.Hour)))
	})
}

func TestGetProfileNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		_, err := s.GetProfile(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListGroupProfilesExcept(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, id := range []string{"u1", "u2", "u3"} {
			require.NoError(t, s.UpsertProfile(ctx, domain.Profile{
				MemberID: id, GuildID: "g1", Name: id, UpdatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, s.UpsertProfile(ctx, domain.Profile{MemberID: "x", GuildID: "g2", UpdatedAt: base}))

		got, err := s.ListGroupProfilesExcept(ctx, "g1", "u2")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "u3", got[0].MemberID)
		assert.Equal(t, "u1", got[1].MemberID)
	})
}

func TestMessagesWindowAndDuplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.InsertMessage(ctx, domain.Message{
				ID: fmt.Sprintf("m%d", i), GuildID: "g1", ChannelID: "c1", MemberID: "u1",
				Content: fmt.Sprintf("msg %d", i), Timestamp: base.Add(time.Duration(i) * time.Second),
			}))
		}
		// duplicate id is ignored
		require.NoError(t, s.InsertMessage(ctx, domain.Message{
			ID: "m0", GuildID: "g1", ChannelID: "c1", MemberID: "u1", Content: "dup", Timestamp: base.Add(time.Hour),
		}))
		require.NoError(t, s.InsertMessage(ctx, domain.Message{
			ID: "other", GuildID: "g2", ChannelID: "c9", MemberID: "u1", Content: "elsewhere", Timestamp: base,
		}))

		texts, err := s.RecentTexts(ctx, "g1", "u1", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"msg 2", "msg 3", "msg 4"}, texts)

		all, err := s.RecentTexts(ctx, "g1", "u1", 500)
		require.NoError(t, err)
		assert.Len(t, all, 5)
		assert.NotContains(t, all, "dup")
	})
}

func TestMessageContentClipped(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		long := strings.Repeat("가", domain.MaxMessageLen+50)
		require.NoError(t, s.InsertMessage(ctx, domain.Message{
			ID: "long", GuildID: "g1", ChannelID: "c1", MemberID: "u1", Content: long, Timestamp: base,
		}))
		texts, err := s.RecentTexts(ctx, "g1", "u1", 10)
		require.NoError(t, err)
		require.Len(t, texts, 1)
		assert.Equal(t, domain.MaxMessageLen, len([]rune(texts[0])))
	})
}

func TestMatchLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		m := domain.Match{
			ID: "m1", GuildID: "g1", RequesterID: "u1", CandidateID: "u2",
			Status: domain.StatusProposed, CreatedAt: base, UpdatedAt: base,
		}
		require.NoError(t, s.InsertMatch(ctx, m))
		// insert-once
		dup := m
		dup.Status = domain.StatusDeclined
		require.NoError(t, s.InsertMatch(ctx, dup))

		got, err := s.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProposed, got.Status)
		assert.Nil(t, got.StartedAt)

		room := "room-1"
		started := base.Add(time.Minute)
		due := started.Add(48 * time.Hour)
		confirmed := domain.StatusConfirmed
		require.NoError(t, s.UpdateMatch(ctx, "m1", domain.MatchPatch{
			Status: &confirmed, RoomID: &room, StartedAt: &started, CloseDueAt: &due,
		}))

		got, err = s.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, got.Status)
		assert.Equal(t, "room-1", got.RoomID)
		require.NotNil(t, got.StartedAt)
		require.NotNil(t, got.CloseDueAt)
		assert.True(t, got.CloseDueAt.Equal(due))
		assert.Nil(t, got.ClosedAt)
		assert.True(t, got.UpdatedAt.After(base))
	})
}

func TestUpdateMatchNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		err := s.UpdateMatch(context.Background(), "missing", domain.StatusPatch(domain.StatusClosed))
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetMatch(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListMatchesByStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		statuses := []domain.MatchStatus{
			domain.StatusProposed, domain.StatusCandAccepted, domain.StatusConfirmed, domain.StatusDeclined,
		}
		for i, st := range statuses {
			require.NoError(t, s.InsertMatch(ctx, domain.Match{
				ID: fmt.Sprintf("m%d", i), GuildID: "g1", RequesterID: "u1", CandidateID: "u2",
				Status: st, CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base,
			}))
		}

		live, err := s.ListMatchesByStatus(ctx, domain.StatusProposed, domain.StatusCandAccepted)
		require.NoError(t, err)
		require.Len(t, live, 2)
		assert.Equal(t, "m0", live[0].ID)
		assert.Equal(t, "m1", live[1].ID)

		none, err := s.ListMatchesByStatus(ctx)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestClipContent(t *testing.T) {
	assert.Equal(t, "short", clipContent("short"))
	assert.Len(t, []rune(clipContent(strings.Repeat("a", 2500))), domain.MaxMessageLen)
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(fmt.Errorf("(23505) duplicate key value violates unique constraint")))
	assert.False(t, isDuplicate(fmt.Errorf("(42P01) relation does not exist")))
	assert.False(t, isDuplicate(nil))
}
