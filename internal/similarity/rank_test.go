package similarity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	mu    sync.Mutex
	texts map[string][]string
	fail  map[string]bool
	calls []string
}

func (f *fakeHistory) RecentTexts(_ context.Context, guildID, memberID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, guildID+"/"+memberID)
	if f.fail[memberID] {
		return nil, errors.New("history unavailable")
	}
	texts := f.texts[memberID]
	if len(texts) > limit {
		texts = texts[:limit]
	}
	return texts, nil
}

func profile(id, purpose string, interests ...string) domain.Profile {
	return domain.Profile{MemberID: id, GuildID: "g1", Name: id, Purpose: purpose, Interests: interests}
}

func TestRankOrdersByCompositeScore(t *testing.T) {
	engine := NewEngine(nil, Options{}, nil, nil)
	requester := profile("u1", "", "AI", "ML")
	candidates := []domain.Profile{
		profile("u2", "", "PM"),
		profile("u3", "", "AI", "ML"),
		profile("u4", "", "AI"),
	}

	ranked, err := engine.Rank(context.Background(), "g1", requester, candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "u3", ranked[0].Profile.MemberID)
	assert.InDelta(t, 0.7, ranked[0].Score, 1e-9)
	assert.Equal(t, "u4", ranked[1].Profile.MemberID)
	assert.InDelta(t, 0.35, ranked[1].Score, 1e-9)
	assert.Equal(t, "u2", ranked[2].Profile.MemberID)
	assert.Equal(t, 0.0, ranked[2].Score)
}

func TestRankExcludesRequester(t *testing.T) {
	engine := NewEngine(nil, Options{}, nil, nil)
	requester := profile("u1", "", "AI")
	candidates := []domain.Profile{
		profile("u1", "", "AI"),
		profile("u2", "", "AI"),
		profile("", "", "AI"),
	}

	ranked, err := engine.Rank(context.Background(), "g1", requester, candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "u2", ranked[0].Profile.MemberID)
}

func TestRankNoEligibleCandidates(t *testing.T) {
	engine := NewEngine(nil, Options{}, nil, nil)
	ranked, err := engine.Rank(context.Background(), "g1", profile("u1", ""), nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	engine := NewEngine(nil, Options{}, nil, nil)
	requester := profile("u1", "", "AI")
	var candidates []domain.Profile
	for _, id := range []string{"b", "a", "d", "c"} {
		candidates = append(candidates, profile(id, "", "AI"))
	}

	for j := 0; j < 5; j++ {
		ranked, err := engine.Rank(context.Background(), "g1", requester, candidates)
		require.NoError(t, err)
		ids := make([]string, len(ranked))
		for i, c := range ranked {
			ids[i] = c.Profile.MemberID
		}
		assert.Equal(t, []string{"b", "a", "d", "c"}, ids)
	}
}

func TestRankEmptyTagsScoresPurposeOnly(t *testing.T) {
	engine := NewEngine(&fakeHistory{}, Options{}, nil, nil)
	requester := profile("u1", "coffee chat about careers")
	candidates := []domain.Profile{profile("u2", "coffee chat about careers")}

	ranked, err := engine.Rank(context.Background(), "g1", requester, candidates)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, 0.0, ranked[0].InterestScore)
	assert.InDelta(t, 1.0, ranked[0].PurposeScore, 1e-9)
	assert.InDelta(t, 0.3, ranked[0].Score, 1e-9)
}

func TestRankMergesHistoryTags(t *testing.T) {
	history := &fakeHistory{texts: map[string][]string{
		"u1": {"shipping a new llm feature", "devops on call again"},
		"u2": {"anyone into llm evals?"},
	}}
	engine := NewEngine(history, Options{HistoryWindow: 10}, nil, nil)

	ranked, err := engine.Rank(context.Background(), "g1", profile("u1", ""), []domain.Profile{profile("u2", "")})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, []string{"LLM"}, ranked[0].Tags)
	assert.InDelta(t, 0.5, ranked[0].InterestScore, 1e-9)
	assert.Contains(t, history.calls, "g1/u1")
	assert.Contains(t, history.calls, "g1/u2")
}

func TestRankHistoryFailureDegradesToExplicitTags(t *testing.T) {
	history := &fakeHistory{
		texts: map[string][]string{"u2": {"llm llm llm"}},
		fail:  map[string]bool{"u2": true},
	}
	engine := NewEngine(history, Options{}, nil, nil)

	ranked, err := engine.Rank(context.Background(), "g1", profile("u1", "", "AI"), []domain.Profile{profile("u2", "", "AI")})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, []string{"AI"}, ranked[0].Tags)
	assert.InDelta(t, 0.7, ranked[0].Score, 1e-9)
}

func TestRankHistoryDisabled(t *testing.T) {
	history := &fakeHistory{texts: map[string][]string{"u2": {"llm"}}}
	engine := NewEngine(history, Options{HistoryDisabled: true}, nil, nil)

	_, err := engine.Rank(context.Background(), "g1", profile("u1", ""), []domain.Profile{profile("u2", "")})
	require.NoError(t, err)
	assert.Empty(t, history.calls)
}

func TestRankCancelledContext(t *testing.T) {
	engine := NewEngine(&fakeHistory{}, Options{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Rank(ctx, "g1", profile("u1", ""), []domain.Profile{profile("u2", "")})
	assert.ErrorIs(t, err, context.Canceled)
}
