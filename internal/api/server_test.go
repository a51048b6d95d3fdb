package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pbaille/coffeechat/internal/bot"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory, *metrics.Collector) {
	t.Helper()
	st := store.NewMemory()
	m := metrics.New()
	svc := bot.New(bot.Config{Store: st, Negotiator: negotiator.New(negotiator.Config{Store: st}), Metrics: m})
	ts := httptest.NewServer(New(st, svc, m, nil, "").Handler())
	t.Cleanup(ts.Close)
	return ts, st, m
}

func seedProfile(t *testing.T, st *store.Memory, id string, interests ...string) {
	t.Helper()
	require.NoError(t, st.UpsertProfile(context.Background(), domain.Profile{
		MemberID:  id,
		GuildID:   "g1",
		Name:      id,
		Interests: interests,
		UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["live_negotiations"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, m := newTestServer(t)
	m.ProposalCreated()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetProfile(t *testing.T) {
	ts, st, _ := newTestServer(t)
	seedProfile(t, st, "ada", "AI")

	var p domain.Profile
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/profiles/ada", &p))
	assert.Equal(t, []string{"AI"}, p.Interests)

	var e map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/profiles/nobody", &e))
	assert.Equal(t, "profile not found", e["error"])
}

func TestGetMatch(t *testing.T) {
	ts, st, _ := newTestServer(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertMatch(context.Background(), domain.Match{
		ID: "m1", GuildID: "g1", RequesterID: "ada", CandidateID: "grace",
		Status: domain.StatusProposed, CreatedAt: now, UpdatedAt: now,
	}))

	var m domain.Match
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/matches/m1", &m))
	assert.Equal(t, domain.StatusProposed, m.Status)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/matches/m404", nil))
}

func TestListCandidates(t *testing.T) {
	ts, st, _ := newTestServer(t)
	seedProfile(t, st, "ada", "AI", "STARTUP")
	seedProfile(t, st, "grace", "AI")
	seedProfile(t, st, "bob", "GAME")

	var resp CandidatesResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/guilds/g1/members/ada/candidates?limit=1", &resp))
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "grace", resp.Candidates[0].Profile.MemberID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/guilds/g1/members/ada/candidates?limit=x", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/guilds/g1/members/nobody/candidates", nil))
}

func TestListCandidatesEmptyPool(t *testing.T) {
	ts, st, _ := newTestServer(t)
	seedProfile(t, st, "ada", "AI")

	var resp CandidatesResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/guilds/g1/members/ada/candidates", &resp))
	assert.NotNil(t, resp.Candidates)
	assert.Empty(t, resp.Candidates)
}
