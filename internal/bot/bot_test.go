package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/clock"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/notify"
	"github.com/pbaille/coffeechat/internal/similarity"
	"github.com/pbaille/coffeechat/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu        sync.Mutex
	sent      map[string][]notify.Message
	unreached map[string]bool
}

func (g *fakeGateway) Deliver(_ context.Context, memberID string, msg notify.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unreached[memberID] {
		return fmt.Errorf("%w: dms closed", notify.ErrUndeliverable)
	}
	g.sent[memberID] = append(g.sent[memberID], msg)
	return nil
}

type stubProvisioner struct {
	store *store.Memory
}

func (p *stubProvisioner) Provision(ctx context.Context, m domain.Match) (domain.Room, error) {
	confirmed := domain.StatusConfirmed
	roomID := "room-" + m.ID
	if err := p.store.UpdateMatch(ctx, m.ID, domain.MatchPatch{Status: &confirmed, RoomID: &roomID}); err != nil {
		return domain.Room{}, err
	}
	return domain.Room{ID: roomID, Name: "Ada - Grace - 2025-03-01", Retention: 48 * time.Hour}, nil
}

type fixture struct {
	store   *store.Memory
	gateway *fakeGateway
	metrics *metrics.Collector
	svc     *Service
}

func newFixture(t *testing.T, logged ...string) *fixture {
	t.Helper()
	st := store.NewMemory()
	f := &fixture{
		store:   st,
		gateway: &fakeGateway{sent: map[string][]notify.Message{}, unreached: map[string]bool{}},
		metrics: metrics.New(),
	}
	clk := clock.Fake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	seq := 0
	neg := negotiator.New(negotiator.Config{
		Store:       st,
		Gateway:     f.gateway,
		Provisioner: &stubProvisioner{store: st},
		Clock:       clk,
		NewID: func() string {
			seq++
			return fmt.Sprintf("m%d", seq)
		},
		Metrics: f.metrics,
	})
	f.svc = New(Config{
		Store:            st,
		Engine:           similarity.NewEngine(st, similarity.Options{}, nil, f.metrics),
		Negotiator:       neg,
		Clock:            clk,
		LoggedChannelIDs: logged,
		Metrics:          f.metrics,
	})
	return f
}

func (f *fixture) seed(t *testing.T, id, guild, purpose string, age time.Duration, interests ...string) {
	t.Helper()
	require.NoError(t, f.store.UpsertProfile(context.Background(), domain.Profile{
		MemberID:  id,
		GuildID:   guild,
		Name:      id,
		Purpose:   purpose,
		Interests: interests,
		UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Add(-age),
	}))
}

func TestRequestMatchWithoutProfile(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.RequestMatch(context.Background(), "g1", "ada")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.NotFound))
	assert.Contains(t, apperror.Message(err, ""), "/profile_ai")
}

func TestRequestMatchOutsideGuild(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PreviewMatch(context.Background(), "", "ada")
	assert.True(t, apperror.Is(err, apperror.Validation))
}

func TestRequestMatchNoCandidates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ada", "g1", "", 0, "AI")
	f.seed(t, "grace", "g2", "", 0, "AI")

	_, _, err := f.svc.RequestMatch(context.Background(), "g1", "ada")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.NotFound))
	assert.Contains(t, apperror.Message(err, ""), "No candidates")
}

func TestRequestMatchProposesTopCandidate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ada", "g1", "", 0, "AI", "STARTUP")
	f.seed(t, "grace", "g1", "", time.Hour, "AI", "STARTUP")
	f.seed(t, "bob", "g1", "", 0, "GAME")

	p, m, err := f.svc.RequestMatch(context.Background(), "g1", "ada")
	require.NoError(t, err)
	assert.Equal(t, "grace", p.Candidate.Profile.MemberID)
	assert.Equal(t, 1.0, p.Candidate.InterestScore)
	assert.Equal(t, domain.StatusProposed, m.Status)
	assert.Equal(t, "ada", m.RequesterID)
	assert.Equal(t, "grace", m.CandidateID)

	sent := f.gateway.sent["grace"]
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Actions, 2)
	assert.Equal(t, negotiator.ActionID(m.ID, negotiator.CandidateAcceptAction), sent[0].Actions[0].ID)
}

func TestRequestMatchUndeliverable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ada", "g1", "", 0, "AI")
	f.seed(t, "grace", "g1", "", 0, "AI")
	f.gateway.unreached["grace"] = true

	_, m, err := f.svc.RequestMatch(context.Background(), "g1", "ada")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.Unavailable))
	assert.ErrorIs(t, err, notify.ErrUndeliverable)

	stored, err := f.store.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeclined, stored.Status)
}

func TestHandleMatchActionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "ada", "g1", "", 0, "AI")
	f.seed(t, "grace", "g1", "", 0, "AI")

	_, m, err := f.svc.RequestMatch(ctx, "g1", "ada")
	require.NoError(t, err)

	a, got, err := f.svc.HandleMatchAction(ctx, negotiator.ActionID(m.ID, negotiator.CandidateAcceptAction), "grace")
	require.NoError(t, err)
	assert.Equal(t, negotiator.CandidateAcceptAction, a)
	assert.Equal(t, domain.StatusCandAccepted, got.Status)

	_, _, err = f.svc.HandleMatchAction(ctx, negotiator.ActionID(m.ID, negotiator.RequesterAcceptAction), "grace")
	assert.ErrorIs(t, err, negotiator.ErrWrongActor)

	_, got, err = f.svc.HandleMatchAction(ctx, negotiator.ActionID(m.ID, negotiator.RequesterAcceptAction), "ada")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, "room-"+m.ID, got.RoomID)
}

func TestHandleMatchActionRejectsForeignControl(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.HandleMatchAction(context.Background(), "profile_ai:confirm", "ada")
	assert.True(t, apperror.Is(err, apperror.Validation))
}

func TestActionOutcome(t *testing.T) {
	tests := []struct {
		name   string
		action negotiator.Action
		err    error
		want   string
	}{
		{"unknown", negotiator.CandidateAcceptAction, negotiator.ErrUnknownMatch, "expired"},
		{"wrong requester", negotiator.RequesterAcceptAction, negotiator.ErrWrongActor, "Only the requester"},
		{"wrong candidate", negotiator.CandidateDeclineAction, negotiator.ErrWrongActor, "Only the invited member"},
		{"stale", negotiator.CandidateAcceptAction, negotiator.ErrInvalidTransition, "already answered"},
		{"accepted", negotiator.CandidateAcceptAction, nil, "Waiting for the requester"},
		{"declined", negotiator.CandidateDeclineAction, nil, "declined"},
		{"cancelled", negotiator.RequesterDeclineAction, nil, "cancelled"},
		{"confirmed", negotiator.RequesterAcceptAction, nil, "voice room is ready"},
		{"room failed", negotiator.RequesterAcceptAction, apperror.New(apperror.Forbidden, "missing permission"), "missing permission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, ActionOutcome(tt.action, tt.err), tt.want)
		})
	}
}

func TestPreviewMessagePercentages(t *testing.T) {
	msg := PreviewMessage(Preview{Candidate: similarity.Candidate{
		Profile:       domain.Profile{Name: "Grace"},
		InterestScore: 0.5,
		PurposeScore:  1.0 / 3.0,
	}}, "grace")
	assert.Equal(t, "Suggested match: grace", msg.Title)
	last := msg.Fields[len(msg.Fields)-1]
	assert.Contains(t, last.Value, "Interest similarity: 50%")
	assert.Contains(t, last.Value, "Purpose similarity: 33%")
}

func TestSubmitProfileValidates(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.SubmitProfile(context.Background(), "g1", "ada", "  ", "text")
	assert.True(t, apperror.Is(err, apperror.Validation))
	_, _, err = f.svc.SubmitProfile(context.Background(), "g1", "ada", "Ada", "")
	assert.True(t, apperror.Is(err, apperror.Validation))
}

func TestSubmitProfileUsesFallbackWithoutProvider(t *testing.T) {
	f := newFixture(t)
	p, generated, err := f.svc.SubmitProfile(context.Background(), "g1", "ada", "Ada", "I work on AI at a startup")
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, []string{"AI", "STARTUP"}, p.Interests)
	assert.Equal(t, "I work on AI at a startup", p.Purpose)

	stored, err := f.svc.ViewProfile(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, "g1", stored.GuildID)
	assert.Equal(t, "Ada", stored.Name)
}

func TestEditProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "ada", "g1", "old", 0, "AI")

	_, err := f.svc.EditProfile(ctx, "", "ada", ProfileInput{Name: "Ada", Purpose: " "})
	assert.True(t, apperror.Is(err, apperror.Validation))

	p, err := f.svc.EditProfile(ctx, "", "ada", ProfileInput{
		Name:      " Ada ",
		Purpose:   "Talk about compilers",
		Interests: "ai, Startup , ai,",
		Intro:     " hi ",
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", p.GuildID)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, []string{"AI", "STARTUP"}, p.Interests)
	assert.Equal(t, "hi", p.Intro)

	defaults := f.svc.EditDefaults(ctx, "ada")
	assert.Equal(t, "AI, STARTUP", defaults.Interests)
	assert.Equal(t, ProfileInput{}, f.svc.EditDefaults(ctx, "nobody"))
}

func TestRegenerateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.RegenerateProfile(ctx, "g1", "ada")
	assert.True(t, apperror.Is(err, apperror.NotFound))

	f.seed(t, "ada", "g1", "Looking for a security mentor", 0, "GAME")
	p, _, err := f.svc.RegenerateProfile(ctx, "", "ada")
	require.NoError(t, err)
	assert.Equal(t, "g1", p.GuildID)
	assert.Equal(t, []string{"SECURITY"}, p.Interests)
}

func TestLogMessage(t *testing.T) {
	f := newFixture(t, "c1")
	ctx := context.Background()
	msg := domain.Message{ID: "1", GuildID: "g1", ChannelID: "c1", MemberID: "ada", Content: "hello startup people"}

	assert.Equal(t, LogSkipped, f.svc.LogMessage(ctx, msg, true))

	other := msg
	other.ChannelID = "c2"
	assert.Equal(t, LogSkipped, f.svc.LogMessage(ctx, other, false))

	blank := msg
	blank.Content = "   "
	assert.Equal(t, LogSkipped, f.svc.LogMessage(ctx, blank, false))

	dm := msg
	dm.GuildID = ""
	assert.Equal(t, LogSkipped, f.svc.LogMessage(ctx, dm, false))

	assert.Equal(t, LogStored, f.svc.LogMessage(ctx, msg, false))

	texts, err := f.store.RecentTexts(ctx, "g1", "ada", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello startup people"}, texts)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesLogged.WithLabelValues(LogStored)))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.MessagesLogged.WithLabelValues(LogSkipped)))
}

func TestChannelLoggedWithoutWhitelist(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.svc.ChannelLogged("anything"))
}

func TestPrivacyNotice(t *testing.T) {
	assert.Contains(t, newFixture(t).svc.PrivacyNotice().Body, "every text channel")
	body := newFixture(t, "c1", "c2").svc.PrivacyNotice().Body
	assert.Contains(t, body, "<#c1>, <#c2>")
}

func TestStartHereMessageControls(t *testing.T) {
	msg := StartHereMessage()
	ids := make([]string, len(msg.Actions))
	for i, a := range msg.Actions {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{StartProfileButton, StartViewButton, StartEditButton, StartMatchButton}, ids)
}
