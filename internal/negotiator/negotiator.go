// Package negotiator runs the two-party consent protocol for a proposed
// match: proposed → cand_accepted → confirmed, or declined by either side.
//
// The Negotiator owns the registry of live negotiations. A negotiation stays
// in the registry until it is declined, abandoned or its room provisioning
// resolves; after that every action on its id is answered with
// ErrUnknownMatch. The durable store is written after each transition but is
// never consulted to decide one.
package negotiator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/clock"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/notify"
	"go.uber.org/zap"
)

var (
	ErrUnknownMatch      = errors.New("match expired or unknown")
	ErrWrongActor        = errors.New("this match is not yours to answer")
	ErrInvalidTransition = errors.New("match is no longer waiting for this action")
	ErrSelfMatch         = errors.New("cannot match a member with themselves")
)

// Store is the durable side of the negotiation
type Store interface {
	InsertMatch(ctx context.Context, m domain.Match) error
	UpdateMatch(ctx context.Context, id string, patch domain.MatchPatch) error
	ListMatchesByStatus(ctx context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error)
	GetProfile(ctx context.Context, memberID string) (*domain.Profile, error)
}

// Provisioner creates the private room once both members have accepted. It is
// responsible for persisting the confirmed status.
type Provisioner interface {
	Provision(ctx context.Context, m domain.Match) (domain.Room, error)
}

// Event kinds recorded to the EventSink besides status changes
const (
	EventProvisionFailed = "provision_failed"
	EventUndeliverable   = "undeliverable"
)

// Event describes one step of a negotiation
type Event struct {
	Kind   string
	Match  domain.Match
	Actor  string
	Detail string
}

// EventSink records negotiation events for audit
type EventSink interface {
	MatchEvent(ctx context.Context, e Event)
}

// Config wires a Negotiator
type Config struct {
	Store       Store
	Gateway     notify.Gateway
	Provisioner Provisioner
	Events      EventSink
	Clock       clock.Clock
	NewID       func() string
	Logger      *zap.Logger
	Metrics     *metrics.Collector
}

// Negotiator drives match proposals through the consent protocol
type Negotiator struct {
	reg         *registry
	store       Store
	gateway     notify.Gateway
	provisioner Provisioner
	events      EventSink
	clock       clock.Clock
	newID       func() string
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// New creates a Negotiator with an empty registry
func New(cfg Config) *Negotiator {
	n := &Negotiator{
		reg:         newRegistry(),
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		provisioner: cfg.Provisioner,
		events:      cfg.Events,
		clock:       cfg.Clock,
		newID:       cfg.NewID,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if n.clock == nil {
		n.clock = clock.Real()
	}
	if n.newID == nil {
		n.newID = func() string { return uuid.New().String() }
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	n.logger = n.logger.Named("negotiator")
	return n
}

// Rehydrate reloads durable proposed and cand_accepted records into the
// registry so that controls sent before a restart keep working. It returns
// the number of restored negotiations. A cand_accepted record that already
// references a room was provisioned before the restart; it is left to the
// room sweep.
func (n *Negotiator) Rehydrate(ctx context.Context) (int, error) {
	matches, err := n.store.ListMatchesByStatus(ctx, domain.StatusProposed, domain.StatusCandAccepted)
	if err != nil {
		return 0, fmt.Errorf("list live matches: %w", err)
	}
	restored := 0
	for _, m := range matches {
		if m.RequesterID == m.CandidateID || m.RoomID != "" {
			continue
		}
		if n.reg.restore(m) {
			restored++
		}
	}
	n.logger.Info("registry rehydrated", zap.Int("restored", restored))
	return restored, nil
}

// Live returns the registry view of a negotiation
func (n *Negotiator) Live(id string) (domain.Match, bool) {
	return n.reg.get(id)
}

// LiveCount is the number of negotiations in the registry
func (n *Negotiator) LiveCount() int {
	return n.reg.len()
}

// CreateProposal registers a new match between requester and candidate,
// persists it and sends the candidate the proposal controls. When the
// proposal cannot be delivered it is abandoned as declined and the returned
// error wraps notify.ErrUndeliverable.
func (n *Negotiator) CreateProposal(ctx context.Context, guildID, requesterID, candidateID string) (domain.Match, error) {
	if requesterID == "" || candidateID == "" {
		return domain.Match{}, fmt.Errorf("create proposal: empty member id")
	}
	if requesterID == candidateID {
		n.metrics.Rejected("self_match")
		return domain.Match{}, ErrSelfMatch
	}

	now := n.clock.Now().UTC()
	m := n.reg.reserve(domain.Match{
		GuildID:     guildID,
		RequesterID: requesterID,
		CandidateID: candidateID,
		Status:      domain.StatusProposed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, n.newID)

	if err := n.store.InsertMatch(ctx, m); err != nil {
		n.reg.purge(m.ID)
		return domain.Match{}, fmt.Errorf("insert match: %w", err)
	}
	n.metrics.ProposalCreated()
	n.record(ctx, Event{Kind: string(domain.StatusProposed), Match: m, Actor: requesterID})

	msg := n.proposalMessage(ctx, m)
	if err := n.gateway.Deliver(ctx, candidateID, msg); err != nil {
		n.reg.purge(m.ID)
		m = n.markDeclined(ctx, m)
		n.record(ctx, Event{Kind: EventUndeliverable, Match: m, Detail: err.Error()})
		n.logger.Warn("proposal abandoned, candidate unreachable",
			zap.String("match_id", m.ID),
			zap.Error(err))
		return m, fmt.Errorf("deliver proposal: %w", err)
	}

	n.logger.Info("proposal sent",
		zap.String("match_id", m.ID),
		zap.String("requester_id", requesterID),
		zap.String("candidate_id", candidateID))
	return m, nil
}

// CandidateDecline ends a proposal at the candidate's request
func (n *Negotiator) CandidateDecline(ctx context.Context, id, actor string) (domain.Match, error) {
	m, err := n.reg.step(id, actor, roleCandidate, domain.StatusProposed, func(e *entry) bool {
		n.setStatus(&e.match, domain.StatusDeclined)
		return true
	})
	if err != nil {
		return m, n.rejected(id, actor, err)
	}

	n.persist(ctx, m.ID, domain.StatusPatch(domain.StatusDeclined))
	n.record(ctx, Event{Kind: string(m.Status), Match: m, Actor: actor})
	n.tell(ctx, m.RequesterID, notify.Message{
		Title: "Coffee chat declined",
		Body:  fmt.Sprintf("%s declined this time. Try /match again later.", notify.Mention(m.CandidateID)),
		Color: notify.ColorWarning,
	})
	return m, nil
}

// CandidateAccept records the candidate's consent and asks the requester for
// final confirmation
func (n *Negotiator) CandidateAccept(ctx context.Context, id, actor string) (domain.Match, error) {
	m, err := n.reg.step(id, actor, roleCandidate, domain.StatusProposed, func(e *entry) bool {
		e.candAccepted = true
		n.setStatus(&e.match, domain.StatusCandAccepted)
		return false
	})
	if err != nil {
		return m, n.rejected(id, actor, err)
	}

	n.persist(ctx, m.ID, domain.StatusPatch(domain.StatusCandAccepted))
	n.record(ctx, Event{Kind: string(m.Status), Match: m, Actor: actor})

	err = n.gateway.Deliver(ctx, m.RequesterID, notify.Message{
		Title: "Your match accepted",
		Body:  fmt.Sprintf("%s accepted your coffee chat request. Confirm to open a private voice room.", notify.Mention(m.CandidateID)),
		Color: notify.ColorSuccess,
		Actions: []notify.Action{
			{ID: ActionID(m.ID, RequesterAcceptAction), Label: "Confirm", Style: notify.Success},
			{ID: ActionID(m.ID, RequesterDeclineAction), Label: "Cancel", Style: notify.Danger},
		},
	})
	if err != nil {
		// the requester has no controls to act with, so the negotiation ends here
		n.reg.purge(m.ID)
		m = n.markDeclined(ctx, m)
		n.record(ctx, Event{Kind: EventUndeliverable, Match: m, Detail: err.Error()})
		n.tell(ctx, m.CandidateID, notify.Message{
			Title: "Coffee chat cancelled",
			Body:  "The requester could not be reached. The match was cancelled.",
			Color: notify.ColorWarning,
		})
		return m, fmt.Errorf("deliver confirmation: %w", err)
	}
	return m, nil
}

// RequesterDecline ends a negotiation at the requester's final step
func (n *Negotiator) RequesterDecline(ctx context.Context, id, actor string) (domain.Match, error) {
	m, err := n.reg.step(id, actor, roleRequester, domain.StatusCandAccepted, func(e *entry) bool {
		n.setStatus(&e.match, domain.StatusDeclined)
		return true
	})
	if err != nil {
		return m, n.rejected(id, actor, err)
	}

	n.persist(ctx, m.ID, domain.StatusPatch(domain.StatusDeclined))
	n.record(ctx, Event{Kind: string(m.Status), Match: m, Actor: actor})
	n.tell(ctx, m.CandidateID, notify.Message{
		Title: "Coffee chat cancelled",
		Body:  fmt.Sprintf("%s cancelled the coffee chat.", notify.Mention(m.RequesterID)),
		Color: notify.ColorWarning,
	})
	return m, nil
}

// RequesterAccept completes mutual consent and provisions the private room.
// The negotiation leaves the registry whether provisioning succeeds or not.
func (n *Negotiator) RequesterAccept(ctx context.Context, id, actor string) (domain.Match, error) {
	m, err := n.reg.step(id, actor, roleRequester, domain.StatusCandAccepted, func(e *entry) bool {
		e.reqAccepted = true
		e.provisioning = true
		return false
	})
	if err != nil {
		return m, n.rejected(id, actor, err)
	}

	room, err := n.provision(ctx, m)

	if err != nil {
		n.record(ctx, Event{Kind: EventProvisionFailed, Match: m, Actor: actor, Detail: err.Error()})
		n.logger.Error("room provisioning failed",
			zap.String("match_id", m.ID),
			zap.Error(err))
		failure := notify.Message{
			Title: "Could not open a voice room",
			Body:  "Both of you accepted, but the room could not be created: " + diagnostic(err),
			Color: notify.ColorDanger,
		}
		n.tell(ctx, m.RequesterID, failure)
		n.tell(ctx, m.CandidateID, failure)
		return m, fmt.Errorf("provision room: %w", err)
	}

	n.setStatus(&m, domain.StatusConfirmed)
	m.RoomID = room.ID
	n.record(ctx, Event{Kind: string(m.Status), Match: m, Actor: actor, Detail: room.Name})

	success := notify.Message{
		Title: "Coffee chat confirmed",
		Body: fmt.Sprintf("%s and %s, your private voice room **%s** is ready.",
			notify.Mention(m.RequesterID), notify.Mention(m.CandidateID), room.Name),
		Fields: []notify.Field{
			{Name: "Room", Value: "<#" + room.ID + ">", Inline: true},
			{Name: "Open for", Value: formatRetention(room), Inline: true},
		},
		Color: notify.ColorSuccess,
	}
	n.tell(ctx, m.RequesterID, success)
	n.tell(ctx, m.CandidateID, success)
	return m, nil
}

// provision runs the provisioner and removes m from the registry on every
// exit, panics included
func (n *Negotiator) provision(ctx context.Context, m domain.Match) (domain.Room, error) {
	defer n.reg.purge(m.ID)
	return n.provisioner.Provision(ctx, m)
}

// Act dispatches a parsed control action
func (n *Negotiator) Act(ctx context.Context, id string, a Action, actor string) (domain.Match, error) {
	switch a {
	case CandidateAcceptAction:
		return n.CandidateAccept(ctx, id, actor)
	case CandidateDeclineAction:
		return n.CandidateDecline(ctx, id, actor)
	case RequesterAcceptAction:
		return n.RequesterAccept(ctx, id, actor)
	case RequesterDeclineAction:
		return n.RequesterDecline(ctx, id, actor)
	default:
		return domain.Match{}, fmt.Errorf("unknown action %q", a)
	}
}

func (n *Negotiator) setStatus(m *domain.Match, s domain.MatchStatus) {
	m.Status = s
	m.UpdatedAt = n.clock.Now().UTC()
	n.metrics.Transition(string(s))
}

func (n *Negotiator) markDeclined(ctx context.Context, m domain.Match) domain.Match {
	n.setStatus(&m, domain.StatusDeclined)
	n.persist(ctx, m.ID, domain.StatusPatch(domain.StatusDeclined))
	return m
}

// persist writes a transition; the registry already reflects it, so a failed
// write is logged and dropped
func (n *Negotiator) persist(ctx context.Context, id string, patch domain.MatchPatch) {
	if err := n.store.UpdateMatch(ctx, id, patch); err != nil {
		n.logger.Error("persist match transition",
			zap.String("match_id", id),
			zap.Error(err))
	}
}

func (n *Negotiator) tell(ctx context.Context, memberID string, msg notify.Message) {
	if err := n.gateway.Deliver(ctx, memberID, msg); err != nil {
		n.logger.Warn("notification not delivered",
			zap.String("member_id", memberID),
			zap.Error(err))
	}
}

func (n *Negotiator) record(ctx context.Context, e Event) {
	if n.events != nil {
		n.events.MatchEvent(ctx, e)
	}
}

func (n *Negotiator) rejected(id, actor string, err error) error {
	reason := "unknown"
	switch {
	case errors.Is(err, ErrWrongActor):
		reason = "wrong_actor"
	case errors.Is(err, ErrInvalidTransition):
		reason = "invalid_transition"
	}
	n.metrics.Rejected(reason)
	n.logger.Debug("match action rejected",
		zap.String("match_id", id),
		zap.String("actor", actor),
		zap.String("reason", reason))
	return err
}

func (n *Negotiator) proposalMessage(ctx context.Context, m domain.Match) notify.Message {
	msg := notify.Message{
		Title: "Coffee chat request",
		Body:  fmt.Sprintf("%s would like a one-on-one coffee chat with you.", notify.Mention(m.RequesterID)),
		Color: notify.ColorInfo,
		Actions: []notify.Action{
			{ID: ActionID(m.ID, CandidateAcceptAction), Label: "Accept", Style: notify.Success},
			{ID: ActionID(m.ID, CandidateDeclineAction), Label: "Decline", Style: notify.Secondary},
		},
	}
	p, err := n.store.GetProfile(ctx, m.RequesterID)
	if err != nil {
		return msg
	}
	if p.Purpose != "" {
		msg.Fields = append(msg.Fields, notify.Field{Name: "Purpose", Value: p.Purpose})
	}
	if len(p.Interests) > 0 {
		msg.Fields = append(msg.Fields, notify.Field{Name: "Interests", Value: strings.Join(p.Interests, ", ")})
	}
	if p.Intro != "" {
		msg.Fields = append(msg.Fields, notify.Field{Name: "Intro", Value: p.Intro})
	}
	return msg
}

func formatRetention(r domain.Room) string {
	hours := int(r.Retention.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return r.Retention.String()
}

// diagnostic is the user-facing text of a provisioning error
func diagnostic(err error) string {
	return apperror.Message(err, err.Error())
}
