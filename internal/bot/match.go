package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/notify"
	"github.com/pbaille/coffeechat/internal/similarity"
	"github.com/pbaille/coffeechat/internal/store"
	"go.uber.org/zap"
)

// Preview is the top-ranked candidate shown to a requester before the
// proposal goes out
type Preview struct {
	Requester domain.Profile
	Candidate similarity.Candidate
}

// Candidates ranks every other profile of guildID against memberID's profile
func (s *Service) Candidates(ctx context.Context, guildID, memberID string) ([]similarity.Candidate, error) {
	me, err := s.profile(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, guildID, *me)
}

func (s *Service) rank(ctx context.Context, guildID string, me domain.Profile) ([]similarity.Candidate, error) {
	pool, err := s.store.ListGroupProfilesExcept(ctx, guildID, me.MemberID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	ranked, err := s.engine.Rank(ctx, guildID, me, pool)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	return ranked, nil
}

// PreviewMatch picks the best candidate for requesterID in guildID
func (s *Service) PreviewMatch(ctx context.Context, guildID, requesterID string) (Preview, error) {
	if guildID == "" {
		return Preview{}, apperror.Invalid("Matching only works inside a server.")
	}
	me, err := s.profile(ctx, requesterID)
	if err != nil {
		return Preview{}, err
	}
	ranked, err := s.rank(ctx, guildID, *me)
	if err != nil {
		return Preview{}, err
	}
	if len(ranked) == 0 {
		return Preview{}, apperror.New(apperror.NotFound,
			"No candidates yet. Ask other members to create a profile with /profile_ai.")
	}
	return Preview{Requester: *me, Candidate: ranked[0]}, nil
}

// Propose sends the proposal controls to the previewed candidate
func (s *Service) Propose(ctx context.Context, guildID string, p Preview) (domain.Match, error) {
	m, err := s.negotiator.CreateProposal(ctx, guildID, p.Requester.MemberID, p.Candidate.Profile.MemberID)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, notify.ErrUndeliverable):
		return m, apperror.Wrap(apperror.Unavailable,
			"The candidate could not be reached by DM or in the hub channel.", err)
	case errors.Is(err, negotiator.ErrSelfMatch):
		return m, apperror.Wrap(apperror.Validation, "You cannot match with yourself.", err)
	default:
		return m, fmt.Errorf("create proposal: %w", err)
	}
}

// RequestMatch previews and proposes in one step
func (s *Service) RequestMatch(ctx context.Context, guildID, requesterID string) (Preview, domain.Match, error) {
	p, err := s.PreviewMatch(ctx, guildID, requesterID)
	if err != nil {
		return Preview{}, domain.Match{}, err
	}
	m, err := s.Propose(ctx, guildID, p)
	return p, m, err
}

// HandleMatchAction applies a match control pressed by actor. customID is the
// control identifier sent with the proposal or confirmation message.
func (s *Service) HandleMatchAction(ctx context.Context, customID, actor string) (negotiator.Action, domain.Match, error) {
	id, action, ok := negotiator.ParseActionID(customID)
	if !ok {
		return "", domain.Match{}, apperror.Invalid("Unknown match control.")
	}
	m, err := s.negotiator.Act(ctx, id, action, actor)
	if err != nil {
		s.logger.Debug("match action not applied",
			zap.String("match_id", id),
			zap.String("action", string(action)),
			zap.Error(err))
	}
	return action, m, err
}

// ActionOutcome is the text shown to the member who pressed a match control
func ActionOutcome(a negotiator.Action, err error) string {
	switch {
	case errors.Is(err, negotiator.ErrUnknownMatch):
		return "This request has expired or is unknown."
	case errors.Is(err, negotiator.ErrWrongActor):
		if a == negotiator.RequesterAcceptAction || a == negotiator.RequesterDeclineAction {
			return "Only the requester can answer this."
		}
		return "Only the invited member can answer this."
	case errors.Is(err, negotiator.ErrInvalidTransition):
		return "This request was already answered."
	case errors.Is(err, notify.ErrUndeliverable):
		return "The other member could not be reached, so the match was cancelled."
	}

	switch a {
	case negotiator.CandidateAcceptAction:
		return "Accepted. Waiting for the requester to confirm."
	case negotiator.CandidateDeclineAction:
		return "You declined this request."
	case negotiator.RequesterDeclineAction:
		return "You cancelled this match."
	case negotiator.RequesterAcceptAction:
		if err != nil {
			return "Confirmed, but the voice room could not be created: " + apperror.Message(err, "check the bot's permissions.")
		}
		return "Confirmed. Your private voice room is ready."
	}
	if err != nil {
		return "Something went wrong while handling this request."
	}
	return "Done."
}

// PreviewMessage renders a preview with the score breakdown
func PreviewMessage(p Preview, candidateName string) notify.Message {
	msg := ProfileMessage(p.Candidate.Profile, "Suggested match: "+candidateName)
	msg.Fields = append(msg.Fields, notify.Field{
		Name: "Match details",
		Value: fmt.Sprintf("Interest similarity: %d%%\nPurpose similarity: %d%%",
			percent(p.Candidate.InterestScore), percent(p.Candidate.PurposeScore)),
	})
	return msg
}

func percent(score float64) int {
	return int(score * 100)
}

func (s *Service) profile(ctx context.Context, memberID string) (*domain.Profile, error) {
	p, err := s.store.GetProfile(ctx, memberID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Wrap(apperror.NotFound, "Create your profile first with /profile_ai.", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
