package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/similarity"
	"go.uber.org/zap"
)

// ProfileInput is a manually edited profile. Interests is comma separated.
type ProfileInput struct {
	Name      string
	Purpose   string
	Interests string
	Intro     string
}

// ViewProfile returns memberID's stored profile
func (s *Service) ViewProfile(ctx context.Context, memberID string) (*domain.Profile, error) {
	return s.profile(ctx, memberID)
}

// SubmitProfile summarizes a free-form narrative into a profile and stores it.
// The second result is false when the keyword fallback produced the profile.
func (s *Service) SubmitProfile(ctx context.Context, guildID, memberID, name, narrative string) (domain.Profile, bool, error) {
	name = strings.TrimSpace(name)
	narrative = strings.TrimSpace(narrative)
	if name == "" || narrative == "" {
		return domain.Profile{}, false, apperror.Invalid("Name and a short description are required.")
	}
	return s.summarizeAndStore(ctx, guildID, memberID, name, narrative)
}

// RegenerateProfile runs the summarizer again over the stored profile
func (s *Service) RegenerateProfile(ctx context.Context, guildID, memberID string) (domain.Profile, bool, error) {
	base, err := s.profile(ctx, memberID)
	if err != nil {
		return domain.Profile{}, false, err
	}
	narrative := firstNonEmpty(base.Purpose, base.Intro, strings.Join(base.Interests, ", "), base.Name)
	if guildID == "" {
		guildID = base.GuildID
	}
	return s.summarizeAndStore(ctx, guildID, memberID, base.Name, narrative)
}

func (s *Service) summarizeAndStore(ctx context.Context, guildID, memberID, name, narrative string) (domain.Profile, bool, error) {
	sum := s.summarizer.Summarize(ctx, name, narrative)
	p := domain.Profile{
		MemberID:  memberID,
		GuildID:   guildID,
		Name:      sum.Name,
		Purpose:   sum.Purpose,
		Interests: similarity.NormalizeTags(sum.Interests),
		Intro:     sum.Intro,
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, false, fmt.Errorf("upsert profile: %w", err)
	}
	s.logger.Info("profile summarized",
		zap.String("member_id", memberID),
		zap.String("guild_id", guildID),
		zap.Bool("generated", sum.Generated))
	return p, sum.Generated, nil
}

// EditProfile stores a manually edited profile. Name and purpose are required.
func (s *Service) EditProfile(ctx context.Context, guildID, memberID string, in ProfileInput) (domain.Profile, error) {
	name := strings.TrimSpace(in.Name)
	purpose := strings.TrimSpace(in.Purpose)
	if name == "" || purpose == "" {
		return domain.Profile{}, apperror.Invalid("Name and purpose are required.")
	}

	if guildID == "" {
		if prev, err := s.store.GetProfile(ctx, memberID); err == nil {
			guildID = prev.GuildID
		}
	}

	p := domain.Profile{
		MemberID:  memberID,
		GuildID:   guildID,
		Name:      name,
		Purpose:   purpose,
		Interests: similarity.NormalizeTags(strings.Split(in.Interests, ",")),
		Intro:     strings.TrimSpace(in.Intro),
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	s.logger.Info("profile edited", zap.String("member_id", memberID))
	return p, nil
}

// EditDefaults returns the values to prefill an edit form with. A member
// without a profile gets empty values.
func (s *Service) EditDefaults(ctx context.Context, memberID string) ProfileInput {
	p, err := s.store.GetProfile(ctx, memberID)
	if err != nil {
		return ProfileInput{}
	}
	return ProfileInput{
		Name:      p.Name,
		Purpose:   p.Purpose,
		Interests: strings.Join(p.Interests, ", "),
		Intro:     p.Intro,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
