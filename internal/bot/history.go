package bot

import (
	"context"
	"strings"

	"github.com/pbaille/coffeechat/internal/domain"
	"go.uber.org/zap"
)

// Outcomes of LogMessage, also used as metric labels
const (
	LogStored  = "stored"
	LogSkipped = "skipped"
	LogFailed  = "failed"
)

// LogMessage appends a guild text message to the interaction history when it
// qualifies: a guild message from a human author in a logged channel with
// non-empty content. Store failures are logged and never surface to the
// author.
func (s *Service) LogMessage(ctx context.Context, msg domain.Message, fromBot bool) string {
	result := s.logMessage(ctx, msg, fromBot)
	s.metrics.MessageLogged(result)
	return result
}

func (s *Service) logMessage(ctx context.Context, msg domain.Message, fromBot bool) string {
	if msg.GuildID == "" || fromBot || msg.MemberID == "" {
		return LogSkipped
	}
	if !s.ChannelLogged(msg.ChannelID) {
		return LogSkipped
	}
	if strings.TrimSpace(msg.Content) == "" {
		return LogSkipped
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock.Now().UTC()
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		s.logger.Warn("message logging failed",
			zap.String("message_id", msg.ID),
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err))
		return LogFailed
	}
	return LogStored
}

// ChannelLogged reports whether messages in channelID are recorded
func (s *Service) ChannelLogged(channelID string) bool {
	if len(s.whitelist) == 0 {
		return true
	}
	_, ok := s.whitelist[channelID]
	return ok
}
