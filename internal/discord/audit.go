package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/notify"
	"go.uber.org/zap"
)

const auditTimeout = 10 * time.Second

// Poster posts a message into a channel
type Poster interface {
	Post(ctx context.Context, channelID string, msg notify.Message) (string, error)
}

// Audit mirrors match events and handler errors into the configured log
// channels. Posting is best-effort; every event is also logged.
type Audit struct {
	poster       Poster
	matchChannel string
	errorChannel string
	logger       *zap.Logger
}

var _ negotiator.EventSink = (*Audit)(nil)

// NewAudit creates an Audit. Empty channel ids disable posting for that kind.
func NewAudit(poster Poster, matchChannelID, errorChannelID string, logger *zap.Logger) *Audit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Audit{
		poster:       poster,
		matchChannel: matchChannelID,
		errorChannel: errorChannelID,
		logger:       logger.Named("audit"),
	}
}

// MatchEvent implements negotiator.EventSink
func (a *Audit) MatchEvent(ctx context.Context, e negotiator.Event) {
	a.logger.Info("match event",
		zap.String("kind", e.Kind),
		zap.String("match_id", e.Match.ID),
		zap.String("requester_id", e.Match.RequesterID),
		zap.String("candidate_id", e.Match.CandidateID),
		zap.String("room_id", e.Match.RoomID),
		zap.String("actor", e.Actor),
		zap.String("detail", e.Detail))

	msg := notify.Message{
		Title: "match/" + e.Kind,
		Color: 0x2F3136,
		Fields: []notify.Field{
			{Name: "match_id", Value: orDash(e.Match.ID)},
			{Name: "requester", Value: mentionOrDash(e.Match.RequesterID), Inline: true},
			{Name: "candidate", Value: mentionOrDash(e.Match.CandidateID), Inline: true},
			{Name: "voice", Value: channelOrDash(e.Match.RoomID), Inline: true},
		},
	}
	if e.Detail != "" {
		msg.Fields = append(msg.Fields, notify.Field{Name: "detail", Value: e.Detail})
	}
	a.post(ctx, a.matchChannel, msg)
}

// Error records a handler failure
func (a *Audit) Error(ctx context.Context, summary string, err error) {
	a.logger.Error(summary, zap.Error(err))

	detail := "(no detail)"
	if err != nil {
		detail = err.Error()
	}
	a.post(ctx, a.errorChannel, notify.Message{
		Title:  "error",
		Body:   summary,
		Color:  notify.ColorDanger,
		Fields: []notify.Field{{Name: "detail", Value: detail}},
	})
}

func (a *Audit) post(ctx context.Context, channelID string, msg notify.Message) {
	if channelID == "" || a.poster == nil {
		return
	}
	// the caller's context may already be done by the time an event is audited
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if _, err := a.poster.Post(pctx, channelID, msg); err != nil {
		a.logger.Debug("audit post failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mentionOrDash(id string) string {
	if id == "" {
		return "-"
	}
	return notify.Mention(id)
}

func channelOrDash(id string) string {
	if id == "" {
		return "-"
	}
	return fmt.Sprintf("<#%s>", id)
}
