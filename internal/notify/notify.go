// Package notify describes platform-neutral messages sent to members and the
// delivery policy shared by every platform adapter: direct message first,
// then a mention in a shared fallback channel.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrUndeliverable is returned when neither the direct nor the fallback route
// reached the member
var ErrUndeliverable = errors.New("message undeliverable")

// Style is the visual weight of an action control
type Style int

const (
	Primary Style = iota
	Secondary
	Success
	Danger
)

// Action is a clickable control attached to a message
type Action struct {
	ID    string
	Label string
	Style Style
}

// Field is a labelled value shown under the body
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is what a member receives
type Message struct {
	Title   string
	Body    string
	Fields  []Field
	Color   int
	Actions []Action
}

// Colors shared by the match flow
const (
	ColorInfo    = 0x5865F2
	ColorSuccess = 0x57F287
	ColorWarning = 0xFEE75C
	ColorDanger  = 0xED4245
)

// Mention renders a member reference inside message text
func Mention(memberID string) string {
	return "<@" + memberID + ">"
}

// Gateway delivers a message to one member
type Gateway interface {
	Deliver(ctx context.Context, memberID string, msg Message) error
}

// Channels is the platform half of delivery
type Channels interface {
	DirectMessage(ctx context.Context, memberID string, msg Message) error
	PostMention(ctx context.Context, channelID, memberID string, msg Message) error
}

// Fallback is a Gateway that tries a direct message and, failing that,
// mentions the member in a hub channel
type Fallback struct {
	channels     Channels
	hubChannelID string
	logger       *zap.Logger
}

// NewFallback creates a Gateway. An empty hubChannelID disables the fallback
// route.
func NewFallback(channels Channels, hubChannelID string, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{channels: channels, hubChannelID: hubChannelID, logger: logger.Named("notify")}
}

// Deliver implements Gateway
func (f *Fallback) Deliver(ctx context.Context, memberID string, msg Message) error {
	directErr := f.channels.DirectMessage(ctx, memberID, msg)
	if directErr == nil {
		return nil
	}
	f.logger.Warn("direct message failed",
		zap.String("member_id", memberID),
		zap.Error(directErr))

	if f.hubChannelID == "" {
		return fmt.Errorf("%w: direct: %v", ErrUndeliverable, directErr)
	}

	if err := f.channels.PostMention(ctx, f.hubChannelID, memberID, msg); err != nil {
		f.logger.Error("fallback channel post failed",
			zap.String("member_id", memberID),
			zap.String("channel_id", f.hubChannelID),
			zap.Error(err))
		return fmt.Errorf("%w: direct: %v; fallback: %v", ErrUndeliverable, directErr, err)
	}
	return nil
}
