package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/pbaille/coffeechat/internal/notify"
)

type replyState int

const (
	replyFresh replyState = iota
	// replyDeferred acknowledged with an ephemeral "thinking" placeholder
	replyDeferred
	// replyDeferredUpdate acknowledged a control; the original message is editable
	replyDeferredUpdate
	replyDone
)

// responder answers one interaction, tracking whether it was acknowledged
type responder struct {
	api   Session
	i     *discordgo.Interaction
	state replyState
}

func newResponder(api Session, i *discordgo.Interaction) *responder {
	return &responder{api: api, i: i}
}

// send shows an ephemeral answer: the initial response, the edit of a
// deferred placeholder, or a follow-up
func (r *responder) send(content string, msg notify.Message) error {
	var err error
	switch r.state {
	case replyFresh:
		err = r.api.InteractionRespond(r.i, ephemeral(content, msg))
	case replyDeferred:
		_, err = r.api.InteractionResponseEdit(r.i, webhookEdit(content, msg))
	default:
		_, err = r.api.FollowupMessageCreate(r.i, true, followup(content, msg))
	}
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	r.state = replyDone
	return nil
}

// update replaces the message carrying the pressed control
func (r *responder) update(content string, msg notify.Message) error {
	var err error
	if r.state == replyDeferredUpdate {
		_, err = r.api.InteractionResponseEdit(r.i, webhookEdit(content, msg))
	} else {
		err = r.api.InteractionRespond(r.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Embeds:     embeds(msg),
				Components: components(msg),
			},
		})
	}
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	r.state = replyDone
	return nil
}

func (r *responder) deferReply() error {
	err := r.api.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		return fmt.Errorf("defer reply: %w", err)
	}
	r.state = replyDeferred
	return nil
}

func (r *responder) deferUpdate() error {
	err := r.api.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		return fmt.Errorf("defer update: %w", err)
	}
	r.state = replyDeferredUpdate
	return nil
}

func (r *responder) form(resp *discordgo.InteractionResponse) error {
	if err := r.api.InteractionRespond(r.i, resp); err != nil {
		return fmt.Errorf("show form: %w", err)
	}
	r.state = replyDone
	return nil
}
