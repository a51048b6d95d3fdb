package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/pbaille/coffeechat/internal/notify"
)

// Platform limits
const (
	maxButtonsPerRow = 5
	maxRows          = 5
	maxFieldValue    = 1024
	maxDescription   = 4096
)

// Embed renders msg as an embed, or nil when msg carries nothing to show
func Embed(msg notify.Message) *discordgo.MessageEmbed {
	if msg.Title == "" && msg.Body == "" && len(msg.Fields) == 0 {
		return nil
	}
	e := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: truncate(msg.Body, maxDescription),
		Color:       msg.Color,
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  truncate(f.Value, maxFieldValue),
			Inline: f.Inline,
		})
	}
	return e
}

// Components lays actions out as button rows
func Components(actions []notify.Action) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row discordgo.ActionsRow
	for _, a := range actions {
		row.Components = append(row.Components, discordgo.Button{
			CustomID: a.ID,
			Label:    a.Label,
			Style:    buttonStyle(a.Style),
		})
		if len(row.Components) == maxButtonsPerRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
		if len(rows) == maxRows {
			return rows
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func buttonStyle(s notify.Style) discordgo.ButtonStyle {
	switch s {
	case notify.Secondary:
		return discordgo.SecondaryButton
	case notify.Success:
		return discordgo.SuccessButton
	case notify.Danger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func embeds(msg notify.Message) []*discordgo.MessageEmbed {
	if e := Embed(msg); e != nil {
		return []*discordgo.MessageEmbed{e}
	}
	return []*discordgo.MessageEmbed{}
}

func components(msg notify.Message) []discordgo.MessageComponent {
	if c := Components(msg.Actions); c != nil {
		return c
	}
	return []discordgo.MessageComponent{}
}

func messageSend(msg notify.Message, content string) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    content,
		Embeds:     embeds(msg),
		Components: components(msg),
	}
}

// ephemeral builds an immediate reply only the invoker sees
func ephemeral(content string, msg notify.Message) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Embeds:     embeds(msg),
			Components: components(msg),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	}
}

func webhookEdit(content string, msg notify.Message) *discordgo.WebhookEdit {
	e := embeds(msg)
	c := components(msg)
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &e,
		Components: &c,
	}
}

func followup(content string, msg notify.Message) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content:    content,
		Embeds:     embeds(msg),
		Components: components(msg),
		Flags:      discordgo.MessageFlagsEphemeral,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
