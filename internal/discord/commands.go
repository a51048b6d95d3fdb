package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pbaille/coffeechat/internal/bot"
)

// Slash command names
const (
	CmdProfileAI      = "profile_ai"
	CmdProfileView    = "profile_view"
	CmdProfileEdit    = "profile_edit"
	CmdMatch          = "match"
	CmdPrivacy        = "privacy"
	CmdBootstrapStart = "bootstrap_start"
)

// Form input ids
const (
	fieldName      = "name"
	fieldNarrative = "narrative"
	fieldPurpose   = "purpose"
	fieldInterests = "interests"
	fieldIntro     = "intro"
)

// Commands returns the slash command definitions
func Commands() []*discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	noDM := false
	return []*discordgo.ApplicationCommand{
		{Name: CmdProfileAI, Description: "Create your profile from a short description, summarized by AI"},
		{Name: CmdProfileView, Description: "Show your profile"},
		{Name: CmdProfileEdit, Description: "Edit your profile"},
		{Name: CmdMatch, Description: "Get a coffee chat suggestion based on your profile", DMPermission: &noDM},
		{Name: CmdPrivacy, Description: "What the bot records and why"},
		{
			Name:                     CmdBootstrapStart,
			Description:              "Post and pin the start-here message (moderators)",
			DefaultMemberPermissions: &manageGuild,
			DMPermission:             &noDM,
		},
	}
}

// Register overwrites the application's commands in guildID, or globally when
// guildID is empty
func Register(api Session, appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	created, err := api.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
	if err != nil {
		scope := "global"
		if guildID != "" {
			scope = "guild " + guildID
		}
		return nil, fmt.Errorf("register %s commands: %w", scope, err)
	}
	return created, nil
}

func profileSubmitForm() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: bot.ProfileSubmitForm,
			Title:    "AI profile",
			Components: []discordgo.MessageComponent{
				textRow(fieldName, "Name", discordgo.TextInputShort, true, ""),
				textRow(fieldNarrative, "Who would you like to meet, and why?", discordgo.TextInputParagraph, true, ""),
			},
		},
	}
}

func profileEditForm(in bot.ProfileInput) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: bot.ProfileEditForm,
			Title:    "Edit profile",
			Components: []discordgo.MessageComponent{
				textRow(fieldName, "Name", discordgo.TextInputShort, true, in.Name),
				textRow(fieldPurpose, "Coffee chat purpose", discordgo.TextInputParagraph, true, in.Purpose),
				textRow(fieldInterests, "Interests (comma separated)", discordgo.TextInputShort, false, in.Interests),
				textRow(fieldIntro, "One-line intro", discordgo.TextInputShort, false, in.Intro),
			},
		},
	}
}

func textRow(id, label string, style discordgo.TextInputStyle, required bool, value string) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID: id,
			Label:    label,
			Style:    style,
			Required: required,
			Value:    value,
		},
	}}
}

// formValues flattens submitted text inputs by id
func formValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	out := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				out[in.CustomID] = strings.TrimSpace(in.Value)
			}
		}
	}
	return out
}
