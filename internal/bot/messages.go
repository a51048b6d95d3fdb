package bot

import (
	"strings"

	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/notify"
)

// Control and form identifiers shared with the platform adapter
const (
	ProfileSubmitForm = "profile_ai:submit"
	ProfileEditForm   = "profile_ai:edit_submit"

	ProfileEditButton    = "profile_ai:edit"
	ProfileConfirmButton = "profile_ai:confirm"
	ProfileRegenButton   = "profile_ai:regen"

	StartProfileButton = "start:profile"
	StartViewButton    = "start:view"
	StartEditButton    = "start:edit"
	StartMatchButton   = "start:match"
)

// ProfileMessage renders a profile card
func ProfileMessage(p domain.Profile, title string) notify.Message {
	return notify.Message{
		Title: title,
		Color: notify.ColorInfo,
		Fields: []notify.Field{
			{Name: "Name", Value: orDash(p.Name), Inline: true},
			{Name: "Intro", Value: orDash(p.Intro), Inline: true},
			{Name: "Interests", Value: orDash(strings.Join(p.Interests, " · "))},
			{Name: "Coffee chat purpose", Value: orDash(p.Purpose)},
		},
	}
}

// SummaryMessage renders a freshly summarized profile with the review
// controls. generated is false when the keyword fallback was used.
func SummaryMessage(p domain.Profile, generated bool) notify.Message {
	msg := ProfileMessage(p, "AI profile summary")
	if !generated {
		msg.Title = "Profile draft"
		msg.Body = "The summary service was unavailable, so this draft was built from keywords. Edit it before matching."
		msg.Color = notify.ColorWarning
	}
	msg.Actions = []notify.Action{
		{ID: ProfileEditButton, Label: "Edit", Style: notify.Secondary},
		{ID: ProfileConfirmButton, Label: "Confirm", Style: notify.Success},
		{ID: ProfileRegenButton, Label: "Regenerate", Style: notify.Primary},
	}
	return msg
}

// EditedMessage renders a manually edited profile with the follow-up controls
func EditedMessage(p domain.Profile) notify.Message {
	msg := ProfileMessage(p, "Updated profile")
	msg.Actions = []notify.Action{
		{ID: ProfileConfirmButton, Label: "Confirm", Style: notify.Success},
		{ID: ProfileRegenButton, Label: "Regenerate", Style: notify.Primary},
	}
	return msg
}

// PrivacyNotice explains what the bot records
func (s *Service) PrivacyNotice() notify.Message {
	scope := "every text channel the bot can read"
	if len(s.loggedChannels) > 0 {
		refs := make([]string, len(s.loggedChannels))
		for i, id := range s.loggedChannels {
			refs[i] = "<#" + id + ">"
		}
		scope = strings.Join(refs, ", ")
	}
	return notify.Message{
		Title: "Privacy and message logging",
		Color: notify.ColorInfo,
		Body: strings.Join([]string{
			"- Messages in some text channels are stored to improve match suggestions.",
			"- Logged channels: " + scope,
			"- Stored data can be deleted on request.",
		}, "\n"),
	}
}

// StartHereMessage is the pinned onboarding message with shortcut controls
func StartHereMessage() notify.Message {
	return notify.Message{
		Title: "Start here",
		Color: notify.ColorInfo,
		Body: strings.Join([]string{
			"1) Create and confirm your profile with /profile_ai.",
			"2) Run /match to get a coffee chat suggestion. When both of you accept, a private voice room opens.",
			"3) Share how it went in the feedback channel.",
		}, "\n"),
		Actions: []notify.Action{
			{ID: StartProfileButton, Label: "Create profile", Style: notify.Primary},
			{ID: StartViewButton, Label: "View my profile", Style: notify.Secondary},
			{ID: StartEditButton, Label: "Edit my profile", Style: notify.Secondary},
			{ID: StartMatchButton, Label: "Get a match", Style: notify.Success},
		},
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
