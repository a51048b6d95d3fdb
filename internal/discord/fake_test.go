package discord

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// fakeSession records every call the adapter makes
type fakeSession struct {
	mu sync.Mutex

	dmFail    map[string]bool
	sent      map[string][]*discordgo.MessageSend
	pinned    []string
	deleted   []string
	deleteErr error

	guild   *discordgo.Guild
	members map[string]*discordgo.Member
	roles   []*discordgo.Role

	created    []discordgo.GuildChannelCreateData
	createErr  error
	responses  []*discordgo.InteractionResponse
	edits      []*discordgo.WebhookEdit
	followups  []*discordgo.WebhookParams
	registered map[string][]*discordgo.ApplicationCommand
	seq        int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		dmFail:     map[string]bool{},
		sent:       map[string][]*discordgo.MessageSend{},
		members:    map[string]*discordgo.Member{},
		registered: map[string][]*discordgo.ApplicationCommand{},
		guild:      &discordgo.Guild{ID: "g1", OwnerID: "owner"},
	}
}

func (f *fakeSession) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dmFail[recipientID] {
		return nil, errors.New("cannot send messages to this user")
	}
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[channelID] = append(f.sent[channelID], data)
	return &discordgo.Message{ID: f.next("msg"), ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessagePin(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, channelID+"/"+messageID)
	return nil
}

func (f *fakeSession) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, channelID)
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeSession) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return f.guild, nil
}

func (f *fakeSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return m, nil
}

func (f *fakeSession) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, data)
	return &discordgo.Channel{ID: f.next("voice"), GuildID: guildID, Name: data.Name}, nil
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[guildID] = commands
	return commands, nil
}

// lastEdit returns the text of the most recent response edit
func (f *fakeSession) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	e := f.edits[len(f.edits)-1]
	if e.Content != nil && *e.Content != "" {
		return *e.Content
	}
	if e.Embeds != nil && len(*e.Embeds) > 0 {
		return (*e.Embeds)[0].Description
	}
	return ""
}
