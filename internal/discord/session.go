// Package discord adapts the chat platform to the platform-neutral parts of
// the bot: message delivery, private voice rooms, slash commands, controls
// and forms.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pbaille/coffeechat/internal/notify"
	"github.com/pbaille/coffeechat/internal/room"
)

// Intents the bot identifies with
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsDirectMessages

// Session is the subset of *discordgo.Session the adapter uses
type Session interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)

	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// NewSession creates an unopened gateway session for a bot token
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Identify.Intents = Intents
	return s, nil
}

// Platform implements notify.Channels and room.Platform on a Session
type Platform struct {
	api Session

	mu     sync.RWMutex
	selfID string
}

var (
	_ Session         = (*discordgo.Session)(nil)
	_ notify.Channels = (*Platform)(nil)
	_ room.Platform   = (*Platform)(nil)
)

// NewPlatform wraps a session
func NewPlatform(api Session) *Platform {
	return &Platform{api: api}
}

// SetSelf records the bot's own user id once the gateway reports it
func (p *Platform) SetSelf(id string) {
	p.mu.Lock()
	p.selfID = id
	p.mu.Unlock()
}

func (p *Platform) self() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selfID
}

// DirectMessage sends msg to the member's DM channel
func (p *Platform) DirectMessage(ctx context.Context, memberID string, msg notify.Message) error {
	ch, err := p.api.UserChannelCreate(memberID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := p.api.ChannelMessageSendComplex(ch.ID, messageSend(msg, ""), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// PostMention posts msg into a shared channel with a mention of the member
func (p *Platform) PostMention(ctx context.Context, channelID, memberID string, msg notify.Message) error {
	send := messageSend(msg, notify.Mention(memberID)+" your direct messages are closed, so this was posted here.")
	send.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{memberID}}
	if _, err := p.api.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post mention: %w", err)
	}
	return nil
}

// Post sends msg to a channel and returns the created message id
func (p *Platform) Post(ctx context.Context, channelID string, msg notify.Message) (string, error) {
	sent, err := p.api.ChannelMessageSendComplex(channelID, messageSend(msg, ""), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	return sent.ID, nil
}

// Pin pins a message in its channel
func (p *Platform) Pin(ctx context.Context, channelID, messageID string) error {
	if err := p.api.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	return nil
}

// CanManageChannels reports whether the bot holds the manage channels
// permission at guild level
func (p *Platform) CanManageChannels(ctx context.Context, guildID string) (bool, error) {
	self := p.self()
	if self == "" {
		return false, errors.New("bot user not known yet")
	}
	guild, err := p.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("get guild: %w", err)
	}
	if guild.OwnerID == self {
		return true, nil
	}
	member, err := p.api.GuildMember(guildID, self, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("get bot member: %w", err)
	}
	roles, err := p.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("get roles: %w", err)
	}
	perms := guildPermissions(guildID, member.Roles, roles)
	if perms&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	return perms&discordgo.PermissionManageChannels != 0, nil
}

// guildPermissions folds @everyone (whose role id is the guild id) with the
// member's roles
func guildPermissions(guildID string, memberRoles []string, roles []*discordgo.Role) int64 {
	held := make(map[string]struct{}, len(memberRoles)+1)
	held[guildID] = struct{}{}
	for _, id := range memberRoles {
		held[id] = struct{}{}
	}
	var perms int64
	for _, r := range roles {
		if _, ok := held[r.ID]; ok {
			perms |= r.Permissions
		}
	}
	return perms
}

// DisplayName returns the member's guild nickname, global name or username
func (p *Platform) DisplayName(ctx context.Context, guildID, memberID string) (string, error) {
	m, err := p.api.GuildMember(guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get member: %w", err)
	}
	switch {
	case m.Nick != "":
		return m.Nick, nil
	case m.User == nil:
		return "", nil
	case m.User.GlobalName != "":
		return m.User.GlobalName, nil
	default:
		return m.User.Username, nil
	}
}

const roomMemberAllow = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak

// CreateVoiceRoom creates a voice channel that @everyone can neither see nor
// join and that each of spec.MemberIDs can see, join and speak in. The bot
// keeps access through its guild-level Manage Channels permission, which
// CanManageChannels checks before any room is created.
func (p *Platform) CreateVoiceRoom(ctx context.Context, spec room.Spec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{{
		ID:   spec.GuildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect,
	}}
	for _, id := range spec.MemberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: roomMemberAllow,
		})
	}

	ch, err := p.api.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             spec.ParentID,
		UserLimit:            len(spec.MemberIDs),
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx), discordgo.WithAuditLogReason("coffee chat room"))
	if err != nil {
		return "", fmt.Errorf("create voice channel: %w", err)
	}
	return ch.ID, nil
}

// DeleteChannel removes a channel. A channel that no longer exists counts as
// deleted.
func (p *Platform) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := p.api.ChannelDelete(channelID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason("coffee chat room expired"))
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}
