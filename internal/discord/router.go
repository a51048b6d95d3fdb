package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/bot"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/notify"
	"go.uber.org/zap"
)

const genericFailure = "Something went wrong while handling this request."

// RouterConfig wires a Router
type RouterConfig struct {
	Service            *bot.Service
	Platform           *Platform
	Audit              *Audit
	StartHereChannelID string
	// Timeout bounds one interaction, including room provisioning.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Router turns gateway events into Service calls. The gateway delivers every
// event on its own goroutine; the Router adds panic recovery and tracks
// in-flight handlers so shutdown can wait for them.
type Router struct {
	api       Session
	svc       *bot.Service
	platform  *Platform
	audit     *Audit
	startHere string
	timeout   time.Duration
	logger    *zap.Logger

	base     context.Context
	inflight sync.WaitGroup
}

// NewRouter creates a Router answering through api
func NewRouter(api Session, cfg RouterConfig) *Router {
	r := &Router{
		api:       api,
		svc:       cfg.Service,
		platform:  cfg.Platform,
		audit:     cfg.Audit,
		startHere: cfg.StartHereChannelID,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		base:      context.Background(),
	}
	if r.timeout <= 0 {
		r.timeout = 2 * time.Minute
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("router")
	if r.audit == nil {
		r.audit = NewAudit(nil, "", "", r.logger)
	}
	if r.platform == nil {
		r.platform = NewPlatform(api)
	}
	return r
}

// Attach registers the gateway handlers. Handler contexts derive from ctx.
func (r *Router) Attach(ctx context.Context, s *discordgo.Session) {
	r.base = ctx
	s.AddHandler(r.onReady)
	s.AddHandler(r.onInteraction)
	s.AddHandler(r.onMessage)
}

// Wait blocks until every in-flight handler returned
func (r *Router) Wait() {
	r.inflight.Wait()
}

func (r *Router) onReady(_ *discordgo.Session, e *discordgo.Ready) {
	if e.User == nil {
		return
	}
	r.platform.SetSelf(e.User.ID)
	r.logger.Info("gateway ready",
		zap.String("user", e.User.Username),
		zap.Int("guilds", len(e.Guilds)))
}

func (r *Router) onInteraction(_ *discordgo.Session, e *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(r.base, r.timeout)
	defer cancel()
	r.HandleInteraction(ctx, e.Interaction)
}

func (r *Router) onMessage(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Message == nil || e.Author == nil {
		return
	}
	r.inflight.Add(1)
	defer r.inflight.Done()
	defer r.recoverPanic(context.Background(), "message logging", nil)

	ctx, cancel := context.WithTimeout(r.base, 10*time.Second)
	defer cancel()
	r.svc.LogMessage(ctx, domain.Message{
		ID:        e.ID,
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MemberID:  e.Author.ID,
		Content:   e.Content,
		Timestamp: e.Timestamp,
	}, e.Author.Bot)
}

// HandleInteraction answers one interaction. Failures are reported to the
// invoker and, when unexpected, to the error log channel.
func (r *Router) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	r.inflight.Add(1)
	defer r.inflight.Done()

	rp := newResponder(r.api, i)
	defer r.recoverPanic(ctx, "interaction", rp)

	if err := r.dispatch(ctx, rp); err != nil {
		r.fail(ctx, rp, err)
	}
}

func (r *Router) recoverPanic(ctx context.Context, what string, rp *responder) {
	p := recover()
	if p == nil {
		return
	}
	r.logger.Error("handler panicked", zap.String("handler", what), zap.Any("panic", p), zap.Stack("stack"))
	r.audit.Error(ctx, what+" panicked", fmt.Errorf("panic: %v", p))
	if rp != nil {
		_ = rp.send(genericFailure, notify.Message{})
	}
}

func (r *Router) fail(ctx context.Context, rp *responder, err error) {
	text := genericFailure
	if kind := apperror.KindOf(err); kind != apperror.Internal {
		text = apperror.Message(err, genericFailure)
	} else {
		r.audit.Error(ctx, "interaction failed", err)
	}
	if sendErr := rp.send(text, notify.Message{}); sendErr != nil {
		r.logger.Warn("failure reply not sent", zap.Error(sendErr))
	}
}

func (r *Router) dispatch(ctx context.Context, rp *responder) error {
	switch rp.i.Type {
	case discordgo.InteractionApplicationCommand:
		return r.command(ctx, rp, rp.i.ApplicationCommandData().Name)
	case discordgo.InteractionMessageComponent:
		return r.control(ctx, rp, rp.i.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		return r.submit(ctx, rp, rp.i.ModalSubmitData())
	}
	return nil
}

func (r *Router) command(ctx context.Context, rp *responder, name string) error {
	switch name {
	case CmdProfileAI:
		return rp.form(profileSubmitForm())
	case CmdProfileView:
		return r.viewProfile(ctx, rp)
	case CmdProfileEdit:
		return rp.form(profileEditForm(r.svc.EditDefaults(ctx, invoker(rp.i))))
	case CmdMatch:
		return r.requestMatch(ctx, rp)
	case CmdPrivacy:
		return rp.send("", r.svc.PrivacyNotice())
	case CmdBootstrapStart:
		return r.bootstrap(ctx, rp)
	}
	r.logger.Debug("unhandled command", zap.String("command", name))
	return nil
}

func (r *Router) control(ctx context.Context, rp *responder, id string) error {
	if strings.HasPrefix(id, "match:") {
		return r.matchAction(ctx, rp, id)
	}
	switch id {
	case bot.ProfileEditButton, bot.StartEditButton:
		return rp.form(profileEditForm(r.svc.EditDefaults(ctx, invoker(rp.i))))
	case bot.StartProfileButton:
		return rp.form(profileSubmitForm())
	case bot.StartViewButton:
		return r.viewProfile(ctx, rp)
	case bot.ProfileConfirmButton:
		return rp.send("Your profile is saved. Run /match to get a coffee chat suggestion.", notify.Message{})
	case bot.ProfileRegenButton:
		return r.regenerate(ctx, rp)
	case bot.StartMatchButton:
		return rp.send("Run `/match` to get a coffee chat suggestion.", notify.Message{})
	}
	r.logger.Debug("unhandled control", zap.String("custom_id", id))
	return apperror.Invalid("This control is no longer supported.")
}

func (r *Router) submit(ctx context.Context, rp *responder, data discordgo.ModalSubmitInteractionData) error {
	values := formValues(data)
	switch data.CustomID {
	case bot.ProfileSubmitForm:
		if values[fieldName] == "" || values[fieldNarrative] == "" {
			return apperror.Invalid("Name and a short description are required.")
		}
		if err := rp.deferReply(); err != nil {
			return err
		}
		p, generated, err := r.svc.SubmitProfile(ctx, rp.i.GuildID, invoker(rp.i), values[fieldName], values[fieldNarrative])
		if err != nil {
			return err
		}
		return rp.send("Here is your summarized profile. Edit, confirm or regenerate it.", bot.SummaryMessage(p, generated))

	case bot.ProfileEditForm:
		p, err := r.svc.EditProfile(ctx, rp.i.GuildID, invoker(rp.i), bot.ProfileInput{
			Name:      values[fieldName],
			Purpose:   values[fieldPurpose],
			Interests: values[fieldInterests],
			Intro:     values[fieldIntro],
		})
		if err != nil {
			return err
		}
		return rp.send("Profile updated. Confirm it or regenerate it.", bot.EditedMessage(p))
	}
	r.logger.Debug("unhandled form", zap.String("custom_id", data.CustomID))
	return nil
}

func (r *Router) viewProfile(ctx context.Context, rp *responder) error {
	p, err := r.svc.ViewProfile(ctx, invoker(rp.i))
	if err != nil {
		return err
	}
	return rp.send("Your current profile.", bot.ProfileMessage(*p, "My profile"))
}

func (r *Router) regenerate(ctx context.Context, rp *responder) error {
	if err := rp.deferReply(); err != nil {
		return err
	}
	p, generated, err := r.svc.RegenerateProfile(ctx, rp.i.GuildID, invoker(rp.i))
	if err != nil {
		return err
	}
	return rp.send("Profile regenerated.", bot.SummaryMessage(p, generated))
}

func (r *Router) requestMatch(ctx context.Context, rp *responder) error {
	if err := rp.deferReply(); err != nil {
		return err
	}
	preview, err := r.svc.PreviewMatch(ctx, rp.i.GuildID, invoker(rp.i))
	if err != nil {
		return err
	}

	candidateID := preview.Candidate.Profile.MemberID
	name, err := r.platform.DisplayName(ctx, rp.i.GuildID, candidateID)
	if err != nil || name == "" {
		name = "member (" + candidateID + ")"
	}
	if err := rp.send("This member will receive a coffee chat proposal by DM.", bot.PreviewMessage(preview, name)); err != nil {
		return err
	}

	if _, err := r.svc.Propose(ctx, rp.i.GuildID, preview); err != nil {
		return err
	}
	return rp.send("Proposal sent. Waiting for a reply.", notify.Message{})
}

func (r *Router) matchAction(ctx context.Context, rp *responder, id string) error {
	if err := rp.deferUpdate(); err != nil {
		return err
	}
	action, _, err := r.svc.HandleMatchAction(ctx, id, invoker(rp.i))
	text := bot.ActionOutcome(action, err)
	if rejected(err) {
		return rp.send(text, notify.Message{})
	}

	color := notify.ColorSuccess
	if err != nil || action == negotiator.CandidateDeclineAction || action == negotiator.RequesterDeclineAction {
		color = notify.ColorDanger
	}
	return rp.update("", notify.Message{Title: "Coffee chat", Body: text, Color: color})
}

// rejected reports whether err left the negotiation untouched, so the
// original controls stay in place
func rejected(err error) bool {
	return errors.Is(err, negotiator.ErrUnknownMatch) ||
		errors.Is(err, negotiator.ErrWrongActor) ||
		errors.Is(err, negotiator.ErrInvalidTransition) ||
		apperror.Is(err, apperror.Validation)
}

func (r *Router) bootstrap(ctx context.Context, rp *responder) error {
	if r.startHere == "" {
		return apperror.Invalid("No start-here channel is configured (STARTHERE_CHANNEL_ID).")
	}
	if rp.i.Member == nil || rp.i.Member.Permissions&discordgo.PermissionManageServer == 0 {
		return apperror.New(apperror.Forbidden, "Only members with the Manage Server permission can do this.")
	}
	msgID, err := r.platform.Post(ctx, r.startHere, bot.StartHereMessage())
	if err != nil {
		return apperror.Wrap(apperror.Unavailable, "Could not post in the start-here channel.", err)
	}
	if err := r.platform.Pin(ctx, r.startHere, msgID); err != nil {
		r.logger.Warn("start-here message not pinned", zap.Error(err))
	}
	return rp.send("Start-here message installed.", notify.Message{})
}

// invoker is the id of the member who triggered i
func invoker(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
