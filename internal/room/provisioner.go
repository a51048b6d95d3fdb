// Package room provisions the private voice room of a confirmed match and
// reclaims it when its retention expires.
//
// Reclamation is driven two ways: an in-process timer scheduled at creation,
// and a periodic sweep over durable confirmed records whose close-due-at has
// passed. The sweep also retries durable writes that failed after a room was
// created; the room's existence is treated as ground truth. The room
// reference is persisted before the confirmed status, so a record left in
// cand_accepted with a room id is recovered by the sweep of a later process.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pbaille/coffeechat/internal/apperror"
	"github.com/pbaille/coffeechat/internal/clock"
	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/metrics"
	"go.uber.org/zap"
)

// ErrMissingCapability means the bot cannot manage channels in the community
var ErrMissingCapability = errors.New("missing manage channels permission")

// Spec describes the room to create
type Spec struct {
	GuildID   string
	Name      string
	ParentID  string
	MemberIDs []string
}

// Platform is the chat platform surface the provisioner needs
type Platform interface {
	CanManageChannels(ctx context.Context, guildID string) (bool, error)
	DisplayName(ctx context.Context, guildID, memberID string) (string, error)
	// CreateVoiceRoom creates a voice channel hidden from everyone but
	// spec.MemberIDs, who may view, connect and speak.
	CreateVoiceRoom(ctx context.Context, spec Spec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// Store is the durable side of room bookkeeping
type Store interface {
	UpdateMatch(ctx context.Context, id string, patch domain.MatchPatch) error
	ListMatchesByStatus(ctx context.Context, statuses ...domain.MatchStatus) ([]domain.Match, error)
}

// Options tunes a Provisioner
type Options struct {
	Retention     time.Duration
	SweepInterval time.Duration
	Location      *time.Location
	CategoryID    string
}

// Provisioner creates and reclaims private rooms
type Provisioner struct {
	platform Platform
	store    Store
	clock    clock.Clock
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu sync.Mutex
	// scheduled holds rooms this process has a reclamation timer for
	scheduled map[string]*scheduledRoom
	// unsynced holds durable writes that failed, keyed by match id
	unsynced map[string]domain.MatchPatch
	// reclaimed marks matches already reclaimed by this process
	reclaimed map[string]struct{}
}

type scheduledRoom struct {
	roomID string
	timer  *clock.Timer
}

// New creates a Provisioner
func New(platform Platform, store Store, clk clock.Clock, opts Options, logger *zap.Logger, m *metrics.Collector) *Provisioner {
	if opts.Retention <= 0 {
		opts.Retention = 48 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		platform:  platform,
		store:     store,
		clock:     clk,
		opts:      opts,
		logger:    logger.Named("room"),
		metrics:   m,
		scheduled: make(map[string]*scheduledRoom),
		unsynced:  make(map[string]domain.MatchPatch),
		reclaimed: make(map[string]struct{}),
	}
}

// Retention is how long a room stays open
func (p *Provisioner) Retention() time.Duration { return p.opts.Retention }

// Provision creates the private room for m, persists the room reference and
// then the confirmed status, and schedules reclamation. A durable write
// failure after creation is queued for the sweep and does not fail the call.
func (p *Provisioner) Provision(ctx context.Context, m domain.Match) (domain.Room, error) {
	ok, err := p.platform.CanManageChannels(ctx, m.GuildID)
	if err != nil {
		p.metrics.RoomFailed("capability")
		return domain.Room{}, apperror.Wrap(apperror.Unavailable, "could not check the bot's permissions", err)
	}
	if !ok {
		p.metrics.RoomFailed("capability")
		return domain.Room{}, apperror.Wrap(apperror.Forbidden,
			"the bot needs the Manage Channels permission", ErrMissingCapability)
	}

	now := p.clock.Now()
	name := Name(
		p.displayName(ctx, m.GuildID, m.RequesterID),
		p.displayName(ctx, m.GuildID, m.CandidateID),
		now.In(p.opts.Location),
	)

	roomID, err := p.platform.CreateVoiceRoom(ctx, Spec{
		GuildID:   m.GuildID,
		Name:      name,
		ParentID:  p.opts.CategoryID,
		MemberIDs: []string{m.RequesterID, m.CandidateID},
	})
	if err != nil {
		p.metrics.RoomFailed("create")
		return domain.Room{}, apperror.Wrap(apperror.Unavailable,
			fmt.Sprintf("creating the voice room failed (%v)", err), err)
	}
	p.metrics.RoomCreated()

	due := now.Add(p.opts.Retention)
	confirmed := domain.StatusConfirmed
	started := now.UTC()
	dueUTC := due.UTC()
	p.write(ctx, m.ID, domain.MatchPatch{
		RoomID:     &roomID,
		StartedAt:  &started,
		CloseDueAt: &dueUTC,
	})
	p.write(ctx, m.ID, domain.MatchPatch{Status: &confirmed})
	p.schedule(m.ID, roomID, due)

	p.logger.Info("room created",
		zap.String("match_id", m.ID),
		zap.String("room_id", roomID),
		zap.String("name", name),
		zap.Time("close_due_at", due))

	return domain.Room{ID: roomID, Name: name, CloseDueAt: due, Retention: p.opts.Retention}, nil
}

// Reclaim deletes a match's room and records it closed. Deletion is best
// effort and not retried. Repeated calls for the same match are no-ops and
// return false.
func (p *Provisioner) Reclaim(ctx context.Context, matchID, roomID string) bool {
	p.mu.Lock()
	if _, done := p.reclaimed[matchID]; done {
		p.mu.Unlock()
		return false
	}
	p.reclaimed[matchID] = struct{}{}
	if s, ok := p.scheduled[matchID]; ok {
		if s.timer != nil {
			s.timer.Stop()
		}
		if roomID == "" {
			roomID = s.roomID
		}
		delete(p.scheduled, matchID)
	}
	// a confirmation still waiting for the sweep is written with the close
	queued := p.unsynced[matchID]
	delete(p.unsynced, matchID)
	p.mu.Unlock()

	if roomID != "" {
		if err := p.platform.DeleteChannel(ctx, roomID); err != nil {
			p.metrics.RoomFailed("delete")
			p.logger.Warn("room delete failed",
				zap.String("match_id", matchID),
				zap.String("room_id", roomID),
				zap.Error(err))
		}
	}

	closed := domain.StatusClosed
	closedAt := p.clock.Now().UTC()
	p.write(ctx, matchID, mergePatch(queued, domain.MatchPatch{Status: &closed, ClosedAt: &closedAt}))
	p.metrics.RoomReclaimed()
	p.logger.Info("room reclaimed",
		zap.String("match_id", matchID),
		zap.String("room_id", roomID))
	return true
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Reclaimed   int `json:"reclaimed"`
	Rescheduled int `json:"rescheduled"`
	Recovered   int `json:"recovered"`
	Synced      int `json:"synced"`
	Pending     int `json:"pending"`
}

// Sweep retries queued durable writes, confirms cand_accepted records that
// already reference a room, reclaims every confirmed match whose
// close-due-at has passed and schedules timers for confirmed matches this
// process does not know about yet.
func (p *Provisioner) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	res.Synced, res.Pending = p.flush(ctx)

	open, err := p.store.ListMatchesByStatus(ctx, domain.StatusConfirmed, domain.StatusCandAccepted)
	if err != nil {
		return res, fmt.Errorf("list open matches: %w", err)
	}

	now := p.clock.Now()
	for _, m := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if m.Status == domain.StatusCandAccepted {
			if m.RoomID == "" {
				continue
			}
			if p.confirmRecovered(ctx, m) {
				res.Recovered++
			}
		}
		due, ok := p.dueAt(m)
		if !ok {
			continue
		}
		if !now.Before(due) {
			if p.Reclaim(ctx, m.ID, m.RoomID) {
				res.Reclaimed++
			}
			continue
		}
		if p.schedule(m.ID, m.RoomID, due) {
			res.Rescheduled++
		}
	}
	return res, nil
}

// confirmRecovered confirms a cand_accepted record whose room was created by an
// earlier process that failed to persist the status
func (p *Provisioner) confirmRecovered(ctx context.Context, m domain.Match) bool {
	p.mu.Lock()
	_, done := p.reclaimed[m.ID]
	p.mu.Unlock()
	if done {
		return false
	}
	confirmed := domain.StatusConfirmed
	if err := p.store.UpdateMatch(ctx, m.ID, domain.MatchPatch{Status: &confirmed}); err != nil {
		p.logger.Warn("confirm recovered room failed",
			zap.String("match_id", m.ID),
			zap.String("room_id", m.RoomID),
			zap.Error(err))
		return false
	}
	p.logger.Info("room recovered",
		zap.String("match_id", m.ID),
		zap.String("room_id", m.RoomID))
	return true
}

// Run sweeps once immediately and then every SweepInterval until ctx is done
func (p *Provisioner) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		res, err := p.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("sweep failed", zap.Error(err))
		} else if res.Reclaimed > 0 || res.Synced > 0 || res.Rescheduled > 0 || res.Recovered > 0 {
			p.logger.Info("sweep finished",
				zap.Int("reclaimed", res.Reclaimed),
				zap.Int("rescheduled", res.Rescheduled),
				zap.Int("recovered", res.Recovered),
				zap.Int("synced", res.Synced),
				zap.Int("pending", res.Pending))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Stop cancels every pending reclamation timer. Durable records keep the
// close-due-at so the next process picks them up.
func (p *Provisioner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.scheduled {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(p.scheduled, id)
	}
}

// PendingWrites is the number of durable writes waiting for the sweep
func (p *Provisioner) PendingWrites() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unsynced)
}

func (p *Provisioner) dueAt(m domain.Match) (time.Time, bool) {
	if m.CloseDueAt != nil {
		return *m.CloseDueAt, true
	}
	if m.StartedAt != nil {
		return m.StartedAt.Add(p.opts.Retention), true
	}
	return time.Time{}, false
}

// schedule arms the reclamation timer unless one exists or the match was
// already reclaimed
func (p *Provisioner) schedule(matchID, roomID string, due time.Time) bool {
	p.mu.Lock()
	if _, ok := p.scheduled[matchID]; ok {
		p.mu.Unlock()
		return false
	}
	if _, done := p.reclaimed[matchID]; done {
		p.mu.Unlock()
		return false
	}
	s := &scheduledRoom{roomID: roomID}
	p.scheduled[matchID] = s
	p.mu.Unlock()

	// armed outside the lock: an already due timer may fire synchronously
	timer := p.clock.AfterFunc(due.Sub(p.clock.Now()), func() {
		p.Reclaim(context.Background(), matchID, roomID)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduled[matchID] == s {
		s.timer = timer
	} else {
		timer.Stop()
	}
	return true
}

// write persists patch, queueing it for the sweep on failure
func (p *Provisioner) write(ctx context.Context, matchID string, patch domain.MatchPatch) {
	err := p.store.UpdateMatch(ctx, matchID, patch)
	if err == nil {
		return
	}
	p.metrics.RoomFailed("persist")
	p.logger.Error("persist room state, queued for sweep",
		zap.String("match_id", matchID),
		zap.Error(err))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsynced[matchID] = mergePatch(p.unsynced[matchID], patch)
}

// flush retries queued writes and returns how many landed and how many remain
func (p *Provisioner) flush(ctx context.Context) (int, int) {
	p.mu.Lock()
	pending := make(map[string]domain.MatchPatch, len(p.unsynced))
	for id, patch := range p.unsynced {
		pending[id] = patch
	}
	p.mu.Unlock()

	synced := 0
	for id, patch := range pending {
		if err := p.store.UpdateMatch(ctx, id, patch); err != nil {
			p.logger.Warn("queued write still failing",
				zap.String("match_id", id),
				zap.Error(err))
			continue
		}
		synced++
		p.mu.Lock()
		if cur, ok := p.unsynced[id]; ok && samePatch(cur, patch) {
			delete(p.unsynced, id)
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return synced, len(p.unsynced)
}

// mergePatch overlays next on prev so a queued confirmation and a later close
// land together
func mergePatch(prev, next domain.MatchPatch) domain.MatchPatch {
	out := prev
	if next.Status != nil {
		out.Status = next.Status
	}
	if next.RoomID != nil {
		out.RoomID = next.RoomID
	}
	if next.StartedAt != nil {
		out.StartedAt = next.StartedAt
	}
	if next.CloseDueAt != nil {
		out.CloseDueAt = next.CloseDueAt
	}
	if next.ClosedAt != nil {
		out.ClosedAt = next.ClosedAt
	}
	return out
}

func samePatch(a, b domain.MatchPatch) bool {
	return a.Status == b.Status && a.RoomID == b.RoomID && a.StartedAt == b.StartedAt &&
		a.CloseDueAt == b.CloseDueAt && a.ClosedAt == b.ClosedAt
}

func (p *Provisioner) displayName(ctx context.Context, guildID, memberID string) string {
	name, err := p.platform.DisplayName(ctx, guildID, memberID)
	if err != nil {
		p.logger.Debug("display name lookup failed",
			zap.String("member_id", memberID),
			zap.Error(err))
		return ""
	}
	return name
}
