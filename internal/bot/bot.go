// Package bot implements the member-facing commands independently of the chat
// platform: profile management, match requests, match control actions,
// passive history logging and the informational notices.
//
// Handlers in the platform adapter translate interactions into calls on
// Service and render the returned values. Errors that carry an
// apperror.Kind other than Internal have a message meant for the member.
package bot

import (
	"github.com/pbaille/coffeechat/internal/clock"
	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/negotiator"
	"github.com/pbaille/coffeechat/internal/similarity"
	"github.com/pbaille/coffeechat/internal/store"
	"github.com/pbaille/coffeechat/internal/summarizer"
	"go.uber.org/zap"
)

// Config wires a Service
type Config struct {
	Store      store.Store
	Engine     *similarity.Engine
	Negotiator *negotiator.Negotiator
	Summarizer *summarizer.Summarizer
	Clock      clock.Clock

	// LoggedChannelIDs restricts history logging; empty means every channel
	// the bot can read.
	LoggedChannelIDs []string

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Service runs member commands
type Service struct {
	store      store.Store
	engine     *similarity.Engine
	negotiator *negotiator.Negotiator
	summarizer *summarizer.Summarizer
	clock      clock.Clock

	loggedChannels []string
	whitelist      map[string]struct{}

	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a Service
func New(cfg Config) *Service {
	s := &Service{
		store:          cfg.Store,
		engine:         cfg.Engine,
		negotiator:     cfg.Negotiator,
		summarizer:     cfg.Summarizer,
		clock:          cfg.Clock,
		loggedChannels: append([]string(nil), cfg.LoggedChannelIDs...),
		whitelist:      make(map[string]struct{}, len(cfg.LoggedChannelIDs)),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
	for _, id := range cfg.LoggedChannelIDs {
		s.whitelist[id] = struct{}{}
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("bot")
	if s.summarizer == nil {
		s.summarizer = summarizer.New(nil, 0, s.logger, s.metrics)
	}
	if s.engine == nil {
		s.engine = similarity.NewEngine(s.store, similarity.Options{}, s.logger, s.metrics)
	}
	return s
}

// Negotiator exposes the match negotiator the service drives
func (s *Service) Negotiator() *negotiator.Negotiator {
	return s.negotiator
}
