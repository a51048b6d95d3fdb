package similarity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pbaille/coffeechat/internal/domain"
	"github.com/pbaille/coffeechat/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HistoryReader returns the most recent texts a member posted in a group
type HistoryReader interface {
	RecentTexts(ctx context.Context, guildID, memberID string, limit int) ([]string, error)
}

// Candidate is one ranked potential partner
type Candidate struct {
	Profile       domain.Profile `json:"profile"`
	Tags          []string       `json:"tags"`
	InterestScore float64        `json:"interest_score"`
	PurposeScore  float64        `json:"purpose_score"`
	Score         float64        `json:"score"`
}

// Options tunes an Engine
type Options struct {
	// HistoryWindow is how many recent messages feed tag derivation.
	HistoryWindow int
	// Concurrency bounds in-flight history reads.
	Concurrency int
	// HistoryDisabled skips history reads entirely; only explicit tags count.
	HistoryDisabled bool
}

// Engine ranks candidates for a requester
type Engine struct {
	history HistoryReader
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewEngine creates a ranking engine. history may be nil when no interaction
// log is available.
func NewEngine(history HistoryReader, opts Options, logger *zap.Logger, m *metrics.Collector) *Engine {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if history == nil {
		opts.HistoryDisabled = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{history: history, opts: opts, logger: logger.Named("ranking"), metrics: m}
}

// Rank scores every candidate against the requester within one community and
// returns them sorted by descending composite score. Candidates with equal
// scores keep their input order. Candidates sharing the requester's member id
// are not eligible.
func (e *Engine) Rank(ctx context.Context, guildID string, requester domain.Profile, candidates []domain.Profile) ([]Candidate, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRanking(time.Since(start)) }()

	eligible := make([]domain.Profile, 0, len(candidates))
	for _, c := range candidates {
		if c.MemberID == "" || c.MemberID == requester.MemberID {
			continue
		}
		eligible = append(eligible, c)
	}

	requesterTags := e.tagsFor(ctx, guildID, requester)

	tags := make([][]string, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i := range eligible {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tags[i] = e.tagsFor(gctx, guildID, eligible[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := make([]Candidate, len(eligible))
	for i, p := range eligible {
		interest := InterestSimilarity(requesterTags, tags[i])
		purpose := PurposeSimilarity(requester.Purpose, p.Purpose)
		ranked[i] = Candidate{
			Profile:       p,
			Tags:          tags[i],
			InterestScore: interest,
			PurposeScore:  purpose,
			Score:         Composite(interest, purpose),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// Tags returns the merged explicit and history-derived tags for a profile
func (e *Engine) Tags(ctx context.Context, guildID string, p domain.Profile) []string {
	return e.tagsFor(ctx, guildID, p)
}

// tagsFor merges explicit tags with tags derived from recent history. A failed
// history read degrades to explicit tags only.
func (e *Engine) tagsFor(ctx context.Context, guildID string, p domain.Profile) []string {
	explicit := NormalizeTags(p.Interests)
	if e.opts.HistoryDisabled {
		return MergeTags(explicit, nil)
	}

	texts, err := e.history.RecentTexts(ctx, guildID, p.MemberID, e.opts.HistoryWindow)
	if err != nil {
		e.logger.Warn("history read failed, using explicit tags only",
			zap.String("member_id", p.MemberID),
			zap.String("guild_id", guildID),
			zap.Error(err))
		return MergeTags(explicit, nil)
	}
	return MergeTags(explicit, DeriveTags(strings.Join(texts, " ")))
}
