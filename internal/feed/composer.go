package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cerberodev/sapo/internal/identity"
	"github.com/cerberodev/sapo/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingModeSource = errors.New("feed mode source is required")
)

// ModeSource supplies the current feed mode. The mode is read once per
// composition so the composer never depends on ambient global state.
type ModeSource interface {
	FeedMode(ctx context.Context) (Mode, error)
}

// EngagementSource supplies the derived per-message counters shown next to
// each entry. Tallies are recomputed from event records, never cached here.
type EngagementSource interface {
	VoteTally(ctx context.Context, messageID string) (int64, error)
	UserVote(ctx context.Context, voterID identity.VisitorID, messageID string) (string, error)
	ShareCount(ctx context.Context, messageID string) (int64, error)
}

// Entry is one rendered feed position.
type Entry struct {
	Message    Message
	Visible    bool
	VoteTally  int64
	ViewerVote string
	ShareCount int64
}

// View is the composed feed for one viewer at one instant.
type View struct {
	Mode            Mode
	Entries         []Entry
	SentCount       int64
	UnblurredCount  int
	RemainingLocked int
	PromptCount     int
	ComposedAt      time.Time
}

type ComposerConfig struct {
	Database   *gorm.DB
	Modes      ModeSource
	Engagement EngagementSource
	Dispatcher *realtime.Dispatcher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Composer builds the per-viewer feed: curated seed messages first, then the
// recency-ranked or manually-ordered main set, with the visible/blurred
// boundary derived from the viewer's own submission count.
type Composer struct {
	db         *gorm.DB
	modes      ModeSource
	engagement EngagementSource
	dispatcher *realtime.Dispatcher
	clock      func() time.Time
	logger     *zap.Logger
}

func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("feed: %w", errMissingDatabase)
	}
	if cfg.Modes == nil {
		return nil, fmt.Errorf("feed: %w", errMissingModeSource)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Composer{
		db:         cfg.Database,
		modes:      cfg.Modes,
		engagement: cfg.Engagement,
		dispatcher: cfg.Dispatcher,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Compose builds the feed for viewerID against the latest stored state.
func (c *Composer) Compose(ctx context.Context, viewerID identity.VisitorID) (View, error) {
	mode, err := c.modes.FeedMode(ctx)
	if err != nil {
		return View{}, fmt.Errorf("feed: read feed mode: %w", err)
	}

	var seed []Message
	err = c.db.WithContext(ctx).
		Where("is_initially_unblurred = ?", true).
		Order("created_at ASC").
		Limit(seedSetLimit).
		Find(&seed).Error
	if err != nil {
		return View{}, fmt.Errorf("feed: load seed set: %w", err)
	}

	var main []Message
	switch mode {
	case ModeManual:
		err = c.db.WithContext(ctx).
			Where("is_selected = ?", true).
			Order("display_order ASC").
			Limit(mainSetLimit).
			Find(&main).Error
	default:
		err = c.db.WithContext(ctx).
			Order("created_at DESC").
			Limit(mainSetLimit).
			Find(&main).Error
	}
	if err != nil {
		return View{}, fmt.Errorf("feed: load main set: %w", err)
	}

	var sentCount int64
	err = c.db.WithContext(ctx).Model(&Message{}).
		Where("author_id = ?", viewerID.String()).
		Count(&sentCount).Error
	if err != nil {
		return View{}, fmt.Errorf("feed: count viewer messages: %w", err)
	}

	view := composeView(mode, seed, main, sentCount, c.clock().UTC())
	if err := c.attachEngagement(ctx, viewerID, &view); err != nil {
		return View{}, err
	}
	return view, nil
}

func (c *Composer) attachEngagement(ctx context.Context, viewerID identity.VisitorID, view *View) error {
	if c.engagement == nil {
		return nil
	}
	for i := range view.Entries {
		messageID := view.Entries[i].Message.ID
		tally, err := c.engagement.VoteTally(ctx, messageID)
		if err != nil {
			return fmt.Errorf("feed: vote tally for %s: %w", messageID, err)
		}
		viewerVote, err := c.engagement.UserVote(ctx, viewerID, messageID)
		if err != nil {
			return fmt.Errorf("feed: viewer vote for %s: %w", messageID, err)
		}
		shares, err := c.engagement.ShareCount(ctx, messageID)
		if err != nil {
			return fmt.Errorf("feed: share count for %s: %w", messageID, err)
		}
		view.Entries[i].VoteTally = tally
		view.Entries[i].ViewerVote = viewerVote
		view.Entries[i].ShareCount = shares
	}
	return nil
}

// Subscribe delivers a freshly composed view immediately and again whenever
// any input collection, the feed mode, or the viewer's own submission count
// changes. The returned cancel is idempotent and safe to call multiple times.
func (c *Composer) Subscribe(ctx context.Context, viewerID identity.VisitorID) (<-chan View, func(), error) {
	if c.dispatcher == nil {
		return nil, nil, errors.New("feed: composer has no dispatcher")
	}

	events, cancelEvents := c.dispatcher.Subscribe(ctx)
	views := make(chan View, 1)

	go func() {
		defer close(views)
		c.deliver(ctx, viewerID, views)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				c.deliver(ctx, viewerID, views)
			}
		}
	}()

	return views, cancelEvents, nil
}

// deliver recomposes and pushes the latest view, replacing any undelivered
// previous view so subscribers always observe the newest state.
func (c *Composer) deliver(ctx context.Context, viewerID identity.VisitorID, views chan View) {
	view, err := c.Compose(ctx, viewerID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Warn("feed recomposition failed", zap.Error(err), zap.String("viewer_id", viewerID.String()))
		}
		return
	}
	for {
		select {
		case views <- view:
			return
		default:
			select {
			case <-views:
			default:
			}
		}
	}
}

// composeView is the pure composition rule: seed set first, then the main set
// minus any message already seeded, unblurred up to min(4 + 4*sent, 20).
func composeView(mode Mode, seed, main []Message, sentCount int64, composedAt time.Time) View {
	if len(seed) > seedSetLimit {
		seed = seed[:seedSetLimit]
	}
	if len(main) > mainSetLimit {
		main = main[:mainSetLimit]
	}

	seen := make(map[string]struct{}, len(seed)+len(main))
	ordered := make([]Message, 0, len(seed)+len(main))
	for _, message := range seed {
		if _, dup := seen[message.ID]; dup {
			continue
		}
		seen[message.ID] = struct{}{}
		ordered = append(ordered, message)
	}
	for _, message := range main {
		if _, dup := seen[message.ID]; dup {
			continue
		}
		seen[message.ID] = struct{}{}
		ordered = append(ordered, message)
	}

	unblurred := unblurBase + int(sentCount)*unblurPerMessage
	if unblurred > unblurCap {
		unblurred = unblurCap
	}

	entries := make([]Entry, 0, len(ordered))
	for index, message := range ordered {
		entries = append(entries, Entry{
			Message: message,
			Visible: index < unblurred,
		})
	}

	remaining := len(ordered) - unblurred
	if remaining < 0 {
		remaining = 0
	}
	prompt := remaining
	if prompt > unblurPerMessage {
		prompt = unblurPerMessage
	}

	return View{
		Mode:            mode,
		Entries:         entries,
		SentCount:       sentCount,
		UnblurredCount:  unblurred,
		RemainingLocked: remaining,
		PromptCount:     prompt,
		ComposedAt:      composedAt,
	}
}
