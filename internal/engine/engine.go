package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ferry/internal/config"
	"ferry/internal/domain"
	"ferry/internal/events"
	"ferry/internal/repo"
)

// Engine wires the transfer core to the store. Now and NewID are
// injectable so tests control timestamps and id sequencing.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) defaultMaxAttempts() int {
	if e.Config != nil && e.Config.Transfer.MaxAttempts > 0 {
		return e.Config.Transfer.MaxAttempts
	}
	return 3
}

// appendEvent is telemetry; a failed append is logged, never fatal.
func (e Engine) appendEvent(ctx context.Context, evtType, intentID, entityKind, entityID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, nil, evtType, intentID, entityKind, entityID, payload); err != nil {
		e.Log.Warn().Err(err).Str("type", evtType).Msg("append event failed")
	}
}

// CreateLocationOptions are parameters for declaring a location.
type CreateLocationOptions struct {
	Name      string
	Kind      domain.LocationKind
	Path      string
	Label     string
	Available bool
}

func (e Engine) CreateLocation(ctx context.Context, opts CreateLocationOptions) (domain.Location, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Location{}, errors.New("name is required")
	}
	if !filepath.IsAbs(opts.Path) {
		return domain.Location{}, fmt.Errorf("path must be absolute: %q", opts.Path)
	}
	if opts.Kind == "" {
		opts.Kind = domain.LocationLocal
	}
	switch opts.Kind {
	case domain.LocationLocal, domain.LocationRemote, domain.LocationRemovable:
	default:
		return domain.Location{}, fmt.Errorf("invalid location kind %q", opts.Kind)
	}
	l := domain.Location{
		ID:        e.newID(),
		Name:      opts.Name,
		Kind:      opts.Kind,
		Path:      filepath.Clean(opts.Path),
		Available: opts.Available,
		CreatedAt: e.timestamp(),
	}
	if opts.Label != "" {
		l.Label = &opts.Label
	}
	if err := e.Repo.InsertLocation(ctx, l); err != nil {
		return domain.Location{}, fmt.Errorf("insert location: %w", err)
	}
	e.appendEvent(ctx, "location.created", "", "location", l.ID, events.EventPayload{"name": l.Name, "path": l.Path})
	return l, nil
}

func (e Engine) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return e.Repo.ListLocations(ctx)
}

func (e Engine) SetLocationAvailable(ctx context.Context, id string, available bool) error {
	return e.Repo.UpdateLocationAvailable(ctx, id, available)
}

// CreateIntentOptions are parameters for declaring an intent.
type CreateIntentOptions struct {
	Name            string
	SourceID        string
	DestinationIDs  []string
	Kind            domain.IntentKind
	Priority        int
	IncludePatterns []string
	ExcludePatterns []string
}

func (e Engine) CreateIntent(ctx context.Context, opts CreateIntentOptions) (domain.Intent, error) {
	if opts.SourceID == "" {
		return domain.Intent{}, errors.New("source is required")
	}
	if len(opts.DestinationIDs) == 0 {
		return domain.Intent{}, errors.New("at least one destination is required")
	}
	if opts.Kind == "" {
		opts.Kind = domain.IntentOneShot
	}
	switch opts.Kind {
	case domain.IntentOneShot, domain.IntentSync:
	default:
		return domain.Intent{}, fmt.Errorf("invalid intent kind %q", opts.Kind)
	}
	if _, err := e.Repo.GetLocation(ctx, opts.SourceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Intent{}, fmt.Errorf("source location %s not found", opts.SourceID)
		}
		return domain.Intent{}, err
	}
	seen := make(map[string]bool, len(opts.DestinationIDs))
	for _, destID := range opts.DestinationIDs {
		if destID == opts.SourceID {
			return domain.Intent{}, errors.New("destination must differ from source")
		}
		if seen[destID] {
			return domain.Intent{}, fmt.Errorf("duplicate destination %s", destID)
		}
		seen[destID] = true
		if _, err := e.Repo.GetLocation(ctx, destID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Intent{}, fmt.Errorf("destination location %s not found", destID)
			}
			return domain.Intent{}, err
		}
	}
	now := e.timestamp()
	in := domain.Intent{
		ID:              e.newID(),
		SourceID:        opts.SourceID,
		DestinationIDs:  opts.DestinationIDs,
		Status:          domain.IntentIdle,
		Kind:            opts.Kind,
		Priority:        opts.Priority,
		IncludePatterns: opts.IncludePatterns,
		ExcludePatterns: opts.ExcludePatterns,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if opts.Name != "" {
		in.Name = &opts.Name
	}
	if err := e.Repo.InsertIntent(ctx, in); err != nil {
		return domain.Intent{}, fmt.Errorf("insert intent: %w", err)
	}
	e.appendEvent(ctx, "intent.created", in.ID, "intent", in.ID, events.EventPayload{
		"source":       in.SourceID,
		"destinations": in.DestinationIDs,
	})
	return in, nil
}

func (e Engine) GetIntent(ctx context.Context, id string) (domain.Intent, error) {
	return e.Repo.GetIntent(ctx, id)
}

func (e Engine) ListIntents(ctx context.Context) ([]domain.Intent, error) {
	return e.Repo.ListIntents(ctx)
}

// ResolveReview applies a human decision to an open review item and
// mutates the referenced job accordingly. Resolved items are immutable.
func (e Engine) ResolveReview(ctx context.Context, itemID, resolution string) (domain.ReviewItem, error) {
	item, err := e.Repo.GetReviewItem(ctx, itemID)
	if err != nil {
		return domain.ReviewItem{}, err
	}
	if item.Resolution != nil {
		return domain.ReviewItem{}, fmt.Errorf("%w: %s", ErrReviewAlreadyResolved, itemID)
	}
	offered := false
	for _, opt := range item.Options {
		if opt == resolution {
			offered = true
			break
		}
	}
	if !offered {
		return domain.ReviewItem{}, fmt.Errorf("%w: %q; options are %s", ErrResolutionNotOffered, resolution, strings.Join(item.Options, ", "))
	}
	resolvedAt := e.timestamp()
	if err := e.Repo.ResolveReviewItem(ctx, itemID, resolution, resolvedAt); err != nil {
		return domain.ReviewItem{}, fmt.Errorf("resolve review item: %w", err)
	}
	switch resolution {
	case domain.ResolutionRetry, domain.ResolutionRescan:
		err = e.Repo.RequeueJob(ctx, item.JobID)
	case domain.ResolutionAccept:
		err = e.Repo.AcceptJob(ctx, item.JobID, resolvedAt)
	case domain.ResolutionSkip:
		err = e.Repo.SkipJob(ctx, item.JobID)
	}
	if err != nil {
		return domain.ReviewItem{}, fmt.Errorf("apply resolution to job %s: %w", item.JobID, err)
	}
	e.appendEvent(ctx, "review.resolved", item.IntentID, "review_item", item.ID, events.EventPayload{
		"resolution": resolution,
		"job":        item.JobID,
	})
	item.Resolution = &resolution
	item.ResolvedAt = &resolvedAt
	return item, nil
}

func (e Engine) ListOpenReviews(ctx context.Context, intentID string) ([]domain.ReviewItem, error) {
	return e.Repo.ListOpenReviews(ctx, intentID)
}
