package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/app-directory-tracker/internal/errors"
	"github.com/app-directory-tracker/internal/logging"
	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/types"
)

// ApplicationReader defines the read side of the application store
type ApplicationReader interface {
	ListSummaries(ctx context.Context) ([]*models.ApplicationSummary, error)
	ListAfter(ctx context.Context, cursor string, limit int) ([]*models.ApplicationSummary, error)
	Search(ctx context.Context, query string, filter types.SearchFilter) ([]*models.ApplicationSummary, error)
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetFirst(ctx context.Context) (*models.Application, error)
}

// StatReader defines the read side of the guild count samples
type StatReader interface {
	ListRecent(ctx context.Context, botID string, limit int) ([]*models.StatEntry, error)
	Latest(ctx context.Context, botID string) (*models.StatEntry, error)
}

// HistoryCacher caches shaped histories. Errors are logged and never fail a query.
// A miss reports the bot's cache generation; Set with that generation is
// dropped if the bot was invalidated in between.
type HistoryCacher interface {
	Get(ctx context.Context, botID string, limit int) (points []models.HistoryPoint, generation int64, found bool, err error)
	Set(ctx context.Context, botID string, limit int, generation int64, points []models.HistoryPoint) error
}

// ApplicationPage is one page of a cursor-paginated listing
type ApplicationPage struct {
	Items      []*models.ApplicationSummary `json:"items"`
	NextCursor string                       `json:"nextCursor,omitempty"`
	HasMore    bool                         `json:"hasMore"`
}

// ApplicationDetail is an application with the fields derived for display
type ApplicationDetail struct {
	*models.Application
	CleanDescription  string `json:"cleanDescription"`
	CurrentGuildCount *int64 `json:"currentGuildCount,omitempty"`
}

// QueryService serves the read operations behind the HTTP API
type QueryService struct {
	apps  ApplicationReader
	stats StatReader
	cache HistoryCacher // optional
}

// NewQueryService creates a new query service. cache may be nil.
func NewQueryService(apps ApplicationReader, stats StatReader, cache HistoryCacher) *QueryService {
	return &QueryService{
		apps:  apps,
		stats: stats,
		cache: cache,
	}
}

// ListApplications returns every application in insertion order
func (s *QueryService) ListApplications(ctx context.Context) ([]*models.ApplicationSummary, error) {
	apps, err := s.apps.ListSummaries(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list applications", err)
	}
	return apps, nil
}

// ListApplicationsPage returns up to limit applications with id > cursor.
// A zero limit means the default; anything outside 1..MaxPageLimit is rejected.
func (s *QueryService) ListApplicationsPage(ctx context.Context, cursor string, limit int) (*ApplicationPage, error) {
	if limit == 0 {
		limit = types.DefaultPageLimit
	}
	if limit < 1 || limit > types.MaxPageLimit {
		return nil, apperrors.NewInvalidParameterError("limit", "must be between 1 and "+strconv.Itoa(types.MaxPageLimit))
	}

	// One extra row tells whether another page exists
	items, err := s.apps.ListAfter(ctx, cursor, limit+1)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list application page", err)
	}

	page := &ApplicationPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
		page.NextCursor = page.Items[limit-1].ID
	}
	return page, nil
}

// SearchApplications matches query against ids or name/description depending on filter.
// A blank query matches nothing.
func (s *QueryService) SearchApplications(ctx context.Context, query string, filter types.SearchFilter) ([]*models.ApplicationSummary, error) {
	if filter != types.SearchFilterID && filter != types.SearchFilterText {
		return nil, apperrors.NewInvalidParameterError("filter", "must be 'id' or 'text'")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.ApplicationSummary{}, nil
	}

	apps, err := s.apps.Search(ctx, query, filter)
	if err != nil {
		return nil, apperrors.NewDatabaseError("search applications", err)
	}
	return apps, nil
}

// GetApplication returns the application with the given id, or nil when it does not exist
func (s *QueryService) GetApplication(ctx context.Context, id string) (*ApplicationDetail, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get application", err)
	}
	if app == nil {
		return nil, nil
	}
	return s.detail(ctx, app), nil
}

// GetFirstApplication returns the application with the lowest id, or nil when there is none
func (s *QueryService) GetFirstApplication(ctx context.Context) (*ApplicationDetail, error) {
	app, err := s.apps.GetFirst(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get first application", err)
	}
	if app == nil {
		return nil, nil
	}
	return s.detail(ctx, app), nil
}

func (s *QueryService) detail(ctx context.Context, app *models.Application) *ApplicationDetail {
	d := &ApplicationDetail{Application: app}
	if app.Description != nil {
		d.CleanDescription = CleanDescription(*app.Description)
	}
	d.CurrentGuildCount = s.currentGuildCount(ctx, app)
	return d
}

// currentGuildCount prefers the latest sample and falls back to the import snapshot
func (s *QueryService) currentGuildCount(ctx context.Context, app *models.Application) *int64 {
	if app.BotID != nil && *app.BotID != "" {
		latest, err := s.stats.Latest(ctx, *app.BotID)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("botId", *app.BotID).Warn("Failed to read latest guild count")
		} else if latest != nil {
			count := latest.GuildCount
			return &count
		}
	}

	if app.GuildCount == nil {
		return nil
	}
	count, err := strconv.ParseInt(strings.TrimSpace(*app.GuildCount), 10, 64)
	if err != nil || count < 0 {
		return nil
	}
	return &count
}

// GetGuildCountHistory returns up to limit of the most recent samples for botID,
// oldest first. A zero limit means the default.
func (s *QueryService) GetGuildCountHistory(ctx context.Context, botID string, limit int) ([]models.HistoryPoint, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return nil, apperrors.NewInvalidParameterError("botId", "is required")
	}
	if limit == 0 {
		limit = types.DefaultHistoryLimit
	}
	if limit < 1 || limit > types.MaxHistoryLimit {
		return nil, apperrors.NewInvalidParameterError("limit", "must be between 1 and "+strconv.Itoa(types.MaxHistoryLimit))
	}

	logger := logging.FromContext(ctx).WithField("botId", botID)

	// The write-back needs the generation seen before the store read
	writeBack := false
	var generation int64
	if s.cache != nil {
		points, gen, found, err := s.cache.Get(ctx, botID, limit)
		switch {
		case err != nil:
			logger.WithError(err).Warn("History cache read failed")
		case found:
			return points, nil
		default:
			writeBack, generation = true, gen
		}
	}

	entries, err := s.stats.ListRecent(ctx, botID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get guild count history", err)
	}
	points := ShapeHistory(entries)

	if writeBack {
		if err := s.cache.Set(ctx, botID, limit, generation, points); err != nil {
			logger.WithError(err).Warn("History cache write failed")
		}
	}
	return points, nil
}

// ShapeHistory turns newest-first samples into chart points, oldest first.
// Samples with a negative count are dropped.
func ShapeHistory(entries []*models.StatEntry) []models.HistoryPoint {
	points := make([]models.HistoryPoint, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e == nil || e.GuildCount < 0 {
			continue
		}
		points = append(points, models.HistoryPoint{
			Date:       e.RecordedAt.In(time.UTC).Format(models.HistoryDateLayout),
			GuildCount: e.GuildCount,
		})
	}
	return points
}
