package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/app-directory-tracker/internal/adapter"
	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/storage"
	"github.com/app-directory-tracker/internal/types"
)

// fakeApplicationStore is an in-memory application store. Insertion order is
// kept for ListSummaries; everything else is ordered by id.
type fakeApplicationStore struct {
	mu   sync.Mutex
	apps []*models.Application
	err  error
}

func (f *fakeApplicationStore) Insert(ctx context.Context, app *models.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.apps {
		if existing.ID == app.ID {
			return storage.ErrDuplicateApplication
		}
		if app.BotID != nil && existing.BotID != nil && *existing.BotID == *app.BotID {
			return storage.ErrDuplicateApplication
		}
	}
	f.apps = append(f.apps, app)
	return nil
}

func (f *fakeApplicationStore) ListSummaries(ctx context.Context) ([]*models.ApplicationSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return summarize(f.apps), nil
}

func (f *fakeApplicationStore) ListAfter(ctx context.Context, cursor string, limit int) ([]*models.ApplicationSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Application
	for _, app := range f.sortedByID() {
		if app.ID > cursor {
			out = append(out, app)
		}
		if len(out) == limit {
			break
		}
	}
	return summarize(out), nil
}

func (f *fakeApplicationStore) Search(ctx context.Context, query string, filter types.SearchFilter) ([]*models.ApplicationSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	q := strings.ToLower(query)
	var out []*models.Application
	for _, app := range f.sortedByID() {
		switch filter {
		case types.SearchFilterID:
			if strings.Contains(strings.ToLower(app.ID), q) {
				out = append(out, app)
			}
		case types.SearchFilterText:
			desc := ""
			if app.Description != nil {
				desc = *app.Description
			}
			if strings.Contains(strings.ToLower(app.Name), q) || strings.Contains(strings.ToLower(desc), q) {
				out = append(out, app)
			}
		}
	}
	return summarize(out), nil
}

func (f *fakeApplicationStore) GetByID(ctx context.Context, id string) (*models.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, app := range f.apps {
		if app.ID == id {
			return app, nil
		}
	}
	return nil, nil
}

func (f *fakeApplicationStore) GetFirst(ctx context.Context) (*models.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	sorted := f.sortedByID()
	if len(sorted) == 0 {
		return nil, nil
	}
	return sorted[0], nil
}

func (f *fakeApplicationStore) sortedByID() []*models.Application {
	sorted := append([]*models.Application(nil), f.apps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

func summarize(apps []*models.Application) []*models.ApplicationSummary {
	out := make([]*models.ApplicationSummary, 0, len(apps))
	for _, app := range apps {
		out = append(out, &models.ApplicationSummary{
			ID:          app.ID,
			Name:        app.Name,
			Icon:        app.Icon,
			Description: app.Description,
		})
	}
	return out
}

// fakeStatStore keeps samples per bot in insertion order
type fakeStatStore struct {
	entries map[string][]*models.StatEntry
	err     error
	calls   int
	// afterList runs once ListRecent has taken its snapshot
	afterList func()
}

func (f *fakeStatStore) ListRecent(ctx context.Context, botID string, limit int) ([]*models.StatEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	all := f.entries[botID]
	out := make([]*models.StatEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	if f.afterList != nil {
		f.afterList()
	}
	return out, nil
}

func (f *fakeStatStore) Latest(ctx context.Context, botID string) (*models.StatEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	all := f.entries[botID]
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

// fakeHistoryCache is a map-backed HistoryCacher with per-bot generations
type fakeHistoryCache struct {
	data        map[string][]models.HistoryPoint
	generations map[string]int64
	getErr      error
	setErr      error
	sets        int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		data:        make(map[string][]models.HistoryPoint),
		generations: make(map[string]int64),
	}
}

func cacheKey(botID string, limit int) string {
	return fmt.Sprintf("%s:%d", botID, limit)
}

func (f *fakeHistoryCache) Get(ctx context.Context, botID string, limit int) ([]models.HistoryPoint, int64, bool, error) {
	if f.getErr != nil {
		return nil, 0, false, f.getErr
	}
	points, ok := f.data[cacheKey(botID, limit)]
	return points, f.generations[botID], ok, nil
}

func (f *fakeHistoryCache) Set(ctx context.Context, botID string, limit int, generation int64, points []models.HistoryPoint) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	if f.generations[botID] != generation {
		return nil
	}
	f.data[cacheKey(botID, limit)] = points
	return nil
}

// mockDirectory implements DirectoryFetcher with a func field
type mockDirectory struct {
	fetchFn func(ctx context.Context, botID string) (*adapter.DirectoryApplication, error)
}

func (m *mockDirectory) FetchApplication(ctx context.Context, botID string) (*adapter.DirectoryApplication, error) {
	return m.fetchFn(ctx, botID)
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }
