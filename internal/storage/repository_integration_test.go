package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func insertApp(t *testing.T, repo *ApplicationRepository, id, name string, description, botID *string) {
	t.Helper()
	err := repo.Insert(testContext(t), &models.Application{
		ID:          id,
		Name:        name,
		Description: description,
		BotID:       botID,
	})
	require.NoError(t, err)
}

func TestApplicationRepository_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewApplicationRepository(db)
	ctx := testContext(t)

	app := &models.Application{
		ID:                  "1000",
		Name:                "Jukebox",
		Icon:                strPtr("abc"),
		IsVerified:          true,
		BotID:               strPtr("2000"),
		BotUsername:         strPtr("jukebox"),
		GuildCount:          strPtr("1234"),
		DetailedDescription: strPtr("Music for your server"),
	}
	require.NoError(t, repo.Insert(ctx, app))
	assert.False(t, app.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "1000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jukebox", got.Name)
	assert.True(t, got.IsVerified)
	assert.Equal(t, "2000", *got.BotID)
	assert.Equal(t, "1234", *got.GuildCount)
	assert.Nil(t, got.Description)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApplicationRepository_InsertDuplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewApplicationRepository(db)
	ctx := testContext(t)

	insertApp(t, repo, "1", "first", nil, strPtr("bot-1"))

	err := repo.Insert(ctx, &models.Application{ID: "1", Name: "same id"})
	assert.ErrorIs(t, err, ErrDuplicateApplication)

	err = repo.Insert(ctx, &models.Application{ID: "2", Name: "same bot", BotID: strPtr("bot-1")})
	assert.ErrorIs(t, err, ErrDuplicateApplication)

	// Applications without a bot do not collide
	insertApp(t, repo, "3", "no bot", nil, nil)
	insertApp(t, repo, "4", "no bot either", nil, nil)
}

func TestApplicationRepository_CursorPagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewApplicationRepository(db)
	ctx := testContext(t)

	for i := 0; i < 45; i++ {
		insertApp(t, repo, fmt.Sprintf("app-%03d", i), fmt.Sprintf("App %d", i), nil, nil)
	}

	seen := make(map[string]bool)
	cursor := ""
	var sizes []int
	for {
		page, err := repo.ListAfter(ctx, cursor, 20)
		require.NoError(t, err)
		sizes = append(sizes, len(page))
		for _, app := range page {
			assert.False(t, seen[app.ID], "duplicate id %s", app.ID)
			seen[app.ID] = true
			if cursor != "" {
				assert.Greater(t, app.ID, cursor)
			}
		}
		if len(page) < 20 {
			break
		}
		cursor = page[len(page)-1].ID
	}

	assert.Equal(t, []int{20, 20, 5}, sizes)
	assert.Len(t, seen, 45)
}

func TestApplicationRepository_Search(t *testing.T) {
	db := setupTestDB(t)
	repo := NewApplicationRepository(db)
	ctx := testContext(t)

	insertApp(t, repo, "5123", "Jukebox", strPtr("Plays MUSIC all day"), nil)
	insertApp(t, repo, "7777", "Music Master", nil, nil)
	insertApp(t, repo, "1234", "Moderator", strPtr("Keeps things tidy"), nil)
	insertApp(t, repo, "9999", "100% uptime", nil, nil)

	byID, err := repo.Search(ctx, "123", types.SearchFilterID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1234", "5123"}, summaryIDs(byID))

	byText, err := repo.Search(ctx, "music", types.SearchFilterText)
	require.NoError(t, err)
	assert.Equal(t, []string{"5123", "7777"}, summaryIDs(byText))

	// Text search ignores ids
	none, err := repo.Search(ctx, "123", types.SearchFilterText)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Wildcards match literally
	literal, err := repo.Search(ctx, "0%", types.SearchFilterText)
	require.NoError(t, err)
	assert.Equal(t, []string{"9999"}, summaryIDs(literal))

	underscore, err := repo.Search(ctx, "_", types.SearchFilterText)
	require.NoError(t, err)
	assert.Empty(t, underscore)
}

func TestApplicationRepository_ListAndFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewApplicationRepository(db)
	ctx := testContext(t)

	first, err := repo.GetFirst(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	insertApp(t, repo, "b", "B", nil, strPtr("bot-b"))
	insertApp(t, repo, "a", "A", nil, nil)

	first, err = repo.GetFirst(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.ID)

	all, err := repo.ListSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, summaryIDs(all))

	refs, err := repo.ListRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.False(t, refs[0].HasBot())
	assert.True(t, refs[1].HasBot())
}

func TestStatRepository_HistoryWindow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatRepository(db)
	ctx := testContext(t)

	latest, err := repo.Latest(ctx, "bot-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := 1; i <= 5; i++ {
		_, err := repo.Insert(ctx, "bot-1", int64(i*10))
		require.NoError(t, err)
	}
	_, err = repo.Insert(ctx, "bot-2", 999)
	require.NoError(t, err)

	recent, err := repo.ListRecent(ctx, "bot-1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(50), recent[0].GuildCount)
	assert.Equal(t, int64(30), recent[2].GuildCount)

	latest, err = repo.Latest(ctx, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(50), latest.GuildCount)

	_, err = repo.Insert(ctx, "bot-1", -1)
	assert.Error(t, err, "negative counts are rejected by the schema")
}

func TestScanLogRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanLogRepository(db)
	ctx := testContext(t)

	last, err := repo.GetLastScannedAt(ctx, "bot-1")
	require.NoError(t, err)
	assert.Nil(t, last)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, "bot-1", first))
	second := first.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, "bot-1", second))

	last, err = repo.GetLastScannedAt(ctx, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, second.Equal(*last))

	var rows int
	require.NoError(t, db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM scan_logs`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func summaryIDs(summaries []*models.ApplicationSummary) []string {
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	return ids
}
