package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/app-directory-tracker/internal/adapter"
	apperrors "github.com/app-directory-tracker/internal/errors"
	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/service"
	"github.com/app-directory-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func postImport(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/import-bot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(server, req)
}

func TestImportBot_Success(t *testing.T) {
	var got string
	importer := &mockImportService{importFunc: func(ctx context.Context, botID string) (*service.ImportResult, error) {
		got = botID
		return &service.ImportResult{Success: true, Name: "Jukebox"}, nil
	}}
	server := createTestServer(nil, importer)

	w := postImport(t, server, `{"botId":"2000"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2000", got)
	assert.JSONEq(t, `{"success":true,"name":"Jukebox"}`, w.Body.String())
}

func TestImportBot_InvalidJSON(t *testing.T) {
	importer := &mockImportService{importFunc: func(ctx context.Context, botID string) (*service.ImportResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	server := createTestServer(nil, importer)

	w := postImport(t, server, "invalid json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidParameter, decodeError(t, w).Code)
}

func TestImportBot_MissingBotID(t *testing.T) {
	// The real service produces the message; the handler passes every body through.
	svc := service.NewImportService(nil, nil)
	server := createTestServer(nil, &mockImportService{importFunc: svc.ImportBot})

	for _, body := range []string{``, `{}`, `{"botId":""}`, `{"botId":"   "}`} {
		w := postImport(t, server, body)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		assert.Equal(t, "Missing botId", decodeError(t, w).Error, "body %q", body)
	}
}

func TestImportBot_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{
			name:       "fetch failure",
			err:        apperrors.NewFetchError("2000", adapter.ErrApplicationNotFound),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to fetch Discord data",
			wantCode:   apperrors.CodeFetchError,
		},
		{
			name:       "insert failure",
			err:        apperrors.NewWriteError("", errors.New("connection reset")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "DB insert failed",
			wantCode:   apperrors.CodeWriteError,
		},
		{
			name:       "uncategorized",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperrors.CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &mockImportService{importFunc: func(ctx context.Context, botID string) (*service.ImportResult, error) {
				return nil, tt.err
			}}
			server := createTestServer(nil, importer)

			w := postImport(t, server, `{"botId":"2000"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			assert.NotContains(t, resp.Error, "connection reset", "causes stay in the logs")
		})
	}
}

func TestListApplications(t *testing.T) {
	query := &mockQueryService{listFunc: func(ctx context.Context) ([]*models.ApplicationSummary, error) {
		return []*models.ApplicationSummary{
			{ID: "1000", Name: "Jukebox", Icon: strPtr("abc")},
			{ID: "1001", Name: "Moderator"},
		}, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"1000","name":"Jukebox","icon":"abc"},{"id":"1001","name":"Moderator"}]`, w.Body.String())
}

func TestListApplications_EmptyIsArray(t *testing.T) {
	query := &mockQueryService{listFunc: func(ctx context.Context) ([]*models.ApplicationSummary, error) {
		return nil, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListApplications_DatabaseError(t *testing.T) {
	query := &mockQueryService{listFunc: func(ctx context.Context) ([]*models.ApplicationSummary, error) {
		return nil, apperrors.NewDatabaseError("list applications", errors.New("pool closed"))
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeDatabaseError, decodeError(t, w).Code)
}

func TestApplicationsPage(t *testing.T) {
	var gotCursor string
	var gotLimit int
	query := &mockQueryService{pageFunc: func(ctx context.Context, cursor string, limit int) (*service.ApplicationPage, error) {
		gotCursor, gotLimit = cursor, limit
		return &service.ApplicationPage{
			Items:      []*models.ApplicationSummary{{ID: "1021", Name: "a"}},
			NextCursor: "1021",
			HasMore:    true,
		}, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/page?cursor=1020&limit=1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1020", gotCursor)
	assert.Equal(t, 1, gotLimit)
	assert.JSONEq(t, `{"items":[{"id":"1021","name":"a"}],"nextCursor":"1021","hasMore":true}`, w.Body.String())
}

func TestApplicationsPage_DefaultsAndEmpty(t *testing.T) {
	var gotLimit = -1
	query := &mockQueryService{pageFunc: func(ctx context.Context, cursor string, limit int) (*service.ApplicationPage, error) {
		gotLimit = limit
		return &service.ApplicationPage{}, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/page", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, gotLimit, "absent limit is left to the service default")
	assert.JSONEq(t, `{"items":[],"hasMore":false}`, w.Body.String())
}

func TestApplicationsPage_InvalidLimit(t *testing.T) {
	query := &mockQueryService{pageFunc: func(ctx context.Context, cursor string, limit int) (*service.ApplicationPage, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	server := createTestServer(query, nil)

	for _, limit := range []string{"abc", "0", "-1", "51", "1.5"} {
		w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/page?limit="+limit, nil))

		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
		assert.Equal(t, apperrors.CodeInvalidParameter, decodeError(t, w).Code, "limit=%s", limit)
	}
}

func TestSearchApplications(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantQuery  string
		wantFilter types.SearchFilter
	}{
		{name: "default filter is text", url: "/api/applications/search?query=music", wantQuery: "music", wantFilter: types.SearchFilterText},
		{name: "id filter", url: "/api/applications/search?query=123&filter=id", wantQuery: "123", wantFilter: types.SearchFilterID},
		{name: "filter is case-insensitive", url: "/api/applications/search?query=x&filter=TEXT", wantQuery: "x", wantFilter: types.SearchFilterText},
		{name: "wildcards pass through", url: "/api/applications/search?query=50%25", wantQuery: "50%", wantFilter: types.SearchFilterText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			var gotFilter types.SearchFilter
			query := &mockQueryService{searchFunc: func(ctx context.Context, q string, filter types.SearchFilter) ([]*models.ApplicationSummary, error) {
				gotQuery, gotFilter = q, filter
				return []*models.ApplicationSummary{{ID: "1234", Name: "Jukebox"}}, nil
			}}
			server := createTestServer(query, nil)

			w := serve(server, httptest.NewRequest(http.MethodGet, tt.url, nil))

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Equal(t, tt.wantFilter, gotFilter)
		})
	}
}

func TestSearchApplications_InvalidFilter(t *testing.T) {
	server := createTestServer(nil, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/search?query=a&filter=name", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidParameter, decodeError(t, w).Code)
}

func TestSearchApplications_NoMatchesIsArray(t *testing.T) {
	server := createTestServer(nil, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/search?query=zzz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetApplication(t *testing.T) {
	count := int64(4321)
	query := &mockQueryService{getFunc: func(ctx context.Context, id string) (*service.ApplicationDetail, error) {
		if id != "1000" {
			return nil, nil
		}
		return &service.ApplicationDetail{
			Application: &models.Application{
				ID:          "1000",
				Name:        "Jukebox",
				Description: strPtr("<:note:1> Plays music"),
				BotID:       strPtr("2000"),
				GuildCount:  strPtr("1234"),
			},
			CleanDescription:  "Plays music",
			CurrentGuildCount: &count,
		}, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/1000", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "1000", body["id"])
	assert.Equal(t, "2000", body["botId"])
	assert.Equal(t, "Plays music", body["cleanDescription"])
	assert.Equal(t, float64(4321), body["currentGuildCount"])
	assert.Equal(t, "1234", body["guildCount"])
}

func TestGetApplication_NotFound(t *testing.T) {
	server := createTestServer(nil, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/9999", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.CodeNotFound, resp.Code)
	assert.Equal(t, "Application not found", resp.Error)
}

func TestApplicationRoutes_FixedPathsAreNotIDs(t *testing.T) {
	query := &mockQueryService{getFunc: func(ctx context.Context, id string) (*service.ApplicationDetail, error) {
		t.Fatalf("GetApplication called with %q", id)
		return nil, nil
	}}
	server := createTestServer(query, nil)

	for _, path := range []string{"/api/applications/page", "/api/applications/search", "/api/applications/first"} {
		w := serve(server, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestFirstApplication(t *testing.T) {
	query := &mockQueryService{firstFunc: func(ctx context.Context) (*service.ApplicationDetail, error) {
		return &service.ApplicationDetail{Application: &models.Application{ID: "0001", Name: "First"}}, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/first", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "0001", body["id"])
}

func TestFirstApplication_EmptyDirectory(t *testing.T) {
	server := createTestServer(nil, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/applications/first", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.CodeNotFound, resp.Code)
	assert.Equal(t, "Application not found", resp.Error)
}

func TestGuildCountHistory(t *testing.T) {
	var gotBot string
	var gotLimit int
	query := &mockQueryService{historyFunc: func(ctx context.Context, botID string, limit int) ([]models.HistoryPoint, error) {
		gotBot, gotLimit = botID, limit
		return []models.HistoryPoint{
			{Date: "2024-05-01", GuildCount: 100},
			{Date: "2024-05-02", GuildCount: 120},
		}, nil
	}}
	server := createTestServer(query, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/guild-count/2000/history?limit=30", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2000", gotBot)
	assert.Equal(t, 30, gotLimit)
	assert.JSONEq(t, `[{"date":"2024-05-01","guildCount":100},{"date":"2024-05-02","guildCount":120}]`, w.Body.String())
}

func TestGuildCountHistory_EmptyIsArray(t *testing.T) {
	server := createTestServer(nil, nil)

	w := serve(server, httptest.NewRequest(http.MethodGet, "/api/guild-count/2000/history", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGuildCountHistory_InvalidLimit(t *testing.T) {
	server := createTestServer(nil, nil)

	for _, limit := range []string{"0", "1001", "many"} {
		w := serve(server, httptest.NewRequest(http.MethodGet, "/api/guild-count/2000/history?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestErrorResponseFormat(t *testing.T) {
	server := createTestServer(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/import-bot", bytes.NewReader([]byte("invalid")))
	w := serve(server, req)

	var errorResp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errorResp))
	assert.Contains(t, errorResp, "error")
	assert.Contains(t, errorResp, "code")
	assert.Len(t, errorResp, 2)
}
