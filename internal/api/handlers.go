package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/app-directory-tracker/internal/errors"
	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/types"
	"github.com/gorilla/mux"
)

// handleHealth reports liveness plus the state of the backing components.
// It answers 503 when Postgres is unreachable; Redis is advisory.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "app-directory-tracker",
	}

	if s.health.Database != nil {
		if err := s.health.Database.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			response["status"] = "unhealthy"
			response["database"] = "unavailable"
		} else {
			response["database"] = "ok"
		}
	}
	if s.health.Cache != nil {
		if err := s.health.Cache.Ping(ctx); err != nil {
			response["cache"] = "unavailable"
		} else {
			response["cache"] = "ok"
		}
	}
	if s.health.Directory != nil {
		response["directory"] = s.health.Directory.BreakerStats()
	}
	if s.health.Worker != nil {
		response["refresh"] = s.health.Worker.GetStatus()
	}

	respondJSON(w, status, response)
}

// handleImportBot handles POST /api/import-bot
func (s *Server) handleImportBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID string `json:"botId"`
	}

	// An empty body is treated like a missing botId.
	if err := parseJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, apperrors.CodeInvalidParameter, "Invalid request body")
		return
	}

	result, err := s.importService.ImportBot(r.Context(), req.BotID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListApplications handles GET /api/applications
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	items, err := s.queryService.ListApplications(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNilSummaries(items))
}

// handleApplicationsPage handles GET /api/applications/page?cursor=&limit=
func (s *Server) handleApplicationsPage(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, types.MaxPageLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	page, err := s.queryService.ListApplicationsPage(r.Context(), cursor, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	page.Items = nonNilSummaries(page.Items)

	respondJSON(w, http.StatusOK, page)
}

// handleSearchApplications handles GET /api/applications/search?query=&filter=id|text
func (s *Server) handleSearchApplications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter, err := types.ParseSearchFilter(query.Get("filter"))
	if err != nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("filter", "must be 'id' or 'text'"))
		return
	}

	items, err := s.queryService.SearchApplications(r.Context(), query.Get("query"), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, nonNilSummaries(items))
}

// handleFirstApplication handles GET /api/applications/first
func (s *Server) handleFirstApplication(w http.ResponseWriter, r *http.Request) {
	detail, err := s.queryService.GetFirstApplication(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if detail == nil {
		respondServiceError(w, r, apperrors.NewNotFoundError("Application", ""))
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// handleGetApplication handles GET /api/applications/{id}
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])

	detail, err := s.queryService.GetApplication(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if detail == nil {
		respondServiceError(w, r, apperrors.NewNotFoundError("Application", id))
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// handleGuildCountHistory handles GET /api/guild-count/{botId}/history?limit=
func (s *Server) handleGuildCountHistory(w http.ResponseWriter, r *http.Request) {
	botID := strings.TrimSpace(mux.Vars(r)["botId"])

	limit, err := parseLimit(r, types.MaxHistoryLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	points, err := s.queryService.GetGuildCountHistory(r.Context(), botID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if points == nil {
		points = []models.HistoryPoint{}
	}

	respondJSON(w, http.StatusOK, points)
}

// parseLimit reads the optional limit query parameter. Absent means 0, which
// the services replace with their default; an explicit value must be in 1..maxLimit.
func parseLimit(r *http.Request, maxLimit int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError("limit", "must be an integer")
	}
	if limit < 1 || limit > maxLimit {
		return 0, apperrors.NewInvalidParameterError("limit", "must be between 1 and "+strconv.Itoa(maxLimit))
	}
	return limit, nil
}

func nonNilSummaries(items []*models.ApplicationSummary) []*models.ApplicationSummary {
	if items == nil {
		return []*models.ApplicationSummary{}
	}
	return items
}
