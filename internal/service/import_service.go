package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/app-directory-tracker/internal/adapter"
	apperrors "github.com/app-directory-tracker/internal/errors"
	"github.com/app-directory-tracker/internal/logging"
	"github.com/app-directory-tracker/internal/models"
	"github.com/app-directory-tracker/internal/storage"
)

// DirectoryFetcher fetches full directory entries
type DirectoryFetcher interface {
	FetchApplication(ctx context.Context, botID string) (*adapter.DirectoryApplication, error)
}

// ApplicationWriter creates application rows
type ApplicationWriter interface {
	Insert(ctx context.Context, app *models.Application) error
}

// ImportResult is returned by a successful import
type ImportResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

// ImportService creates applications from directory entries
type ImportService struct {
	directory DirectoryFetcher
	apps      ApplicationWriter
}

// NewImportService creates a new import service
func NewImportService(directory DirectoryFetcher, apps ApplicationWriter) *ImportService {
	return &ImportService{
		directory: directory,
		apps:      apps,
	}
}

// ImportBot fetches the directory entry for botID and stores it as a new application.
// Importing an application that already exists fails; rows are never updated.
func (s *ImportService) ImportBot(ctx context.Context, botID string) (*ImportResult, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return nil, apperrors.NewMissingParameterError("botId", "Missing botId")
	}

	logger := logging.FromContext(ctx).WithField("botId", botID)

	entry, err := s.directory.FetchApplication(ctx, botID)
	if err != nil {
		logger.WithError(err).Warn("Directory lookup failed during import")
		return nil, apperrors.NewFetchError(botID, err)
	}

	app := ApplicationFromDirectory(entry)
	if err := s.apps.Insert(ctx, app); err != nil {
		logger.WithError(err).WithField("applicationId", app.ID).Error("Failed to store imported application")
		if errors.Is(err, storage.ErrDuplicateApplication) {
			return nil, apperrors.NewWriteError("Application already imported", err)
		}
		return nil, apperrors.NewWriteError("", err)
	}

	logger.WithFields(map[string]interface{}{
		"applicationId": app.ID,
		"name":          app.Name,
	}).Info("Imported application")

	return &ImportResult{Success: true, Name: app.Name}, nil
}

// ApplicationFromDirectory maps a directory entry onto an application row
func ApplicationFromDirectory(entry *adapter.DirectoryApplication) *models.Application {
	app := &models.Application{
		ID:          entry.ID,
		Name:        entry.Name,
		Icon:        entry.Icon,
		Description: entry.Description,
		IsVerified:  entry.IsVerified,
	}

	if entry.GuildCount != nil {
		snapshot := strconv.FormatInt(*entry.GuildCount, 10)
		app.GuildCount = &snapshot
	}

	// short_description wins; an empty one falls back to description
	switch {
	case entry.ShortDescription != nil && *entry.ShortDescription != "":
		app.DetailedDescription = entry.ShortDescription
	case entry.Description != nil && *entry.Description != "":
		app.DetailedDescription = entry.Description
	}

	if bot := entry.Bot; bot != nil {
		botID := bot.ID
		app.BotID = &botID
		app.BotUsername = bot.Username
		app.BotGlobalName = bot.GlobalName
		app.BotAvatar = bot.Avatar
		app.BotBanner = bot.Banner
		app.BotBannerColor = bot.BannerColor
		app.BotAccentColor = bot.AccentColor
	}
	return app
}
