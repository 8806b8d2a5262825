package models

import (
	"time"
)

// Application represents one tracked Discord application, as imported from the directory.
// The id is assigned by the directory and never changes.
type Application struct {
	ID                  string    `json:"id" db:"id"`
	Name                string    `json:"name" db:"name"`
	Icon                *string   `json:"icon,omitempty" db:"icon"`
	Description         *string   `json:"description,omitempty" db:"description"`
	IsVerified          bool      `json:"isVerified" db:"is_verified"`
	BotID               *string   `json:"botId,omitempty" db:"bot_id"`
	BotUsername         *string   `json:"botUsername,omitempty" db:"bot_username"`
	BotGlobalName       *string   `json:"botGlobalName,omitempty" db:"bot_global_name"`
	BotAvatar           *string   `json:"botAvatar,omitempty" db:"bot_avatar"`
	BotBanner           *string   `json:"botBanner,omitempty" db:"bot_banner"`
	BotBannerColor      *string   `json:"botBannerColor,omitempty" db:"bot_banner_color"`
	BotAccentColor      *string   `json:"botAccentColor,omitempty" db:"bot_accent_color"`
	GuildCount          *string   `json:"guildCount,omitempty" db:"guild_count"` // import-time snapshot only
	DetailedDescription *string   `json:"detailedDescription,omitempty" db:"detailed_description"`
	CreatedAt           time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time `json:"updatedAt" db:"updated_at"`
}

// ApplicationSummary is the light projection used by listings and search
type ApplicationSummary struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Icon        *string `json:"icon,omitempty" db:"icon"`
	Description *string `json:"description,omitempty" db:"description"`
}

// ApplicationRef is what the refresh job needs to know about an application
type ApplicationRef struct {
	ID    string  `db:"id"`
	BotID *string `db:"bot_id"`
}

// HasBot reports whether the application has a bot that can be scanned
func (r ApplicationRef) HasBot() bool {
	return r.BotID != nil && *r.BotID != ""
}
