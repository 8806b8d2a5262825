package models

import "time"

// StatEntry is one guild count sample for a bot. Rows are append-only.
type StatEntry struct {
	ID         int64     `json:"id" db:"id"`
	BotID      string    `json:"botId" db:"bot_id"`
	GuildCount int64     `json:"guildCount" db:"guild_count"`
	RecordedAt time.Time `json:"recordedAt" db:"recorded_at"`
}

// HistoryPoint is a StatEntry shaped for charting
type HistoryPoint struct {
	Date       string `json:"date"` // YYYY-MM-DD (UTC)
	GuildCount int64  `json:"guildCount"`
}

// HistoryDateLayout is the layout of HistoryPoint.Date
const HistoryDateLayout = "2006-01-02"
