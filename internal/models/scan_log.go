package models

import "time"

// ScanLog is the scan watermark for a bot: the last time a poll produced a sample.
// There is at most one row per bot.
type ScanLog struct {
	BotID         string    `json:"botId" db:"bot_id"`
	LastScannedAt time.Time `json:"lastScannedAt" db:"last_scanned_at"`
}

// ScannedWithin reports whether the watermark is less than interval old at now
func (s *ScanLog) ScannedWithin(now time.Time, interval time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.LastScannedAt) < interval
}
