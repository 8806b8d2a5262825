package service

import (
	"regexp"
	"strings"
)

var (
	// <:name:id> and <a:name:id>
	customEmojiPattern = regexp.MustCompile(`<a?:[^:<>\s]+:\d+>`)
	// Emoji images on the CDN are not reachable from outside the client
	emojiURLPattern = regexp.MustCompile(`https://cdn\.discordapp\.com/emojis/\d+\.(?:png|gif|jpg|webp)(?:\?\S*)?`)
)

// CleanDescription strips custom emoji markup and emoji image links from an
// application description so it can be rendered as plain markdown.
func CleanDescription(description string) string {
	cleaned := customEmojiPattern.ReplaceAllString(description, "")
	cleaned = emojiURLPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
