// Package adapter contains clients for the external services the tracker depends on.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/app-directory-tracker/internal/circuitbreaker"
	apperrors "github.com/app-directory-tracker/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

const providerName = "application-directory"

// maxResponseBytes caps how much of a directory response is read
const maxResponseBytes = 2 << 20

var (
	// ErrInvalidPayload is returned when the directory answers 2xx with a body
	// that does not describe an application
	ErrInvalidPayload = errors.New("invalid directory payload")
	// ErrApplicationNotFound is returned when the directory has no entry for the bot
	ErrApplicationNotFound = errors.New("application not found in directory")
	// ErrNoGuildCount is returned by FetchGuildCount when the entry carries no guild count
	ErrNoGuildCount = errors.New("directory entry has no guild count")
)

// DirectoryBot is the bot user attached to a directory application
type DirectoryBot struct {
	ID          string
	Username    *string
	GlobalName  *string
	Avatar      *string
	Banner      *string
	BannerColor *string
	AccentColor *string
}

// DirectoryApplication is a validated directory entry. Optional fields are nil
// when the directory omitted them or sent null.
type DirectoryApplication struct {
	ID               string
	Name             string
	Icon             *string
	Description      *string
	IsVerified       bool
	Bot              *DirectoryBot
	GuildCount       *int64
	ShortDescription *string
}

// DirectoryClientConfig configures a DirectoryClient
type DirectoryClientConfig struct {
	BaseURL           string
	Locale            string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client                   // optional; built from Timeout when nil
	Breaker           *circuitbreaker.CircuitBreaker // optional; a default breaker is created when nil
}

// DirectoryClient reads application metadata from the public application directory
type DirectoryClient struct {
	baseURL string
	locale  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// NewDirectoryClient creates a new directory client
func NewDirectoryClient(cfg *DirectoryClientConfig) (*DirectoryClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid directory base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(providerName))
	}

	locale := cfg.Locale
	if locale == "" {
		locale = "en-US"
	}

	return &DirectoryClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		locale:  locale,
		client:  httpClient,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}, nil
}

// BreakerStats exposes the state of the breaker guarding the directory
func (c *DirectoryClient) BreakerStats() circuitbreaker.Stats {
	return c.breaker.GetStats()
}

// FetchApplication fetches and validates the directory entry for a bot
func (c *DirectoryClient) FetchApplication(ctx context.Context, botID string) (*DirectoryApplication, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return nil, fmt.Errorf("bot id is required")
	}

	body, err := c.get(ctx, botID)
	if err != nil {
		return nil, err
	}

	app, err := ParseApplication(body)
	if err != nil {
		return nil, apperrors.NewProviderError(providerName, http.StatusOK, err)
	}
	return app, nil
}

// FetchGuildCount returns the current guild count for a bot
func (c *DirectoryClient) FetchGuildCount(ctx context.Context, botID string) (int64, error) {
	app, err := c.FetchApplication(ctx, botID)
	if err != nil {
		return 0, err
	}
	if app.GuildCount == nil {
		return 0, apperrors.NewProviderError(providerName, http.StatusOK, ErrNoGuildCount)
	}
	return *app.GuildCount, nil
}

// get performs GET {base}/applications/{botID}?locale=... and returns the body of a 2xx response
func (c *DirectoryClient) get(ctx context.Context, botID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewProviderError(providerName, 0, err)
	}

	endpoint := fmt.Sprintf("%s/applications/%s?%s",
		c.baseURL,
		url.PathEscape(botID),
		url.Values{"locale": {c.locale}}.Encode(),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewProviderError(providerName, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	var (
		status int
		body   []byte
	)
	// Only outages (transport errors, 5xx, 429) count against the breaker.
	// A 404 for one bot says nothing about the directory's health.
	err = c.breaker.Execute(func() error {
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return fmt.Errorf("directory returned status %d", status)
		}
		return nil
	})

	switch {
	case status == http.StatusTooManyRequests:
		metricsDirectoryRequests.WithLabelValues("rate_limited").Inc()
		return nil, apperrors.NewProviderRateLimitError(providerName)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		metricsDirectoryRequests.WithLabelValues("circuit_open").Inc()
		return nil, apperrors.NewProviderError(providerName, status, err)
	case err != nil:
		metricsDirectoryRequests.WithLabelValues("error").Inc()
		return nil, apperrors.NewProviderError(providerName, status, err)
	case status == http.StatusNotFound:
		metricsDirectoryRequests.WithLabelValues("not_found").Inc()
		return nil, apperrors.NewProviderError(providerName, status, ErrApplicationNotFound)
	case status < 200 || status > 299:
		metricsDirectoryRequests.WithLabelValues("error").Inc()
		return nil, apperrors.NewProviderError(providerName, status, fmt.Errorf("directory returned status %d", status))
	}
	metricsDirectoryRequests.WithLabelValues("ok").Inc()
	return body, nil
}

var metricsDirectoryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "app_directory_directory_requests_total",
	Help: "Requests made to the application directory, by result",
}, []string{"result"})

type rawBot struct {
	ID          *string         `json:"id"`
	Username    *string         `json:"username"`
	GlobalName  *string         `json:"global_name"`
	Avatar      *string         `json:"avatar"`
	Banner      *string         `json:"banner"`
	BannerColor *string         `json:"banner_color"`
	AccentColor json.RawMessage `json:"accent_color"`
}

type rawDirectoryEntry struct {
	GuildCount       json.RawMessage `json:"guild_count"`
	ShortDescription *string         `json:"short_description"`
}

type rawApplication struct {
	ID             *string            `json:"id"`
	Name           *string            `json:"name"`
	Icon           *string            `json:"icon"`
	Description    *string            `json:"description"`
	IsVerified     *bool              `json:"is_verified"`
	Bot            *rawBot            `json:"bot"`
	DirectoryEntry *rawDirectoryEntry `json:"directory_entry"`
}

// ParseApplication validates a directory response body. id and name are
// required; guild_count may be a JSON number or a numeric string.
func ParseApplication(data []byte) (*DirectoryApplication, error) {
	var raw rawApplication
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if raw.ID == nil || strings.TrimSpace(*raw.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}
	if raw.Name == nil || strings.TrimSpace(*raw.Name) == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidPayload)
	}

	app := &DirectoryApplication{
		ID:          *raw.ID,
		Name:        *raw.Name,
		Icon:        raw.Icon,
		Description: raw.Description,
	}
	if raw.IsVerified != nil {
		app.IsVerified = *raw.IsVerified
	}

	if raw.Bot != nil && raw.Bot.ID != nil && *raw.Bot.ID != "" {
		accent, err := stringOrNumber(raw.Bot.AccentColor)
		if err != nil {
			return nil, fmt.Errorf("%w: bot.accent_color: %v", ErrInvalidPayload, err)
		}
		app.Bot = &DirectoryBot{
			ID:          *raw.Bot.ID,
			Username:    raw.Bot.Username,
			GlobalName:  raw.Bot.GlobalName,
			Avatar:      raw.Bot.Avatar,
			Banner:      raw.Bot.Banner,
			BannerColor: raw.Bot.BannerColor,
			AccentColor: accent,
		}
	}

	if raw.DirectoryEntry != nil {
		count, err := parseGuildCount(raw.DirectoryEntry.GuildCount)
		if err != nil {
			return nil, fmt.Errorf("%w: directory_entry.guild_count: %v", ErrInvalidPayload, err)
		}
		app.GuildCount = count
		app.ShortDescription = raw.DirectoryEntry.ShortDescription
	}

	return app, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseGuildCount accepts 123, 123.0 or "123". Absent or null yields nil.
// Numbers are parsed from their literal text so counts past 2^53 stay exact.
func parseGuildCount(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		number, numErr := decodeNumber(raw)
		if numErr != nil {
			return nil, fmt.Errorf("unsupported type: %s", string(raw))
		}
		text = trimZeroFraction(number.String())
	}

	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("not a non-negative integer: %q", text)
	}
	return &n, nil
}

// trimZeroFraction turns "123.0" into "123". Any other fraction is left for
// ParseInt to reject.
func trimZeroFraction(literal string) string {
	if dot := strings.IndexByte(literal, '.'); dot >= 0 && strings.Trim(literal[dot+1:], "0") == "" {
		return literal[:dot]
	}
	return literal
}

func decodeNumber(raw json.RawMessage) (json.Number, error) {
	var number json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&number); err != nil {
		return "", err
	}
	return number, nil
}

// stringOrNumber renders a JSON string or number as a string. Absent or null yields nil.
func stringOrNumber(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &text, nil
	}

	number, err := decodeNumber(raw)
	if err != nil {
		return nil, fmt.Errorf("unsupported type: %s", string(raw))
	}
	s := number.String()
	return &s, nil
}
