package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtside/ingestion/internal/metrics"
	"courtside/ingestion/internal/models"
	"courtside/ingestion/internal/retry"

	"github.com/rs/zerolog/log"
)

// Client is the upstream stats/odds API client.
// It is purely functional from the caller's perspective: no caching,
// no side effects beyond the network call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     *retry.Policy
	now        func() time.Time
}

// NewClient creates a new upstream API client. The timeout is a fixed
// wall-clock bound on every call; the policy only governs 429 retries.
func NewClient(baseURL, apiKey string, timeout time.Duration, policy *retry.Policy) *Client {
	if policy == nil {
		policy = retry.NewPolicy(4, time.Second, 30*time.Second)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		policy:  policy,
		now:     time.Now,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// scheduleEntry is the schedule endpoint's wire format for one game.
type scheduleEntry struct {
	GameID   int    `json:"GameID"`
	DateTime string `json:"DateTime"`
	Status   string `json:"Status"`
	HomeTeam string `json:"HomeTeam"`
	AwayTeam string `json:"AwayTeam"`
}

// FetchSchedule fetches the game schedule for one operating date.
// The date must already be resolved to the operating-day timezone.
func (c *Client) FetchSchedule(ctx context.Context, date time.Time) ([]models.Game, error) {
	path := fmt.Sprintf("scores/json/GamesByDate/%s", date.Format("2006-01-02"))
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}

	var entries []scheduleEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
	}

	games := make([]models.Game, 0, len(entries))
	for _, e := range entries {
		start, err := time.Parse(time.RFC3339, e.DateTime)
		if err != nil {
			log.Warn().
				Int("game_id", e.GameID).
				Str("datetime", e.DateTime).
				Msg("Skipping schedule entry with unparseable start time")
			continue
		}
		games = append(games, models.Game{
			GameID:         e.GameID,
			ScheduledStart: start,
			State:          models.StateUpcoming,
			HomeTeam:       e.HomeTeam,
			AwayTeam:       e.AwayTeam,
		})
	}
	return games, nil
}

// FetchLiveSnapshots fetches box-score/odds snapshots for the given game
// ids. The id list is bounded by the provider page size; chunking is the
// caller's responsibility.
func (c *Client) FetchLiveSnapshots(ctx context.Context, gameIDs []int) ([]models.RawSnapshot, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(gameIDs))
	for i, id := range gameIDs {
		ids[i] = strconv.Itoa(id)
	}
	params := map[string]string{"games": strings.Join(ids, ",")}

	body, err := c.get(ctx, "stats/json/LiveBoxScores", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live snapshots: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live snapshots: %w", err)
	}

	fetchedAt := c.now()
	snaps := make([]models.RawSnapshot, 0, len(raw))
	for _, item := range raw {
		var snap models.RawSnapshot
		if err := json.Unmarshal(item, &snap); err != nil {
			log.Warn().Err(err).Msg("Skipping unparseable snapshot item")
			continue
		}
		snap.Payload = item
		snap.FetchedAt = fetchedAt
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// get performs a GET request with bearer auth. Status >= 400 other than
// 429 fails immediately; 429 retries with backoff honoring Retry-After.
func (c *Client) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, path)

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		body, retryAfter, err := c.doOnce(ctx, url, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Only a 429 earns another attempt here.
		var ue *UpstreamError
		if !errors.As(err, &ue) || ue.Status != http.StatusTooManyRequests {
			return nil, err
		}
		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.policy.Delay(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		log.Warn().
			Str("url", url).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Upstream rate limited, retrying after backoff")

		if err := c.policy.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrRateLimitExhausted, lastErr)
}

func (c *Client) doOnce(ctx context.Context, url, endpoint string, params map[string]string) ([]byte, time.Duration, error) {
	start := c.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "courtside-ingestion/1.0")

	if len(params) > 0 {
		q := req.URL.Query()
		for key, value := range params {
			q.Add(key, value)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			metrics.RecordAPICall(endpoint, "timeout", time.Since(start).Seconds())
			return nil, 0, fmt.Errorf("%w: %s", ErrUpstreamTimeout, err)
		}
		metrics.RecordAPICall(endpoint, "error", time.Since(start).Seconds())
		return nil, 0, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	metrics.RecordAPICall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode == http.StatusOK {
		return body, 0, nil
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
	return nil, retryAfter, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
}

// parseRetryAfter handles both forms of the header: delay-seconds and
// HTTP-date. Unparseable or past values yield zero, falling back to the
// computed backoff.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
