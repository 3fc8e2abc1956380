// Package repo holds clients for the external backends the orchestrator
// consumes signals from.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/KingRain/octrix/internal/cache"
	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/utils"
)

// FleetClient fetches periodic fleet health snapshots from the metrics
// backend. It is the orchestrator's signal source; detection consumes what it
// returns and never talks to the backend directly.
type FleetClient struct {
	baseURL      string
	snapshotPath string
	httpClient   *http.Client
	cache        cache.Provider
	snapshotTTL  time.Duration
}

// NewFleetClient constructs a client targeting the configured backend.
// provider may be a NoopProvider when caching is disabled.
func NewFleetClient(baseURL, snapshotPath string, timeout time.Duration, provider cache.Provider, snapshotTTL time.Duration) *FleetClient {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &FleetClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		snapshotPath: snapshotPath,
		httpClient:   &http.Client{Timeout: timeout},
		cache:        provider,
		snapshotTTL:  snapshotTTL,
	}
}

// Snapshot fetches the current fleet snapshot. Fetches within the snapshot
// TTL are served from cache so an aggressive detection interval does not
// hammer the backend.
func (c *FleetClient) Snapshot(ctx context.Context) (models.FleetSnapshot, error) {
	if c == nil {
		return models.FleetSnapshot{}, fmt.Errorf("fleet client not initialised")
	}
	if c.baseURL == "" {
		return models.FleetSnapshot{}, fmt.Errorf("fleet base URL not configured")
	}

	const cacheKey = "octrix:fleet:snapshot"
	if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
		var snapshot models.FleetSnapshot
		if err := json.Unmarshal(cached, &snapshot); err == nil {
			return snapshot, nil
		}
	}

	var snapshot models.FleetSnapshot
	if err := c.getJSON(ctx, c.snapshotURL(), &snapshot); err != nil {
		return models.FleetSnapshot{}, utils.NewAppError("fleet.Snapshot", "snapshot request failed", err)
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now()
	}

	if c.snapshotTTL > 0 {
		if payload, err := json.Marshal(snapshot); err == nil {
			// Cache write failures only cost us a refetch.
			_ = c.cache.Set(ctx, cacheKey, payload, c.snapshotTTL)
		}
	}
	return snapshot, nil
}

func (c *FleetClient) snapshotURL() string { return c.resolvePath(c.snapshotPath) }

func (c *FleetClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *FleetClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fleet backend returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostJSON publishes a JSON payload, used by outbound notification delivery.
func PostJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
