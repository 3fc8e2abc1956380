package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KingRain/octrix/internal/cache"
	"github.com/KingRain/octrix/internal/models"
)

// memoryCache is a map-backed cache.Provider; TTLs are ignored.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return value, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCache) Close() error { return nil }

func snapshotServer(t *testing.T, hits *atomic.Int64, snapshot models.FleetSnapshot) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/v1/fleet/snapshot" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	}))
}

func TestSnapshotFetch(t *testing.T) {
	var hits atomic.Int64
	want := models.FleetSnapshot{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Pods:      []models.PodSample{{Name: "api-1", Namespace: "prod", CPUPercent: 42}},
	}
	srv := snapshotServer(t, &hits, want)
	defer srv.Close()

	client := NewFleetClient(srv.URL, "/api/v1/fleet/snapshot", 2*time.Second, nil, 0)
	got, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(got.Pods) != 1 || got.Pods[0].Name != "api-1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 backend hit, got %d", hits.Load())
	}
}

func TestSnapshotServedFromCache(t *testing.T) {
	var hits atomic.Int64
	srv := snapshotServer(t, &hits, models.FleetSnapshot{
		Timestamp: time.Now(),
		Nodes:     []models.NodeSample{{Name: "node-1", Ready: true}},
	})
	defer srv.Close()

	client := NewFleetClient(srv.URL, "/api/v1/fleet/snapshot", 2*time.Second, newMemoryCache(), 15*time.Second)
	for i := 0; i < 3; i++ {
		if _, err := client.Snapshot(context.Background()); err != nil {
			t.Fatalf("Snapshot %d: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cached fetches after the first, got %d hits", hits.Load())
	}
}

func TestSnapshotBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewFleetClient(srv.URL, "/api/v1/fleet/snapshot", 2*time.Second, nil, 0)
	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestSnapshotRequiresBaseURL(t *testing.T) {
	client := NewFleetClient("", "/api/v1/fleet/snapshot", time.Second, nil, 0)
	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatalf("expected error without a base URL")
	}
}

func TestResolvePathJoinsCleanly(t *testing.T) {
	client := NewFleetClient("http://backend:9090/base/", "api/v1/fleet/snapshot", time.Second, nil, 0)
	got := client.snapshotURL()
	want := "http://backend:9090/base/api/v1/fleet/snapshot"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
