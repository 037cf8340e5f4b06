package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/config"
)

type fakeSnapshotStore struct {
	kind    string
	payload json.RawMessage
}

func (f *fakeSnapshotStore) UpsertStatusSnapshot(_ context.Context, kind string, payload json.RawMessage) error {
	f.kind = kind
	f.payload = payload
	return nil
}

type fakeCompletion struct {
	key string
	at  time.Time
}

func (f *fakeCompletion) SetLastCompletion(_ context.Context, key string, t time.Time) error {
	f.key = key
	f.at = t
	return nil
}

func healthyNode(t *testing.T, blockDiff int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health_check" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"block_difference":       blockDiff,
				"database_size":          5 << 30,
				"filesystem_size":        240 << 30,
				"filesystem_used":        80 << 30,
				"meets_min_requirements": true,
				"number_of_cpus":         8,
				"total_memory":           16 << 30,
				"used_memory":            6 << 30,
				"redis_total_memory":     1 << 30,
			},
			"version": map[string]interface{}{"version": "0.3.57"},
		})
	}))
}

func TestScraper_AggregatesHealthyNodes(t *testing.T) {
	t.Parallel()
	node1 := healthyNode(t, 2)
	defer node1.Close()
	node2 := healthyNode(t, 150)
	defer node2.Close()

	providers := []config.ServiceProvider{
		{SPID: 1, Endpoint: node1.URL},
		{SPID: 2, Endpoint: node2.URL},
	}
	store := &fakeSnapshotStore{}
	completed := &fakeCompletion{}
	s := NewScraper(providers, store, completed, zap.NewNop())

	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, SnapshotKind, store.kind)
	var snapshot struct {
		Nodes      []NodeStats `json:"nodes"`
		NodeCount  int         `json:"node_count"`
		Responding int         `json:"responding"`
	}
	require.NoError(t, json.Unmarshal(store.payload, &snapshot))

	assert.Equal(t, 2, snapshot.NodeCount)
	assert.Equal(t, 2, snapshot.Responding)
	require.Len(t, snapshot.Nodes, 2)

	first := snapshot.Nodes[0]
	assert.Equal(t, int64(1), first.SPID)
	assert.Equal(t, "0.3.57", first.Version)
	assert.Equal(t, int64(2), first.BlockDifference)
	assert.Equal(t, 5, first.DatabaseSizeGB)
	assert.Equal(t, 240, first.FilesystemSizeGB)
	assert.Equal(t, 160, first.FilesystemFreeGB)
	assert.Equal(t, 8, first.CPUCount)
	assert.Equal(t, 16, first.MemoryGB)
	assert.Equal(t, 10, first.MemoryFreeGB)
	assert.True(t, first.MeetsMinRequirements)

	assert.Equal(t, int64(150), snapshot.Nodes[1].BlockDifference)
	assert.False(t, completed.at.IsZero())
}

func TestScraper_SkipsFailingNodes(t *testing.T) {
	t.Parallel()
	healthy := healthyNode(t, 0)
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	defer broken.Close()
	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer garbled.Close()

	providers := []config.ServiceProvider{
		{SPID: 1, Endpoint: broken.URL},
		{SPID: 2, Endpoint: healthy.URL},
		{SPID: 3, Endpoint: garbled.URL},
		{SPID: 4, Endpoint: "http://127.0.0.1:1"}, // unreachable
	}
	store := &fakeSnapshotStore{}
	s := NewScraper(providers, store, nil, zap.NewNop())

	require.NoError(t, s.Run(context.Background()))

	var snapshot struct {
		Nodes      []NodeStats `json:"nodes"`
		NodeCount  int         `json:"node_count"`
		Responding int         `json:"responding"`
	}
	require.NoError(t, json.Unmarshal(store.payload, &snapshot))

	assert.Equal(t, 4, snapshot.NodeCount)
	assert.Equal(t, 1, snapshot.Responding)
	require.Len(t, snapshot.Nodes, 1)
	assert.Equal(t, int64(2), snapshot.Nodes[0].SPID)
}

func TestScraper_EmptyFleet(t *testing.T) {
	t.Parallel()
	store := &fakeSnapshotStore{}
	s := NewScraper(nil, store, nil, zap.NewNop())

	require.NoError(t, s.Run(context.Background()))

	var snapshot struct {
		Nodes      []NodeStats `json:"nodes"`
		Responding int         `json:"responding"`
	}
	require.NoError(t, json.Unmarshal(store.payload, &snapshot))
	assert.Empty(t, snapshot.Nodes)
	assert.Zero(t, snapshot.Responding)
}
