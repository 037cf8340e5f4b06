package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/config"
	"github.com/RahulBansal123/audius-protocol/internal/fleet"
	"github.com/RahulBansal123/audius-protocol/internal/models"
	"github.com/RahulBansal123/audius-protocol/internal/repository"
)

type fakeStore struct {
	histories    map[int64][]models.ListenRecord
	tracks       map[int64]models.Track
	users        map[int64]models.User
	playCounts   map[int64]int64
	balances     map[int64]models.UserBalance
	verified     map[int64]bool
	followers    map[int64][]repository.FollowerRow
	plays        map[string][]models.Play
	recentTracks []int64
	snapshots    map[string]*models.StatusSnapshot
	indexedBlock uint64
	indexedHash  string
	inserted     []int64
}

func (f *fakeStore) GetListeningHistory(_ context.Context, userID int64) ([]models.ListenRecord, error) {
	return f.histories[userID], nil
}

func (f *fakeStore) GetTracksByIDs(_ context.Context, trackIDs []int64) ([]models.Track, error) {
	var out []models.Track
	for _, id := range trackIDs {
		if t, ok := f.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTrackPlayCounts(_ context.Context, trackIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, id := range trackIDs {
		if c, ok := f.playCounts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeStore) GetUsersByIDs(_ context.Context, userIDs []int64) ([]models.User, error) {
	var out []models.User
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserBalances(_ context.Context, userIDs []int64) ([]models.UserBalance, error) {
	var out []models.UserBalance
	for _, id := range userIDs {
		if b, ok := f.balances[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertZeroBalances(_ context.Context, userIDs []int64) error {
	f.inserted = append(f.inserted, userIDs...)
	return nil
}

func (f *fakeStore) GetVerifiedUserIDs(_ context.Context, userIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range userIDs {
		if f.verified[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) GetFollowersForUser(_ context.Context, followeeID int64, limit, offset int) ([]repository.FollowerRow, error) {
	rows := f.followers[followeeID]
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (f *fakeStore) GetPlaysBySignature(_ context.Context, signature string) ([]models.Play, error) {
	return f.plays[signature], nil
}

func (f *fakeStore) GetRecentlyListenedTrackIDs(_ context.Context, limit int) ([]int64, error) {
	if limit > len(f.recentTracks) {
		limit = len(f.recentTracks)
	}
	return f.recentTracks[:limit], nil
}

func (f *fakeStore) GetLatestIndexedBlock(_ context.Context) (uint64, string, error) {
	return f.indexedBlock, f.indexedHash, nil
}

func (f *fakeStore) GetStatusSnapshot(_ context.Context, kind string) (*models.StatusSnapshot, error) {
	return f.snapshots[kind], nil
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }

func (f *fakeStore) ConnStats() (int32, int32, int32) { return 3, 2, 10 }

type fakeAPICache struct {
	enqueued    []int64
	chainBlock  uint64
	chainHash   string
	chainCached bool
	completions map[string]int64
}

func (f *fakeAPICache) EnqueueBalanceRefresh(_ context.Context, userIDs []int64) error {
	f.enqueued = append(f.enqueued, userIDs...)
	return nil
}

func (f *fakeAPICache) SecondsSinceCompletion(_ context.Context, key string, _ time.Time) (*int64, error) {
	if f.completions == nil {
		return nil, nil
	}
	if age, ok := f.completions[key]; ok {
		return &age, nil
	}
	return nil, nil
}

func (f *fakeAPICache) GetLatestChainBlock(_ context.Context) (uint64, string, bool, error) {
	return f.chainBlock, f.chainHash, f.chainCached, nil
}

func (f *fakeAPICache) CacheLatestChainBlock(_ context.Context, number uint64, hash string, _ time.Duration) error {
	f.chainBlock, f.chainHash, f.chainCached = number, hash, true
	return nil
}

func (f *fakeAPICache) Health(_ context.Context) error { return nil }

type fakeChainTip struct {
	number uint64
	hash   string
	err    error
}

func (f *fakeChainTip) LatestBlock(_ context.Context) (uint64, string, error) {
	return f.number, f.hash, f.err
}

func newTestServer(store *fakeStore, cacheClient *fakeAPICache, chain Chain) *Server {
	cfg := &config.Config{
		APIPort:          8080,
		AdminJWTSecret:   "test-secret",
		HealthyBlockDiff: 100,
	}
	return NewServer(store, cacheClient, chain, nil, cfg, zap.NewNop())
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestUserHistoryEndpoint(t *testing.T) {
	base := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		histories: map[int64][]models.ListenRecord{
			7: {
				{TrackID: 1, Timestamp: base},
				{TrackID: 2, Timestamp: base.Add(time.Minute)},
			},
		},
		tracks: map[int64]models.Track{
			1: {TrackID: 1, OwnerID: 10, Title: "first"},
			2: {TrackID: 2, OwnerID: 10, Title: "second"},
		},
		playCounts: map[int64]int64{1: 4, 2: 1},
		users:      map[int64]models.User{10: {UserID: 10, Handle: "artist"}},
	}
	s := newTestServer(store, &fakeAPICache{}, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/v1/users/7/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Data)
	entries := env.Data.([]interface{})
	require.Len(t, entries, 2)

	// Newest play first.
	first := entries[0].(map[string]interface{})
	assert.Equal(t, float64(2), first["track_id"])
	assert.Equal(t, float64(2), env.Meta["count"])
}

func TestUserHistoryEndpoint_InvalidID(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeAPICache{}, &fakeChainTip{})
	rec := doRequest(s, httptest.NewRequest("GET", "/v1/users/abc/history", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserFollowersEndpoint(t *testing.T) {
	store := &fakeStore{
		followers: map[int64][]repository.FollowerRow{
			7: {
				{UserID: 2, FollowerCount: 50},
				{UserID: 5, FollowerCount: 10},
			},
		},
		users: map[int64]models.User{
			2: {UserID: 2, Handle: "big"},
			5: {UserID: 5, Handle: "small"},
		},
	}
	s := newTestServer(store, &fakeAPICache{}, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/v1/users/7/followers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	entries := env.Data.([]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, float64(2), entries[0].(map[string]interface{})["user_id"])
}

func TestUserBalancesEndpoint(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		balances: map[int64]models.UserBalance{
			1: {UserID: 1, Balance: "100", AssociatedWalletsBalance: "5",
				CreatedAt: now.Add(-time.Hour), UpdatedAt: now},
		},
	}
	cacheClient := &fakeAPICache{}
	s := newTestServer(store, cacheClient, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/v1/users/balances?id=1&id=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, "100", data["1"].(map[string]interface{})["owner_wallet_balance"])
	assert.Equal(t, "0", data["2"].(map[string]interface{})["owner_wallet_balance"])

	// The unknown user gets a persisted zero row and a refresh enqueue.
	assert.Equal(t, []int64{2}, store.inserted)
	assert.Contains(t, cacheClient.enqueued, int64(2))
}

func TestUserBalancesEndpoint_RequiresIDs(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeAPICache{}, &fakeChainTip{})
	rec := doRequest(s, httptest.NewRequest("GET", "/v1/users/balances", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlayBySignatureEndpoint(t *testing.T) {
	store := &fakeStore{
		plays: map[string][]models.Play{
			"0xsig": {{ID: 9, PlayItemID: 3, Signature: "0xsig"}},
		},
	}
	s := newTestServer(store, &fakeAPICache{}, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/v1/plays/0xsig", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Len(t, env.Data.([]interface{}), 1)

	rec = doRequest(s, httptest.NewRequest("GET", "/v1/plays/0xmissing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackMilestonesEndpoint(t *testing.T) {
	store := &fakeStore{
		recentTracks: []int64{3, 1},
		playCounts:   map[int64]int64{3: 7, 1: 2},
	}
	s := newTestServer(store, &fakeAPICache{}, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/v1/tracks/milestones", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(7), data["3"])
	assert.Equal(t, float64(2), data["1"])
}

func TestFleetStatsEndpoint(t *testing.T) {
	store := &fakeStore{
		snapshots: map[string]*models.StatusSnapshot{
			fleet.SnapshotKind: {
				Kind:      fleet.SnapshotKind,
				Payload:   json.RawMessage(`{"responding":3}`),
				UpdatedAt: time.Now(),
			},
		},
	}
	s := newTestServer(store, &fakeAPICache{}, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/v1/fleet/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(3), env.Data.(map[string]interface{})["responding"])
}

func TestFleetStatsEndpoint_NoSnapshot(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeAPICache{}, &fakeChainTip{})
	rec := doRequest(s, httptest.NewRequest("GET", "/v1/fleet/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheckEndpoint(t *testing.T) {
	store := &fakeStore{indexedBlock: 98, indexedHash: "0xdef"}
	cacheClient := &fakeAPICache{chainBlock: 100, chainHash: "0xabc", chainCached: true}
	s := newTestServer(store, cacheClient, &fakeChainTip{err: context.DeadlineExceeded})

	rec := doRequest(s, httptest.NewRequest("GET", "/health_check", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["healthy"])
	assert.Equal(t, float64(2), resp["block_difference"])
	assert.Equal(t, float64(100), resp["latest_chain_block"])
	assert.Nil(t, resp["balance_refresh_age_sec"])
}

func TestHealthCheckEndpoint_EnforceBlockDiff(t *testing.T) {
	store := &fakeStore{indexedBlock: 10}
	cacheClient := &fakeAPICache{chainBlock: 500, chainCached: true}
	s := newTestServer(store, cacheClient, &fakeChainTip{})

	rec := doRequest(s, httptest.NewRequest("GET", "/health_check?enforce_block_diff=true", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["healthy"])

	// A raised threshold flips the verdict.
	rec = doRequest(s, httptest.NewRequest("GET", "/health_check?enforce_block_diff=true&healthy_block_diff=1000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthCheckEndpoint_ChainFallback(t *testing.T) {
	store := &fakeStore{indexedBlock: 40}
	cacheClient := &fakeAPICache{}
	s := newTestServer(store, cacheClient, &fakeChainTip{number: 42, hash: "0xaa"})

	rec := doRequest(s, httptest.NewRequest("GET", "/health_check", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["latest_chain_block"])

	// The RPC read re-primes the cache.
	assert.True(t, cacheClient.chainCached)
	assert.Equal(t, uint64(42), cacheClient.chainBlock)
}

func signAdminToken(t *testing.T, secret, sub string) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminRefreshBalances(t *testing.T) {
	cacheClient := &fakeAPICache{}
	s := newTestServer(&fakeStore{}, cacheClient, &fakeChainTip{})

	body := `{"user_ids":[1,2,3]}`

	// No token.
	rec := doRequest(s, httptest.NewRequest("POST", "/admin/refresh-balances", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, cacheClient.enqueued)

	// Wrong secret.
	req := httptest.NewRequest("POST", "/admin/refresh-balances", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "wrong-secret", "ops"))
	rec = doRequest(s, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	req = httptest.NewRequest("POST", "/admin/refresh-balances", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "test-secret", "ops"))
	rec = doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2, 3}, cacheClient.enqueued)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(3), env.Data.(map[string]interface{})["enqueued"])
}

func TestAdminRefreshBalances_EmptyBody(t *testing.T) {
	cacheClient := &fakeAPICache{}
	s := newTestServer(&fakeStore{}, cacheClient, &fakeChainTip{})

	req := httptest.NewRequest("POST", "/admin/refresh-balances", strings.NewReader(`{"user_ids":[]}`))
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "test-secret", "ops"))
	rec := doRequest(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, cacheClient.enqueued)
}
