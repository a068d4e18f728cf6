package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CineFM/config"
	"CineFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.Config{
		CatalogAPIURL:  baseURL,
		CatalogTimeout: 2 * time.Second,
		Preload: config.PreloadTunables{
			CatalogCacheTTL: time.Minute,
		},
	})
}

func TestClientDisabledWithoutBaseURL(t *testing.T) {
	c := newTestClient("")

	assert.False(t, c.Enabled())

	entries, err := c.GetFeatured(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, entries)

	collections, err := c.GetCollections(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, collections)
}

func TestGetFeaturedFetchesFromOrigin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/featured", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entries":[
			{"assetId":"cat-1","title":"晨光","artist":"远空","streamUrl":"https://cdn.example/cat-1","duration":213.5},
			{"assetId":"cat-2","title":"夜航","artist":"远空","streamUrl":"https://cdn.example/cat-2","duration":187}
		]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	require.True(t, c.Enabled())

	entries, err := c.GetFeatured(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "cat-1", entries[0].AssetID)
	assert.Equal(t, "晨光", entries[0].Title)
	assert.Equal(t, "https://cdn.example/cat-2", entries[1].StreamURL)
	assert.Equal(t, 213.5, entries[0].Duration)
}

func TestGetFeaturedCoalescesConcurrentRequests(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(`{"entries":[{"assetId":"cat-1","title":"晨光","streamUrl":"https://cdn.example/cat-1"}]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)

	var wg sync.WaitGroup
	results := make([][]model.CatalogEntry, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetFeatured(context.Background())
		}(i)
	}

	// 等回源开始、其余请求都合并进同一次飞行后再放行
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	for i, entries := range results {
		require.NoError(t, errs[i])
		require.Len(t, entries, 1)
		assert.Equal(t, "cat-1", entries[0].AssetID)
	}
}

func TestGetCollectionsParsesLeadTrack(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections", r.URL.Path)
		w.Write([]byte(`{"collections":[
			{"id":"col-1","name":"深夜电台","coverUrl":"https://cdn.example/c1.jpg",
			 "lead":{"assetId":"cat-9","title":"序曲","streamUrl":"https://cdn.example/cat-9"}},
			{"id":"col-2","name":"空专辑"}
		]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)

	collections, err := c.GetCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, collections, 2)

	require.NotNil(t, collections[0].Lead)
	assert.Equal(t, "cat-9", collections[0].Lead.AssetID)
	assert.Equal(t, "深夜电台", collections[0].Name)
	assert.Nil(t, collections[1].Lead)
}

func TestFetchErrorSurfacesToCaller(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)

	_, err := c.GetFeatured(context.Background())
	assert.Error(t, err)

	_, err = c.GetCollections(context.Background())
	assert.Error(t, err)
}
