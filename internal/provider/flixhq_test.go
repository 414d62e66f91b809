package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topster/internal/cache"
	"topster/internal/errs"
	"topster/internal/extract"
	"topster/internal/httputil"
	"topster/internal/media"
	"topster/internal/retry"
)

var _ Catalog = (*FlixHQ)(nil)

type fakeExtractor struct {
	name string
	mu   sync.Mutex
	hits []string
	fn   func(embedURL string) ([]media.VideoInfo, error)
}

func (e *fakeExtractor) Name() string { return e.name }

func (e *fakeExtractor) Extract(_ context.Context, embedURL, referer string) ([]media.VideoInfo, error) {
	e.mu.Lock()
	e.hits = append(e.hits, embedURL)
	e.mu.Unlock()
	return e.fn(embedURL)
}

type catalogFixture struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits map[string]int
	// sources maps a server ID to its /ajax/episode/sources response.
	sources map[string]string
}

func (f *catalogFixture) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	f := &catalogFixture{hits: map[string]int{}, sources: map[string]string{}}

	serveFile := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			data, err := os.ReadFile("testdata/" + name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Write(data)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search/{query}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("query") == "nothing-here" {
			serveFile("search_empty.html")(w, r)
			return
		}
		serveFile("search_results.html")(w, r)
	})
	mux.HandleFunc("/home", serveFile("home.html"))
	mux.HandleFunc("/tv-show", serveFile("search_results.html"))
	mux.HandleFunc("/movie", serveFile("search_results.html"))
	mux.HandleFunc("/ajax/v2/tv/seasons/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "4242":
			// Blank on the first request only.
			if f.count(r.URL.Path) == 1 {
				return
			}
		case "4343":
			return
		case "5151":
			fmt.Fprint(w, `<div class="dropdown-menu"></div>`)
			return
		}
		serveFile("seasons.html")(w, r)
	})
	mux.HandleFunc("/ajax/v2/season/episodes/{id}", serveFile("episodes.html"))
	mux.HandleFunc("/ajax/v2/episode/servers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "7777" {
			fmt.Fprint(w, `<div class="detail_page-servers"><ul class="nav"></ul></div>`)
			return
		}
		serveFile("episode_servers.html")(w, r)
	})
	mux.HandleFunc("/ajax/movie/episodes/{id}", serveFile("movie_servers.html"))
	mux.HandleFunc("/ajax/episode/sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body, ok := f.sources[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestCatalog(f *catalogFixture, c *cache.Cache, reg *extract.Registry, preferred string) *FlixHQ {
	return NewFlixHQ(f.srv.URL, Options{
		Client:    httputil.NewClient(httputil.WithTimeout(5 * time.Second)),
		Cache:     c,
		Registry:  reg,
		Preferred: preferred,
		Retry:     retry.Policy{Attempts: 2, Delay: time.Millisecond, Sleep: noSleep},
	})
}

func memoryCache() *cache.Cache {
	c := cache.New(nil)
	c.Register(cache.Search, cache.NewMemory(10), time.Hour)
	c.Register(cache.Media, cache.NewMemory(10), time.Hour)
	c.Register(cache.Episode, cache.NewMemory(10), time.Hour)
	return c
}

func TestSearch(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, nil, nil, "")

	page, err := p.Search(context.Background(), "the exorcist", 1)
	require.NoError(t, err)

	assert.Len(t, page.Results, 3)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, 1, f.count("/search/the-exorcist"))
	assert.Equal(t, f.srv.URL+"/movie/watch-the-exorcist-75043", page.Results[0].URL)
}

func TestSearchLastPage(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, nil, nil, "")

	page, err := p.Search(context.Background(), "dune", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, page.CurrentPage)
	assert.False(t, page.HasNextPage)
}

func TestSearchNoResults(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, nil, nil, "")

	_, err := p.Search(context.Background(), "nothing here", 1)
	assert.True(t, errs.IsNoResults(err), "got %v", err)

	// Running off the end of the results is not an error.
	page, err := p.Search(context.Background(), "nothing here", 2)
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.False(t, page.HasNextPage)

	_, err = p.Search(context.Background(), "   ", 1)
	assert.True(t, errs.IsNoResults(err))
}

func TestSearchIsCached(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, memoryCache(), nil, "")

	for i := 0; i < 3; i++ {
		_, err := p.Search(context.Background(), "dune", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.count("/search/dune"))

	_, err := p.Search(context.Background(), "dune", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("/search/dune"), "pages are cached separately")
}

func TestTrendingAndRecent(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, memoryCache(), nil, "")
	ctx := context.Background()

	trending, err := p.Trending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trending.Results, 2)
	assert.Equal(t, "Oppenheimer", trending.Results[0].Title)

	recent, err := p.Recent(ctx, media.TV, 1)
	require.NoError(t, err)
	assert.Len(t, recent.Results, 3)
	_, err = p.Recent(ctx, media.Movie, 1)
	require.NoError(t, err)

	_, err = p.Trending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("/home"))
	assert.Equal(t, 1, f.count("/tv-show"))
	assert.Equal(t, 1, f.count("/movie"))
}

func TestSeasonsAndEpisodes(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, memoryCache(), nil, "")
	ctx := context.Background()

	seasons, err := p.Seasons(ctx, "39506")
	require.NoError(t, err)
	require.Len(t, seasons, 3)
	assert.Equal(t, "1001", seasons[0].ID)

	episodes, err := p.Episodes(ctx, seasons[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 3)
	assert.Equal(t, "Pilot", episodes[0].Title)

	_, err = p.Seasons(ctx, "39506")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("/ajax/v2/tv/seasons/39506"))

	_, err = p.Seasons(ctx, "../etc")
	assert.Error(t, err)
	_, err = p.Episodes(ctx, "abc")
	assert.Error(t, err)
}

func TestSeasonsRetriesBlankResponse(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, memoryCache(), nil, "")
	ctx := context.Background()

	seasons, err := p.Seasons(ctx, "4242")
	require.NoError(t, err)
	assert.Len(t, seasons, 3)
	assert.Equal(t, 2, f.count("/ajax/v2/tv/seasons/4242"))
}

func TestSeasonsEmptyIsNotCached(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, memoryCache(), nil, "")
	ctx := context.Background()

	_, err := p.Seasons(ctx, "4343")
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrEmpty)
	assert.Equal(t, 2, f.count("/ajax/v2/tv/seasons/4343"))

	_, err = p.Seasons(ctx, "4343")
	require.Error(t, err)
	assert.Equal(t, 4, f.count("/ajax/v2/tv/seasons/4343"))

	_, err = p.Seasons(ctx, "5151")
	require.Error(t, err)
	assert.True(t, errs.IsScraping(err))
	_, err = p.Seasons(ctx, "5151")
	require.Error(t, err)
	assert.Equal(t, 2, f.count("/ajax/v2/tv/seasons/5151"))
}

func TestServers(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, memoryCache(), nil, "")
	ctx := context.Background()

	eps, err := p.Servers(ctx, "5001", true)
	require.NoError(t, err)
	assert.Len(t, eps, 3)

	movie, err := p.Servers(ctx, "66396", false)
	require.NoError(t, err)
	assert.Equal(t, []media.ServerInfo{{ID: "10766", Name: "UpCloud"}, {ID: "10767", Name: "Vidcloud"}}, movie)

	_, err = p.Servers(ctx, "5001", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("/ajax/v2/episode/servers/5001"), "server lists are not cached")
}

func TestSourcesPreferredServerFirst(t *testing.T) {
	f := newCatalogFixture(t)
	f.sources["9001"] = `{"type":"iframe","link":"https://upcloud.example/embed-4/up1"}`
	f.sources["9002"] = `{"type":"iframe","link":"https://vidcloud.example/embed-4/vid1"}`
	f.sources["9003"] = `{"type":"iframe","link":"https://megacloud.tv/embed-2/e-1/mega1"}`

	vid := &fakeExtractor{name: "vidcloud", fn: func(string) ([]media.VideoInfo, error) {
		return []media.VideoInfo{{URL: "https://cdn.example/master.m3u8", Quality: "auto"}}, nil
	}}
	mega := &fakeExtractor{name: "megacloud", fn: func(string) ([]media.VideoInfo, error) {
		t.Error("fallback extractor should not be used")
		return nil, nil
	}}
	reg := extract.NewRegistry(mega, nil,
		extract.Rule{Names: []string{"megacloud"}, Extractor: mega},
		extract.Rule{Names: []string{"vidcloud", "upcloud"}, Extractor: vid},
	)
	p := newTestCatalog(f, nil, reg, "vidcloud")

	got, err := p.Sources(context.Background(), "5001", true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Vidcloud", got[0].Provider)
	assert.Equal(t, "https://cdn.example/master.m3u8", got[0].Sources[0].URL)

	assert.Equal(t, []string{"https://vidcloud.example/embed-4/vid1"}, vid.hits)
	assert.Equal(t, 0, f.count("/ajax/episode/sources/9001"))
	assert.Equal(t, 0, f.count("/ajax/episode/sources/9003"))
}

func TestSourcesFailsOverInOrder(t *testing.T) {
	f := newCatalogFixture(t)
	f.sources["9001"] = `{"type":"iframe","link":"https://upcloud.example/embed-4/up1"}`
	// 9002 is missing and returns 404 on every attempt.
	f.sources["9003"] = `{"type":"iframe","link":"https://megacloud.tv/embed-2/e-1/mega1"}`

	up := &fakeExtractor{name: "vidcloud", fn: func(string) ([]media.VideoInfo, error) {
		return nil, errs.Decryption("no M3U8 sources found", nil)
	}}
	mega := &fakeExtractor{name: "megacloud", fn: func(string) ([]media.VideoInfo, error) {
		return []media.VideoInfo{{URL: "https://cdn.example/mega.m3u8", Quality: "auto"}}, nil
	}}
	reg := extract.NewRegistry(mega, nil,
		extract.Rule{Names: []string{"upcloud", "vidcloud"}, Extractor: up},
	)
	p := newTestCatalog(f, nil, reg, "")

	got, err := p.Sources(context.Background(), "5001", true)
	require.NoError(t, err)
	assert.Equal(t, "MegaCloud", got[0].Provider)
	assert.Len(t, up.hits, 1)
	assert.Equal(t, 2, f.count("/ajax/episode/sources/9002"), "AJAX fetches are retried")
}

func TestSourcesDirectPayload(t *testing.T) {
	f := newCatalogFixture(t)
	f.sources["10766"] = `{"sources":[{"file":"https://cdn.example/direct.m3u8","type":"hls"}],"tracks":[{"file":"https://cdn.example/en.vtt","label":"English","kind":"captions"}]}`

	p := newTestCatalog(f, nil, extract.NewRegistry(nil, nil), "")
	got, err := p.Sources(context.Background(), "66396", false)
	require.NoError(t, err)
	require.Len(t, got[0].Sources, 1)

	info := got[0].Sources[0]
	assert.Equal(t, "https://cdn.example/direct.m3u8", info.URL)
	assert.Equal(t, f.srv.URL+"/", info.Referer)
	require.Len(t, info.Subtitles, 1)
	assert.Equal(t, "english", info.Subtitles[0].Lang)
}

func TestSourcesAllFail(t *testing.T) {
	f := newCatalogFixture(t)
	f.sources["10766"] = `{"sources":[]}`
	f.sources["10767"] = `not json`

	p := newTestCatalog(f, nil, extract.NewRegistry(nil, nil), "")
	_, err := p.Sources(context.Background(), "66396", false)
	require.Error(t, err)
	assert.True(t, errs.IsDecryption(err), "got %v", err)

	var ferr *retry.FailoverError
	require.True(t, errors.As(err, &ferr))
	require.Len(t, ferr.Attempts, 2)
	assert.Equal(t, "UpCloud", ferr.Attempts[0].Target)
	assert.ErrorIs(t, ferr.Attempts[0].Err, retry.ErrEmpty)
	assert.True(t, errs.IsParse(ferr.Attempts[1].Err))
}

func TestSourcesCancelled(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, nil, extract.NewRegistry(nil, nil), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Sources(ctx, "66396", false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourcesNoServers(t *testing.T) {
	f := newCatalogFixture(t)
	p := newTestCatalog(f, nil, extract.NewRegistry(nil, nil), "")

	_, err := p.Sources(context.Background(), "7777", true)
	assert.True(t, errs.IsScraping(err), "got %v", err)
}
