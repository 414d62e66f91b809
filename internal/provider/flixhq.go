package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"topster/internal/cache"
	"topster/internal/errs"
	"topster/internal/extract"
	"topster/internal/httputil"
	"topster/internal/logging"
	"topster/internal/media"
	"topster/internal/retry"
)

// Options configures a FlixHQ catalog.
type Options struct {
	Client *httputil.Client
	// Cache may be nil, which disables caching.
	Cache    *cache.Cache
	Registry *extract.Registry
	// Preferred is the server name tried first, e.g. "Vidcloud".
	Preferred string
	// Retry applies to the AJAX endpoints.
	Retry retry.Policy
	Log   *zap.Logger
}

// FlixHQ implements Catalog for FlixHQ and its mirrors.
type FlixHQ struct {
	base      string // e.g. "https://flixhq.to"
	client    *httputil.Client
	cache     *cache.Cache
	registry  *extract.Registry
	preferred string
	retry     retry.Policy
	log       *zap.Logger
}

// NewFlixHQ creates a FlixHQ catalog rooted at base.
func NewFlixHQ(base string, opts Options) *FlixHQ {
	client := opts.Client
	if client == nil {
		client = httputil.NewClient(httputil.WithLogger(opts.Log))
	}
	return &FlixHQ{
		base:      strings.TrimRight(base, "/"),
		client:    client,
		cache:     opts.Cache,
		registry:  opts.Registry,
		preferred: opts.Preferred,
		retry:     opts.Retry,
		log:       logging.OrNop(opts.Log),
	}
}

// Search returns one page of results for a query. An empty first page is
// a NoResults error; an empty later page is not.
func (f *FlixHQ) Search(ctx context.Context, query string, page int) (media.SearchPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return media.SearchPage{}, errs.NoResults(query)
	}
	page = max(page, 1)
	ctx, log := logging.WithRequest(ctx, f.log)
	log.Debug("search", zap.String("query", query), zap.Int("page", page))

	return cache.GetOrLoad(ctx, f.cache, cache.Search, cache.SearchKey(query, page), func(ctx context.Context) (media.SearchPage, error) {
		u := fmt.Sprintf("%s/search/%s?page=%d", f.base, httputil.EncodeQuery(query), page)
		doc, err := f.fetchDocument(ctx, u, false)
		if err != nil {
			return media.SearchPage{}, fmt.Errorf("searching for %q: %w", query, err)
		}

		items := parseCards(doc.Find(".flw-item"), f.base)
		if len(items) == 0 && page == 1 {
			return media.SearchPage{}, errs.NoResults(query)
		}
		return newPage(items, page, parseTotalPages(doc, page)), nil
	})
}

// Trending returns the home page's trending panels.
func (f *FlixHQ) Trending(ctx context.Context, page int) (media.SearchPage, error) {
	page = max(page, 1)
	ctx, _ = logging.WithRequest(ctx, f.log)

	return cache.GetOrLoad(ctx, f.cache, cache.Media, cache.TrendingKey(page), func(ctx context.Context) (media.SearchPage, error) {
		u := f.base + "/home"
		if page > 1 {
			u += "?page=" + strconv.Itoa(page)
		}
		doc, err := f.fetchDocument(ctx, u, false)
		if err != nil {
			return media.SearchPage{}, fmt.Errorf("getting trending: %w", err)
		}
		return newPage(parseTrending(doc, f.base), page, parseTotalPages(doc, page)), nil
	})
}

// Recent returns recently added movies or shows.
func (f *FlixHQ) Recent(ctx context.Context, t media.MediaType, page int) (media.SearchPage, error) {
	page = max(page, 1)
	ctx, _ = logging.WithRequest(ctx, f.log)

	return cache.GetOrLoad(ctx, f.cache, cache.Media, cache.RecentKey(t, page), func(ctx context.Context) (media.SearchPage, error) {
		u := f.base + "/movie"
		if t == media.TV {
			u = f.base + "/tv-show"
		}
		if page > 1 {
			u += "?page=" + strconv.Itoa(page)
		}
		doc, err := f.fetchDocument(ctx, u, false)
		if err != nil {
			return media.SearchPage{}, fmt.Errorf("getting recent %s: %w", t, err)
		}
		return newPage(parseCards(doc.Find(".flw-item"), f.base), page, parseTotalPages(doc, page)), nil
	})
}

func newPage(items []media.MediaItem, page, total int) media.SearchPage {
	return media.SearchPage{
		Results:     items,
		CurrentPage: page,
		HasNextPage: page < total,
		TotalPages:  total,
	}
}

// Seasons returns the seasons of a TV show.
func (f *FlixHQ) Seasons(ctx context.Context, mediaID string) ([]media.Season, error) {
	if err := httputil.ValidateNumericID(mediaID); err != nil {
		return nil, fmt.Errorf("invalid media ID: %w", err)
	}
	ctx, _ = logging.WithRequest(ctx, f.log)

	return cache.GetOrLoad(ctx, f.cache, cache.Episode, cache.SeasonsKey(mediaID), func(ctx context.Context) ([]media.Season, error) {
		doc, err := f.fetchDocument(ctx, httputil.BuildURL(f.base, "ajax", "v2", "tv", "seasons", mediaID), true)
		if err != nil {
			return nil, fmt.Errorf("getting seasons: %w", err)
		}
		seasons := parseSeasons(doc)
		if len(seasons) == 0 {
			return nil, errs.Scraping("no seasons found for "+mediaID, ".dropdown-item")
		}
		return seasons, nil
	})
}

// Episodes returns the episodes of a season.
func (f *FlixHQ) Episodes(ctx context.Context, seasonID string) ([]media.Episode, error) {
	if err := httputil.ValidateNumericID(seasonID); err != nil {
		return nil, fmt.Errorf("invalid season ID: %w", err)
	}
	ctx, _ = logging.WithRequest(ctx, f.log)

	return cache.GetOrLoad(ctx, f.cache, cache.Episode, cache.EpisodesKey(seasonID), func(ctx context.Context) ([]media.Episode, error) {
		doc, err := f.fetchDocument(ctx, httputil.BuildURL(f.base, "ajax", "v2", "season", "episodes", seasonID), true)
		if err != nil {
			return nil, fmt.Errorf("getting episodes: %w", err)
		}
		episodes := parseEpisodes(doc)
		if len(episodes) == 0 {
			return nil, errs.Scraping("no episodes found for "+seasonID, ".eps-item")
		}
		return episodes, nil
	})
}

// Servers lists streaming servers. Server lists are never cached.
func (f *FlixHQ) Servers(ctx context.Context, id string, isEpisode bool) ([]media.ServerInfo, error) {
	if err := httputil.ValidateNumericID(id); err != nil {
		return nil, fmt.Errorf("invalid ID: %w", err)
	}

	if isEpisode {
		doc, err := f.fetchDocument(ctx, httputil.BuildURL(f.base, "ajax", "v2", "episode", "servers", id), true)
		if err != nil {
			return nil, fmt.Errorf("getting episode servers: %w", err)
		}
		return parseEpisodeServers(doc), nil
	}

	doc, err := f.fetchDocument(ctx, httputil.BuildURL(f.base, "ajax", "movie", "episodes", id), true)
	if err != nil {
		return nil, fmt.Errorf("getting movie servers: %w", err)
	}
	return parseMovieServers(doc), nil
}

// Sources tries servers in preference order, one at a time, and returns the
// first that yields at least one stream. Later servers are not contacted.
func (f *FlixHQ) Sources(ctx context.Context, id string, isEpisode bool) ([]media.VideoSource, error) {
	ctx, log := logging.WithRequest(ctx, f.log)

	servers, err := f.Servers(ctx, id, isEpisode)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, errs.Scraping("no servers found for "+id, "a.link-item")
	}
	servers = sortServers(servers, f.preferred)

	src, err := retry.Failover(ctx, servers, func(s media.ServerInfo) string { return s.Name },
		func(ctx context.Context, s media.ServerInfo) (media.VideoSource, error) {
			infos, err := f.serverSources(ctx, s)
			if err == nil && len(infos) == 0 {
				err = retry.ErrEmpty
			}
			if err != nil {
				log.Info("server failed", zap.String("server", s.Name), zap.Error(err))
				return media.VideoSource{}, err
			}
			return media.VideoSource{Provider: s.Name, Sources: infos}, nil
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errs.Decryption("no server yielded playable sources", err)
	}

	log.Debug("resolved sources", zap.String("server", src.Provider), zap.Int("count", len(src.Sources)))
	return []media.VideoSource{src}, nil
}

// sortServers moves servers whose name contains preferred to the front,
// keeping the catalog order otherwise.
func sortServers(servers []media.ServerInfo, preferred string) []media.ServerInfo {
	out := append([]media.ServerInfo(nil), servers...)
	pref := strings.ToLower(strings.TrimSpace(preferred))
	if pref == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi := strings.Contains(strings.ToLower(out[i].Name), pref)
		pj := strings.Contains(strings.ToLower(out[j].Name), pref)
		return pi && !pj
	})
	return out
}

type sourceEnvelope struct {
	Type string `json:"type"`
	Link string `json:"link"`
}

// serverSources resolves one server: an iframe link goes through the
// matching extractor, anything else is read as a direct sources payload.
func (f *FlixHQ) serverSources(ctx context.Context, s media.ServerInfo) ([]media.VideoInfo, error) {
	if err := httputil.ValidateID(s.ID); err != nil {
		return nil, fmt.Errorf("server %s: %w", s.Name, err)
	}
	u := httputil.BuildURL(f.base, "ajax", "episode", "sources", s.ID)
	body, err := f.fetchAJAX(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("getting sources from %s: %w", s.Name, err)
	}

	var env sourceEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, errs.Parse(u, err)
	}

	if env.Type == "iframe" && env.Link != "" {
		if f.registry == nil {
			return nil, fmt.Errorf("no extractor registry for embed %s", env.Link)
		}
		ext := f.registry.Resolve(s.Name, env.Link)
		logging.FromContext(ctx, f.log).Debug("extracting embed",
			zap.String("server", s.Name), zap.String("extractor", ext.Name()), zap.String("embed_url", env.Link))
		return ext.Extract(ctx, env.Link, f.base+"/")
	}
	return extract.DirectSources(json.RawMessage(body), f.base+"/")
}

// fetchDocument fetches a page and parses it into a goquery Document.
// AJAX fragments are fetched under the retry policy.
func (f *FlixHQ) fetchDocument(ctx context.Context, u string, ajax bool) (*goquery.Document, error) {
	var body string
	var err error
	if ajax {
		body, err = f.fetchAJAX(ctx, u)
	} else {
		body, err = f.client.FetchText(ctx, u, httputil.Options{})
	}
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.Parse(u, err)
	}
	return doc, nil
}

// fetchAJAX fetches an AJAX fragment. A blank 200 body counts as a failed
// attempt and is retried like a network error.
func (f *FlixHQ) fetchAJAX(ctx context.Context, u string) (string, error) {
	policy := f.retry
	policy.Log = logging.FromContext(ctx, f.log)
	return retry.Do(ctx, policy, func(ctx context.Context, _ int) (string, error) {
		return f.client.FetchText(ctx, u, httputil.Options{XHR: true, Referer: f.base + "/"})
	}, blankBody)
}

func blankBody(body string) bool {
	return strings.TrimSpace(body) == ""
}
