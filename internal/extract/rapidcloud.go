package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"topster/internal/decrypt"
	"topster/internal/errs"
	"topster/internal/httputil"
	"topster/internal/logging"
	"topster/internal/media"
)

const (
	// DefaultRapidKeyURL serves the current RapidCloud key.
	DefaultRapidKeyURL = "https://raw.githubusercontent.com/enimax-anime/key/e4/key.txt"
	// DefaultRapidFallbackKey is used when the key cannot be fetched.
	DefaultRapidFallbackKey = "c1d17096f2ca11b7"
)

// keyCellPattern matches the first code line of a rendered GitHub blob page.
var keyCellPattern = regexp.MustCompile(`blob-code blob-code-inner js-file-line">([^<]+)<`)

// RapidCloud extracts streams from RapidCloud and Rabbitstream embeds using
// a published key.
type RapidCloud struct {
	client      *httputil.Client
	keyURL      string
	fallbackKey string
	log         *zap.Logger
}

// NewRapidCloud creates a RapidCloud extractor. Empty values use the defaults.
func NewRapidCloud(client *httputil.Client, keyURL, fallbackKey string, log *zap.Logger) *RapidCloud {
	if keyURL == "" {
		keyURL = DefaultRapidKeyURL
	}
	if fallbackKey == "" {
		fallbackKey = DefaultRapidFallbackKey
	}
	return &RapidCloud{client: client, keyURL: keyURL, fallbackKey: fallbackKey, log: logging.OrNop(log)}
}

func (r *RapidCloud) Name() string { return "rapidcloud" }

// Extract resolves a RapidCloud embed URL into HLS streams. The returned
// referer is the embed host, which the CDN checks.
func (r *RapidCloud) Extract(ctx context.Context, embedURL, _ string) ([]media.VideoInfo, error) {
	log := logging.FromContext(ctx, r.log).With(zap.String("extractor", r.Name()))

	u, err := url.Parse(embedURL)
	if err != nil || u.Host == "" {
		return nil, errs.Decryption("invalid embed URL "+embedURL, err)
	}
	id := httputil.LastPathSegment(embedURL)
	if id == "" {
		return nil, errs.Decryption("could not extract video id from embed URL "+embedURL, nil)
	}

	apiURL := fmt.Sprintf("%s://%s/embed-2/ajax/e-1/getSources?id=%s", u.Scheme, u.Host, url.QueryEscape(id))
	var resp sourcesResponse
	if err := r.client.FetchJSON(ctx, apiURL, httputil.Options{XHR: true, Referer: embedURL}, &resp); err != nil {
		return nil, fmt.Errorf("fetching rapidcloud sources: %w", err)
	}

	sources, err := resp.resolve(func(payload string) (string, error) {
		return r.decryptSources(payload, r.fetchKey(ctx, log))
	})
	if err != nil {
		return nil, err
	}

	streams := filterM3U8(sources)
	if len(streams) == 0 {
		return nil, errs.Decryption("no M3U8 sources found", nil)
	}
	return toVideoInfos(streams, toSubtitles(resp.Tracks), httputil.Origin(embedURL)), nil
}

// fetchKey never fails: any problem with the published key falls back to
// the built-in one.
func (r *RapidCloud) fetchKey(ctx context.Context, log *zap.Logger) string {
	body, err := r.client.FetchText(ctx, r.keyURL, httputil.Options{})
	if err != nil {
		log.Debug("key fetch failed, using fallback key", zap.Error(err))
		return r.fallbackKey
	}
	if m := keyCellPattern.FindStringSubmatch(body); m != nil {
		if key := strings.TrimSpace(m[1]); key != "" {
			return key
		}
	}
	// Raw endpoints serve the key as plain text.
	if key := strings.TrimSpace(body); key != "" && !strings.Contains(key, "<") {
		return key
	}
	log.Debug("key not found in response, using fallback key", zap.String("url", r.keyURL))
	return r.fallbackKey
}

// decryptSources handles both key formats: a JSON list of index pairs
// locating the real key inside the payload, or a literal key string.
func (r *RapidCloud) decryptSources(payload, key string) (string, error) {
	if pairs := parseKeyPairs(key); len(pairs) > 0 {
		secret, remainder, err := decrypt.ExtractSecret(payload, pairs)
		if err != nil {
			return "", err
		}
		return decrypt.DecryptWithKey(remainder, secret)
	}
	return decrypt.DecryptWithKey(payload, key)
}

func parseKeyPairs(key string) []decrypt.IndexPair {
	var raw [][]int
	if err := json.Unmarshal([]byte(key), &raw); err != nil {
		return nil
	}
	var pairs []decrypt.IndexPair
	for _, p := range raw {
		if len(p) < 2 {
			continue
		}
		pairs = append(pairs, decrypt.IndexPair{Offset: p[0], Length: p[1]})
	}
	return pairs
}
