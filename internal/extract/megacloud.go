package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"topster/internal/decrypt"
	"topster/internal/errs"
	"topster/internal/hls"
	"topster/internal/httputil"
	"topster/internal/logging"
	"topster/internal/media"
)

// DefaultMegaCloudBase is the MegaCloud API and player-script host.
const DefaultMegaCloudBase = "https://megacloud.tv"

var megaCloudIDPattern = regexp.MustCompile(`/e(?:-\d+)?/([^?#/]+)`)

// MegaCloud extracts streams from MegaCloud embeds. Encrypted source lists
// are unlocked with a secret whose layout is mined from the player script.
type MegaCloud struct {
	client *httputil.Client
	base   string
	log    *zap.Logger

	scriptPattern *regexp.Regexp
	now           func() time.Time
	decrypt       func(payload, password string) (string, error)
}

// NewMegaCloud creates a MegaCloud extractor. An empty base uses
// DefaultMegaCloudBase.
func NewMegaCloud(client *httputil.Client, base string, log *zap.Logger) *MegaCloud {
	if base == "" {
		base = DefaultMegaCloudBase
	}
	base = strings.TrimRight(base, "/")
	return &MegaCloud{
		client:        client,
		base:          base,
		log:           logging.OrNop(log),
		scriptPattern: regexp.MustCompile(regexp.QuoteMeta(base) + `/js/player/a/prod/e\d+-player\.min\.js`),
		now:           time.Now,
		decrypt:       decrypt.DecryptSalted,
	}
}

func (m *MegaCloud) Name() string { return "megacloud" }

// Extract resolves a MegaCloud embed URL into HLS streams.
func (m *MegaCloud) Extract(ctx context.Context, embedURL, referer string) ([]media.VideoInfo, error) {
	log := logging.FromContext(ctx, m.log).With(zap.String("extractor", m.Name()))

	match := megaCloudIDPattern.FindStringSubmatch(embedURL)
	if match == nil {
		return nil, errs.Decryption("could not extract video id from embed URL "+embedURL, nil)
	}
	id := match[1]

	apiURL := m.base + "/embed-2/ajax/e-1/getSources?id=" + url.QueryEscape(id)
	var resp sourcesResponse
	if err := m.client.FetchJSON(ctx, apiURL, httputil.Options{XHR: true, Referer: embedURL}, &resp); err != nil {
		return nil, fmt.Errorf("fetching megacloud sources: %w", err)
	}

	sources, err := resp.resolve(func(payload string) (string, error) {
		log.Debug("sources are encrypted, mining player script")
		return m.decryptSources(ctx, embedURL, referer, payload)
	})
	if err != nil {
		return nil, err
	}

	streams := filterM3U8(sources)
	if len(streams) == 0 {
		return nil, errs.Decryption("no M3U8 sources found", nil)
	}

	if referer == "" {
		referer = m.base + "/"
	}
	log.Debug("resolved streams", zap.Int("count", len(streams)))
	return toVideoInfos(streams, toSubtitles(resp.Tracks), referer), nil
}

func (m *MegaCloud) decryptSources(ctx context.Context, embedURL, referer, payload string) (string, error) {
	html, err := m.client.FetchText(ctx, embedURL, httputil.Options{Referer: referer})
	if err != nil {
		return "", fmt.Errorf("fetching embed page: %w", err)
	}

	scriptURL, err := m.findPlayerScript(html, embedURL)
	if err != nil {
		return "", err
	}

	bust := strconv.FormatInt(m.now().UnixMilli(), 10)
	script, err := m.client.FetchText(ctx, scriptURL+"?t="+bust, httputil.Options{Referer: embedURL})
	if err != nil {
		return "", fmt.Errorf("fetching player script: %w", err)
	}

	pairs := decrypt.MineIndexPairs(script)
	if len(pairs) == 0 {
		return "", errs.Decryption("could not extract encryption variables from player script", nil)
	}

	secret, remainder, err := decrypt.ExtractSecret(payload, pairs)
	if err != nil {
		return "", err
	}
	return m.decrypt(remainder, secret)
}

// findPlayerScript looks for the player script among the page's script
// tags, then anywhere in the raw markup.
func (m *MegaCloud) findPlayerScript(html, embedURL string) (string, error) {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		var found string
		doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			abs := hls.ResolveURL(strings.TrimSpace(src), embedURL)
			if loc := m.scriptPattern.FindString(abs); loc != "" {
				found = loc
				return false
			}
			return true
		})
		if found != "" {
			return found, nil
		}
	}

	if loc := m.scriptPattern.FindString(html); loc != "" {
		return loc, nil
	}
	return "", errs.Decryption("player script not found in embed page", nil)
}
