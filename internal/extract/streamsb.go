package extract

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"topster/internal/errs"
	"topster/internal/hls"
	"topster/internal/httputil"
	"topster/internal/logging"
	"topster/internal/media"
	"topster/internal/retry"
)

// DefaultStreamSBHosts are the mirrors tried in order.
var DefaultStreamSBHosts = []string{
	"https://streamsss.net/sources50",
	"https://watchsb.com/sources50",
	"https://sbplay2.com/sources48",
}

// The source endpoint expects the hex-encoded id wrapped in a fixed
// hex-encoded envelope.
const (
	sbPayloadPrefix = "566d337678566f743674494a7c7c"
	sbPayloadSuffix = "7c7c346b6767586d6934774855537c7c73747265616d7362/" +
		"6565417268755339773461447c7c34613338343833343631333537613632333737343338363437633763346536653439333837313664373237373634373537323761376337633436373335373730353336623633346335333336353436613763376337333734373236353631366437333632" +
		"7c7c6b586c3163614468645a47617c7c73747265616d7362"
)

var m3u8URLPattern = regexp.MustCompile(`(https?://[^\s"']+\.m3u8[^\s"']*)`)

// StreamSB extracts streams from StreamSB embeds, failing over across mirror
// hosts and expanding master playlists into per-quality streams.
type StreamSB struct {
	client *httputil.Client
	hosts  []string
	log    *zap.Logger
}

// NewStreamSB creates a StreamSB extractor. No hosts means DefaultStreamSBHosts.
func NewStreamSB(client *httputil.Client, hosts []string, log *zap.Logger) *StreamSB {
	if len(hosts) == 0 {
		hosts = DefaultStreamSBHosts
	}
	return &StreamSB{client: client, hosts: hosts, log: logging.OrNop(log)}
}

func (s *StreamSB) Name() string { return "streamsb" }

// Extract tries each mirror once, in order, and returns the first usable
// result.
func (s *StreamSB) Extract(ctx context.Context, embedURL, _ string) ([]media.VideoInfo, error) {
	log := logging.FromContext(ctx, s.log).With(zap.String("extractor", s.Name()))

	id, err := streamSBVideoID(embedURL)
	if err != nil {
		return nil, err
	}
	payload := sbPayloadPrefix + hex.EncodeToString([]byte(id)) + sbPayloadSuffix
	referer := httputil.Origin(embedURL)

	infos, err := retry.Failover(ctx, s.hosts, func(h string) string { return h },
		func(ctx context.Context, host string) ([]media.VideoInfo, error) {
			infos, err := s.tryHost(ctx, strings.TrimRight(host, "/")+"/"+payload, embedURL, referer)
			if err != nil {
				log.Debug("mirror failed", zap.String("host", host), zap.Error(err))
			}
			return infos, err
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, errs.Decryption("all StreamSB hosts failed", err)
	}
	return infos, nil
}

func streamSBVideoID(embedURL string) (string, error) {
	_, id, ok := strings.Cut(embedURL, "/e/")
	if ok {
		if i := strings.IndexAny(id, "?#"); i != -1 {
			id = id[:i]
		}
		id = strings.TrimSuffix(id, ".html")
	}
	if id == "" {
		return "", errs.Decryption("invalid StreamSB URL format: "+embedURL, nil)
	}
	return id, nil
}

type sbResponse struct {
	StreamData json.RawMessage `json:"stream_data"`
	File       string          `json:"file"`
}

// streamURL returns stream_data.file, or stream_data itself when it is a
// string.
func (r sbResponse) streamURL() string {
	if len(r.StreamData) == 0 {
		return ""
	}
	var obj struct {
		File string `json:"file"`
	}
	if err := json.Unmarshal(r.StreamData, &obj); err == nil && obj.File != "" {
		return obj.File
	}
	var str string
	if err := json.Unmarshal(r.StreamData, &str); err == nil {
		return str
	}
	return ""
}

func (s *StreamSB) tryHost(ctx context.Context, apiURL, embedURL, referer string) ([]media.VideoInfo, error) {
	body, err := s.client.FetchText(ctx, apiURL, httputil.Options{
		Headers: map[string]string{"watchsb": "sbstream"},
		Referer: embedURL,
	})
	if err != nil {
		return nil, err
	}

	var resp sbResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		if m := m3u8URLPattern.FindStringSubmatch(body); m != nil {
			return []media.VideoInfo{single(m[1], referer)}, nil
		}
		return nil, errs.Parse(apiURL, err)
	}

	if stream := resp.streamURL(); strings.Contains(stream, ".m3u8") {
		return s.expandPlaylist(ctx, stream, referer), nil
	}
	if resp.File != "" {
		return []media.VideoInfo{single(resp.File, referer)}, nil
	}
	return nil, errs.Decryption("no stream data in response", nil)
}

// expandPlaylist returns one stream per master playlist variant. Anything
// short of that yields the master URL itself as "auto".
func (s *StreamSB) expandPlaylist(ctx context.Context, masterURL, referer string) []media.VideoInfo {
	content, err := s.client.FetchText(ctx, masterURL, httputil.Options{Referer: referer})
	if err != nil {
		logging.FromContext(ctx, s.log).Warn("failed to fetch playlist, using master URL",
			zap.String("url", masterURL), zap.Error(err))
		return []media.VideoInfo{single(masterURL, referer)}
	}
	return variantsOrMaster(content, masterURL, referer)
}

func variantsOrMaster(content, masterURL, referer string) []media.VideoInfo {
	variants := hls.ParseVariants(content, masterURL)
	if len(variants) == 0 {
		return []media.VideoInfo{single(masterURL, referer)}
	}
	out := make([]media.VideoInfo, 0, len(variants))
	for _, v := range variants {
		out = append(out, media.VideoInfo{
			URL:       v.URL,
			Subtitles: []media.Subtitle{},
			Referer:   referer,
			Quality:   v.Quality(),
		})
	}
	return out
}

func single(streamURL, referer string) media.VideoInfo {
	return media.VideoInfo{URL: streamURL, Subtitles: []media.Subtitle{}, Referer: referer, Quality: "auto"}
}
