package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"topster/internal/errs"
	"topster/internal/httputil"
	"topster/internal/logging"
	"topster/internal/media"
	"topster/internal/retry"
)

// DefaultDecryptAPI is the decrypt service used for VidCloud and UpCloud.
const DefaultDecryptAPI = "https://dec.eatmynerds.live"

// VidCloud delegates VidCloud/UpCloud decryption to an external service.
// The service is flaky, so every call runs under the retry policy and an
// empty answer counts as a failed attempt.
type VidCloud struct {
	client *httputil.Client
	api    string
	policy retry.Policy
	log    *zap.Logger
}

// NewVidCloud creates a VidCloud extractor. An empty api uses DefaultDecryptAPI.
func NewVidCloud(client *httputil.Client, api string, policy retry.Policy, log *zap.Logger) *VidCloud {
	if api == "" {
		api = DefaultDecryptAPI
	}
	return &VidCloud{
		client: client,
		api:    strings.TrimRight(api, "/"),
		policy: policy,
		log:    logging.OrNop(log),
	}
}

func (v *VidCloud) Name() string { return "vidcloud" }

// Extract asks the decrypt service to resolve embedURL.
func (v *VidCloud) Extract(ctx context.Context, embedURL, _ string) ([]media.VideoInfo, error) {
	log := logging.FromContext(ctx, v.log).With(zap.String("extractor", v.Name()))
	referer := httputil.Origin(embedURL)
	if referer == "" {
		referer = embedURL
	}
	apiURL := v.api + "/?url=" + url.QueryEscape(embedURL)

	policy := v.policy
	policy.Log = log

	infos, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) ([]media.VideoInfo, error) {
		var resp sourcesResponse
		if err := v.client.FetchJSON(ctx, apiURL, httputil.Options{}, &resp); err != nil {
			return nil, err
		}
		if resp.Sources.isRaw {
			return nil, errs.Decryption("decrypt service returned encoded sources", nil)
		}
		streams := filterM3U8(resp.Sources.List)
		return toVideoInfos(streams, toSubtitles(resp.Tracks), referer), nil
	}, func(infos []media.VideoInfo) bool { return len(infos) == 0 })
	if err != nil {
		var ex *retry.ExhaustedError
		if errors.As(err, &ex) {
			log.Warn("decrypt service exhausted", zap.Int("attempts", ex.Attempts), zap.Error(ex.Err))
			return nil, errs.Decryption(fmt.Sprintf("extraction failed after %d attempts", ex.Attempts), err)
		}
		return nil, err
	}

	log.Debug("resolved streams", zap.String("referer", referer), zap.Int("count", len(infos)))
	return infos, nil
}
