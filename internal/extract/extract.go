// Package extract resolves embed URLs into playable stream URLs by talking
// to each hosting backend's own endpoints.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"topster/internal/errs"
	"topster/internal/media"
)

// Extractor resolves an embed URL into one or more playable streams.
// referer is an optional hint; backends that need a specific referer
// derive it from the embed URL instead.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, embedURL, referer string) ([]media.VideoInfo, error)
}

type source struct {
	File string `json:"file"`
	Type string `json:"type"`
}

type track struct {
	File    string `json:"file"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Default bool   `json:"default"`
}

// sourcesField is the "sources" member of a getSources response. Backends
// send either an encoded string or a plain list.
type sourcesField struct {
	Raw   string
	List  []source
	isRaw bool
}

func (s *sourcesField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		s.isRaw = true
		return json.Unmarshal(b, &s.Raw)
	}
	return json.Unmarshal(b, &s.List)
}

func (s sourcesField) MarshalJSON() ([]byte, error) {
	if s.isRaw {
		return json.Marshal(s.Raw)
	}
	return json.Marshal(s.List)
}

// sourcesResponse is the getSources envelope shared by the embed backends
// and the catalog's direct-source payloads.
type sourcesResponse struct {
	Sources   sourcesField `json:"sources"`
	Tracks    []track      `json:"tracks"`
	Encrypted bool         `json:"encrypted"`
}

// resolve returns the source list. decrypt is only called for an encrypted
// string payload; a list is passed through untouched.
func (r sourcesResponse) resolve(decrypt func(payload string) (string, error)) ([]source, error) {
	switch {
	case r.Sources.isRaw && r.Encrypted:
		plain, err := decrypt(r.Sources.Raw)
		if err != nil {
			return nil, err
		}
		var list []source
		if err := json.Unmarshal([]byte(plain), &list); err != nil {
			return nil, errs.Decryption("decrypted sources are not valid JSON", err)
		}
		return list, nil
	case r.Sources.isRaw:
		var list []source
		if err := json.Unmarshal([]byte(r.Sources.Raw), &list); err != nil {
			return nil, errs.Parse("", err)
		}
		return list, nil
	default:
		return r.Sources.List, nil
	}
}

func filterM3U8(sources []source) []source {
	var out []source
	for _, s := range sources {
		if s.File != "" && strings.Contains(s.File, ".m3u8") {
			out = append(out, s)
		}
	}
	return out
}

// toSubtitles keeps caption and subtitle tracks.
func toSubtitles(tracks []track) []media.Subtitle {
	subs := []media.Subtitle{}
	for _, t := range tracks {
		if t.Kind != "captions" && t.Kind != "subtitles" {
			continue
		}
		s := media.Subtitle{URL: t.File, Lang: "unknown", Label: "Unknown"}
		if t.Label != "" {
			s.Lang = strings.ToLower(t.Label)
			s.Label = t.Label
		}
		subs = append(subs, s)
	}
	return subs
}

func toVideoInfos(sources []source, subs []media.Subtitle, referer string) []media.VideoInfo {
	out := make([]media.VideoInfo, 0, len(sources))
	for _, s := range sources {
		quality := s.Type
		if quality == "" {
			quality = "auto"
		}
		out = append(out, media.VideoInfo{
			URL:       s.File,
			Subtitles: subs,
			Referer:   referer,
			Quality:   quality,
		})
	}
	return out
}

// DirectSources converts a catalog payload that already carries a plain
// sources list into streams. An encoded string yields nothing.
func DirectSources(raw json.RawMessage, referer string) ([]media.VideoInfo, error) {
	var resp sourcesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errs.Parse("", err)
	}
	if resp.Sources.isRaw {
		return nil, nil
	}
	return toVideoInfos(resp.Sources.List, toSubtitles(resp.Tracks), referer), nil
}
