// Package hls parses HLS master playlists into quality variants.
package hls

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"topster/internal/errs"
)

const streamInfTag = "#EXT-X-STREAM-INF:"

var attrPattern = regexp.MustCompile(`([A-Z0-9-]+)=(?:"([^"]*)"|([^,]*))`)

// Variant is one rendition listed in a master playlist.
type Variant struct {
	URL        string
	Bandwidth  int
	Resolution string // "1280x720"
	Height     int
	Codecs     string
	Name       string
}

// Quality returns "{height}p", or "auto" when the variant has no resolution.
func (v Variant) Quality() string {
	if v.Height > 0 {
		return strconv.Itoa(v.Height) + "p"
	}
	return "auto"
}

// IsMaster reports whether content lists variant streams.
func IsMaster(content string) bool {
	return strings.Contains(content, streamInfTag)
}

// ParseMaster parses a master playlist. The #EXTM3U header is required.
func ParseMaster(content, baseURL string) ([]Variant, error) {
	trimmed := strings.TrimLeft(content, "\ufeff \t\r\n")
	if !strings.HasPrefix(trimmed, "#EXTM3U") {
		return nil, errs.HLS("invalid M3U8 playlist: missing #EXTM3U header")
	}
	return ParseVariants(content, baseURL), nil
}

// ParseVariants pairs every #EXT-X-STREAM-INF line with the URI line that
// follows it. It does not require a header, so it also accepts fragments.
func ParseVariants(content, baseURL string) []Variant {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var variants []Variant
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, streamInfTag) || i+1 >= len(lines) {
			continue
		}
		next := strings.TrimSpace(lines[i+1])
		if next == "" || strings.HasPrefix(next, "#") {
			continue
		}
		i++

		attrs := parseAttributes(strings.TrimPrefix(line, streamInfTag))
		v := Variant{
			URL:        ResolveURL(next, baseURL),
			Resolution: attrs["RESOLUTION"],
			Codecs:     attrs["CODECS"],
			Name:       attrs["NAME"],
		}
		v.Bandwidth, _ = strconv.Atoi(attrs["BANDWIDTH"])
		if _, h, ok := strings.Cut(v.Resolution, "x"); ok {
			v.Height, _ = strconv.Atoi(h)
		}
		variants = append(variants, v)
	}
	return variants
}

func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		if val != "" {
			attrs[m[1]] = val
		}
	}
	return attrs
}

// ResolveURL resolves a playlist URI against the playlist's own URL.
func ResolveURL(ref, baseURL string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// SelectBest returns the highest variant not above preferred height
// ("720", "1080p"), or the highest overall for "" and "auto".
func SelectBest(variants []Variant, preferred string) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	sorted := append([]Variant(nil), variants...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Height != sorted[j].Height {
			return sorted[i].Height > sorted[j].Height
		}
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})

	target, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(preferred), "p"))
	if err != nil || target <= 0 {
		return sorted[0], true
	}
	for _, v := range sorted {
		if v.Height > 0 && v.Height <= target {
			return v, true
		}
	}
	return sorted[len(sorted)-1], true
}
