// Package subtitle picks subtitle tracks by language preference and saves
// the chosen track to disk.
package subtitle

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"topster/internal/httputil"
	"topster/internal/media"
)

// Filter returns subtitles matching the preferred language (case-insensitive).
func Filter(subtitles []media.Subtitle, language string) []media.Subtitle {
	if language == "" {
		return subtitles
	}

	lang := strings.ToLower(language)
	var matched []media.Subtitle

	for _, sub := range subtitles {
		if strings.Contains(strings.ToLower(sub.Lang), lang) ||
			strings.Contains(strings.ToLower(sub.Label), lang) {
			matched = append(matched, sub)
		}
	}

	return matched
}

// BestMatch returns the best matching subtitle for the given language.
// Prefers a non-SDH match, then the first match.
func BestMatch(subtitles []media.Subtitle, language string) *media.Subtitle {
	filtered := Filter(subtitles, language)
	if len(filtered) == 0 {
		return nil
	}

	lang := strings.ToLower(language)

	for _, sub := range filtered {
		label := strings.ToLower(sub.Label)
		if strings.Contains(label, lang) && !strings.Contains(label, "sdh") {
			return &sub
		}
	}

	return &filtered[0]
}

// Languages lists the distinct track languages in first-seen order.
func Languages(subtitles []media.Subtitle) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, sub := range subtitles {
		if !seen[sub.Lang] {
			seen[sub.Lang] = true
			langs = append(langs, sub.Lang)
		}
	}
	return langs
}

// Download fetches a subtitle into dir and returns the local path. The
// file is named after the last element of the track URL.
func Download(ctx context.Context, client *httputil.Client, sub media.Subtitle, referer, dir string) (string, error) {
	if err := httputil.ValidateURL(sub.URL); err != nil {
		return "", fmt.Errorf("invalid subtitle URL: %w", err)
	}

	filename := httputil.LastPathSegment(sub.URL)
	if path.Ext(filename) == "" {
		filename = sub.Lang + ".vtt"
	}
	localPath, err := httputil.SafePath(dir, filename)
	if err != nil {
		return "", err
	}

	body, err := client.FetchText(ctx, sub.URL, httputil.Options{Referer: referer})
	if err != nil {
		return "", fmt.Errorf("downloading subtitle: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating subtitle dir: %w", err)
	}
	if err := os.WriteFile(localPath, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("writing subtitle file: %w", err)
	}

	return localPath, nil
}
