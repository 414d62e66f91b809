// Package media defines the catalog and stream types shared across topster.
package media

import (
	"fmt"
	"strings"
)

// MediaType represents whether content is a movie or TV show.
type MediaType int

const (
	Movie MediaType = iota
	TV
)

func (m MediaType) String() string {
	switch m {
	case Movie:
		return "movie"
	case TV:
		return "tv"
	default:
		return "unknown"
	}
}

// ParseMediaType accepts "movie"/"movies" and "tv"/"show(s)"/"series".
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return Movie, nil
	case "tv", "show", "shows", "series", "tv-show":
		return TV, nil
	default:
		return Movie, fmt.Errorf("unknown media type %q", s)
	}
}

func (m MediaType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MediaType) UnmarshalText(b []byte) error {
	v, err := ParseMediaType(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MediaItem is a catalog card: a movie or a show.
type MediaItem struct {
	ID       string    `json:"id"`   // numeric catalog ID, e.g. "39516"
	Title    string    `json:"title"`
	Type     MediaType `json:"type"`
	Year     string    `json:"year,omitempty"`
	Quality  string    `json:"quality,omitempty"`  // HD, SD, CAM, 4K
	Duration string    `json:"duration,omitempty"` // e.g. "148m"
	Image    string    `json:"image,omitempty"`
	URL      string    `json:"url"`
}

// SearchPage is one page of listing results.
type SearchPage struct {
	Results     []MediaItem `json:"results"`
	CurrentPage int         `json:"current_page"`
	HasNextPage bool        `json:"has_next_page"`
	TotalPages  int         `json:"total_pages"`
}

// Season represents a TV show season.
type Season struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Episode represents a TV show episode.
type Episode struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// ServerInfo is a streaming server option for one movie or episode.
type ServerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"` // e.g. "Vidcloud", "UpCloud"
}

// Subtitle represents a subtitle track.
type Subtitle struct {
	URL   string `json:"url"`
	Lang  string `json:"lang"`  // lower-cased, e.g. "english - sdh"
	Label string `json:"label"` // display form, e.g. "English - SDH"
}

// VideoInfo is one directly playable stream.
type VideoInfo struct {
	URL       string     `json:"url"` // usually an HLS manifest
	Subtitles []Subtitle `json:"subtitles"`
	Referer   string     `json:"referer"`
	Quality   string     `json:"quality"` // "1080p", "auto", ...
}

// VideoSource groups the streams one backend produced. Callers try sources
// in order and stop at the first that plays.
type VideoSource struct {
	Provider string      `json:"provider"`
	Sources  []VideoInfo `json:"sources"`
}
