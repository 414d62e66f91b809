package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"topster/internal/media"
)

var (
	trailingIDPattern = regexp.MustCompile(`-(\d+)$`)
	serverIDPattern   = regexp.MustCompile(`\.(\d+)$`)
	yearPattern       = regexp.MustCompile(`^\d{4}$`)
	durationPattern   = regexp.MustCompile(`\d+m`)
	qualityPattern    = regexp.MustCompile(`(?i)HD|SD|CAM|4K`)
	serverPrefix      = regexp.MustCompile(`(?i)^Server\s*`)
	nonDigits         = regexp.MustCompile(`\D`)
)

// parseCards extracts media cards. Parsing goes through the DOM, so markup
// in titles stays inert text.
func parseCards(sel *goquery.Selection, base string) []media.MediaItem {
	items := []media.MediaItem{}
	sel.Each(func(_ int, s *goquery.Selection) {
		if item, ok := parseCard(s, base); ok {
			items = append(items, item)
		}
	})
	return items
}

func parseCard(s *goquery.Selection, base string) (media.MediaItem, bool) {
	link := s.Find(".film-poster-ahref").First()
	href := strings.TrimSpace(link.AttrOr("href", ""))
	title := strings.TrimSpace(link.AttrOr("title", ""))
	if title == "" {
		title = strings.TrimSpace(s.Find(".film-name a").First().Text())
	}

	id := extractNumericID(href)
	if id == "" || title == "" {
		return media.MediaItem{}, false
	}

	item := media.MediaItem{
		ID:    id,
		Title: title,
		Type:  media.Movie,
		URL:   href,
	}
	if strings.Contains(href, "/tv/") {
		item.Type = media.TV
	}
	if !strings.HasPrefix(href, "http") {
		item.URL = strings.TrimRight(base, "/") + href
	}

	img := s.Find(".film-poster-img").First()
	item.Image = img.AttrOr("data-src", "")
	if item.Image == "" {
		item.Image = img.AttrOr("src", "")
	}

	s.Find(".fdi-item").Each(func(_ int, fdi *goquery.Selection) {
		text := strings.TrimSpace(fdi.Text())
		switch {
		case yearPattern.MatchString(text):
			item.Year = text
		case durationPattern.MatchString(text):
			item.Duration = text
		case qualityPattern.MatchString(text):
			item.Quality = text
		}
	})

	return item, true
}

// parseTotalPages returns the largest page number in the pagination links,
// and at least current.
func parseTotalPages(doc *goquery.Document, current int) int {
	total := current
	doc.Find(".pagination a").Each(func(_ int, a *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > total {
			total = n
		}
	})
	return total
}

// parseTrending reads both trending panels of the home page, movies first.
func parseTrending(doc *goquery.Document, base string) []media.MediaItem {
	return parseCards(doc.Find("#trending-movies .flw-item, #trending-tv .flw-item"), base)
}

func parseSeasons(doc *goquery.Document) []media.Season {
	seasons := []media.Season{}
	doc.Find(".dropdown-item").Each(func(i int, s *goquery.Selection) {
		id := strings.TrimSpace(s.AttrOr("data-id", ""))
		if id == "" {
			return
		}
		title := strings.TrimSpace(s.Text())
		num, err := strconv.Atoi(nonDigits.ReplaceAllString(title, ""))
		if err != nil || num == 0 {
			num = i + 1
		}
		seasons = append(seasons, media.Season{ID: id, Number: num, Title: title})
	})
	return seasons
}

func parseEpisodes(doc *goquery.Document) []media.Episode {
	episodes := []media.Episode{}
	doc.Find(".eps-item").Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(s.AttrOr("data-id", ""))
		if id == "" {
			return
		}
		title := strings.TrimSpace(s.Find("strong").Text())
		if title == "" {
			title = strings.TrimSpace(s.AttrOr("title", ""))
		}
		num, err := strconv.Atoi(nonDigits.ReplaceAllString(s.Find(".episode-number").Text(), ""))
		if err != nil || num == 0 {
			num = len(episodes) + 1
		}
		episodes = append(episodes, media.Episode{ID: id, Number: num, Title: title})
	})
	return episodes
}

// parseEpisodeServers reads servers keyed by data-id. Titles look like
// "Server Vidcloud".
func parseEpisodeServers(doc *goquery.Document) []media.ServerInfo {
	servers := []media.ServerInfo{}
	doc.Find("a.link-item").Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(s.AttrOr("data-id", ""))
		if id == "" {
			return
		}
		servers = append(servers, media.ServerInfo{ID: id, Name: serverName(s)})
	})
	return servers
}

// parseMovieServers reads servers whose id is the suffix of the watch link,
// e.g. /watch-movie/watch-dune-98765.10766 -> 10766.
func parseMovieServers(doc *goquery.Document) []media.ServerInfo {
	servers := []media.ServerInfo{}
	doc.Find("a.link-item").Each(func(_ int, s *goquery.Selection) {
		m := serverIDPattern.FindStringSubmatch(strings.TrimSpace(s.AttrOr("href", "")))
		if m == nil {
			return
		}
		servers = append(servers, media.ServerInfo{ID: m[1], Name: serverName(s)})
	})
	return servers
}

func serverName(s *goquery.Selection) string {
	name := strings.TrimSpace(serverPrefix.ReplaceAllString(s.AttrOr("title", ""), ""))
	if name == "" {
		name = strings.TrimSpace(s.Find("span").Text())
	}
	return name
}

// extractNumericID extracts the trailing numeric ID from a path.
// e.g., "/movie/watch-the-exorcist-75043" -> "75043"
func extractNumericID(path string) string {
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path = path[:idx]
	}
	if m := trailingIDPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return ""
}

// FormatDisplayTitle creates a one-line label for a listing entry.
func FormatDisplayTitle(item media.MediaItem) string {
	parts := []string{item.Title}
	if item.Year != "" {
		parts = append(parts, fmt.Sprintf("(%s)", item.Year))
	}
	if item.Type == media.TV {
		parts = append(parts, "[TV]")
	} else {
		parts = append(parts, "[Movie]")
	}
	return strings.Join(parts, " ")
}
