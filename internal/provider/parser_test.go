package provider

import (
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"topster/internal/media"
)

const testBase = "https://flixhq.example"

func loadTestDoc(t *testing.T, filename string) *goquery.Document {
	t.Helper()
	data, err := os.ReadFile("testdata/" + filename)
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", filename, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("parsing test fixture %s: %v", filename, err)
	}
	return doc
}

func TestParseCards(t *testing.T) {
	doc := loadTestDoc(t, "search_results.html")
	results := parseCards(doc.Find(".flw-item"), testBase)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// First result: movie
	want := media.MediaItem{
		ID:       "75043",
		Title:    "The Exorcist",
		Type:     media.Movie,
		Year:     "1973",
		Quality:  "HD",
		Duration: "122m",
		Image:    "https://img.example.com/exorcist.jpg",
		URL:      testBase + "/movie/watch-the-exorcist-75043",
	}
	if results[0] != want {
		t.Errorf("result[0] = %+v, want %+v", results[0], want)
	}

	// Second result: TV show, image from src
	if results[1].Type != media.TV {
		t.Errorf("result[1].Type = %v, want TV", results[1].Type)
	}
	if results[1].ID != "39506" {
		t.Errorf("result[1].ID = %q, want '39506'", results[1].ID)
	}
	if results[1].Image != "https://img.example.com/bb.jpg" {
		t.Errorf("result[1].Image = %q", results[1].Image)
	}
	if results[1].Year != "" || results[1].Duration != "" {
		t.Errorf("result[1] should have no year or duration, got %q / %q", results[1].Year, results[1].Duration)
	}

	// Third result: title from .film-name, absolute href kept
	if results[2].Title != "Dune" {
		t.Errorf("result[2].Title = %q, want 'Dune'", results[2].Title)
	}
	if results[2].URL != "https://flixhq.example/movie/watch-dune-2021-66396" {
		t.Errorf("result[2].URL = %q", results[2].URL)
	}
	if results[2].Quality != "CAM" {
		t.Errorf("result[2].Quality = %q, want 'CAM'", results[2].Quality)
	}
}

func TestParseCardsMalicious(t *testing.T) {
	doc := loadTestDoc(t, "search_malicious.html")
	results := parseCards(doc.Find(".flw-item"), testBase)

	// The javascript: link has no numeric ID and is dropped.
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "<script>alert(1)</script>" {
		t.Errorf("result[0].Title = %q, want the literal text", results[0].Title)
	}
	if results[1].Title != "$(rm -rf /); `id`" {
		t.Errorf("result[1].Title = %q", results[1].Title)
	}
	for _, r := range results {
		if !strings.HasPrefix(r.URL, testBase+"/movie/") {
			t.Errorf("unexpected URL %q", r.URL)
		}
	}
}

func TestParseCardsEmpty(t *testing.T) {
	doc := loadTestDoc(t, "search_empty.html")
	results := parseCards(doc.Find(".flw-item"), testBase)
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", results)
	}
}

func TestParseTotalPages(t *testing.T) {
	if got := parseTotalPages(loadTestDoc(t, "search_results.html"), 1); got != 3 {
		t.Errorf("parseTotalPages = %d, want 3", got)
	}
	if got := parseTotalPages(loadTestDoc(t, "search_results.html"), 5); got != 5 {
		t.Errorf("parseTotalPages with current past the links = %d, want 5", got)
	}
	if got := parseTotalPages(loadTestDoc(t, "search_empty.html"), 1); got != 1 {
		t.Errorf("parseTotalPages without pagination = %d, want 1", got)
	}
}

func TestParseTrending(t *testing.T) {
	doc := loadTestDoc(t, "home.html")
	items := parseTrending(doc, testBase)

	if len(items) != 2 {
		t.Fatalf("expected 2 trending items, got %d", len(items))
	}
	if items[0].Title != "Oppenheimer" || items[0].Type != media.Movie || items[0].Year != "2023" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Title != "The Bear" || items[1].Type != media.TV {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestParseSeasons(t *testing.T) {
	doc := loadTestDoc(t, "seasons.html")
	seasons := parseSeasons(doc)

	want := []media.Season{
		{ID: "1001", Number: 1, Title: "Season 1"},
		{ID: "1002", Number: 2, Title: "Season 2"},
		{ID: "1003", Number: 3, Title: "Specials"},
	}
	if len(seasons) != len(want) {
		t.Fatalf("expected %d seasons, got %d", len(want), len(seasons))
	}
	for i := range want {
		if seasons[i] != want[i] {
			t.Errorf("seasons[%d] = %+v, want %+v", i, seasons[i], want[i])
		}
	}
}

func TestParseEpisodes(t *testing.T) {
	doc := loadTestDoc(t, "episodes.html")
	episodes := parseEpisodes(doc)

	want := []media.Episode{
		{ID: "5001", Number: 1, Title: "Pilot"},
		{ID: "5002", Number: 2, Title: "Eps 2: Cat's in the Bag..."},
		{ID: "5003", Number: 3, Title: "...And the Bag's in the River"},
	}
	if len(episodes) != len(want) {
		t.Fatalf("expected %d episodes, got %d", len(want), len(episodes))
	}
	for i := range want {
		if episodes[i] != want[i] {
			t.Errorf("episodes[%d] = %+v, want %+v", i, episodes[i], want[i])
		}
	}
}

func TestParseEpisodeServers(t *testing.T) {
	doc := loadTestDoc(t, "episode_servers.html")
	servers := parseEpisodeServers(doc)

	want := []media.ServerInfo{
		{ID: "9001", Name: "UpCloud"},
		{ID: "9002", Name: "Vidcloud"},
		{ID: "9003", Name: "MegaCloud"},
	}
	if len(servers) != len(want) {
		t.Fatalf("expected %d servers, got %d", len(want), len(servers))
	}
	for i := range want {
		if servers[i] != want[i] {
			t.Errorf("servers[%d] = %+v, want %+v", i, servers[i], want[i])
		}
	}
}

func TestParseMovieServers(t *testing.T) {
	doc := loadTestDoc(t, "movie_servers.html")
	servers := parseMovieServers(doc)

	want := []media.ServerInfo{
		{ID: "10766", Name: "UpCloud"},
		{ID: "10767", Name: "Vidcloud"},
	}
	if len(servers) != len(want) {
		t.Fatalf("expected %d servers, got %d", len(want), len(servers))
	}
	for i := range want {
		if servers[i] != want[i] {
			t.Errorf("servers[%d] = %+v, want %+v", i, servers[i], want[i])
		}
	}
}

func TestExtractNumericID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/movie/watch-the-exorcist-75043", "75043"},
		{"/tv/watch-breaking-bad-39506", "39506"},
		{"/movie/watch-dune-66396?ref=home", "66396"},
		{"/movie/watch-dune-66396#top", "66396"},
		{"/movie/no-id", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := extractNumericID(tt.path); got != tt.want {
				t.Errorf("extractNumericID(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestFormatDisplayTitle(t *testing.T) {
	tests := []struct {
		item media.MediaItem
		want string
	}{
		{media.MediaItem{Title: "The Exorcist", Year: "1973", Type: media.Movie}, "The Exorcist (1973) [Movie]"},
		{media.MediaItem{Title: "Breaking Bad", Type: media.TV}, "Breaking Bad [TV]"},
	}
	for _, tt := range tests {
		if got := FormatDisplayTitle(tt.item); got != tt.want {
			t.Errorf("FormatDisplayTitle() = %q, want %q", got, tt.want)
		}
	}
}

func TestSortServers(t *testing.T) {
	servers := []media.ServerInfo{
		{ID: "1", Name: "UpCloud"},
		{ID: "2", Name: "MegaCloud"},
		{ID: "3", Name: "Vidcloud"},
	}

	got := sortServers(servers, "vidcloud")
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	if strings.Join(ids, ",") != "3,1,2" {
		t.Errorf("sortServers order = %v, want [3 1 2]", ids)
	}
	if servers[0].ID != "1" {
		t.Error("sortServers modified its input")
	}

	got = sortServers(servers, "")
	if got[0].ID != "1" || got[2].ID != "3" {
		t.Errorf("empty preference should keep order, got %+v", got)
	}
}
