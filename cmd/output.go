package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"topster/internal/media"
	"topster/internal/provider"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700"))
	indexStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD")).Width(4).Align(lipgloss.Right)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"})
	dimStyle    = lipgloss.NewStyle().Faint(true)
	urlStyle    = lipgloss.NewStyle().Underline(true)
)

// printer writes either JSON or a human listing, styled only when w is a
// terminal.
type printer struct {
	w      io.Writer
	json   bool
	styled bool
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &printer{w: w, json: asJSON, styled: styled}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) printJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) header(text string) {
	fmt.Fprintln(p.w, p.style(headerStyle, text))
}

func (p *printer) row(i int, label, id string) {
	idx := fmt.Sprintf("%3d.", i+1)
	fmt.Fprintf(p.w, "%s %s %s\n", p.style(indexStyle, idx), label, p.style(idStyle, "["+id+"]"))
}

func (p *printer) page(title string, page media.SearchPage) error {
	if p.json {
		return p.printJSON(page)
	}
	p.header(title)
	for i, item := range page.Results {
		p.row(i, provider.FormatDisplayTitle(item), item.ID)
	}
	fmt.Fprintln(p.w, p.style(dimStyle, pageFooter(page)))
	return nil
}

func pageFooter(page media.SearchPage) string {
	s := fmt.Sprintf("page %d of %d", page.CurrentPage, page.TotalPages)
	if page.HasNextPage {
		s += fmt.Sprintf(" (next: --page %d)", page.CurrentPage+1)
	}
	return s
}

func (p *printer) seasons(seasons []media.Season) error {
	if p.json {
		return p.printJSON(seasons)
	}
	p.header("Seasons")
	for i, s := range seasons {
		p.row(i, s.Title, s.ID)
	}
	return nil
}

func (p *printer) episodes(episodes []media.Episode) error {
	if p.json {
		return p.printJSON(episodes)
	}
	p.header("Episodes")
	for i, ep := range episodes {
		label := fmt.Sprintf("Episode %d", ep.Number)
		if ep.Title != "" {
			label += ": " + ep.Title
		}
		p.row(i, label, ep.ID)
	}
	return nil
}

func (p *printer) servers(servers []media.ServerInfo) error {
	if p.json {
		return p.printJSON(servers)
	}
	p.header("Servers")
	for i, s := range servers {
		p.row(i, s.Name, s.ID)
	}
	return nil
}

// streamResult is the sources command's output: the resolved streams plus
// the subtitle picked for the configured language.
type streamResult struct {
	Sources  []media.VideoSource `json:"sources"`
	Selected *media.VideoInfo    `json:"selected,omitempty"`
	Subtitle *media.Subtitle     `json:"subtitle,omitempty"`
	SubFile  string              `json:"subtitle_file,omitempty"`
}

func (p *printer) streams(res streamResult) error {
	if p.json {
		return p.printJSON(res)
	}
	for _, src := range res.Sources {
		p.header(src.Provider)
		for i, info := range src.Sources {
			p.row(i, p.style(urlStyle, info.URL), info.Quality)
			fmt.Fprintf(p.w, "     %s %s\n", p.style(dimStyle, "referer"), info.Referer)
			if langs := subtitleLabels(info.Subtitles); langs != "" {
				fmt.Fprintf(p.w, "     %s %s\n", p.style(dimStyle, "subtitles"), langs)
			}
		}
	}
	if res.Selected != nil {
		fmt.Fprintf(p.w, "%s %s %s\n", p.style(headerStyle, "Selected"), res.Selected.Quality, p.style(urlStyle, res.Selected.URL))
	}
	if res.Subtitle != nil {
		fmt.Fprintf(p.w, "%s %s %s\n", p.style(headerStyle, "Subtitle"), res.Subtitle.Label, res.Subtitle.URL)
	}
	if res.SubFile != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.style(dimStyle, "saved to"), res.SubFile)
	}
	return nil
}

func subtitleLabels(subs []media.Subtitle) string {
	labels := make([]string, len(subs))
	for i, s := range subs {
		labels[i] = s.Label
	}
	return strings.Join(labels, ", ")
}
