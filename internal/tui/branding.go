package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/synfeed/internal/config"
)

const AppName = "synfeed"

const CompactLogo = "synfeed ›"

var LogoLines = []string{
	"▄▀▀ ▀▄▀ █▄ █ █▀▀ █▀▀ █▀▀ █▀▄",
	" ▀▄  █  █ ▀█ █▀  █▀  █▀  █ █",
	"▄▄▀  █  █  █ █   █▄▄ █▄▄ █▄▀",
}

// Styles holds every style the feed view draws with. They are derived from
// the configured palette.
type Styles struct {
	Logo      lipgloss.Style
	Header    lipgloss.Style
	Author    lipgloss.Style
	Badge     lipgloss.Style
	Time      lipgloss.Style
	Muted     lipgloss.Style
	Help      lipgloss.Style
	Liked     lipgloss.Style
	Favorited lipgloss.Style
	Selected  lipgloss.Style
	Row       lipgloss.Style
	Shimmer   lipgloss.Style
	Status    map[StatusKind]lipgloss.Style
}

func NewStyles(c config.UIColors) Styles {
	primary := lipgloss.Color(c.Primary)
	secondary := lipgloss.Color(c.Secondary)
	accent := lipgloss.Color(c.Accent)
	text := lipgloss.Color(c.Text)
	muted := lipgloss.Color(c.Muted)
	errColor := lipgloss.Color(c.Error)
	success := lipgloss.Color(c.Success)

	return Styles{
		Logo:      lipgloss.NewStyle().Foreground(primary).Bold(true),
		Header:    lipgloss.NewStyle().Foreground(secondary).Bold(true),
		Author:    lipgloss.NewStyle().Foreground(text).Bold(true),
		Badge:     lipgloss.NewStyle().Foreground(accent).Italic(true),
		Time:      lipgloss.NewStyle().Foreground(muted).Faint(true),
		Muted:     lipgloss.NewStyle().Foreground(muted),
		Help:      lipgloss.NewStyle().Foreground(muted).Italic(true),
		Liked:     lipgloss.NewStyle().Foreground(primary).Bold(true),
		Favorited: lipgloss.NewStyle().Foreground(accent).Bold(true),
		Selected: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Row: lipgloss.NewStyle().
			Border(lipgloss.HiddenBorder()).
			Padding(0, 1),
		Shimmer: lipgloss.NewStyle().Foreground(muted).Faint(true),
		Status: map[StatusKind]lipgloss.Style{
			StatusInfo:    lipgloss.NewStyle().Foreground(muted),
			StatusSuccess: lipgloss.NewStyle().Foreground(success),
			StatusWarn:    lipgloss.NewStyle().Foreground(accent),
			StatusError:   lipgloss.NewStyle().Foreground(errColor).Bold(true),
		},
	}
}

// ShowBanner prints the startup banner to w.
func ShowBanner(w io.Writer, version string, c config.UIColors) {
	colors := []lipgloss.Color{
		lipgloss.Color(c.Primary),
		lipgloss.Color(c.Accent),
		lipgloss.Color(c.Secondary),
	}
	lines := make([]string, 0, len(LogoLines)+2)
	for i, line := range LogoLines {
		lines = append(lines, lipgloss.NewStyle().Foreground(colors[i%len(colors)]).Bold(true).Render(line))
	}
	tagline := "social feed"
	if version != "" && version != "dev" {
		if version[0] != 'v' {
			version = "v" + version
		}
		tagline += " " + version
	}
	lines = append(lines, "", lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted)).Render(tagline))

	banner := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color(c.Secondary)).
		Padding(1, 3).
		Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
	fmt.Fprintln(w, banner)
}
