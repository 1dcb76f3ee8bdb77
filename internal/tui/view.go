package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/synfeed/internal/feed"
	"github.com/pders01/synfeed/internal/model"
)

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Logo.Render(CompactLogo))
	b.WriteString("\n\n")
	b.WriteString(m.renderStrip())
	b.WriteString("\n")
	b.WriteString(m.renderComposer())
	b.WriteString("\n\n")

	if m.shimmer {
		b.WriteString(m.renderShimmer())
	} else {
		for slot := range m.posts {
			b.WriteString(m.renderRow(slot))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Status[m.statusKind].Render(m.status))
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render(MsgHelp))
	return b.String()
}

func (m *Model) renderStrip() string {
	labels := make([]string, 0, len(m.strip.Stories))
	for _, s := range m.strip.Stories {
		label := truncateEnd(s.Label, 14)
		if s.Story.Placeholder {
			label = m.styles.Header.Render("+ " + label)
		} else {
			label = m.styles.Author.Render(label)
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, m.styles.Muted.Render("  ·  "))
}

func (m *Model) renderComposer() string {
	if !m.composer.HasViewer {
		return m.styles.Muted.Render("Sign in to share something")
	}
	return m.styles.Muted.Render(fmt.Sprintf("What's on your mind, %s?", m.composer.Viewer.DisplayName()))
}

func (m *Model) renderShimmer() string {
	n := m.app.Config.Feed.ShimmerItems
	if n <= 0 {
		n = 1
	}
	w := max(m.width-8, 10)
	var rows []string
	for i := 0; i < n; i++ {
		bar := strings.Repeat("░", w-(i%3)*4)
		rows = append(rows, m.styles.Row.Render(m.spinner.View()+" "+m.styles.Shimmer.Render(bar)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *Model) renderRow(slot int) string {
	post := m.posts[slot]
	it, bound := m.items[slot]

	var header string
	if bound {
		header = m.styles.Author.Render(it.Author.DisplayName())
		if badge := it.Author.Badge(); badge != "" {
			header += " " + m.styles.Badge.Render(badge)
		}
		if it.Age != "" {
			header += " " + m.styles.Time.Render(it.Age)
		}
	} else {
		header = m.spinner.View() + " " + m.styles.Muted.Render("loading…")
	}

	body := m.renderText(post)
	if post.Type == model.PostTypeImage && post.ImageURL != "" {
		body += "\n" + m.styles.Muted.Render("[image] "+post.ImageURL)
	}

	footer := ""
	if bound {
		footer = m.renderCounts(it)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	style := m.styles.Row
	if slot == m.cursor {
		style = m.styles.Selected
	}
	return style.Width(max(m.width-4, 20)).Render(content)
}

func (m *Model) renderCounts(it feed.PostItem) string {
	likes, comments := " "+it.Likes, " "+it.Comments
	if it.Post.Flags.HideLikeCount {
		likes = ""
	}
	if it.Post.Flags.HideCommentsCount {
		comments = ""
	}
	like := m.styles.Muted.Render("♡" + likes)
	if it.Liked {
		like = m.styles.Liked.Render("♥" + likes)
	}
	parts := []string{like}
	if !it.Post.Flags.DisableComments {
		parts = append(parts, m.styles.Muted.Render("✎"+comments))
	}
	if it.Favorited {
		parts = append(parts, m.styles.Favorited.Render("★ saved"))
	} else if !it.Post.Flags.DisableFavorite {
		parts = append(parts, m.styles.Muted.Render("☆"))
	}
	if it.CountsErr != nil {
		parts = append(parts, m.styles.Status[StatusWarn].Render("counts unavailable"))
	}
	return strings.Join(parts, "   ")
}

// renderText renders the post body as markdown, falling back to plain text.
func (m *Model) renderText(p model.Post) string {
	wrap := m.app.Config.UI.WordWrap
	if w := m.width - 8; w > 20 && (wrap <= 0 || w < wrap) {
		wrap = w
	}
	if m.renderer == nil || m.rendererWidth != wrap {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap))
		if err != nil {
			return p.Text
		}
		m.renderer = r
		m.rendererWidth = wrap
		m.rendered = make(map[string]string)
	}
	if out, ok := m.rendered[p.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(p.Text)
	if err != nil {
		return p.Text
	}
	out = strings.Trim(out, "\n")
	m.rendered[p.ID] = out
	return out
}
