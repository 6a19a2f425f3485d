package tui

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/blackmichael/postboard/internal/feed"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a6e3a1"))
	viewerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f5c2e7"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7086"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89dceb")).Bold(true)
	linkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Underline(true)
	imageStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#fab387"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f5c2e7"))
	bodyStyle     = lipgloss.NewStyle().PaddingLeft(2)
)

// anchorPattern matches the anchors produced by linkify.Rewrite.
var anchorPattern = regexp.MustCompile(`<a href="[^"]*"[^>]*>([^<]*)</a>`)

const maxImagePreview = 72

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.header() + "\n\n")
	sb.WriteString(m.body())
	sb.WriteString("\n" + m.footer() + "\n")

	if m.notice != "" {
		sb.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	if err := m.errorLine(); err != "" {
		sb.WriteString(errorStyle.Render(err) + "\n")
	}

	sb.WriteString("\n" + m.help.View(m.keys))
	return sb.String()
}

func (m Model) header() string {
	title := titleStyle.Render("Postboard")
	return title + "  " + viewerStyle.Render(viewerLabel(m.state.Viewer))
}

func viewerLabel(v feed.Viewer) string {
	switch {
	case !v.Authenticated:
		return "Not signed in"
	case v.Identity == nil:
		return "Signed in"
	default:
		return "Signed in as " + v.Identity.DisplayName
	}
}

func (m Model) body() string {
	records := m.state.Page.Records
	if len(records) == 0 {
		switch m.state.Status {
		case feed.StatusIdle, feed.StatusLoading:
			return m.spinner.View() + " Loading posts...\n"
		case feed.StatusError:
			return ""
		default:
			return metaStyle.Render("No posts yet.") + "\n"
		}
	}

	var sb strings.Builder
	for i, p := range records {
		sb.WriteString(renderPost(p, postView{
			selected: i == m.cursor,
			expanded: m.state.ImageExpanded(p.ID),
			owned:    ownsPost(m.state.Viewer, p.Post),
			width:    m.width,
		}))
		sb.WriteString("\n")
	}
	return sb.String()
}

type postView struct {
	selected bool
	expanded bool
	owned    bool
	width    int
}

func renderPost(p feed.EnrichedPost, v postView) string {
	var sb strings.Builder

	author := shortID(p.Creator)
	if v.owned {
		author = "You"
	}
	meta := []string{author, p.DateDiff + " ago"}
	if p.Edited {
		meta = append(meta, "edited")
	}

	cursor := "  "
	line := strings.Join(meta, " · ")
	if v.selected {
		cursor = "> "
		line = selectedStyle.Render(line)
	} else {
		line = metaStyle.Render(line)
	}
	sb.WriteString(cursor + line + "\n")

	if text := terminalText(p.DisplayContent); text != "" {
		style := bodyStyle
		if v.width > 4 {
			style = style.Width(v.width - 2)
		}
		sb.WriteString(style.Render(text) + "\n")
	}

	if p.ImageURL != "" {
		sb.WriteString(bodyStyle.Render(imageLine(p, v)) + "\n")
	}
	return sb.String()
}

func imageLine(p feed.EnrichedPost, v postView) string {
	label := fmt.Sprintf("[%s, %s]", printable(p.Image.MimeType), humanize.Bytes(uint64(len(p.Image.Binary))))
	if !v.expanded {
		return imageStyle.Render(label) + metaStyle.Render(" press i to show")
	}

	limit := maxImagePreview
	if v.width > 8 && v.width-4 < limit {
		limit = v.width - 4
	}
	preview := printable(p.ImageURL)
	if len(preview) > limit {
		preview = preview[:limit] + "..."
	}
	return imageStyle.Render(label) + "\n" + metaStyle.Render(preview)
}

var unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&#34;", `"`)

// terminalText turns linkified content back into plain text, with links
// styled instead of wrapped in markup.
func terminalText(displayContent string) string {
	var sb strings.Builder
	last := 0
	for _, m := range anchorPattern.FindAllStringSubmatchIndex(displayContent, -1) {
		sb.WriteString(plainText(displayContent[last:m[0]]))
		sb.WriteString(linkStyle.Render(plainText(displayContent[m[2]:m[3]])))
		last = m[1]
	}
	sb.WriteString(plainText(displayContent[last:]))
	return sb.String()
}

func plainText(escaped string) string {
	return printable(unescaper.Replace(escaped))
}

// printable drops control characters other than newline and tab, so post
// content cannot send escape sequences to the terminal.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m Model) footer() string {
	req := m.state.Request
	pages := pageCount(m.state.Page.TotalCount, req.PageSize)
	line := metaStyle.Render(fmt.Sprintf("Page %d of %d · %d per page · %s",
		req.PageIndex, pages, req.PageSize, pluralPosts(m.state.Page.TotalCount)))

	if m.state.Loading {
		line += " " + m.spinner.View()
	}
	return line
}

func pluralPosts(n int) string {
	if n == 1 {
		return "1 post"
	}
	return humanize.Comma(int64(n)) + " posts"
}

func (m Model) errorLine() string {
	if m.err != nil {
		return m.err.Error()
	}
	if m.state.Err == nil {
		return ""
	}
	if m.state.Status == feed.StatusError {
		return "Could not load posts: " + m.state.Err.Error()
	}
	return m.state.Err.Error()
}
