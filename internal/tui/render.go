package tui

import (
	"net/url"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-shiori/dom"
	readability "github.com/go-shiori/go-readability"
	"github.com/lotas/sensiblelive/internal/view"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var strictPolicy = bluemonday.StrictPolicy()

// cleanNotice strips markup from server-provided text before it is shown.
func cleanNotice(s string) string {
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// renderBody turns the live document into terminal text. Song pages go
// through readability and glamour; everything else is rendered block by block
// so that listing rows stay on separate lines.
func renderBody(p *view.Page, base *url.URL, width int) string {
	if _, ok := p.Route().SongID(); ok {
		if md := readableMarkdown(p, base); md != "" {
			return renderMarkdown(md, width)
		}
	}
	body := dom.QuerySelector(p.Document().Root(), "body")
	if body == nil {
		return ""
	}
	var lines []string
	var cur strings.Builder
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Audio, atom.Video:
				return
			case atom.Input:
				if v := dom.GetAttribute(n, "value"); v != "" && dom.GetAttribute(n, "type") != "hidden" {
					cur.WriteString("[" + v + "] ")
				}
				return
			}
		}
		block := n.Type == html.ElementNode && isBlock(n.DataAtom)
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(body)
	flush()
	return strings.Join(lines, "\n")
}

// readableMarkdown extracts the main content of a song page as markdown: the
// title as a heading, then one paragraph per text line.
func readableMarkdown(p *view.Page, base *url.URL) string {
	var pageURL *url.URL
	if base != nil {
		pageURL = base.ResolveReference(&url.URL{Path: p.Route().Path})
	}
	article, err := readability.FromReader(strings.NewReader(p.Document().HTML()), pageURL)
	if err != nil {
		return ""
	}
	var paras []string
	for _, line := range strings.Split(article.TextContent, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paras = append(paras, line)
		}
	}
	if len(paras) == 0 {
		return ""
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = p.Title()
	}
	if title != "" && title != paras[0] {
		paras = append([]string{"# " + title}, paras...)
	} else if title != "" {
		paras[0] = "# " + title
	}
	return strings.Join(paras, "\n\n")
}

func renderMarkdown(md string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return md
	}
	rendered, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(rendered, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2, atom.H3, atom.H4,
		atom.H5, atom.H6, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.Nav, atom.Main, atom.Table, atom.Ul, atom.Ol, atom.Form, atom.Br,
		atom.Figure, atom.Blockquote, atom.Pre, atom.Progress:
		return true
	}
	return false
}

var (
	activeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// renderTopBar shows the title and location on the left and the connection
// and progress state on the right.
func renderTopBar(title, location string, connected, busy, pending bool, width int) string {
	left := " " + activeStyle.Render(title) + "  " + countStyle.Render(location)

	var status []string
	if busy {
		status = append(status, activeStyle.Render("working"))
	}
	if pending {
		status = append(status, countStyle.Render("refreshing"))
	}
	if connected {
		status = append(status, "● live")
	} else {
		status = append(status, inactiveStyle.Render("○ offline"))
	}
	right := strings.Join(status, inactiveStyle.Render(" · "))

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right + " "
}

// renderLinks lists the document's links with the cursor marked, scrolled so
// the cursor stays visible.
func renderLinks(links []view.Link, cursor, height int) string {
	if len(links) == 0 {
		return inactiveStyle.Render("no links")
	}
	start := 0
	if height > 0 && cursor >= height {
		start = cursor - height + 1
	}
	var b strings.Builder
	for i := start; i < len(links) && (height <= 0 || i < start+height); i++ {
		text := links[i].Text
		if text == "" {
			text = links[i].Href
		}
		if i == cursor {
			b.WriteString(cursorStyle.Render("> " + text))
		} else {
			b.WriteString("  " + text)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
