package telegram

import (
	"html"
	"strconv"
	"strings"

	kit "trellobot/internal/transport"
)

const textLimit = 4000

// renderHTML renders a Message for ParseMode HTML.
//
//	<b>Title</b>
//
//	<b>CARD</b>: name          inline fields share a line
//	<b>DESCRIPTION</b>
//	long text
//
//	<i>footer · 02 Jan 2024 15:04 UTC</i>
func renderHTML(m kit.Message) string {
	var b strings.Builder
	if m.Title != "" {
		title := "<b>" + renderInline(m.Title, "u") + "</b>"
		if m.URL != "" {
			title = `<a href="` + html.EscapeString(m.URL) + `">` + title + "</a>"
		}
		b.WriteString(title)
		b.WriteString("\n")
	}
	if len(m.Fields) > 0 {
		b.WriteString("\n")
	}
	for _, f := range m.Fields {
		name := "<b>" + html.EscapeString(f.Name) + "</b>"
		value := renderInline(f.Value, "b")
		if f.Inline || !strings.Contains(f.Value, "\n") && len(f.Value) <= 80 {
			b.WriteString(name + ": " + value + "\n")
			continue
		}
		b.WriteString(name + "\n" + value + "\n")
	}
	var foot []string
	if m.Footer != "" {
		foot = append(foot, html.EscapeString(m.Footer))
	}
	if !m.Timestamp.IsZero() {
		foot = append(foot, m.Timestamp.UTC().Format("02 Jan 2006 15:04 UTC"))
	}
	if len(foot) > 0 {
		b.WriteString("\n<i>" + strings.Join(foot, " · ") + "</i>")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderInline converts inline markup; emphasis uses the given tag.
func renderInline(s, emTag string) string {
	var b strings.Builder
	for _, sp := range kit.ParseInline(s) {
		text := html.EscapeString(sp.Text)
		switch {
		case sp.Mention != "":
			b.WriteString(renderMention(sp))
		case sp.URL != "":
			b.WriteString(`<a href="` + html.EscapeString(sp.URL) + `">` + text + "</a>")
		case sp.Emphasis:
			b.WriteString("<" + emTag + ">" + text + "</" + emTag + ">")
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}

// renderMention: "@handle" mentions natively, numeric ids link to the user.
func renderMention(sp kit.Span) string {
	id := sp.Mention
	if strings.HasPrefix(id, "@") {
		return html.EscapeString(id)
	}
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return `<a href="tg://user?id=` + id + `">` + html.EscapeString(sp.Text) + "</a>"
	}
	return html.EscapeString(sp.Text)
}

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries and never cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
