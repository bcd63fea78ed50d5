package transport

import "strings"

// Span is one run of inline text produced by ParseInline.
type Span struct {
	Text     string
	URL      string // non-empty for links
	Emphasis bool
	Mention  string // chat user id or handle for <@id|text>
}

// Mention formats a chat mention of id, shown as text where the chat cannot
// resolve ids. Renderers turn it into their native mention syntax.
func Mention(id, text string) string {
	if text == "" {
		return "<@" + id + ">"
	}
	return "<@" + id + "|" + text + ">"
}

// ParseInline splits s into plain, emphasised (__x__), link ([x](url)) and
// mention (<@id|text>) spans.
// Unterminated markers are kept as literal text.
func ParseInline(s string) []Span {
	var out []Span
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			out = append(out, Span{Text: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "__") {
			if end := strings.Index(s[i+2:], "__"); end > 0 {
				flush()
				out = append(out, Span{Text: s[i+2 : i+2+end], Emphasis: true})
				i += 2 + end + 2
				continue
			}
		}
		if s[i] == '[' {
			if text, url, n, ok := parseLink(s[i:]); ok {
				flush()
				out = append(out, Span{Text: text, URL: url})
				i += n
				continue
			}
		}
		if strings.HasPrefix(s[i:], "<@") {
			if sp, n, ok := parseMention(s[i:]); ok {
				flush()
				out = append(out, sp)
				i += n
				continue
			}
		}
		plain.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

func parseMention(s string) (Span, int, bool) {
	end := strings.IndexByte(s, '>')
	if end <= 2 {
		return Span{}, 0, false
	}
	body := s[2:end]
	id, text, _ := strings.Cut(body, "|")
	if id == "" || strings.ContainsAny(id, " \n<") {
		return Span{}, 0, false
	}
	if text == "" {
		text = id
	}
	return Span{Text: text, Mention: id}, end + 1, true
}

func parseLink(s string) (text, url string, n int, ok bool) {
	closeText := strings.Index(s, "](")
	if closeText <= 0 {
		return "", "", 0, false
	}
	if strings.ContainsAny(s[1:closeText], "[\n") {
		return "", "", 0, false
	}
	rest := s[closeText+2:]
	closeURL := strings.IndexByte(rest, ')')
	if closeURL <= 0 {
		return "", "", 0, false
	}
	url = rest[:closeURL]
	if strings.ContainsAny(url, " \n") {
		return "", "", 0, false
	}
	return s[1:closeText], url, closeText + 2 + closeURL + 1, true
}

// PlainText renders s without markup; links become "text (url)" and
// mentions of handles keep the handle.
func PlainText(s string) string {
	var b strings.Builder
	for _, sp := range ParseInline(s) {
		if strings.HasPrefix(sp.Mention, "@") {
			b.WriteString(sp.Mention)
			continue
		}
		b.WriteString(sp.Text)
		if sp.URL != "" && sp.URL != sp.Text {
			b.WriteString(" (")
			b.WriteString(sp.URL)
			b.WriteString(")")
		}
	}
	return b.String()
}
