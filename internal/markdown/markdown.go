// Package markdown flattens the inline markdown agents emit into plain text
// for output that cannot style it.
package markdown

import "strings"

// Flatten renders one line of agent markdown as plain text. Headings lose their
// hashes, "*" bullets become "-", emphasis and code markers are dropped and
// links become "text (url)". Unbalanced markers are kept literally.
func Flatten(line string) string {
	indent := len(line) - len(strings.TrimLeft(line, " \t"))
	body := line[indent:]
	if rest, ok := cutHeading(body); ok {
		body = rest
	} else if rest, ok := strings.CutPrefix(body, "* "); ok {
		body = "- " + rest
	}
	return line[:indent] + flattenInline(body)
}

func cutHeading(body string) (string, bool) {
	level := 0
	for level < len(body) && level < 6 && body[level] == '#' {
		level++
	}
	if level == 0 || level >= len(body) || body[level] != ' ' {
		return "", false
	}
	return strings.TrimSpace(body[level+1:]), true
}

func flattenInline(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case c == '`':
			if end := strings.IndexByte(s[i+1:], '`'); end >= 0 {
				b.WriteString(s[i+1 : i+1+end])
				i += end + 2
				continue
			}
			b.WriteByte(c)
			i++
		case c == '*' || c == '_':
			marker := s[i : i+1]
			if strings.HasPrefix(s[i:], marker+marker) {
				marker += marker
			}
			end := strings.Index(s[i+len(marker):], marker)
			if end <= 0 || (c == '_' && !wordBoundary(s, i)) {
				b.WriteString(marker)
				i += len(marker)
				continue
			}
			b.WriteString(flattenInline(s[i+len(marker) : i+len(marker)+end]))
			i += end + 2*len(marker)
		case c == '[':
			text, url, n, ok := cutLink(s[i:])
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			b.WriteString(flattenInline(text))
			if url != "" && url != text {
				b.WriteString(" (" + url + ")")
			}
			i += n
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// wordBoundary keeps snake_case identifiers intact.
func wordBoundary(s string, i int) bool {
	if i == 0 {
		return true
	}
	prev := s[i-1]
	return !(prev >= 'a' && prev <= 'z' || prev >= 'A' && prev <= 'Z' || prev >= '0' && prev <= '9')
}

// cutLink parses "[text](url)" at the start of s.
func cutLink(s string) (text, url string, n int, ok bool) {
	closeText := strings.Index(s, "](")
	if closeText < 1 {
		return "", "", 0, false
	}
	closeURL := strings.IndexByte(s[closeText+2:], ')')
	if closeURL < 0 {
		return "", "", 0, false
	}
	text = s[1:closeText]
	url = s[closeText+2 : closeText+2+closeURL]
	return text, url, closeText + 3 + closeURL, true
}
