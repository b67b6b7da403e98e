package command

import (
	"strings"
	"unicode"
)

// Command is a parsed slash command line.
type Command struct {
	Name string
	Args []string
	Raw  string
	// ends[i] is the byte offset in Raw just past token i (token 0 is the name).
	ends []int
}

// Parse splits a "/name arg ..." line. Double quotes group an argument
// containing spaces; the quotes are dropped from Args.
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeftFunc(input, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	tokens, ends := tokenize(raw)
	if len(tokens) == 0 {
		return Command{Raw: raw}, true
	}
	return Command{
		Name: strings.ToLower(tokens[0]),
		Args: tokens[1:],
		Raw:  raw,
		ends: ends,
	}, true
}

// Tail returns the raw text following the name and the first n args,
// preserving inner spacing and quotes.
func (c Command) Tail(n int) string {
	if n < 0 || n >= len(c.ends) {
		return ""
	}
	return strings.TrimSpace(c.Raw[c.ends[n]:])
}

func tokenize(raw string) ([]string, []int) {
	var (
		tokens  []string
		ends    []int
		current strings.Builder
		inToken bool
		quoted  bool
	)
	flush := func(end int) {
		if !inToken {
			return
		}
		tokens = append(tokens, current.String())
		ends = append(ends, end)
		current.Reset()
		inToken = false
	}
	for i, r := range raw {
		switch {
		case r == '"':
			quoted = !quoted
			inToken = true
		case unicode.IsSpace(r) && !quoted:
			flush(i)
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	flush(len(raw))
	return tokens, ends
}
