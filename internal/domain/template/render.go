// Package template implements the placeholder renderer for stored message
// templates. Placeholders use the {{name}} form where name is a letter,
// digit, or underscore identifier.
package template

import "strings"

// Render substitutes {{name}} placeholders in tmpl with values from vars.
// The template is scanned exactly once; substituted values are never
// re-scanned, so payload values containing braces cannot introduce new
// placeholders. Unresolved placeholders are left verbatim.
func Render(tmpl string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		open := strings.Index(tmpl[i:], "{{")
		if open < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		open += i
		b.WriteString(tmpl[i:open])

		name, end, ok := scanPlaceholder(tmpl, open)
		if !ok {
			// Not a well-formed placeholder. Emit a single brace and rescan
			// from the next byte; a valid token may overlap, as in {{{name}}.
			b.WriteByte('{')
			i = open + 1
			continue
		}

		if value, found := vars[name]; found {
			b.WriteString(value)
		} else {
			b.WriteString(tmpl[open:end])
		}
		i = end
	}

	return b.String()
}

// Placeholders returns the distinct placeholder names in tmpl, in order of
// first appearance. Used to validate payloads against template variables.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}

	for i := 0; i < len(tmpl); {
		open := strings.Index(tmpl[i:], "{{")
		if open < 0 {
			break
		}
		open += i

		name, end, ok := scanPlaceholder(tmpl, open)
		if !ok {
			i = open + 1
			continue
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i = end
	}

	return names
}

// scanPlaceholder reads a {{name}} token starting at the "{{" at offset open.
// It returns the identifier, the offset just past the closing "}}", and
// whether the token was well formed.
func scanPlaceholder(tmpl string, open int) (string, int, bool) {
	j := open + 2
	start := j
	for j < len(tmpl) && isIdentChar(tmpl[j]) {
		j++
	}
	if j == start || j+1 >= len(tmpl) || tmpl[j] != '}' || tmpl[j+1] != '}' {
		return "", 0, false
	}
	return tmpl[start:j], j + 2, true
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
