package proto

import (
	"fmt"
	"sort"
	"strings"
)

// Parse splits a raw line into a Frame.
func Parse(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Frame{}, fmt.Errorf("%w: empty line", ErrMalformedFrame)
	}

	var f Frame
	rest := line

	if strings.HasPrefix(rest, "@") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return Frame{}, fmt.Errorf("%w: tags without command", ErrMalformedFrame)
		}
		f.tags = parseTags(rest[1:sp])
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	if strings.HasPrefix(rest, ":") {
		sp := strings.IndexByte(rest, ' ')
		if sp < 0 {
			return Frame{}, fmt.Errorf("%w: prefix without command", ErrMalformedFrame)
		}
		f.prefix = rest[1:sp]
		rest = strings.TrimLeft(rest[sp+1:], " ")
	}

	cmd, rest, _ := strings.Cut(rest, " ")
	if cmd == "" || strings.HasPrefix(cmd, ":") {
		return Frame{}, fmt.Errorf("%w: missing command", ErrMalformedFrame)
	}
	f.command = cmd

	for rest != "" {
		if rest[0] == ' ' {
			rest = rest[1:]
			continue
		}
		if rest[0] == ':' {
			f.params = append(f.params, rest[1:])
			break
		}
		var p string
		p, rest, _ = strings.Cut(rest, " ")
		f.params = append(f.params, p)
	}

	return f, nil
}

// Encode renders a command with params and optional tags as a single line
// without terminator.
func Encode(command string, params []string, tags map[string]string) (string, error) {
	if command == "" || strings.ContainsAny(command, " \r\n:") {
		return "", fmt.Errorf("%w: command %q", ErrInvalidParameter, command)
	}

	var b strings.Builder
	if len(tags) > 0 {
		keys := make([]string, 0, len(tags))
		for k := range tags {
			if k == "" || strings.ContainsAny(k, " ;=\r\n") {
				return "", fmt.Errorf("%w: tag key %q", ErrInvalidParameter, k)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('@')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(k)
			if v := tags[k]; v != "" {
				b.WriteByte('=')
				b.WriteString(escapeTag(v))
			}
		}
		b.WriteByte(' ')
	}

	b.WriteString(command)
	for i, p := range params {
		if strings.ContainsAny(p, "\r\n") {
			return "", fmt.Errorf("%w: line terminator in param %d", ErrInvalidParameter, i)
		}
		last := i == len(params)-1
		needsTrailing := p == "" || strings.Contains(p, " ") || strings.HasPrefix(p, ":")
		b.WriteByte(' ')
		if needsTrailing {
			if !last {
				return "", fmt.Errorf("%w: middle param %d %q", ErrInvalidParameter, i, p)
			}
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String(), nil
}

func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, kv := range strings.Split(raw, ";") {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		tags[k] = unescapeTag(v)
	}
	return tags
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\:`,
	" ", `\s`,
	"\r", `\r`,
	"\n", `\n`,
)

func escapeTag(v string) string {
	return tagEscaper.Replace(v)
}

func unescapeTag(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 == len(v) {
			// dangling backslash is dropped
			break
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
