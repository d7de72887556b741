package proto

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedFrame is returned when a line carries no command.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrInvalidParameter is returned when a value cannot be put on the wire.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Frame is one parsed protocol line. A Frame is immutable; accessors hand out copies.
type Frame struct {
	tags    map[string]string
	prefix  string
	command string
	params  []string
}

// NewFrame builds a frame from its parts, copying params and tags.
func NewFrame(prefix, command string, params []string, tags map[string]string) Frame {
	f := Frame{prefix: prefix, command: command}
	if len(params) > 0 {
		f.params = append([]string(nil), params...)
	}
	if len(tags) > 0 {
		f.tags = make(map[string]string, len(tags))
		for k, v := range tags {
			f.tags[k] = v
		}
	}
	return f
}

// Command returns the command or numeric reply code.
func (f Frame) Command() string { return f.command }

// Prefix returns the originating identity, possibly empty.
func (f Frame) Prefix() string { return f.prefix }

// Nick returns the login part of a nick!user@host prefix.
func (f Frame) Nick() string {
	p := f.prefix
	if i := strings.IndexByte(p, '!'); i >= 0 {
		return p[:i]
	}
	if strings.Contains(p, ".") {
		// server prefix
		return ""
	}
	return p
}

// Params returns a copy of the parameters.
func (f Frame) Params() []string {
	if len(f.params) == 0 {
		return nil
	}
	return append([]string(nil), f.params...)
}

// Param returns the i-th parameter or "".
func (f Frame) Param(i int) string {
	if i < 0 || i >= len(f.params) {
		return ""
	}
	return f.params[i]
}

// NumParams returns the number of parameters.
func (f Frame) NumParams() int { return len(f.params) }

// Trailing returns the last parameter or "".
func (f Frame) Trailing() string {
	if len(f.params) == 0 {
		return ""
	}
	return f.params[len(f.params)-1]
}

// Tag returns a tag value and whether it was present.
func (f Frame) Tag(key string) (string, bool) {
	v, ok := f.tags[key]
	return v, ok
}

// Tags returns a copy of the tags, nil when there are none.
func (f Frame) Tags() map[string]string {
	if len(f.tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(f.tags))
	for k, v := range f.tags {
		out[k] = v
	}
	return out
}

// Encode renders the frame, prefix included.
func (f Frame) Encode() (string, error) {
	line, err := Encode(f.command, f.params, f.tags)
	if err != nil || f.prefix == "" {
		return line, err
	}
	if strings.ContainsAny(f.prefix, " \r\n") {
		return "", ErrInvalidParameter
	}
	if strings.HasPrefix(line, "@") {
		i := strings.IndexByte(line, ' ')
		return line[:i+1] + ":" + f.prefix + " " + line[i+1:], nil
	}
	return ":" + f.prefix + " " + line, nil
}

func (f Frame) String() string {
	s, err := f.Encode()
	if err != nil {
		return f.command
	}
	return s
}
