package proto

import (
	"errors"
	"reflect"
	"testing"
)

func TestParsePrivmsgWithTags(t *testing.T) {
	line := `@badges=broadcaster/1;color=#1E90FF;display-name=Alice;id=abc-123;tmi-sent-ts=1700000000000 :alice!alice@alice.tmi.twitch.tv PRIVMSG #room :hello there world` + "\r\n"

	f, err := Parse(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Command() != CmdPrivmsg {
		t.Fatalf("unexpected command %q", f.Command())
	}
	if f.Nick() != "alice" {
		t.Fatalf("unexpected nick %q", f.Nick())
	}
	if got := f.Params(); !reflect.DeepEqual(got, []string{"#room", "hello there world"}) {
		t.Fatalf("unexpected params %q", got)
	}
	if v, _ := f.Tag(TagDisplayName); v != "Alice" {
		t.Fatalf("unexpected display-name %q", v)
	}
	if v, _ := f.Tag(TagID); v != "abc-123" {
		t.Fatalf("unexpected id %q", v)
	}
}

func TestParseTrailingKeepsColonsAndSpaces(t *testing.T) {
	f, err := Parse("PRIVMSG #room :  spaced :colon: text ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Trailing() != "  spaced :colon: text " {
		t.Fatalf("unexpected trailing %q", f.Trailing())
	}
}

func TestParseServerPing(t *testing.T) {
	f, err := Parse("PING :tmi.twitch.tv")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Command() != CmdPing || f.Trailing() != ServerHost || f.Prefix() != "" {
		t.Fatalf("unexpected frame %+v", f)
	}
	if f.Nick() != "" {
		t.Fatalf("expected empty nick, got %q", f.Nick())
	}
}

func TestParseUnescapesTags(t *testing.T) {
	f, err := Parse(`@msg=a\sb\:c\\d\ne :tmi.twitch.tv NOTICE #room :x`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, _ := f.Tag("msg"); v != "a b;c\\d\ne" {
		t.Fatalf("unexpected tag value %q", v)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"\r\n",
		"@badges=x",
		"@badges=x :prefix",
		":prefix.only",
		":prefix ",
	}
	for _, line := range cases {
		if _, err := Parse(line); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("line %q: expected ErrMalformedFrame, got %v", line, err)
		}
	}
}

func TestEncodeRejectsLineTerminators(t *testing.T) {
	if _, err := Encode(CmdPrivmsg, []string{"#room", "hi\r\nJOIN #evil"}, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := Encode(CmdPrivmsg, []string{"#ro\nom", "hi"}, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if _, err := Encode(CmdPrivmsg, []string{"two words", "hi"}, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for spaced middle param, got %v", err)
	}
	if _, err := Encode("", nil, nil); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for empty command, got %v", err)
	}
}

func TestEncodeTrailingMarker(t *testing.T) {
	line, err := Encode(CmdPrivmsg, []string{"#room", "hello world"}, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if line != "PRIVMSG #room :hello world" {
		t.Fatalf("unexpected line %q", line)
	}

	line, err = Encode(CmdJoin, []string{"#room"}, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if line != "JOIN #room" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		command string
		params  []string
		tags    map[string]string
	}{
		{name: "bare", command: CmdPing},
		{name: "single", command: CmdJoin, params: []string{"#room"}},
		{name: "trailing with spaces", command: CmdPrivmsg, params: []string{"#room", "hello there  world"}},
		{name: "empty trailing", command: CmdPrivmsg, params: []string{"#room", ""}},
		{name: "colon trailing", command: CmdPrivmsg, params: []string{"#room", ":)"}},
		{name: "numeric", command: RplNamReply, params: []string{"me", "=", "#room", "a b c"}},
		{
			name:    "tags",
			command: CmdPrivmsg,
			params:  []string{"#room", "reply text"},
			tags: map[string]string{
				TagReplyParentMsgID: "abc",
				TagClientNonce:      "n1",
				"escaped":           "semi;colon space\\back\r\nline",
				"flag":              "",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, err := Encode(tc.command, tc.params, tc.tags)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			f, err := Parse(line)
			if err != nil {
				t.Fatalf("parse %q: %v", line, err)
			}
			if f.Command() != tc.command {
				t.Fatalf("command: got %q want %q", f.Command(), tc.command)
			}
			if len(f.Params()) != len(tc.params) || (len(tc.params) > 0 && !reflect.DeepEqual(f.Params(), tc.params)) {
				t.Fatalf("params: got %q want %q", f.Params(), tc.params)
			}
			if len(f.Tags()) != len(tc.tags) || (len(tc.tags) > 0 && !reflect.DeepEqual(f.Tags(), tc.tags)) {
				t.Fatalf("tags: got %q want %q", f.Tags(), tc.tags)
			}
		})
	}
}

func TestFrameEncodeWithPrefix(t *testing.T) {
	f := NewFrame("bob!bob@bob.tmi.twitch.tv", CmdJoin, []string{"#room"}, map[string]string{"a": "1"})
	line, err := f.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if line != "@a=1 :bob!bob@bob.tmi.twitch.tv JOIN #room" {
		t.Fatalf("unexpected line %q", line)
	}
	back, err := Parse(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back.Nick() != "bob" || back.Param(0) != "#room" {
		t.Fatalf("unexpected frame %v", back)
	}
}

func TestFrameIsImmutable(t *testing.T) {
	params := []string{"#room", "hi"}
	tags := map[string]string{"id": "1"}
	f := NewFrame("", CmdPrivmsg, params, tags)

	params[0] = "#other"
	tags["id"] = "2"
	f.Params()[1] = "changed"
	f.Tags()["id"] = "3"

	if f.Param(0) != "#room" || f.Trailing() != "hi" {
		t.Fatalf("params leaked: %q", f.Params())
	}
	if v, _ := f.Tag("id"); v != "1" {
		t.Fatalf("tags leaked: %q", v)
	}
}

func TestNormalizeChannel(t *testing.T) {
	cases := map[string]string{
		"room":     "#room",
		"#room":    "#room",
		" #Room ":  "#room",
		"##room":   "#room",
		"":         "",
		"#":        "",
		"MixedCap": "#mixedcap",
	}
	for in, want := range cases {
		if got := NormalizeChannel(in); got != want {
			t.Fatalf("NormalizeChannel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNoticeClassifiers(t *testing.T) {
	if !IsAuthFailure("Login authentication failed") {
		t.Fatal("expected auth failure")
	}
	if IsAuthFailure("You are permanently banned from talking in room.") {
		t.Fatal("unexpected auth failure")
	}
	if !IsJoinRefusal("msg_channel_suspended") || IsJoinRefusal("msg_slowmode") {
		t.Fatal("unexpected join refusal classification")
	}
}
