package command_test

import (
	"strings"
	"testing"

	"github.com/NicolasHaas/gorelay/pkg/command"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		line string
		want command.Command
	}{
		"plain_text":          {line: "hello world", want: command.PlainMessage{Text: "hello world"}},
		"plain_empty":         {line: "", want: command.PlainMessage{Text: ""}},
		"plain_leading_space": {line: " /exit", want: command.PlainMessage{Text: " /exit"}},
		"exit":                {line: "/exit", want: command.Exit{}},
		"shutdown":            {line: "/shutdown", want: command.Shutdown{}},
		"activelist":          {line: "/activelist", want: command.ActiveList{}},
		"exit_with_argument": {
			line: "/exit now",
			want: command.Malformed{Word: "/exit", Reason: "invalid /exit command, it takes no arguments"},
		},
		"whisper": {
			line: "/w bob how are you?",
			want: command.DirectMessage{Target: "bob", Body: "how are you?"},
		},
		"whisper_empty_body": {
			line: "/w bob ",
			want: command.DirectMessage{Target: "bob", Body: ""},
		},
		"whisper_no_body": {
			line: "/w bob",
			want: command.Malformed{Word: "/w", Reason: command.ReasonDirectMessage},
		},
		"whisper_bad_name": {
			line: "/w b.o.b hi",
			want: command.Malformed{Word: "/w", Reason: command.ReasonDirectMessage},
		},
		"kick":              {line: "/kick mallory", want: command.Kick{Target: "mallory"}},
		"kick_two_names":    {line: "/kick mallory eve", want: command.Malformed{Word: "/kick", Reason: command.ReasonKick}},
		"kick_missing_name": {line: "/kick", want: command.Malformed{Word: "/kick", Reason: command.ReasonKick}},
		"ban":               {line: "/ban mallory", want: command.Ban{Target: "mallory"}},
		"ban_bad_name":      {line: "/ban mal-lory", want: command.Malformed{Word: "/ban", Reason: command.ReasonBan}},
		"changenick":        {line: "/changenick bob_2", want: command.ChangeNick{NewName: "bob_2"}},
		"changenick_spaces": {
			line: "/changenick bob smith",
			want: command.Malformed{Word: "/changenick", Reason: command.ReasonChangeNick},
		},
		"auth":               {line: "/auth cat godmode", want: command.Auth{Login: "cat", Password: "godmode"}},
		"auth_extra_spaces":  {line: "/auth  cat   godmode", want: command.Auth{Login: "cat", Password: "godmode"}},
		"auth_missing_field": {line: "/auth cat", want: command.Malformed{Word: "/auth", Reason: command.ReasonAuthFormat}},
		"register": {
			line: "/register alice secret1 Alice",
			want: command.Register{Login: "alice", Password: "secret1", DisplayName: "Alice"},
		},
		"register_too_many": {
			line: "/register alice secret1 Alice Smith",
			want: command.Malformed{Word: "/register", Reason: command.ReasonRegisterFormat},
		},
		"unknown": {
			line: "/dance",
			want: command.Malformed{Word: "/dance", Reason: "unknown command: /dance"},
		},
		"prefix_is_not_whisper": {
			line: "/whisper bob hi",
			want: command.Malformed{Word: "/whisper", Reason: "unknown command: /whisper"},
		},
		"sigil_only": {
			line: "/",
			want: command.Malformed{Word: "/", Reason: "unknown command: /"},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			got := command.Parse(tc.line)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("command.Parse(%q) mismatch (-want +got):\n%s", tc.line, diff)
			}
		})
	}
}

// Lines without the sigil are never interpreted.
func TestParsePlainMessageProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		line := rapid.String().Filter(func(s string) bool {
			return !strings.HasPrefix(s, "/")
		}).Draw(t, "line")

		got, ok := command.Parse(line).(command.PlainMessage)
		if !ok {
			t.Fatalf("Parse(%q) did not return PlainMessage", line)
		}
		if got.Text != line {
			t.Fatalf("Parse(%q) changed text to %q", line, got.Text)
		}
	})
}

// Every sigil line yields a command, and rejections always name the word the sender typed.
func TestParseMalformedNamesWordProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.SampledFrom([]string{"/w", "/kick", "/ban", "/changenick", "/auth", "/register", "/zap"}).Draw(t, "word")
		rest := rapid.StringMatching(`[ a-z0-9.\-]{0,20}`).Draw(t, "rest")
		line := word + rest

		if m, ok := command.Parse(line).(command.Malformed); ok {
			if !strings.HasPrefix(line, m.Word) {
				t.Fatalf("Malformed word %q is not a prefix of %q", m.Word, line)
			}
			if m.Reason == "" {
				t.Fatalf("Malformed for %q has no reason", line)
			}
		}
	})
}

func TestParseWhisperRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z0-9_]{1,16}`).Draw(t, "name")
		body := rapid.StringMatching(`[^\n\r]{0,40}`).Draw(t, "body")

		got := command.Parse("/w " + name + " " + body)
		want := command.DirectMessage{Target: name, Body: body}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("whisper mismatch (-want +got):\n%s", diff)
		}
	})
}
