// Package command classifies incoming chat lines into structured commands.
//
// Every line a client sends is either plain chat or a slash command. Parse
// returns exactly one of the variants below; callers switch on the concrete
// type:
//
//	switch c := command.Parse(line).(type) {
//	case command.PlainMessage:
//	case command.DirectMessage:
//	...
//	}
package command

import (
	"regexp"
	"strings"

	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// Command is a parsed client line. The set of implementations is closed.
type Command interface {
	isCommand()
}

// PlainMessage is any line that does not start with the command sigil.
type PlainMessage struct {
	Text string
}

// DirectMessage is "/w <target> <body>".
type DirectMessage struct {
	Target string
	Body   string
}

// Kick is "/kick <target>".
type Kick struct {
	Target string
}

// Ban is "/ban <target>".
type Ban struct {
	Target string
}

// ChangeNick is "/changenick <name>".
type ChangeNick struct {
	NewName string
}

// ActiveList is "/activelist".
type ActiveList struct{}

// Shutdown is "/shutdown".
type Shutdown struct{}

// Exit is "/exit".
type Exit struct{}

// Auth is "/auth <login> <password>".
type Auth struct {
	Login    string
	Password string
}

// Register is "/register <login> <password> <displayName>".
type Register struct {
	Login       string
	Password    string
	DisplayName string
}

// Malformed is a sigil line that matched no command or failed its
// parameter check. Word is the first word of the line; Reason is meant
// for the sender only.
type Malformed struct {
	Word   string
	Reason string
}

func (PlainMessage) isCommand()  {}
func (DirectMessage) isCommand() {}
func (Kick) isCommand()          {}
func (Ban) isCommand()           {}
func (ChangeNick) isCommand()    {}
func (ActiveList) isCommand()    {}
func (Shutdown) isCommand()      {}
func (Exit) isCommand()          {}
func (Auth) isCommand()          {}
func (Register) isCommand()      {}
func (Malformed) isCommand()     {}

var (
	directMessagePattern = regexp.MustCompile(`^/w\s(\w+)\s(.*)$`)
	kickPattern          = regexp.MustCompile(`^/kick\s(\w+)$`)
	banPattern           = regexp.MustCompile(`^/ban\s(\w+)$`)
	changeNickPattern    = regexp.MustCompile(`^/changenick\s(\w+)$`)
)

// Reasons attached to Malformed results.
const (
	ReasonAuthFormat     = "invalid /auth format, expected: /auth login password"
	ReasonRegisterFormat = "invalid /register format, expected: /register login password displayName"
	ReasonDirectMessage  = "invalid direct message command, expected: /w name text"
	ReasonKick           = "invalid kick command, expected: /kick name"
	ReasonBan            = "invalid ban command, expected: /ban name"
	ReasonChangeNick     = "invalid nickname change command, expected: /changenick name"
	ReasonUnknown        = "unknown command"
)

// rule matches one command word against the full line.
type rule struct {
	word  string
	parse func(line string) Command
}

// rules are tried in order after the exact-match commands.
var rules = []rule{
	{protocol.CmdAuth, parseAuth},
	{protocol.CmdRegister, parseRegister},
	{protocol.CmdWhisper, func(line string) Command {
		m := directMessagePattern.FindStringSubmatch(line)
		if m == nil {
			return Malformed{Word: protocol.CmdWhisper, Reason: ReasonDirectMessage}
		}
		return DirectMessage{Target: m[1], Body: m[2]}
	}},
	{protocol.CmdKick, func(line string) Command {
		m := kickPattern.FindStringSubmatch(line)
		if m == nil {
			return Malformed{Word: protocol.CmdKick, Reason: ReasonKick}
		}
		return Kick{Target: m[1]}
	}},
	{protocol.CmdBan, func(line string) Command {
		m := banPattern.FindStringSubmatch(line)
		if m == nil {
			return Malformed{Word: protocol.CmdBan, Reason: ReasonBan}
		}
		return Ban{Target: m[1]}
	}},
	{protocol.CmdChangeNick, func(line string) Command {
		m := changeNickPattern.FindStringSubmatch(line)
		if m == nil {
			return Malformed{Word: protocol.CmdChangeNick, Reason: ReasonChangeNick}
		}
		return ChangeNick{NewName: m[1]}
	}},
}

// Parse classifies a single line.
func Parse(line string) Command {
	if !strings.HasPrefix(line, protocol.Sigil) {
		return PlainMessage{Text: line}
	}

	switch line {
	case protocol.CmdExit:
		return Exit{}
	case protocol.CmdShutdown:
		return Shutdown{}
	case protocol.CmdActiveList:
		return ActiveList{}
	}

	word := firstWord(line)
	for _, r := range rules {
		if r.word == word {
			return r.parse(line)
		}
	}

	switch word {
	case protocol.CmdExit, protocol.CmdShutdown, protocol.CmdActiveList:
		return Malformed{Word: word, Reason: "invalid " + word + " command, it takes no arguments"}
	}
	return Malformed{Word: word, Reason: ReasonUnknown + ": " + word}
}

func parseAuth(line string) Command {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Malformed{Word: protocol.CmdAuth, Reason: ReasonAuthFormat}
	}
	return Auth{Login: fields[1], Password: fields[2]}
}

func parseRegister(line string) Command {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Malformed{Word: protocol.CmdRegister, Reason: ReasonRegisterFormat}
	}
	return Register{Login: fields[1], Password: fields[2], DisplayName: fields[3]}
}

// firstWord returns the line up to the first whitespace character.
func firstWord(line string) string {
	if i := strings.IndexFunc(line, isSpace); i >= 0 {
		return line[:i]
	}
	return line
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
