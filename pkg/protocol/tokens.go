package protocol

// Sigil starts every command line.
const Sigil = "/"

// Client commands.
const (
	CmdAuth       = "/auth"
	CmdRegister   = "/register"
	CmdExit       = "/exit"
	CmdWhisper    = "/w"
	CmdKick       = "/kick"
	CmdBan        = "/ban"
	CmdShutdown   = "/shutdown"
	CmdActiveList = "/activelist"
	CmdChangeNick = "/changenick"
)

// Server replies.
const (
	ReplyExitOK = "/exitok"
	ReplyAuthOK = "/authok"
	ReplyRegOK  = "/regok"
)
