package proto

import "strings"

// Commands and numeric replies understood by the client.
const (
	CmdPrivmsg         = "PRIVMSG"
	CmdJoin            = "JOIN"
	CmdPart            = "PART"
	CmdPing            = "PING"
	CmdPong            = "PONG"
	CmdNotice          = "NOTICE"
	CmdUserNotice      = "USERNOTICE"
	CmdClearChat       = "CLEARCHAT"
	CmdClearMsg        = "CLEARMSG"
	CmdRoomState       = "ROOMSTATE"
	CmdUserState       = "USERSTATE"
	CmdGlobalUserState = "GLOBALUSERSTATE"
	CmdReconnect       = "RECONNECT"
	CmdWhisper         = "WHISPER"
	CmdCap             = "CAP"
	CmdPass            = "PASS"
	CmdNick            = "NICK"

	RplWelcome      = "001"
	RplNamReply     = "353"
	RplEndOfNames   = "366"
	RplMotd         = "372"
	RplMotdStart    = "375"
	RplEndOfMotd    = "376"
	ErrUnknownCmd   = "421"
	ServerHost      = "tmi.twitch.tv"
	ChannelSigil    = "#"
	AnonymousPrefix = "justinfan"
)

// Capabilities requested right after the transport opens.
const Capabilities = "twitch.tv/tags twitch.tv/commands twitch.tv/membership"

// Tag keys read or written by the client.
const (
	TagID               = "id"
	TagDisplayName      = "display-name"
	TagColor            = "color"
	TagBadges           = "badges"
	TagSentTS           = "tmi-sent-ts"
	TagMsgID            = "msg-id"
	TagTargetMsgID      = "target-msg-id"
	TagLogin            = "login"
	TagBanDuration      = "ban-duration"
	TagRoomID           = "room-id"
	TagClientNonce      = "client-nonce"
	TagReplyParentMsgID = "reply-parent-msg-id"
	TagEmoteOnly        = "emote-only"
	TagFollowersOnly    = "followers-only"
	TagR9K              = "r9k"
	TagSlow             = "slow"
	TagSubsOnly         = "subs-only"
)

// NOTICE msg-id values that refuse a JOIN.
var joinRefusals = map[string]struct{}{
	"msg_channel_suspended": {},
	"msg_banned":            {},
	"tos_ban":               {},
	"msg_room_not_found":    {},
	"invalid_user":          {},
}

// IsJoinRefusal reports whether a NOTICE msg-id means a JOIN was refused.
func IsJoinRefusal(msgID string) bool {
	_, ok := joinRefusals[msgID]
	return ok
}

var authFailures = []string{
	"Login authentication failed",
	"Login unsuccessful",
	"Improperly formatted auth",
	"Invalid NICK",
}

// IsAuthFailure reports whether a NOTICE text rejects the login.
func IsAuthFailure(text string) bool {
	for _, s := range authFailures {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// NormalizeChannel lowercases a room name and enforces the channel sigil.
// Blank names normalize to "".
func NormalizeChannel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimLeft(name, ChannelSigil)
	if name == "" {
		return ""
	}
	return ChannelSigil + name
}
