package dialogue

import "strings"

// Command is a recognized bot command.
type Command int

// Supported commands. CommandNone marks free text.
const (
	CommandNone Command = iota
	CommandUnknown
	CommandHelp
	CommandCancel
	CommandLinkChannel
	CommandUnlinkChannel
	CommandListChannels
	CommandLinkFeed
	CommandUnlinkFeed
)

// CommandInfo describes a command for the client's command menu.
type CommandInfo struct {
	Name        string
	Description string
}

// Commands lists the commands advertised to users, in menu order.
var Commands = []CommandInfo{
	{Name: "help", Description: "Show the available commands"},
	{Name: "cancel", Description: "Abort the current operation"},
	{Name: "linkchannel", Description: "Link a channel you administer"},
	{Name: "unlinkchannel", Description: "Unlink a channel and all its feeds"},
	{Name: "listchannels", Description: "List your linked channels"},
	{Name: "linkfeed", Description: "Mirror a feed into one of your channels"},
	{Name: "unlinkfeed", Description: "Stop mirroring a feed into a channel"},
}

var commandNames = map[string]Command{
	"start":           CommandHelp,
	"help":            CommandHelp,
	"cancel":          CommandCancel,
	"linkchannel":     CommandLinkChannel,
	"unlinkchannel":   CommandUnlinkChannel,
	"listchannels":    CommandListChannels,
	"linkfeed":        CommandLinkFeed,
	"unlinkfeed":      CommandUnlinkFeed,
	"linksubreddit":   CommandLinkFeed,
	"unlinksubreddit": CommandUnlinkFeed,
}

// ParseCommand maps a command name, without the leading slash or bot
// mention, to a Command. Unrecognized names yield CommandUnknown.
func ParseCommand(name string) Command {
	if c, ok := commandNames[strings.ToLower(name)]; ok {
		return c
	}
	return CommandUnknown
}

// ChatKind is the type of a Telegram chat.
type ChatKind string

// Chat kinds reported by Telegram.
const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// ForwardOrigin describes the chat a forwarded message originally came from.
type ForwardOrigin struct {
	ChatID     int64
	Kind       ChatKind
	Title      string
	Username   string
	InviteLink string
}

// Event is an inbound message from a user.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Command   Command
	Text      string
	Forward   *ForwardOrigin
}
