package chat

// CommandInvocation is a slash-command delivered by the platform event stream.
type CommandInvocation struct {
	Name      string
	PlayerID  string
	ChannelID string
	// Options holds the typed parameters by option name. Values are the
	// platform's string renderings; numeric options parse at the handler.
	Options map[string]string
}

// PinChange notifies that a channel's pinned documents changed.
type PinChange struct {
	ChannelID   string
	ChannelName string
}

// Message is a plain chat message, used for the text-command fallback path.
type Message struct {
	PlayerID  string
	ChannelID string
	Content   string
	FromBot   bool
}
