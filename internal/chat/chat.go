// Package chat models the chat-platform collaborators the engine depends on.
//
// The engine never talks to a platform SDK directly: handlers and the
// registrar work against these interfaces, and the binding to a concrete
// platform lives with the caller. Fakes in package tests implement the same
// contracts.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

// SheetChannelSuffix is the reserved naming convention for sheet channels.
// A private channel named "<player>-sheet" holds that player's pinned sheet.
const SheetChannelSuffix = "-sheet"

// ErrNoPin indicates a channel has no pinned document.
var ErrNoPin = errors.New("no pinned document")

// Channel identifies a platform channel.
type Channel struct {
	ID   string
	Name string
}

// Document is a pinned document with an opaque revision token.
type Document struct {
	Content  string
	Revision string
}

// Messenger posts messages to channels and players.
type Messenger interface {
	// Post sends a message to the named channel.
	Post(ctx context.Context, channelID, text string) error
	// DirectMessage sends a private message to a player.
	DirectMessage(ctx context.Context, playerID, text string) error
}

// PinReader exposes pinned sheet documents.
type PinReader interface {
	// SheetChannels lists channels matching the reserved sheet naming convention.
	SheetChannels(ctx context.Context) ([]Channel, error)
	// PinnedDocument returns the currently pinned document for a channel,
	// or ErrNoPin when nothing is pinned.
	PinnedDocument(ctx context.Context, channelID string) (Document, error)
}

// ScopeKind selects a command registration scope.
type ScopeKind int

const (
	// ScopeGuild registers commands for a single guild.
	ScopeGuild ScopeKind = iota
	// ScopeGlobal registers commands platform-wide.
	ScopeGlobal
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGuild:
		return "guild"
	case ScopeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Scope identifies where commands are registered.
type Scope struct {
	Kind    ScopeKind
	GuildID string
}

// CommandOption describes a single typed command parameter.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
}

// Command declares one entry of the bot's command surface.
type Command struct {
	Name        string
	Description string
	Options     []CommandOption
}

// Commander registers and queries the bot's command surface per scope.
type Commander interface {
	// Registered returns the commands currently registered in the scope.
	Registered(ctx context.Context, scope Scope) ([]Command, error)
	// Overwrite replaces the scope's registered commands with the provided
	// set and returns what the platform reports back. An empty set wipes
	// the scope.
	Overwrite(ctx context.Context, scope Scope, commands []Command) ([]Command, error)
}

// Platform bundles every collaborator contract plus a health probe.
type Platform interface {
	Messenger
	PinReader
	Commander
	// Latency reports the current gateway round-trip estimate.
	Latency() time.Duration
}

// PlayerForSheetChannel extracts the owning player from a sheet channel name.
// It returns false when the name does not follow the reserved convention.
func PlayerForSheetChannel(name string) (string, bool) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if !strings.HasSuffix(trimmed, SheetChannelSuffix) {
		return "", false
	}
	player := strings.TrimSuffix(trimmed, SheetChannelSuffix)
	if player == "" {
		return "", false
	}
	return player, true
}
