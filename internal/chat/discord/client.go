// Package discord binds the chat collaborator contracts to Discord's REST
// API and realtime gateway, with no SDK dependency.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/riftlands/engine/internal/chat"
)

const apiBase = "https://discord.com/api/v10"

// maxMessageLength is Discord's hard cap on message content.
const maxMessageLength = 2000

// Client is a minimal Discord REST client. It implements the Messenger,
// PinReader, and Commander contracts; gateway concerns live in Session.
type Client struct {
	token      string
	guildID    string
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	appID string
	// users maps lower-cased usernames to user IDs, learned from gateway
	// events. Direct messages need the ID while the engine speaks in names.
	users map[string]string
}

// NewClient creates a REST client for the bot token. guildID may be empty
// for bots running without a home guild.
func NewClient(token, guildID string) *Client {
	return &Client{
		token:      token,
		guildID:    guildID,
		baseURL:    apiBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		users:      make(map[string]string),
	}
}

func (c *Client) setApplicationID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appID = id
}

func (c *Client) applicationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appID
}

func (c *Client) rememberUser(username, id string) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[username] = id
}

func (c *Client) userID(username string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.users[strings.ToLower(strings.TrimSpace(username))]
	return id, ok
}

// do executes one API call, decoding the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type apiMessage struct {
	ID              string  `json:"id"`
	ChannelID       string  `json:"channel_id"`
	Content         string  `json:"content"`
	EditedTimestamp string  `json:"edited_timestamp"`
	Author          apiUser `json:"author"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type apiChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Post sends a message to a channel, truncating to Discord's length cap.
// The cap counts characters, so truncation works in runes.
func (c *Client) Post(ctx context.Context, channelID, text string) error {
	if runes := []rune(text); len(runes) > maxMessageLength {
		text = string(runes[:maxMessageLength-3]) + "..."
	}
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	return c.do(ctx, http.MethodPost, path, map[string]string{"content": text}, nil)
}

// DirectMessage opens (or reuses) a DM channel with the named player and
// posts there. The player must have been seen on the gateway first.
func (c *Client) DirectMessage(ctx context.Context, playerID, text string) error {
	userID, ok := c.userID(playerID)
	if !ok {
		return fmt.Errorf("no known user id for player %q", playerID)
	}

	var dm apiChannel
	err := c.do(ctx, http.MethodPost, "/users/@me/channels",
		map[string]string{"recipient_id": userID}, &dm)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	return c.Post(ctx, dm.ID, text)
}

// SheetChannels lists the guild's text channels that follow the sheet
// naming convention.
func (c *Client) SheetChannels(ctx context.Context) ([]chat.Channel, error) {
	if c.guildID == "" {
		return nil, nil
	}

	var channels []apiChannel
	path := fmt.Sprintf("/guilds/%s/channels", c.guildID)
	if err := c.do(ctx, http.MethodGet, path, nil, &channels); err != nil {
		return nil, err
	}

	var sheets []chat.Channel
	for _, channel := range channels {
		// Type 0 is a guild text channel.
		if channel.Type != 0 {
			continue
		}
		if _, ok := chat.PlayerForSheetChannel(channel.Name); !ok {
			continue
		}
		sheets = append(sheets, chat.Channel{ID: channel.ID, Name: channel.Name})
	}
	return sheets, nil
}

// PinnedDocument returns the channel's most recent pin. The revision token
// combines the message ID with its edit timestamp so edits to a pinned
// message register as new revisions.
func (c *Client) PinnedDocument(ctx context.Context, channelID string) (chat.Document, error) {
	var pins []apiMessage
	path := fmt.Sprintf("/channels/%s/pins", channelID)
	if err := c.do(ctx, http.MethodGet, path, nil, &pins); err != nil {
		return chat.Document{}, err
	}
	if len(pins) == 0 {
		return chat.Document{}, chat.ErrNoPin
	}

	pin := pins[0]
	return chat.Document{
		Content:  pin.Content,
		Revision: pin.ID + ":" + pin.EditedTimestamp,
	}, nil
}

// channelName resolves a channel's current name.
func (c *Client) channelName(ctx context.Context, channelID string) (string, error) {
	var channel apiChannel
	if err := c.do(ctx, http.MethodGet, "/channels/"+channelID, nil, &channel); err != nil {
		return "", err
	}
	return channel.Name, nil
}

type apiCommandOption struct {
	Type        int    `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

type apiCommand struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Options     []apiCommandOption `json:"options,omitempty"`
}

const (
	optionTypeString  = 3
	optionTypeInteger = 4
)

// integerOptions names the command options carried as integers on the wire.
var integerOptions = map[string]bool{
	"modifier": true,
	"target":   true,
	"count":    true,
}

func (c *Client) commandsPath(scope chat.Scope) (string, error) {
	appID := c.applicationID()
	if appID == "" {
		return "", fmt.Errorf("application id not known yet")
	}
	if scope.Kind == chat.ScopeGuild {
		if scope.GuildID == "" {
			return "", fmt.Errorf("guild scope without guild id")
		}
		return fmt.Sprintf("/applications/%s/guilds/%s/commands", appID, scope.GuildID), nil
	}
	return fmt.Sprintf("/applications/%s/commands", appID), nil
}

// Registered lists the commands Discord reports for the scope.
func (c *Client) Registered(ctx context.Context, scope chat.Scope) ([]chat.Command, error) {
	path, err := c.commandsPath(scope)
	if err != nil {
		return nil, err
	}
	var registered []apiCommand
	if err := c.do(ctx, http.MethodGet, path, nil, &registered); err != nil {
		return nil, err
	}
	return decodeCommands(registered), nil
}

// Overwrite bulk-replaces the scope's commands with the provided set.
func (c *Client) Overwrite(ctx context.Context, scope chat.Scope, commands []chat.Command) ([]chat.Command, error) {
	path, err := c.commandsPath(scope)
	if err != nil {
		return nil, err
	}

	payload := make([]apiCommand, 0, len(commands))
	for _, command := range commands {
		payload = append(payload, encodeCommand(command))
	}

	var registered []apiCommand
	if err := c.do(ctx, http.MethodPut, path, payload, &registered); err != nil {
		return nil, err
	}
	return decodeCommands(registered), nil
}

func encodeCommand(command chat.Command) apiCommand {
	encoded := apiCommand{Name: command.Name, Description: command.Description}
	for _, option := range command.Options {
		optionType := optionTypeString
		if integerOptions[option.Name] {
			optionType = optionTypeInteger
		}
		encoded.Options = append(encoded.Options, apiCommandOption{
			Type:        optionType,
			Name:        option.Name,
			Description: option.Description,
			Required:    option.Required,
		})
	}
	return encoded
}

func decodeCommands(encoded []apiCommand) []chat.Command {
	commands := make([]chat.Command, 0, len(encoded))
	for _, command := range encoded {
		decoded := chat.Command{Name: command.Name, Description: command.Description}
		for _, option := range command.Options {
			decoded.Options = append(decoded.Options, chat.CommandOption{
				Name:        option.Name,
				Description: option.Description,
				Required:    option.Required,
			})
		}
		commands = append(commands, decoded)
	}
	return commands
}

// ackInteraction answers an interaction within Discord's response window.
// The acknowledgement is ephemeral; the real reply lands in the routed
// channel once the handler finishes.
func (c *Client) ackInteraction(ctx context.Context, interactionID, interactionToken string) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", interactionID, interactionToken)
	payload := map[string]any{
		"type": 4,
		"data": map[string]any{"content": "On it.", "flags": 64},
	}
	return c.do(ctx, http.MethodPost, path, payload, nil)
}
