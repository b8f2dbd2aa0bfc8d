package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/riftlands/engine/internal/chat"
)

const gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Gateway intents. Guilds covers channel pin updates.
const (
	intentGuilds         = 1 << 0
	intentGuildMessages  = 1 << 9
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15
)

// reconnectDelay is the pause between gateway connection attempts.
const reconnectDelay = 5 * time.Second

// eventBuffer sizes the outbound event channels. Events beyond a stalled
// consumer's buffer are dropped with a log line rather than blocking the
// read loop and starving heartbeats.
const eventBuffer = 64

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int            `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string            `json:"token"`
	Intents    int               `json:"intents"`
	Properties map[string]string `json:"properties"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
}

type readyData struct {
	SessionID   string  `json:"session_id"`
	User        apiUser `json:"user"`
	Application struct {
		ID string `json:"id"`
	} `json:"application"`
}

type interactionOption struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type interactionData struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	ChannelID string `json:"channel_id"`
	Data      struct {
		Name    string              `json:"name"`
		Options []interactionOption `json:"options"`
	} `json:"data"`
	Member struct {
		User apiUser `json:"user"`
	} `json:"member"`
	User apiUser `json:"user"`
}

type pinsUpdateData struct {
	ChannelID string `json:"channel_id"`
}

// Session maintains the realtime gateway connection: identify, heartbeat,
// resume, and translation of dispatch events into the chat event types.
type Session struct {
	token  string
	client *Client

	commands chan chat.CommandInvocation
	pins     chan chat.PinChange
	messages chan chat.Message

	ready     chan struct{}
	readyOnce sync.Once

	mu            sync.Mutex
	sessionID     string
	seq           int
	botUserID     string
	heartbeatSent time.Time
	latency       time.Duration
}

// NewSession creates a gateway session sharing the REST client's identity
// cache.
func NewSession(token string, client *Client) *Session {
	return &Session{
		token:    token,
		client:   client,
		commands: make(chan chat.CommandInvocation, eventBuffer),
		pins:     make(chan chat.PinChange, eventBuffer),
		messages: make(chan chat.Message, eventBuffer),
		ready:    make(chan struct{}),
	}
}

// Commands streams slash-command invocations.
func (s *Session) Commands() <-chan chat.CommandInvocation { return s.commands }

// Pins streams pin-change notifications.
func (s *Session) Pins() <-chan chat.PinChange { return s.pins }

// Messages streams plain chat messages.
func (s *Session) Messages() <-chan chat.Message { return s.messages }

// Ready is closed once the first READY event arrives, which is also when
// the application ID becomes available for command registration.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Latency reports the most recent heartbeat round trip.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// Run connects to the gateway and processes events until the context ends,
// reconnecting after transient failures.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := s.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("discord: gateway: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
			log.Print("discord: reconnecting to gateway")
		}
	}
}

func (s *Session) connectAndRead(ctx context.Context) error {
	ws, err := dialWS(gatewayURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ws.Close()

	var hello gatewayPayload
	if err := ws.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloBody helloData
	if err := json.Unmarshal(hello.D, &helloBody); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go s.heartbeatLoop(heartbeatCtx, ws, time.Duration(helloBody.HeartbeatInterval)*time.Millisecond)

	s.mu.Lock()
	sessionID, seq := s.sessionID, s.seq
	s.mu.Unlock()
	if sessionID != "" {
		err = s.sendResume(ws, sessionID, seq)
	} else {
		err = s.sendIdentify(ws)
	}
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var payload gatewayPayload
		if err := ws.ReadJSON(&payload); err != nil {
			return fmt.Errorf("read event: %w", err)
		}

		if payload.S != nil {
			s.mu.Lock()
			s.seq = *payload.S
			s.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			s.handleDispatch(ctx, payload)
		case opHeartbeat:
			if err := s.sendHeartbeat(ws); err != nil {
				return err
			}
		case opReconnect:
			return fmt.Errorf("reconnect requested")
		case opInvalidSession:
			s.mu.Lock()
			s.sessionID = ""
			s.mu.Unlock()
			return fmt.Errorf("session invalidated")
		case opHeartbeatAck:
			s.mu.Lock()
			if !s.heartbeatSent.IsZero() {
				s.latency = time.Since(s.heartbeatSent)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) sendIdentify(ws *wsConn) error {
	identify := identifyData{
		Token:   s.token,
		Intents: intentGuilds | intentGuildMessages | intentDirectMessages | intentMessageContent,
		Properties: map[string]string{
			"os": "linux", "browser": "riftlands", "device": "riftlands",
		},
	}
	body, err := json.Marshal(identify)
	if err != nil {
		return err
	}
	return ws.WriteJSON(gatewayPayload{Op: opIdentify, D: body})
}

func (s *Session) sendResume(ws *wsConn, sessionID string, seq int) error {
	body, err := json.Marshal(resumeData{Token: s.token, SessionID: sessionID, Seq: seq})
	if err != nil {
		return err
	}
	return ws.WriteJSON(gatewayPayload{Op: opResume, D: body})
}

func (s *Session) heartbeatLoop(ctx context.Context, ws *wsConn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sendHeartbeat(ws); err != nil {
				return
			}
		}
	}
}

func (s *Session) sendHeartbeat(ws *wsConn) error {
	s.mu.Lock()
	seq := s.seq
	s.heartbeatSent = time.Now()
	s.mu.Unlock()

	body, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	return ws.WriteJSON(gatewayPayload{Op: opHeartbeat, D: body})
}

func (s *Session) handleDispatch(ctx context.Context, payload gatewayPayload) {
	switch payload.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(payload.D, &ready); err != nil {
			log.Printf("discord: decode READY: %v", err)
			return
		}
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.botUserID = ready.User.ID
		s.mu.Unlock()
		s.client.setApplicationID(ready.Application.ID)
		s.client.rememberUser(ready.User.Username, ready.User.ID)
		log.Printf("discord: connected as %s", ready.User.Username)
		s.readyOnce.Do(func() { close(s.ready) })

	case "INTERACTION_CREATE":
		var interaction interactionData
		if err := json.Unmarshal(payload.D, &interaction); err != nil {
			log.Printf("discord: decode interaction: %v", err)
			return
		}
		s.handleInteraction(ctx, interaction)

	case "MESSAGE_CREATE":
		var message apiMessage
		if err := json.Unmarshal(payload.D, &message); err != nil {
			log.Printf("discord: decode message: %v", err)
			return
		}
		s.client.rememberUser(message.Author.Username, message.Author.ID)
		s.enqueueMessage(chat.Message{
			PlayerID:  strings.ToLower(message.Author.Username),
			ChannelID: message.ChannelID,
			Content:   message.Content,
			FromBot:   message.Author.Bot,
		})

	case "CHANNEL_PINS_UPDATE":
		var update pinsUpdateData
		if err := json.Unmarshal(payload.D, &update); err != nil {
			log.Printf("discord: decode pins update: %v", err)
			return
		}
		nameCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		name, err := s.client.channelName(nameCtx, update.ChannelID)
		cancel()
		if err != nil {
			log.Printf("discord: resolve channel %s: %v", update.ChannelID, err)
			return
		}
		s.enqueuePin(chat.PinChange{ChannelID: update.ChannelID, ChannelName: name})
	}
}

func (s *Session) handleInteraction(ctx context.Context, interaction interactionData) {
	user := interaction.Member.User
	if user.ID == "" {
		user = interaction.User
	}
	s.client.rememberUser(user.Username, user.ID)

	ackCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.ackInteraction(ackCtx, interaction.ID, interaction.Token); err != nil {
		log.Printf("discord: ack interaction %s: %v", interaction.Data.Name, err)
	}

	options := make(map[string]string, len(interaction.Data.Options))
	for _, option := range interaction.Data.Options {
		options[option.Name] = optionValueString(option.Value)
	}

	s.enqueueCommand(chat.CommandInvocation{
		Name:      interaction.Data.Name,
		PlayerID:  strings.ToLower(user.Username),
		ChannelID: interaction.ChannelID,
		Options:   options,
	})
}

// optionValueString renders an interaction option value, which arrives as
// either a JSON string or a JSON number.
func optionValueString(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return strings.TrimSpace(string(raw))
}

func (s *Session) enqueueCommand(inv chat.CommandInvocation) {
	select {
	case s.commands <- inv:
	default:
		log.Printf("discord: dropping command %s, event buffer full", inv.Name)
	}
}

func (s *Session) enqueuePin(change chat.PinChange) {
	select {
	case s.pins <- change:
	default:
		log.Printf("discord: dropping pin change for %s, event buffer full", change.ChannelName)
	}
}

func (s *Session) enqueueMessage(msg chat.Message) {
	select {
	case s.messages <- msg:
	default:
		log.Print("discord: dropping message, event buffer full")
	}
}

// Platform bundles the REST client and gateway session into the full
// chat.Platform contract.
type Platform struct {
	*Client
	*Session
}

// NewPlatform wires a client and session for the token and guild.
func NewPlatform(token, guildID string) *Platform {
	client := NewClient(token, guildID)
	return &Platform{
		Client:  client,
		Session: NewSession(token, client),
	}
}
