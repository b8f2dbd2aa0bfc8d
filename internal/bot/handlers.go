// Package bot binds the engine's operations to the chat platform: it
// declares the slash-command surface, parses invocations, routes replies
// to the configured channels, and dispatches events concurrently.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/riftlands/engine/internal/chat"
	"github.com/riftlands/engine/internal/core/dice"
	"github.com/riftlands/engine/internal/narrate"
	"github.com/riftlands/engine/internal/scene"
	"github.com/riftlands/engine/internal/sheet"
	"github.com/riftlands/engine/internal/telemetry"
)

// HandlerConfig routes handler output to the configured channels. An empty
// channel ID falls back to the invoking channel.
type HandlerConfig struct {
	RollsChannelID string
	StoryChannelID string
}

// Handler executes one command invocation against the engine.
type Handler struct {
	platform chat.Platform
	manager  *scene.Manager
	index    *sheet.Index
	pipeline *narrate.Pipeline
	emitter  *telemetry.Emitter
	cfg      HandlerConfig
}

// NewHandler wires a Handler to its collaborators.
func NewHandler(platform chat.Platform, manager *scene.Manager, index *sheet.Index, pipeline *narrate.Pipeline, emitter *telemetry.Emitter, cfg HandlerConfig) *Handler {
	return &Handler{
		platform: platform,
		manager:  manager,
		index:    index,
		pipeline: pipeline,
		emitter:  emitter,
		cfg:      cfg,
	}
}

// Commands declares the bot's full slash-command surface. The registrar
// publishes exactly this set.
func Commands() []chat.Command {
	return []chat.Command{
		{Name: "ping", Description: "Check the bot's responsiveness"},
		{Name: "start", Description: "Open a new scene", Options: []chat.CommandOption{
			{Name: "title", Description: "Scene title", Required: true},
			{Name: "prompt", Description: "Opening prompt read to the table"},
		}},
		{Name: "act", Description: "Submit an action to the open scene", Options: []chat.CommandOption{
			{Name: "description", Description: "What your character does", Required: true},
			{Name: "roll", Description: "Dice to roll: none, check, or attack"},
			{Name: "skill", Description: "Skill name resolved against your sheet"},
			{Name: "modifier", Description: "Explicit modifier, overrides your sheet"},
			{Name: "target", Description: "To-hit target value for attacks"},
			{Name: "damage", Description: "Damage dice, e.g. 2d6+1"},
		}},
		{Name: "attack", Description: "Submit an attack action", Options: []chat.CommandOption{
			{Name: "description", Description: "What your character does", Required: true},
			{Name: "weapon", Description: "Weapon name resolved against your sheet"},
			{Name: "modifier", Description: "Explicit to-hit modifier"},
			{Name: "target", Description: "To-hit target value"},
			{Name: "damage", Description: "Damage dice, e.g. 2d6+1"},
		}},
		{Name: "resolve", Description: "Close the scene and narrate it"},
		{Name: "force-resolve", Description: "Close the scene with your own narration", Options: []chat.CommandOption{
			{Name: "narration", Description: "Narration text to use verbatim"},
		}},
		{Name: "recap", Description: "Recap recent scenes", Options: []chat.CommandOption{
			{Name: "count", Description: "How many scenes, 3 to 5"},
		}},
		{Name: "status", Description: "Show the open scene and pending sheets"},
		{Name: "narration", Description: "Toggle generative narration", Options: []chat.CommandOption{
			{Name: "mode", Description: "on or off", Required: true},
		}},
		{Name: "sheets-rebuild", Description: "Re-read every pinned sheet"},
	}
}

// HandleCommand executes one slash-command invocation. Player mistakes
// come back as channel messages; only infrastructure failures return an
// error.
func (h *Handler) HandleCommand(ctx context.Context, inv chat.CommandInvocation) error {
	switch inv.Name {
	case "ping":
		return h.handlePing(ctx, inv)
	case "start":
		return h.handleStart(ctx, inv)
	case "act":
		return h.handleAct(ctx, inv)
	case "attack":
		return h.handleAttack(ctx, inv)
	case "resolve":
		return h.handleResolve(ctx, inv, "")
	case "force-resolve":
		return h.handleResolve(ctx, inv, inv.Options["narration"])
	case "recap":
		return h.handleRecap(ctx, inv)
	case "status":
		return h.handleStatus(ctx, inv)
	case "narration":
		return h.handleNarrationToggle(ctx, inv)
	case "sheets-rebuild":
		return h.handleSheetsRebuild(ctx, inv)
	default:
		return h.platform.Post(ctx, inv.ChannelID, fmt.Sprintf("Unknown command: %s", inv.Name))
	}
}

// HandlePinChange re-indexes a sheet channel after its pins changed.
// Changes in channels outside the sheet naming convention are ignored.
func (h *Handler) HandlePinChange(ctx context.Context, change chat.PinChange) error {
	if _, ok := chat.PlayerForSheetChannel(change.ChannelName); !ok {
		return nil
	}
	return h.index.RebuildChannel(ctx, change.ChannelID, change.ChannelName)
}

// HandleMessage answers the plain-text fallback commands. It covers the
// window where slash registration is still propagating or degraded.
func (h *Handler) HandleMessage(ctx context.Context, msg chat.Message) error {
	if msg.FromBot {
		return nil
	}
	if strings.TrimSpace(msg.Content) != "!ping" {
		return nil
	}
	return h.platform.Post(ctx, msg.ChannelID, h.pingText())
}

func (h *Handler) pingText() string {
	return fmt.Sprintf("Pong! Gateway latency: %dms", h.platform.Latency().Milliseconds())
}

func (h *Handler) handlePing(ctx context.Context, inv chat.CommandInvocation) error {
	return h.platform.Post(ctx, inv.ChannelID, h.pingText())
}

func (h *Handler) handleStart(ctx context.Context, inv chat.CommandInvocation) error {
	opened, err := h.manager.Start(inv.Options["title"], inv.Options["prompt"])
	if err != nil {
		return h.replyUserError(ctx, inv, err)
	}

	text := fmt.Sprintf("**%s**", opened.Title)
	if opened.Prompt != "" {
		text += "\n" + opened.Prompt
	}
	return h.platform.Post(ctx, h.storyChannel(inv), text)
}

func (h *Handler) handleAct(ctx context.Context, inv chat.CommandInvocation) error {
	kind, err := parseActionKind(inv.Options["roll"])
	if err != nil {
		return h.replyUserError(ctx, inv, err)
	}

	input := scene.SubmitInput{
		PlayerID:    inv.PlayerID,
		Description: inv.Options["description"],
		Kind:        kind,
		Key:         inv.Options["skill"],
		Damage:      inv.Options["damage"],
	}
	if input.Explicit, err = optionalInt(inv.Options, "modifier"); err != nil {
		return h.replyUserError(ctx, inv, err)
	}
	if input.Target, err = optionalInt(inv.Options, "target"); err != nil {
		return h.replyUserError(ctx, inv, err)
	}

	return h.submit(ctx, inv, input)
}

func (h *Handler) handleAttack(ctx context.Context, inv chat.CommandInvocation) error {
	input := scene.SubmitInput{
		PlayerID:    inv.PlayerID,
		Description: inv.Options["description"],
		Kind:        scene.KindAttack,
		Key:         inv.Options["weapon"],
		Damage:      inv.Options["damage"],
	}
	var err error
	if input.Explicit, err = optionalInt(inv.Options, "modifier"); err != nil {
		return h.replyUserError(ctx, inv, err)
	}
	if input.Target, err = optionalInt(inv.Options, "target"); err != nil {
		return h.replyUserError(ctx, inv, err)
	}

	return h.submit(ctx, inv, input)
}

func (h *Handler) submit(ctx context.Context, inv chat.CommandInvocation, input scene.SubmitInput) error {
	result, err := h.manager.Submit(input)
	if err != nil {
		return h.replyUserError(ctx, inv, err)
	}

	if err := h.platform.Post(ctx, h.rollsChannel(inv), result.Action.Summary()); err != nil {
		return err
	}

	if result.SheetMissing {
		// Reminder goes out privately; the action already stands, so a DM
		// failure is logged rather than surfaced.
		reminder := "I could not find your pinned character sheet, so your roll " +
			"used a +0 modifier. Pin a sheet in your " + input.PlayerID +
			chat.SheetChannelSuffix + " channel to use your real stats."
		if err := h.platform.DirectMessage(ctx, input.PlayerID, reminder); err != nil {
			log.Printf("bot: sheet reminder to %s: %v", input.PlayerID, err)
		}
	}
	return nil
}

func (h *Handler) handleResolve(ctx context.Context, inv chat.CommandInvocation, narration string) error {
	var resolved scene.Scene
	var err error
	if strings.TrimSpace(narration) != "" {
		resolved, err = h.manager.ForceResolve(ctx, narration)
	} else {
		resolved, err = h.manager.Resolve(ctx)
	}
	if err != nil {
		return h.replyUserError(ctx, inv, err)
	}

	_ = h.emitter.Emit(ctx, telemetry.SeverityInfo, telemetry.ComponentScene,
		"scene_resolved", map[string]string{
			"scene":   resolved.ID,
			"actions": strconv.Itoa(len(resolved.Actions)),
		})

	return h.platform.Post(ctx, h.storyChannel(inv), formatResolution(resolved))
}

func (h *Handler) handleRecap(ctx context.Context, inv chat.CommandInvocation) error {
	count := 3
	if parsed, err := optionalInt(inv.Options, "count"); err == nil && parsed != nil {
		count = *parsed
	}

	entries := h.manager.Recap(count)
	if len(entries) == 0 {
		return h.platform.Post(ctx, inv.ChannelID, "No resolved scenes to recap yet.")
	}
	return h.platform.Post(ctx, inv.ChannelID, formatRecap(entries))
}

func (h *Handler) handleStatus(ctx context.Context, inv chat.CommandInvocation) error {
	snapshot, err := h.manager.Status()
	if err != nil {
		return h.replyUserError(ctx, inv, err)
	}
	return h.platform.Post(ctx, inv.ChannelID, formatStatus(snapshot))
}

func (h *Handler) handleNarrationToggle(ctx context.Context, inv chat.CommandInvocation) error {
	switch strings.ToLower(strings.TrimSpace(inv.Options["mode"])) {
	case "on":
		h.pipeline.SetEnabled(true)
	case "off":
		h.pipeline.SetEnabled(false)
	default:
		return h.platform.Post(ctx, inv.ChannelID, "Usage: /narration mode:on|off")
	}

	state := "off"
	if h.pipeline.Enabled() {
		state = "on"
	}
	return h.platform.Post(ctx, inv.ChannelID, "Generative narration is now "+state+".")
}

func (h *Handler) handleSheetsRebuild(ctx context.Context, inv chat.CommandInvocation) error {
	if err := h.index.Rebuild(ctx); err != nil {
		return err
	}
	count := len(h.index.Snapshot())
	return h.platform.Post(ctx, inv.ChannelID,
		fmt.Sprintf("Sheet index rebuilt: %d player sheet(s) indexed.", count))
}

// replyUserError answers player mistakes in the invoking channel and
// escalates everything else.
func (h *Handler) replyUserError(ctx context.Context, inv chat.CommandInvocation, err error) error {
	if text, ok := userErrorText(err); ok {
		return h.platform.Post(ctx, inv.ChannelID, text)
	}
	return err
}

// userErrorText maps player-facing errors to friendly messages.
func userErrorText(err error) (string, bool) {
	switch {
	case errors.Is(err, scene.ErrNoActiveScene):
		return "There is no open scene. Use /start to open one.", true
	case errors.Is(err, scene.ErrSceneConflict):
		return "A scene is already open. Resolve it before starting another.", true
	case errors.Is(err, scene.ErrEmptyTitle):
		return "The scene needs a title.", true
	case errors.Is(err, scene.ErrEmptyDescription):
		return "Describe what your character does.", true
	case errors.Is(err, scene.ErrEmptyPlayerID):
		return "I could not tell who is acting.", true
	case errors.Is(err, dice.ErrInvalidExpr):
		return "I could not read those damage dice. Use something like 2d6+1.", true
	case errors.Is(err, errBadOption):
		return err.Error(), true
	}
	return "", false
}

func (h *Handler) rollsChannel(inv chat.CommandInvocation) string {
	if h.cfg.RollsChannelID != "" {
		return h.cfg.RollsChannelID
	}
	return inv.ChannelID
}

func (h *Handler) storyChannel(inv chat.CommandInvocation) string {
	if h.cfg.StoryChannelID != "" {
		return h.cfg.StoryChannelID
	}
	return inv.ChannelID
}

// errBadOption wraps option parse failures so they read as usage errors.
var errBadOption = errors.New("invalid option")

func optionalInt(options map[string]string, name string) (*int, error) {
	raw, ok := options[name]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", errBadOption, name)
	}
	return &value, nil
}

func parseActionKind(raw string) (scene.ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return scene.KindNone, nil
	case "check":
		return scene.KindCheck, nil
	case "attack":
		return scene.KindAttack, nil
	default:
		return scene.KindNone, fmt.Errorf("%w: roll must be none, check, or attack", errBadOption)
	}
}

func formatResolution(resolved scene.Scene) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n%s", resolved.Title, resolved.Narration)
	if len(resolved.Hooks) > 0 {
		sb.WriteString("\n\n**What next?**")
		for _, hook := range resolved.Hooks {
			sb.WriteString("\n• " + hook)
		}
	}
	return sb.String()
}

func formatRecap(entries []scene.RecapEntry) string {
	var sb strings.Builder
	sb.WriteString("**Previously:**")
	for _, entry := range entries {
		fmt.Fprintf(&sb, "\n**%s**", entry.Title)
		for _, summary := range entry.Summaries {
			sb.WriteString("\n  " + summary)
		}
	}
	return sb.String()
}

func formatStatus(snapshot scene.StatusSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%s), %d action(s) submitted.",
		snapshot.Scene.Title, snapshot.Scene.Status, len(snapshot.Scene.Actions))
	for _, action := range snapshot.Scene.Actions {
		sb.WriteString("\n" + action.Summary())
	}
	if len(snapshot.MissingSheets) > 0 {
		sb.WriteString("\nMissing sheets: " + strings.Join(snapshot.MissingSheets, ", "))
	}
	return sb.String()
}
