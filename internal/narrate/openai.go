package narrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/riftlands/engine/internal/scene"
)

const narrationSystemPrompt = "You are the narrator of a collaborative " +
	"tabletop scene. Given the scene prompt and the players' actions with " +
	"their dice outcomes, write one vivid paragraph that covers every " +
	"action in order and respects each recorded outcome. Then list exactly " +
	"three one-line hooks inviting the next move. Format:\n" +
	"NARRATION: <paragraph>\nHOOKS:\n1. <hook>\n2. <hook>\n3. <hook>"

// OpenAIBackend narrates scenes through the OpenAI chat completions API.
type OpenAIBackend struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAIBackend creates a backend for the given API key and model.
func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	return &OpenAIBackend{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
	}
}

// Narrate sends the scene to the model and parses its structured reply.
// Output that cannot be parsed into narration is reported as
// ErrBackendUnavailable so the pipeline falls back.
func (b *OpenAIBackend) Narrate(ctx context.Context, s scene.Scene) (BackendResult, error) {
	completion, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: b.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(narrationSystemPrompt),
			openai.UserMessage(scenePrompt(s)),
		},
	})
	if err != nil {
		return BackendResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return BackendResult{}, fmt.Errorf("%w: empty completion", ErrBackendUnavailable)
	}

	narration, hooks := parseBackendReply(completion.Choices[0].Message.Content)
	if narration == "" {
		return BackendResult{}, fmt.Errorf("%w: unusable completion", ErrBackendUnavailable)
	}
	return BackendResult{Narration: narration, Hooks: hooks}, nil
}

// scenePrompt renders the structured scene description sent to the model.
func scenePrompt(s scene.Scene) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scene: %s\n", s.Title)
	if s.Prompt != "" {
		fmt.Fprintf(&sb, "Opening: %s\n", s.Prompt)
	}
	sb.WriteString("Actions in order:\n")
	for i, action := range s.Actions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, action.Summary())
	}
	return sb.String()
}

// parseBackendReply splits a model reply into narration and hook lines.
func parseBackendReply(reply string) (string, []string) {
	narration := ""
	var hooks []string

	section := ""
	for _, rawLine := range strings.Split(reply, "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "NARRATION:"):
			section = "narration"
			narration = strings.TrimSpace(strings.TrimPrefix(line, "NARRATION:"))
		case strings.HasPrefix(line, "HOOKS:"):
			section = "hooks"
		case line == "":
			continue
		case section == "narration":
			narration = strings.TrimSpace(narration + " " + line)
		case section == "hooks":
			hook := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
			if hook != "" {
				hooks = append(hooks, hook)
			}
		}
	}

	if narration == "" && section == "" {
		// Models sometimes skip the scaffold; treat the whole reply as
		// narration when it is plain prose.
		narration = strings.TrimSpace(reply)
	}
	return narration, hooks
}
