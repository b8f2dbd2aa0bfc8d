package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/riftlands/engine/internal/chat"
)

// newTestClient points a Client at a local API stub.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-token", "guild-1")
	client.baseURL = server.URL
	return client
}

func TestPostSendsAuthorizedMessage(t *testing.T) {
	var gotPath, gotAuth, gotContent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotContent = body["content"]
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Post(context.Background(), "ch-1", "hello"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotPath != "/channels/ch-1/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bot test-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotContent != "hello" {
		t.Errorf("content = %q", gotContent)
	}
}

func TestPostTruncatesLongMessages(t *testing.T) {
	var gotContent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotContent = body["content"]
		w.WriteHeader(http.StatusOK)
	})

	long := strings.Repeat("x", maxMessageLength+100)
	if err := client.Post(context.Background(), "ch-1", long); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got := len([]rune(gotContent)); got != maxMessageLength {
		t.Errorf("content length = %d runes, want %d", got, maxMessageLength)
	}
	if !strings.HasSuffix(gotContent, "...") {
		t.Error("truncated content must end with ellipsis")
	}
}

func TestPostTruncatesOnRuneBoundary(t *testing.T) {
	var gotContent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotContent = body["content"]
		w.WriteHeader(http.StatusOK)
	})

	long := strings.Repeat("é", maxMessageLength+1)
	if err := client.Post(context.Background(), "ch-1", long); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !utf8.ValidString(gotContent) {
		t.Error("truncation split a rune")
	}
	if got := len([]rune(gotContent)); got != maxMessageLength {
		t.Errorf("content length = %d runes, want %d", got, maxMessageLength)
	}
}

func TestPostSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Missing Access"}`, http.StatusForbidden)
	})

	err := client.Post(context.Background(), "ch-1", "hello")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err = %v, want status 403 surfaced", err)
	}
}

func TestDirectMessageRequiresKnownUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no API call expected for unknown user")
	})

	if err := client.DirectMessage(context.Background(), "ghost", "hi"); err == nil {
		t.Fatal("DirectMessage for unseen player must fail")
	}
}

func TestDirectMessageOpensDMChannel(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/users/@me/channels" {
			_ = json.NewEncoder(w).Encode(apiChannel{ID: "dm-9"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	client.rememberUser("Ayla", "user-1")

	if err := client.DirectMessage(context.Background(), "ayla", "pin your sheet"); err != nil {
		t.Fatalf("DirectMessage: %v", err)
	}
	if len(paths) != 2 || paths[1] != "/channels/dm-9/messages" {
		t.Errorf("paths = %v", paths)
	}
}

func TestSheetChannelsFiltersByConvention(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/guild-1/channels" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]apiChannel{
			{ID: "1", Name: "general", Type: 0},
			{ID: "2", Name: "ayla-sheet", Type: 0},
			{ID: "3", Name: "brin-sheet", Type: 0},
			{ID: "4", Name: "voice-sheet", Type: 2},
			{ID: "5", Name: "-sheet", Type: 0},
		})
	})

	channels, err := client.SheetChannels(context.Background())
	if err != nil {
		t.Fatalf("SheetChannels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("channels = %v, want ayla and brin sheets", channels)
	}
	if channels[0].Name != "ayla-sheet" || channels[1].Name != "brin-sheet" {
		t.Errorf("channels = %v", channels)
	}
}

func TestPinnedDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]apiMessage{
			{ID: "msg-1", Content: "athletics: +2", EditedTimestamp: "2026-03-01T12:00:00Z"},
		})
	})

	doc, err := client.PinnedDocument(context.Background(), "ch-1")
	if err != nil {
		t.Fatalf("PinnedDocument: %v", err)
	}
	if doc.Content != "athletics: +2" {
		t.Errorf("content = %q", doc.Content)
	}
	if doc.Revision != "msg-1:2026-03-01T12:00:00Z" {
		t.Errorf("revision = %q", doc.Revision)
	}
}

func TestPinnedDocumentNoPins(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]apiMessage{})
	})

	_, err := client.PinnedDocument(context.Background(), "ch-1")
	if !errors.Is(err, chat.ErrNoPin) {
		t.Fatalf("err = %v, want chat.ErrNoPin", err)
	}
}

func TestCommandScopePaths(t *testing.T) {
	var gotPath, gotMethod string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewEncoder(w).Encode([]apiCommand{})
	})

	if _, err := client.Registered(context.Background(), chat.Scope{Kind: chat.ScopeGuild, GuildID: "guild-1"}); err == nil {
		t.Fatal("Registered before READY must fail: application id unknown")
	}

	client.setApplicationID("app-1")
	if _, err := client.Registered(context.Background(), chat.Scope{Kind: chat.ScopeGuild, GuildID: "guild-1"}); err != nil {
		t.Fatalf("Registered guild: %v", err)
	}
	if gotPath != "/applications/app-1/guilds/guild-1/commands" || gotMethod != http.MethodGet {
		t.Errorf("guild scope request = %s %s", gotMethod, gotPath)
	}

	if _, err := client.Overwrite(context.Background(), chat.Scope{Kind: chat.ScopeGlobal}, nil); err != nil {
		t.Fatalf("Overwrite global: %v", err)
	}
	if gotPath != "/applications/app-1/commands" || gotMethod != http.MethodPut {
		t.Errorf("global scope request = %s %s", gotMethod, gotPath)
	}
}

func TestOverwriteEncodesOptionTypes(t *testing.T) {
	var gotBody []apiCommand
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(gotBody)
	})
	client.setApplicationID("app-1")

	commands := []chat.Command{{
		Name:        "act",
		Description: "Submit an action",
		Options: []chat.CommandOption{
			{Name: "description", Description: "What you do", Required: true},
			{Name: "modifier", Description: "Explicit modifier"},
			{Name: "target", Description: "To-hit target"},
		},
	}}
	registered, err := client.Overwrite(context.Background(), chat.Scope{Kind: chat.ScopeGlobal}, commands)
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}

	if len(gotBody) != 1 || len(gotBody[0].Options) != 3 {
		t.Fatalf("body = %+v", gotBody)
	}
	if gotBody[0].Options[0].Type != optionTypeString || !gotBody[0].Options[0].Required {
		t.Errorf("description option = %+v", gotBody[0].Options[0])
	}
	if gotBody[0].Options[1].Type != optionTypeInteger || gotBody[0].Options[2].Type != optionTypeInteger {
		t.Errorf("numeric options = %+v", gotBody[0].Options[1:])
	}

	if len(registered) != 1 || registered[0].Name != "act" {
		t.Errorf("registered = %+v", registered)
	}
}

func TestOptionValueString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"athletics"`, "athletics"},
		{`5`, "5"},
		{`-2`, "-2"},
	}
	for _, tt := range tests {
		if got := optionValueString(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("optionValueString(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestWSAcceptKey(t *testing.T) {
	// RFC 6455 section 1.3 sample handshake.
	got := wsAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	if got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("wsAcceptKey = %q", got)
	}
}
