package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/riftlands/engine/internal/chat"
)

func TestDispatcherHandlesCommandStream(t *testing.T) {
	b := newTestBot(t)
	dispatcher := NewDispatcher(b.handler)

	commands := make(chan chat.CommandInvocation, 2)
	commands <- invoke("ping", "ayla", nil)
	commands <- invoke("ping", "brin", nil)
	close(commands)

	// Run returns once the stream closes, after in-flight handlers finish.
	dispatcher.Run(context.Background(), Events{Commands: commands})

	b.platform.mu.Lock()
	defer b.platform.mu.Unlock()
	if got := len(b.platform.posts["general"]); got != 2 {
		t.Errorf("posts = %d, want 2", got)
	}
}

func TestDispatcherHandlesPinAndMessageStreams(t *testing.T) {
	b := newTestBot(t)
	dispatcher := NewDispatcher(b.handler)

	b.platform.mu.Lock()
	b.platform.docs["ch-zed"] = chat.Document{Content: "stealth: +3", Revision: "r1"}
	b.platform.mu.Unlock()

	pins := make(chan chat.PinChange, 1)
	pins <- chat.PinChange{ChannelID: "ch-zed", ChannelName: "zed-sheet"}
	close(pins)
	dispatcher.Run(context.Background(), Events{Pins: pins})

	if _, ok := b.index.Record("zed"); !ok {
		t.Error("pin change event did not index the new sheet")
	}

	messages := make(chan chat.Message, 1)
	messages <- chat.Message{PlayerID: "ayla", ChannelID: "general", Content: "!ping"}
	close(messages)
	dispatcher.Run(context.Background(), Events{Messages: messages})

	if got := b.platform.lastPost(t, "general"); !strings.Contains(got, "Pong!") {
		t.Errorf("message reply = %q", got)
	}
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	b := newTestBot(t)
	dispatcher := NewDispatcher(b.handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	commands := make(chan chat.CommandInvocation)
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx, Events{Commands: commands})
		close(done)
	}()

	<-done
}
