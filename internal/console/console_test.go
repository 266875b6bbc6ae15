package console

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calebstour/caleb-sales-agent/internal/events"
)

func dialTestConsole(t *testing.T, bus *events.Bus) (*websocket.Conn, func()) {
	t.Helper()
	h := NewHandler(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(h)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func waitForSubscribers(t *testing.T, bus *events.Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count = %d, want %d", bus.SubscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsoleStreamsEvents(t *testing.T) {
	bus := events.New()
	conn, cleanup := dialTestConsole(t, bus)
	defer cleanup()

	waitForSubscribers(t, bus, 1)
	bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindMessageReceived,
		Data:   map[string]any{"telefone": "+5522999999999"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Kind != events.KindMessageReceived {
		t.Errorf("kind = %q, want %q", got.Kind, events.KindMessageReceived)
	}
	if got.Source != events.SourceAgent {
		t.Errorf("source = %q, want %q", got.Source, events.SourceAgent)
	}
	if got.Data["telefone"] != "+5522999999999" {
		t.Errorf("data = %v", got.Data)
	}
	if got.Timestamp.IsZero() {
		t.Errorf("timestamp not filled")
	}
}

func TestConsoleUnsubscribesOnClose(t *testing.T) {
	bus := events.New()
	conn, cleanup := dialTestConsole(t, bus)
	defer cleanup()

	waitForSubscribers(t, bus, 1)
	conn.Close()
	waitForSubscribers(t, bus, 0)
}
