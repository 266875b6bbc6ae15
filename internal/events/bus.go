// Package events provides a publish/subscribe event bus for
// operational observability. Events flow from components (agent loop,
// tool executor, webhook handlers) to subscribers (operator console
// WebSocket, MQTT publisher). The bus is nil-safe: calling Publish on
// a nil *Bus is a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the agent loop.
	SourceAgent = "agent"
	// SourceTools identifies events from the tool executor.
	SourceTools = "tools"
	// SourceTransport identifies events from the WhatsApp webhook.
	SourceTransport = "transport"
	// SourcePayment identifies events from the payment webhook.
	SourcePayment = "payment"
)

// Kind constants describe the type of event within a source.
const (
	// KindMessageReceived signals an inbound customer message.
	// Data: telefone, chars.
	KindMessageReceived = "message_received"
	// KindMessageAnswered signals a completed turn.
	// Data: telefone, elapsed_ms.
	KindMessageAnswered = "message_answered"

	// KindToolCall signals the start of a tool execution.
	// Data: tool, telefone.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: tool, ok, duration_ms.
	KindToolDone = "tool_done"

	// KindReservationCreated signals a new reservation row.
	// Data: telefone, passeio, valor_total.
	KindReservationCreated = "reservation_created"
	// KindChargeCreated signals a new payment charge.
	// Data: telefone, tipo, valor.
	KindChargeCreated = "charge_created"
	// KindChargeConfirmed signals a provider-confirmed payment.
	// Data: asaas_id, reserva_id.
	KindChargeConfirmed = "charge_confirmed"
	// KindChargeSaveFailed signals a charge that exists at the
	// provider but could not be persisted locally. Operational alert.
	// Data: reserva_id, tipo.
	KindChargeSaveFailed = "charge_save_failed"
	// KindVoucherSent signals a voucher delivered to the customer.
	// Data: reserva_id, voucher.
	KindVoucherSent = "voucher_sent"
	// KindBusinessNotified signals an alert sent to the business
	// number. Data: type.
	KindBusinessNotified = "business_notified"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive
// events on buffered channels; slow subscribers miss events rather
// than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's <-chan Event view.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op). A zero
// Timestamp is filled in with the current time.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
