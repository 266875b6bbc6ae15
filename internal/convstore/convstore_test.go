package convstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	c := s.Load(ctx, "+5522999990000")
	if c.Telefone != "+5522999990000" {
		t.Fatalf("fresh conversation has telefone %q", c.Telefone)
	}
	if len(c.History) != 0 {
		t.Fatalf("fresh conversation has %d messages", len(c.History))
	}

	c.SetName("Ana Silva")
	c.Append(conv.RoleUser, "Quero reservar o passeio de barco")
	c.Slots.NumPessoas = 2
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := s.Load(ctx, "+5522999990000")
	if got.Nome != "Ana Silva" {
		t.Errorf("nome did not round-trip, got %q", got.Nome)
	}
	if len(got.History) != 1 || got.History[0].Content != "Quero reservar o passeio de barco" {
		t.Errorf("history did not round-trip: %+v", got.History)
	}
	if got.Slots.NumPessoas != 2 {
		t.Errorf("slots did not round-trip: %+v", got.Slots)
	}
}

func TestMemoryStoreIsolatesPhones(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	a := s.Load(ctx, "+5522111110000")
	a.Append(conv.RoleUser, "oi")
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	b := s.Load(ctx, "+5522222220000")
	if len(b.History) != 0 {
		t.Errorf("conversation bled across phone numbers: %+v", b.History)
	}
}

func TestSaveTrimsToPersistWindow(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	c := s.Load(ctx, "+5522999990000")
	for i := 0; i < conv.PersistWindow+15; i++ {
		c.Append(conv.RoleUser, fmt.Sprintf("mensagem %d", i))
	}
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := s.Load(ctx, "+5522999990000")
	if len(got.History) != conv.PersistWindow {
		t.Fatalf("expected history trimmed to %d, got %d", conv.PersistWindow, len(got.History))
	}
	// The tail survives, the head is dropped.
	last := got.History[len(got.History)-1]
	if last.Content != fmt.Sprintf("mensagem %d", conv.PersistWindow+14) {
		t.Errorf("unexpected last message %q", last.Content)
	}
}

func TestLoadRecoversFromCorruptDocument(t *testing.T) {
	s := NewMemory()
	s.convs["+5522999990000"] = []byte("{not json")

	c := s.Load(context.Background(), "+5522999990000")
	if c == nil || c.Telefone != "+5522999990000" {
		t.Fatalf("expected fresh conversation, got %+v", c)
	}
}
