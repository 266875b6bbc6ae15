// Package conv defines the per-customer conversation state shared by
// the agent loop, the slot extractor, and the tool executor. One
// Conversation exists per phone number; the conversation store loads it
// at the start of a turn and persists it at the end.
package conv

// Roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// History windows. PromptWindow bounds how many recent messages are fed
// to the model; PersistWindow bounds what is written back to the store.
const (
	PromptWindow  = 30
	PersistWindow = 40
)

// Message is a single role-tagged history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Slots holds the booking fields collected across turns. All fields are
// last-write-wins except the customer name, which the agent loop never
// overwrites once set (see Conversation.SetName).
type Slots struct {
	PasseioID   string   `json:"passeio_id,omitempty"`
	PasseioNome string   `json:"passeio_nome,omitempty"`
	Data        string   `json:"data,omitempty"` // ISO calendar date
	NumPessoas  int      `json:"num_pessoas,omitempty"`
	TipoPag     string   `json:"tipo_pagamento,omitempty"` // PIX or BOLETO
	CPF         string   `json:"cpf,omitempty"`            // digits only
	Email       string   `json:"email,omitempty"`
	ReservaID   string   `json:"reserva_id,omitempty"`
	ValorTotal  float64  `json:"valor_total,omitempty"`
	OptionList  []string `json:"option_list,omitempty"` // last numbered menu shown
	OptionIDs   []string `json:"option_ids,omitempty"`
}

// HasMenu reports whether a numbered menu is pending selection.
func (s *Slots) HasMenu() bool {
	return len(s.OptionIDs) > 0 && len(s.OptionList) == len(s.OptionIDs)
}

// SetMenu records the last numbered list of tour options shown to the
// customer so a later bare-number reply can be resolved.
func (s *Slots) SetMenu(names, ids []string) {
	if len(names) != len(ids) {
		return
	}
	s.OptionList = names
	s.OptionIDs = ids
}

// ClearMenu drops the pending menu. Selecting a tour and showing a menu
// are mutually exclusive: every menu selection must clear the menu so a
// stale list can never be re-selected.
func (s *Slots) ClearMenu() {
	s.OptionList = nil
	s.OptionIDs = nil
}

// Conversation is the full persisted state for one phone number.
type Conversation struct {
	Telefone string    `json:"telefone"`
	Nome     string    `json:"nome,omitempty"`
	History  []Message `json:"history"`
	Slots    Slots     `json:"slots"`
}

// New returns an empty conversation for the given phone number. The
// conversation store returns this on a miss so callers never see nil.
func New(telefone string) *Conversation {
	return &Conversation{Telefone: telefone}
}

// Append adds a message to the history.
func (c *Conversation) Append(role, content string) {
	c.History = append(c.History, Message{Role: role, Content: content})
}

// SetName records the customer name. A name already on file wins:
// later heuristic guesses must not clobber it. Tool confirmation goes
// through ForceName.
func (c *Conversation) SetName(nome string) {
	if c.Nome == "" && nome != "" {
		c.Nome = nome
	}
}

// ForceName overwrites the customer name. Only the tool executor calls
// this, after the name was explicitly confirmed by a reservation.
func (c *Conversation) ForceName(nome string) {
	if nome != "" {
		c.Nome = nome
	}
}

// Recent returns the last n history messages (or all, if fewer).
func (c *Conversation) Recent(n int) []Message {
	if n <= 0 || len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// Trim bounds the history to the persisted window. Called once per turn
// before the state is handed back to the store.
func (c *Conversation) Trim() {
	if len(c.History) > PersistWindow {
		c.History = append([]Message(nil), c.History[len(c.History)-PersistWindow:]...)
	}
}
