// Package agent implements the conversational loop that turns one
// inbound WhatsApp message into tool executions and a final reply.
// The model is treated as an untrusted text generator: every
// completion is parsed, classified, and either accepted, executed as a
// tool call, or bounced back with a corrective instruction, under a
// hard iteration ceiling.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
	"github.com/calebstour/caleb-sales-agent/internal/convstore"
	"github.com/calebstour/caleb-sales-agent/internal/events"
	"github.com/calebstour/caleb-sales-agent/internal/extract"
	"github.com/calebstour/caleb-sales-agent/internal/llm"
	"github.com/calebstour/caleb-sales-agent/internal/store"
	"github.com/calebstour/caleb-sales-agent/internal/toolcall"
	"github.com/calebstour/caleb-sales-agent/internal/tools"
)

const (
	// maxSteps bounds the model-call/tool-execution cycle per inbound
	// message. Exhausting it is the circuit breaker against a model
	// that never produces an acceptable reply.
	maxSteps = 16

	// loopTemperature keeps tool-calling completions near-deterministic.
	loopTemperature = 0.15
)

// Fallback replies. These are the only agent-authored strings a
// customer ever sees; everything else comes from the model.
const (
	fallbackError  = "Tive um erro rapidinho aqui. Pode repetir em uma frase?"
	fallbackBudget = "Ops! Meu sistema ficou preso aqui. Pode me dizer de novo o que você quer (passeio + data + pessoas)?"
)

// loopState names the phase of one turn's loop. The state space is
// small but naming it keeps the retry transitions testable on their
// own instead of buried in flag checks.
type loopState int

const (
	stateAwaitingModel loopState = iota
	stateHaveToolCall
	stateDone
	stateBudgetExhausted
)

// Catalog supplies the tour list rendered into the system prompt.
type Catalog interface {
	GetAllPasseios() ([]store.Passeio, error)
}

// Agent drives the loop for every customer conversation.
type Agent struct {
	llm     llm.Client
	tools   *tools.Executor
	convs   convstore.Store
	catalog Catalog
	logger  *slog.Logger
	bus     *events.Bus
	today   func() time.Time
}

// New wires an Agent. The catalog is usually the same store backing
// the tool executor.
func New(client llm.Client, exec *tools.Executor, convs convstore.Store, catalog Catalog, logger *slog.Logger) *Agent {
	return &Agent{
		llm:     client,
		tools:   exec,
		convs:   convs,
		catalog: catalog,
		logger:  logger,
		today:   extract.Today,
	}
}

// SetEventBus attaches an observability bus. Optional; a nil bus is a
// no-op on publish.
func (a *Agent) SetEventBus(b *events.Bus) { a.bus = b }

// ProcessMessage is the single entry point for the transport layer. It
// always returns a reply string; internal failures degrade to a fixed
// fallback so the webhook can always answer the customer.
func (a *Agent) ProcessMessage(ctx context.Context, telefone, text string) (reply string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("message processing panicked", "telefone", telefone, "panic", r)
			reply = fallbackError
		}
	}()

	a.logger.Info("message received", "telefone", telefone, "chars", len(text))
	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindMessageReceived,
		Data:   map[string]any{"telefone": telefone, "chars": len(text)},
	})

	c := a.convs.Load(ctx, telefone)
	c.Append(conv.RoleUser, text)
	extract.Apply(c, text, a.today())
	a.resolveMenuSelection(c, text)

	reply = a.runLoop(ctx, c, text)

	c.Append(conv.RoleAssistant, reply)
	c.Trim()
	if err := a.convs.Save(ctx, c); err != nil {
		a.logger.Warn("conversation save failed", "telefone", telefone, "error", err)
	}

	a.logger.Info("message answered",
		"telefone", telefone,
		"duration", time.Since(start),
		"history", len(c.History),
	)
	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindMessageAnswered,
		Data:   map[string]any{"telefone": telefone, "elapsed_ms": time.Since(start).Milliseconds()},
	})
	return reply
}

// resolveMenuSelection maps a bare-number reply onto the last numbered
// menu shown to the customer. A hit selects the tour, clears the menu,
// and leaves an instruction for the model so it continues the booking
// instead of re-listing options.
func (a *Agent) resolveMenuSelection(c *conv.Conversation, text string) {
	if !c.Slots.HasMenu() {
		return
	}
	n, ok := extract.MenuSelection(text, len(c.Slots.OptionIDs))
	if !ok {
		return
	}
	nome := c.Slots.OptionList[n-1]
	c.Slots.PasseioID = c.Slots.OptionIDs[n-1]
	c.Slots.PasseioNome = nome
	c.Slots.ClearMenu()
	c.Append(conv.RoleSystem, fmt.Sprintf(
		"INSTRUÇÃO: O cliente escolheu a opção %d (%s). Prossiga a reserva com esse passeio e pergunte apenas o que ainda falta.",
		n, nome))
	a.logger.Debug("menu selection resolved", "telefone", c.Telefone, "opcao", n, "passeio", nome)
}

// runLoop executes the bounded model/tool cycle and returns the final
// reply text.
func (a *Agent) runLoop(ctx context.Context, c *conv.Conversation, userMessage string) string {
	t := &turn{
		agent:       a,
		conv:        c,
		userMessage: userMessage,
		state:       stateAwaitingModel,
	}

	for step := 0; step < maxSteps && t.state != stateDone; step++ {
		if err := t.step(ctx); err != nil {
			a.logger.Error("model call failed", "telefone", c.Telefone, "step", step, "error", err)
			return fallbackError
		}
	}

	if t.state != stateDone {
		t.state = stateBudgetExhausted
		a.logger.Warn("loop budget exhausted", "telefone", c.Telefone)
		return fallbackBudget
	}
	return t.reply
}

// turn holds the mutable state of one loop run.
type turn struct {
	agent       *Agent
	conv        *conv.Conversation
	userMessage string

	state         loopState
	reply         string
	hasToolResult bool
}

// step performs one loop iteration: one model call and, when the model
// asked for one, one tool execution.
func (t *turn) step(ctx context.Context) error {
	a := t.agent

	out, err := a.llm.Complete(ctx, a.buildMessages(t.conv), llm.Options{Temperature: loopTemperature})
	if err != nil {
		return err
	}

	calls := toolcall.Parse(out)
	if len(calls) == 0 {
		t.classifyProse(out)
		return nil
	}

	// Only the first call is honored; a model emitting several is
	// assumed to want them one at a time. The raw output stays in
	// history for auditability.
	t.state = stateHaveToolCall
	first := calls[0]
	t.conv.Append(conv.RoleAssistant, out)

	res := a.tools.Execute(ctx, first.Name, first.Params, t.conv)
	t.conv.Append(conv.RoleSystem, toolResultMessage(first.Name, res))
	t.hasToolResult = true
	t.state = stateAwaitingModel
	return nil
}

// classifyProse decides what to do with a completion that contains no
// tool call: accept it as the final reply or inject a corrective
// instruction and keep looping.
func (t *turn) classifyProse(out string) {
	cleaned := stripEmoji(toolcall.Strip(out))

	if cleaned == "" {
		if t.hasToolResult {
			t.instruct(instrAnswerFromResult)
		} else {
			t.instruct(instrEmptyReply)
		}
		return
	}

	stall := looksLikeStall(cleaned)
	hallucinated := looksLikeHallucinatedToolResult(cleaned)

	if !t.hasToolResult {
		// Before any tool has run this turn the model must not narrate,
		// fabricate results, or answer price/action questions from
		// memory. A genuine clarifying question is always allowed
		// through.
		force := stall || hallucinated ||
			(shouldForceTool(t.userMessage) &&
				!historyHasToolResult(t.conv) &&
				!looksLikeQuestion(cleaned))
		if force {
			t.instruct(instrForceTool)
			return
		}
	} else if stall || hallucinated {
		// Real data exists; stalling again would loop forever, so
		// redirect the model at the last result instead.
		t.instruct(instrAnswerFromResult)
		return
	}

	t.reply = cleaned
	t.state = stateDone
}

func (t *turn) instruct(msg string) {
	t.conv.Append(conv.RoleSystem, msg)
	t.state = stateAwaitingModel
}

// toolResultMessage wraps an executed tool's result in the marker the
// system prompt teaches the model to expect. This exact text must
// never reach the customer; classifyProse rejects replies containing
// it.
func toolResultMessage(name string, res tools.Result) string {
	b, err := json.Marshal(res)
	if err != nil {
		b = []byte(`{"success":false}`)
	}
	return fmt.Sprintf("<tool_result name=%q>%s</tool_result>", name, b)
}

func historyHasToolResult(c *conv.Conversation) bool {
	for _, m := range c.History {
		if m.Role == conv.RoleSystem && containsToolResultMarker(m.Content) {
			return true
		}
	}
	return false
}
