// Package tools implements the booking-domain tools the agent can call.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
	"github.com/calebstour/caleb-sales-agent/internal/events"
	"github.com/calebstour/caleb-sales-agent/internal/extract"
	"github.com/calebstour/caleb-sales-agent/internal/payment"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

// BookingStore is the subset of the booking store the tools need.
type BookingStore interface {
	GetOrCreateCliente(telefone, nome string) (*store.Cliente, error)
	GetClienteByID(id string) (*store.Cliente, error)
	GetAllPasseios() ([]store.Passeio, error)
	GetPasseioByID(id string) (*store.Passeio, error)
	CreateReserva(r *store.Reserva) error
	GetReservaByID(id string) (*store.Reserva, error)
	GetReservaByVoucher(voucher string) (*store.Reserva, error)
	UpdateReservaStatus(id, status string) error
	CreateCobranca(c *store.Cobranca) error
	GetPendingCobrancaByReservaID(reservaID, tipo string) (*store.Cobranca, error)
	GetAllKnowledgeChunks() ([]store.KnowledgeChunk, error)
}

// PaymentProvider is the billing API surface used by gerar_pagamento.
type PaymentProvider interface {
	FindOrCreateCustomer(ctx context.Context, name, cpfCnpj, email, phone string) (*payment.Customer, error)
	CreatePixCharge(ctx context.Context, customerID string, value float64, description, externalRef string) (*payment.Payment, *payment.PixQRCode, error)
	CreateBoletoCharge(ctx context.Context, customerID string, value float64, description, externalRef string) (*payment.Payment, error)
}

// Result is the uniform envelope every tool returns. It is serialized
// verbatim into the tool-result message fed back to the model.
type Result struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

// ResultError carries a machine-readable failure.
type ResultError struct {
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Missing []string       `json:"missing,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func ok(data any) Result {
	return Result{Success: true, Data: data}
}

func fail(code, message string) Result {
	return Result{Success: false, Error: &ResultError{Code: code, Message: message}}
}

func failMissing(message string, missing []string) Result {
	return Result{Success: false, Error: &ResultError{Code: "missing_fields", Message: message, Missing: missing}}
}

func failDetails(code, message string, details map[string]any) Result {
	return Result{Success: false, Error: &ResultError{Code: code, Message: message, Details: details}}
}

// Tool describes a callable tool for the system prompt.
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params"`

	handler func(ctx context.Context, params map[string]any, c *conv.Conversation) Result
}

// Executor dispatches tool calls against the booking store and the
// payment provider.
type Executor struct {
	store     BookingStore
	payments  PaymentProvider
	knowledge *knowledgeCache
	logger    *slog.Logger
	bus       *events.Bus

	// today is the reference date for resolving relative user dates.
	// Injectable so tests are deterministic.
	today func() time.Time

	tools map[string]*Tool
	order []string
}

// NewExecutor creates the executor with the full tool set registered.
func NewExecutor(st BookingStore, pay PaymentProvider, logger *slog.Logger) *Executor {
	e := &Executor{
		store:     st,
		payments:  pay,
		knowledge: newKnowledgeCache(5 * time.Minute),
		logger:    logger,
		today:     extract.Today,
		tools:     make(map[string]*Tool),
	}
	e.registerBuiltins()
	return e
}

// SetEventBus attaches an observability bus. Optional; a nil bus is a
// no-op on publish.
func (e *Executor) SetEventBus(b *events.Bus) { e.bus = b }

func (e *Executor) register(t *Tool) {
	e.tools[t.Name] = t
	e.order = append(e.order, t.Name)
}

func (e *Executor) registerBuiltins() {
	e.register(&Tool{
		Name:        "consultar_passeios",
		Description: "Busca passeios cadastrados com preços, duração, descrição e id.",
		Params:      map[string]string{"termo": "string opcional para filtrar por nome/categoria/local"},
		handler:     e.handleConsultarPasseios,
	})
	e.register(&Tool{
		Name:        "buscar_passeio_especifico",
		Description: "Busca um passeio específico por nome/categoria e retorna as melhores correspondências.",
		Params:      map[string]string{"termo": "string (obrigatório)"},
		handler:     e.handleBuscarPasseio,
	})
	e.register(&Tool{
		Name:        "consultar_conhecimento",
		Description: "Busca informações oficiais (FAQ/políticas/logística) na base de conhecimento.",
		Params:      map[string]string{"termo": "string (obrigatório)"},
		handler:     e.handleConsultarConhecimento,
	})
	e.register(&Tool{
		Name:        "criar_reserva",
		Description: "Cria uma reserva quando tiver nome, passeio, data e número de pessoas.",
		Params: map[string]string{
			"nome":        "string (obrigatório)",
			"passeio_id":  "uuid (recomendado) ou passeio (string) para buscar",
			"passeio":     "string (alternativo ao passeio_id)",
			"data":        "string (YYYY-MM-DD ou dd/mm)",
			"num_pessoas": "number",
		},
		handler: e.handleCriarReserva,
	})
	e.register(&Tool{
		Name:        "gerar_pagamento",
		Description: "Gera cobrança (PIX ou BOLETO) e salva a referência no banco local.",
		Params: map[string]string{
			"reserva_id":     "uuid",
			"tipo_pagamento": `"PIX" | "BOLETO" (opcional; padrão PIX)`,
			"cpf":            "string opcional",
			"email":          "string opcional",
		},
		handler: e.handleGerarPagamento,
	})
	e.register(&Tool{
		Name:        "gerar_voucher",
		Description: "Gera os dados do voucher para uma reserva confirmada.",
		Params:      map[string]string{"reserva_id": "uuid"},
		handler:     e.handleGerarVoucher,
	})
	e.register(&Tool{
		Name:        "cancelar_reserva",
		Description: "Cancela uma reserva por reserva_id ou voucher.",
		Params: map[string]string{
			"reserva_id": "uuid (opcional)",
			"voucher":    "string (opcional)",
			"motivo":     "string (opcional)",
		},
		handler: e.handleCancelarReserva,
	})
}

// List returns the registered tools in registration order, for prompt
// rendering.
func (e *Executor) List() []*Tool {
	out := make([]*Tool, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.tools[name])
	}
	return out
}

// Execute runs the named tool. Unknown names and handler panics are
// converted to structured errors so a tool failure never aborts the
// message flow.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any, c *conv.Conversation) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "tool", name, "panic", r)
			result = failDetails("tool_error", "Erro ao executar ferramenta.", map[string]any{"name": name})
		}
	}()

	tool, found := e.tools[name]
	if !found {
		return failDetails("unknown_tool", "Ferramenta desconhecida.", map[string]any{"name": name})
	}
	if params == nil {
		params = map[string]any{}
	}

	e.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindToolCall,
		Data:   map[string]any{"tool": name, "telefone": c.Telefone},
	})

	start := time.Now()
	result = tool.handler(ctx, params, c)
	e.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindToolDone,
		Data:   map[string]any{"tool": name, "ok": result.Success, "duration_ms": time.Since(start).Milliseconds()},
	})
	e.logger.Info("tool executed",
		"tool", name,
		"success", result.Success,
		"duration", time.Since(start),
		"telefone", c.Telefone)
	if !result.Success && result.Error != nil {
		e.logger.Debug("tool failed", "tool", name, "code", result.Error.Code, "message", result.Error.Message)
	}
	return result
}

// requireSafeToCharge blocks live charges outside production unless a
// sandbox override is set. The environment is consulted on every call
// so a test harness can flip it per test.
func requireSafeToCharge() error {
	if os.Getenv("APP_ENV") == "production" {
		return nil
	}

	sandboxRaw := strings.ToLower(os.Getenv("ASAAS_SANDBOX"))
	sandboxFlag := sandboxRaw == "true" || sandboxRaw == "1" || sandboxRaw == "yes"

	envRaw := strings.ToLower(os.Getenv("ASAAS_ENV"))
	baseURL := strings.ToLower(os.Getenv("ASAAS_BASE_URL"))

	sandbox := sandboxFlag || envRaw == "sandbox" || envRaw == "test" || strings.Contains(baseURL, "sandbox")
	if !sandbox {
		return fmt.Errorf("pagamentos em produção bloqueados fora de production (defina ASAAS_SANDBOX=true para testar localmente)")
	}
	return nil
}

// knowledgeCache holds the knowledge base for a short TTL so repeated
// lookups within a conversation do not hammer the store.
type knowledgeCache struct {
	mu        sync.Mutex
	chunks    []store.KnowledgeChunk
	fetchedAt time.Time
	ttl       time.Duration
}

func newKnowledgeCache(ttl time.Duration) *knowledgeCache {
	return &knowledgeCache{ttl: ttl}
}

func (k *knowledgeCache) get(fetch func() ([]store.KnowledgeChunk, error)) ([]store.KnowledgeChunk, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.chunks != nil && time.Since(k.fetchedAt) < k.ttl {
		return k.chunks, nil
	}

	chunks, err := fetch()
	if err != nil {
		return nil, err
	}
	k.chunks = chunks
	k.fetchedAt = time.Now()
	return chunks, nil
}
