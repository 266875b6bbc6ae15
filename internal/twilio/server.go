package twilio

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/buildinfo"
	"github.com/calebstour/caleb-sales-agent/internal/config"
	"github.com/calebstour/caleb-sales-agent/internal/events"
	"github.com/calebstour/caleb-sales-agent/internal/store"
	"github.com/calebstour/caleb-sales-agent/internal/voucher"
)

// MessageProcessor produces the assistant reply for one inbound
// WhatsApp message. Satisfied by *agent.Agent.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, telefone, text string) string
}

// BookingStore is the slice of the store the payment webhook needs.
type BookingStore interface {
	GetCobrancaByAsaasID(asaasID string) (*store.Cobranca, error)
	UpdateCobrancaByAsaasID(asaasID, status, pagoEm string) (*store.Cobranca, error)
	GetReservaByID(id string) (*store.Reserva, error)
	UpdateReservaStatus(id, status string) error
	GetClienteByID(id string) (*store.Cliente, error)
	GetPasseioByID(id string) (*store.Passeio, error)
}

// Server is the webhook HTTP server.
type Server struct {
	address      string
	port         int
	agent        MessageProcessor
	sender       Sender
	store        BookingStore
	smtp         config.SMTPConfig
	smtpSend     func(ctx context.Context, cfg config.SMTPConfig, from, to string, msg []byte) error
	webhookToken string
	services     map[string]bool
	logger       *slog.Logger
	bus          *events.Bus
	server       *http.Server
	mounts       map[string]http.Handler
}

// NewServer wires the webhook server. The health endpoint reports which
// optional integrations the config enables.
func NewServer(cfg *config.Config, agent MessageProcessor, sender Sender, st BookingStore, logger *slog.Logger) *Server {
	return &Server{
		address:      cfg.Listen.Address,
		port:         cfg.Listen.Port,
		agent:        agent,
		sender:       sender,
		store:        st,
		smtp:         cfg.SMTP,
		smtpSend:     voucher.SendMail,
		webhookToken: cfg.Asaas.WebhookToken,
		services: map[string]bool{
			"llm":      cfg.Groq.APIKey != "",
			"payments": cfg.Asaas.APIKey != "",
			"whatsapp": cfg.Twilio.AccountSID != "",
			"email":    cfg.SMTP.Host != "",
			"redis":    cfg.Redis.Addr != "",
		},
		logger: logger,
		mounts: make(map[string]http.Handler),
	}
}

// SetEventBus attaches the event bus. Safe to skip; publishing to a nil
// bus is a no-op.
func (s *Server) SetEventBus(b *events.Bus) { s.bus = b }

// Mount registers an extra handler (the operator console) on the
// server's mux. Must be called before Start.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mounts[pattern] = h
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook/whatsapp", s.handleWhatsAppWebhook)
	mux.HandleFunc("POST /webhook/asaas", s.handleAsaasWebhook)
	mux.HandleFunc("GET /webhook/asaas", s.handleAsaasStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}
	return mux
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting webhook server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// twimlResponse is the minimal TwiML document Twilio expects back from
// a messaging webhook.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func (s *Server) writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		s.logger.Error("marshal twiml", "error", err)
		fmt.Fprint(w, "<Response></Response>")
		return
	}
	w.Write(out)
}

// handleWhatsAppWebhook answers an inbound message with inline TwiML.
// Twilio redelivers on non-2xx, so every outcome, including failures,
// is a 200 with a (possibly empty) TwiML body.
func (s *Server) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.Warn("whatsapp webhook: bad form", "error", err)
		s.writeTwiML(w, "")
		return
	}

	telefone := StripWhatsAppPrefix(r.FormValue("From"))
	body := r.FormValue("Body")
	if telefone == "" || body == "" {
		s.logger.Warn("whatsapp webhook: missing From or Body")
		s.writeTwiML(w, "")
		return
	}

	reply := s.agent.ProcessMessage(r.Context(), telefone, body)
	s.writeTwiML(w, reply)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":   "ok",
		"version":  buildinfo.Version,
		"services": s.services,
	}, s.logger)
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}
