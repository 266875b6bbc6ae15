package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/calebstour/caleb-sales-agent/internal/config"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

type fakeProcessor struct {
	reply    string
	telefone string
	text     string
}

func (p *fakeProcessor) ProcessMessage(_ context.Context, telefone, text string) string {
	p.telefone = telefone
	p.text = text
	return p.reply
}

type fakeSender struct {
	sent     []string
	sentTo   []string
	business []string
	err      error
}

func (s *fakeSender) SendWhatsApp(_ context.Context, to, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sentTo = append(s.sentTo, to)
	s.sent = append(s.sent, body)
	return nil
}

func (s *fakeSender) NotifyBusiness(_ context.Context, body string) error {
	if s.err != nil {
		return s.err
	}
	s.business = append(s.business, body)
	return nil
}

type fakeBookingStore struct {
	cobrancas map[string]*store.Cobranca // keyed by asaas id
	reservas  map[string]*store.Reserva
	clientes  map[string]*store.Cliente
	passeios  map[string]*store.Passeio
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		cobrancas: make(map[string]*store.Cobranca),
		reservas:  make(map[string]*store.Reserva),
		clientes:  make(map[string]*store.Cliente),
		passeios:  make(map[string]*store.Passeio),
	}
}

// Lookup misses return (nil, nil), matching the sqlite store.

func (f *fakeBookingStore) GetCobrancaByAsaasID(asaasID string) (*store.Cobranca, error) {
	return f.cobrancas[asaasID], nil
}

func (f *fakeBookingStore) UpdateCobrancaByAsaasID(asaasID, status, pagoEm string) (*store.Cobranca, error) {
	c, ok := f.cobrancas[asaasID]
	if !ok {
		return nil, nil
	}
	c.Status = status
	if pagoEm != "" {
		c.PagoEm = pagoEm
	}
	return c, nil
}

func (f *fakeBookingStore) GetReservaByID(id string) (*store.Reserva, error) {
	return f.reservas[id], nil
}

func (f *fakeBookingStore) UpdateReservaStatus(id, status string) error {
	r, ok := f.reservas[id]
	if !ok {
		return fmt.Errorf("reserva not found: %s", id)
	}
	r.Status = status
	return nil
}

func (f *fakeBookingStore) GetClienteByID(id string) (*store.Cliente, error) {
	return f.clientes[id], nil
}

func (f *fakeBookingStore) GetPasseioByID(id string) (*store.Passeio, error) {
	return f.passeios[id], nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Groq.APIKey = "gsk_test"
	cfg.Asaas.APIKey = "asaas_test"
	cfg.Asaas.WebhookToken = "segredo"
	cfg.Twilio.AccountSID = "AC123"
	cfg.Twilio.AuthToken = "tok"
	return cfg
}

func newTestServer(t *testing.T) (*Server, *fakeProcessor, *fakeSender, *fakeBookingStore) {
	t.Helper()
	proc := &fakeProcessor{reply: "Oi! Como posso ajudar?"}
	sender := &fakeSender{}
	st := newFakeBookingStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(testConfig(), proc, sender, st, logger)
	return srv, proc, sender, st
}

func seedConfirmable(st *fakeBookingStore) {
	st.clientes["cli-1"] = &store.Cliente{
		ID:       "cli-1",
		Nome:     "Ana Silva",
		Telefone: "+5522999999999",
		Email:    "ana@example.com",
	}
	st.passeios["p-barco"] = &store.Passeio{
		ID:       "p-barco",
		Nome:     "Passeio de Barco",
		Local:    "Cais de Cabo Frio",
		Horarios: "Saídas às 9:30 e 14:00",
	}
	st.reservas["res-1"] = &store.Reserva{
		ID:          "res-1",
		ClienteID:   "cli-1",
		PasseioID:   "p-barco",
		DataPasseio: "2025-06-11",
		NumPessoas:  2,
		Voucher:     "CBQK7M2XWP",
		Status:      store.StatusPendente,
		ValorTotal:  200,
	}
	st.cobrancas["pay_123"] = &store.Cobranca{
		ID:           "cob-1",
		ReservaID:    "res-1",
		ClienteID:    "cli-1",
		AsaasID:      "pay_123",
		Tipo:         store.TipoPix,
		Valor:        200,
		Status:       store.StatusPendente,
		PixCopiaCola: "00020126pix",
	}
}

func postAsaas(srv *Server, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/asaas", strings.NewReader(body))
	if token != "" {
		req.Header.Set("asaas-access-token", token)
	}
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

func TestWhatsAppWebhookRepliesTwiML(t *testing.T) {
	srv, proc, _, _ := newTestServer(t)
	proc.reply = "O passeio custa R$ 100 & sai às 9:30"

	form := url.Values{}
	form.Set("From", "whatsapp:+5522988887777")
	form.Set("Body", "quanto custa o barco?")
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}
	if proc.telefone != "+5522988887777" {
		t.Errorf("telefone = %q, want prefix stripped", proc.telefone)
	}
	if proc.text != "quanto custa o barco?" {
		t.Errorf("text = %q", proc.text)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Response><Message>") {
		t.Errorf("body missing TwiML envelope: %s", body)
	}
	if !strings.Contains(body, "R$ 100 &amp; sai") {
		t.Errorf("reply not XML-escaped: %s", body)
	}
}

func TestWhatsAppWebhookMissingFieldsStill200(t *testing.T) {
	srv, proc, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("From=whatsapp%3A%2B55229"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Response>") {
		t.Errorf("expected empty TwiML, got %s", w.Body.String())
	}
	if proc.text != "" {
		t.Errorf("agent should not run without a message body")
	}
}

func TestAsaasWebhookRejectsBadToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := postAsaas(srv, "errado", `{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_123"}}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAsaasWebhookAcceptsBearerAndQueryToken(t *testing.T) {
	srv, _, _, st := newTestServer(t)
	seedConfirmable(st)

	req := httptest.NewRequest(http.MethodPost, "/webhook/asaas",
		strings.NewReader(`{"event":"PAYMENT_OVERDUE","payment":{"id":"pay_123"}}`))
	req.Header.Set("Authorization", "Bearer segredo")
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer token: status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook/asaas?token=segredo",
		strings.NewReader(`{"event":"PAYMENT_OVERDUE","payment":{"id":"pay_123"}}`))
	w = httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("query token: status = %d, want 200", w.Code)
	}
}

func TestAsaasPaymentConfirmedDeliversVoucher(t *testing.T) {
	srv, _, sender, st := newTestServer(t)
	seedConfirmable(st)

	var emailedTo string
	srv.smtp.Host = "mail.example.com"
	srv.smtp.From = "Caleb's Tour <reservas@example.com>"
	srv.smtpSend = func(_ context.Context, _ config.SMTPConfig, _, to string, _ []byte) error {
		emailedTo = to
		return nil
	}

	w := postAsaas(srv, "segredo", `{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_123","value":200}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Errorf("body = %s, want received:true", w.Body.String())
	}

	if got := st.cobrancas["pay_123"].Status; got != store.StatusConfirmado {
		t.Errorf("cobranca status = %q, want CONFIRMADO", got)
	}
	if st.cobrancas["pay_123"].PagoEm == "" {
		t.Errorf("pago_em not recorded")
	}
	if got := st.reservas["res-1"].Status; got != store.StatusConfirmado {
		t.Errorf("reserva status = %q, want CONFIRMADO", got)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d whatsapp messages, want 1", len(sender.sent))
	}
	if sender.sentTo[0] != "+5522999999999" {
		t.Errorf("voucher sent to %q", sender.sentTo[0])
	}
	msg := sender.sent[0]
	for _, want := range []string{"CBQK7M2XWP", "Passeio de Barco", "2025-06-11", "Ana Silva"} {
		if !strings.Contains(msg, want) {
			t.Errorf("voucher message missing %q:\n%s", want, msg)
		}
	}

	if len(sender.business) != 1 {
		t.Fatalf("business notified %d times, want 1", len(sender.business))
	}
	if !strings.Contains(sender.business[0], "NOVA RESERVA CONFIRMADA") {
		t.Errorf("business alert = %q", sender.business[0])
	}

	if emailedTo != "ana@example.com" {
		t.Errorf("voucher emailed to %q, want ana@example.com", emailedTo)
	}
}

func TestAsaasPaymentConfirmedIsIdempotent(t *testing.T) {
	srv, _, sender, st := newTestServer(t)
	seedConfirmable(st)
	st.cobrancas["pay_123"].Status = store.StatusConfirmado

	w := postAsaas(srv, "segredo", `{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_123"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(sender.sent) != 0 || len(sender.business) != 0 {
		t.Errorf("redelivered event must not resend messages")
	}
}

func TestAsaasPaymentOverdueExpires(t *testing.T) {
	srv, _, _, st := newTestServer(t)
	seedConfirmable(st)

	postAsaas(srv, "segredo", `{"event":"PAYMENT_OVERDUE","payment":{"id":"pay_123"}}`)

	if got := st.cobrancas["pay_123"].Status; got != store.StatusExpirado {
		t.Errorf("cobranca status = %q, want EXPIRADO", got)
	}
	if got := st.reservas["res-1"].Status; got != store.StatusExpirado {
		t.Errorf("reserva status = %q, want EXPIRADO", got)
	}
}

func TestAsaasPaymentRefundedCancels(t *testing.T) {
	srv, _, _, st := newTestServer(t)
	seedConfirmable(st)

	postAsaas(srv, "segredo", `{"event":"PAYMENT_REFUNDED","payment":{"id":"pay_123"}}`)

	if got := st.reservas["res-1"].Status; got != store.StatusCancelado {
		t.Errorf("reserva status = %q, want CANCELADO", got)
	}
}

func TestAsaasUnknownEventAcknowledged(t *testing.T) {
	srv, _, sender, st := newTestServer(t)
	seedConfirmable(st)

	w := postAsaas(srv, "segredo", `{"event":"PAYMENT_CREATED","payment":{"id":"pay_123"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if len(sender.sent) != 0 {
		t.Errorf("unknown event must not trigger messages")
	}
}

func TestAsaasUnknownPaymentIDAcknowledged(t *testing.T) {
	srv, _, sender, _ := newTestServer(t)

	for _, event := range []string{"PAYMENT_CONFIRMED", "PAYMENT_RECEIVED", "PAYMENT_OVERDUE", "PAYMENT_REFUNDED"} {
		w := postAsaas(srv, "segredo", `{"event":"`+event+`","payment":{"id":"pay_unknown"}}`)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", event, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"received":true`) {
			t.Errorf("%s: body = %s, want received:true", event, w.Body.String())
		}
	}
	if len(sender.sent) != 0 || len(sender.business) != 0 {
		t.Errorf("unknown charge must not trigger messages")
	}
}

func TestAsaasMissingPaymentIDRejected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := postAsaas(srv, "segredo", `{"event":"PAYMENT_CONFIRMED","payment":{}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAsaasWebhookBadJSON(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := postAsaas(srv, "segredo", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHealthReportsConfiguredServices(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"status":"ok"`, `"llm":true`, `"whatsapp":true`, `"email":false`} {
		if !strings.Contains(body, want) {
			t.Errorf("health body missing %s: %s", want, body)
		}
	}
}
