package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/events"
	"github.com/calebstour/caleb-sales-agent/internal/store"
	"github.com/calebstour/caleb-sales-agent/internal/tools"
	"github.com/calebstour/caleb-sales-agent/internal/voucher"
)

// asaasEvent is the subset of the Asaas webhook payload the handler
// reads. Everything else in the payload is ignored.
type asaasEvent struct {
	Event   string `json:"event"`
	Payment struct {
		ID    string  `json:"id"`
		Value float64 `json:"value"`
	} `json:"payment"`
}

// webhookAuthToken extracts the caller-supplied token. Asaas sends
// asaas-access-token, but proxies and manual configurations vary, so
// the common alternates are accepted too.
func webhookAuthToken(r *http.Request) string {
	for _, h := range []string{"asaas-access-token", "asaas-token", "x-asaas-token", "x-webhook-token"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleAsaasStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":   "ok",
		"endpoint": "asaas-webhook",
	}, s.logger)
}

// handleAsaasWebhook applies a payment status change to the stored
// charge and reservation. Asaas retries on non-2xx, so handler-side
// failures after auth are logged and still acknowledged.
func (s *Server) handleAsaasWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookToken != "" && webhookAuthToken(r) != s.webhookToken {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"error": "unauthorized"}, s.logger)
		return
	}

	var ev asaasEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"error": "invalid payload"}, s.logger)
		return
	}
	if ev.Payment.ID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"error": "missing payment id"}, s.logger)
		return
	}

	s.logger.Info("asaas webhook", "event", ev.Event, "payment_id", ev.Payment.ID)

	switch ev.Event {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED":
		s.confirmPayment(r, ev)
	case "PAYMENT_OVERDUE":
		s.markPayment(ev, store.StatusExpirado)
	case "PAYMENT_DELETED", "PAYMENT_REFUNDED":
		s.markPayment(ev, store.StatusCancelado)
	default:
		s.logger.Debug("asaas webhook: event ignored", "event", ev.Event)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{"received": true}, s.logger)
}

// confirmPayment flips the charge and its reservation to CONFIRMADO and
// delivers the voucher. Redelivered events are detected by the charge
// already being confirmed and do nothing.
func (s *Server) confirmPayment(r *http.Request, ev asaasEvent) {
	ctx := r.Context()

	cob, err := s.store.GetCobrancaByAsaasID(ev.Payment.ID)
	if err != nil {
		s.logger.Error("asaas webhook: load charge", "payment_id", ev.Payment.ID, "error", err)
		return
	}
	if cob == nil {
		// Lookup misses are (nil, nil); a charge we never issued is
		// acked without action so the provider stops retrying.
		s.logger.Warn("asaas webhook: charge not found", "payment_id", ev.Payment.ID)
		return
	}
	if cob.Status == store.StatusConfirmado {
		s.logger.Debug("asaas webhook: charge already confirmed", "payment_id", ev.Payment.ID)
		return
	}

	pagoEm := time.Now().UTC().Format(time.RFC3339)
	cob, err = s.store.UpdateCobrancaByAsaasID(ev.Payment.ID, store.StatusConfirmado, pagoEm)
	if err != nil {
		s.logger.Error("asaas webhook: update charge", "payment_id", ev.Payment.ID, "error", err)
		return
	}
	if cob == nil {
		s.logger.Warn("asaas webhook: charge vanished during update", "payment_id", ev.Payment.ID)
		return
	}
	if err := s.store.UpdateReservaStatus(cob.ReservaID, store.StatusConfirmado); err != nil {
		s.logger.Error("asaas webhook: update reservation", "reserva_id", cob.ReservaID, "error", err)
	}

	s.bus.Publish(events.Event{
		Source: events.SourcePayment,
		Kind:   events.KindChargeConfirmed,
		Data: map[string]any{
			"payment_id": ev.Payment.ID,
			"reserva_id": cob.ReservaID,
			"valor":      cob.Valor,
		},
	})

	res, err := s.store.GetReservaByID(cob.ReservaID)
	if err != nil || res == nil {
		s.logger.Error("asaas webhook: load reservation", "reserva_id", cob.ReservaID, "error", err)
		return
	}
	cli, err := s.store.GetClienteByID(res.ClienteID)
	if err != nil || cli == nil {
		s.logger.Error("asaas webhook: load customer", "cliente_id", res.ClienteID, "error", err)
		return
	}

	d := voucher.Data{
		Voucher:      res.Voucher,
		ClienteNome:  cli.Nome,
		ClienteEmail: cli.Email,
		Data:         res.DataPasseio,
		NumPessoas:   res.NumPessoas,
		ValorTotal:   res.ValorTotal,
		PixCopiaCola: cob.PixCopiaCola,
	}
	if pas, err := s.store.GetPasseioByID(res.PasseioID); err == nil && pas != nil {
		d.PasseioNome = pas.Nome
		d.Horario = tools.FormatHorarios(pas.Horarios)
		d.PontoEncontro = tools.FormatPontoEncontro(pas.Local)
	} else {
		s.logger.Warn("asaas webhook: load tour", "passeio_id", res.PasseioID, "error", err)
	}

	if err := s.sender.SendWhatsApp(ctx, cli.Telefone, voucher.WhatsAppMessage(d)); err != nil {
		s.logger.Error("asaas webhook: send voucher", "telefone", cli.Telefone, "error", err)
	} else {
		s.bus.Publish(events.Event{
			Source: events.SourcePayment,
			Kind:   events.KindVoucherSent,
			Data: map[string]any{
				"telefone": cli.Telefone,
				"voucher":  res.Voucher,
			},
		})
	}

	s.sendVoucherEmail(d)
	s.notifyBusinessConfirmed(ctx, d, cli.Telefone)
}

// markPayment applies a terminal non-success status (EXPIRADO or
// CANCELADO) to the charge and its reservation.
func (s *Server) markPayment(ev asaasEvent, status string) {
	cob, err := s.store.UpdateCobrancaByAsaasID(ev.Payment.ID, status, "")
	if err != nil {
		s.logger.Warn("asaas webhook: update charge", "payment_id", ev.Payment.ID, "status", status, "error", err)
		return
	}
	if cob == nil {
		s.logger.Warn("asaas webhook: charge not found", "payment_id", ev.Payment.ID, "status", status)
		return
	}
	if err := s.store.UpdateReservaStatus(cob.ReservaID, status); err != nil {
		s.logger.Error("asaas webhook: update reservation", "reserva_id", cob.ReservaID, "status", status, "error", err)
		return
	}
	s.logger.Info("payment closed", "payment_id", ev.Payment.ID, "reserva_id", cob.ReservaID, "status", status)
}

// sendVoucherEmail emails the voucher with the PIX receipt QR code.
// Skipped when SMTP is unconfigured or the customer left no address.
func (s *Server) sendVoucherEmail(d voucher.Data) {
	if s.smtp.Host == "" || d.ClienteEmail == "" {
		return
	}
	msg, err := voucher.ComposeEmail(s.smtp.From, d.ClienteEmail, d)
	if err != nil {
		s.logger.Error("voucher email: compose", "to", d.ClienteEmail, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.smtpSend(ctx, s.smtp, s.smtp.From, d.ClienteEmail, msg); err != nil {
		s.logger.Error("voucher email: send", "to", d.ClienteEmail, "error", err)
		return
	}
	s.logger.Info("voucher email sent", "to", d.ClienteEmail, "voucher", d.Voucher)
}

func (s *Server) notifyBusinessConfirmed(ctx context.Context, d voucher.Data, telefone string) {
	var b strings.Builder
	b.WriteString("NOVA RESERVA CONFIRMADA\n\n")
	fmt.Fprintf(&b, "Cliente: %s\n", d.ClienteNome)
	fmt.Fprintf(&b, "Telefone: %s\n", telefone)
	fmt.Fprintf(&b, "Passeio: %s\n", d.PasseioNome)
	fmt.Fprintf(&b, "Data: %s\n", d.Data)
	fmt.Fprintf(&b, "Pessoas: %d\n", d.NumPessoas)
	fmt.Fprintf(&b, "Valor: R$ %.2f\n", d.ValorTotal)
	fmt.Fprintf(&b, "Voucher: %s", d.Voucher)

	if err := s.sender.NotifyBusiness(ctx, b.String()); err != nil {
		s.logger.Warn("notify business", "error", err)
		return
	}
	s.bus.Publish(events.Event{
		Source: events.SourcePayment,
		Kind:   events.KindBusinessNotified,
		Data:   map[string]any{"voucher": d.Voucher},
	})
}
