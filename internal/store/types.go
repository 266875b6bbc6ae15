// Package store provides the SQLite-backed booking store: customers,
// tour catalog, reservations, charges, and knowledge chunks.
package store

import (
	"math/rand/v2"
	"time"
)

// Reservation and charge statuses.
const (
	StatusPendente   = "PENDENTE"
	StatusConfirmado = "CONFIRMADO"
	StatusCancelado  = "CANCELADO"
	StatusExpirado   = "EXPIRADO"
)

// Charge types.
const (
	TipoPix    = "PIX"
	TipoBoleto = "BOLETO"
)

// Cliente is a customer record, keyed by phone number.
type Cliente struct {
	ID        string    `json:"id"`
	Nome      string    `json:"nome"`
	Telefone  string    `json:"telefone"`
	Email     string    `json:"email,omitempty"`
	CPF       string    `json:"cpf,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Passeio is a catalog entry for a bookable tour. PrecoMin and PrecoMax
// are nil when the tour has no price data; when they differ the price is
// a range and must be confirmed before charging.
type Passeio struct {
	ID        string   `json:"id"`
	Nome      string   `json:"nome"`
	Categoria string   `json:"categoria,omitempty"`
	Descricao string   `json:"descricao,omitempty"`
	Local     string   `json:"local,omitempty"`
	Duracao   string   `json:"duracao,omitempty"`
	PrecoMin  *float64 `json:"preco_min,omitempty"`
	PrecoMax  *float64 `json:"preco_max,omitempty"`
	Includes  string   `json:"includes,omitempty"`
	Horarios  string   `json:"horarios,omitempty"`
}

// Reserva is a reservation row. DataPasseio is an ISO date (YYYY-MM-DD).
type Reserva struct {
	ID          string    `json:"id"`
	ClienteID   string    `json:"cliente_id"`
	PasseioID   string    `json:"passeio_id"`
	DataPasseio string    `json:"data_passeio"`
	NumPessoas  int       `json:"num_pessoas"`
	Voucher     string    `json:"voucher"`
	Status      string    `json:"status"`
	ValorTotal  float64   `json:"valor_total"`
	Observacoes string    `json:"observacoes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cobranca is a charge issued against a reservation via the payment
// provider. Vencimento is an ISO due date.
type Cobranca struct {
	ID           string  `json:"id"`
	ReservaID    string  `json:"reserva_id"`
	ClienteID    string  `json:"cliente_id"`
	AsaasID      string  `json:"asaas_id,omitempty"`
	Tipo         string  `json:"tipo"`
	Valor        float64 `json:"valor"`
	Status       string  `json:"status"`
	PixQRCode    string  `json:"pix_qrcode,omitempty"`
	PixCopiaCola string  `json:"pix_copiacola,omitempty"`
	BoletoURL    string  `json:"boleto_url,omitempty"`
	Vencimento   string  `json:"vencimento"`
	PagoEm       string  `json:"pago_em,omitempty"`
}

// KnowledgeChunk is a free-text knowledge-base entry served to the
// consultar_conhecimento tool.
type KnowledgeChunk struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// voucherAlphabet omits confusable characters (0/O, 1/I/L).
const voucherAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateVoucherCode returns a customer-facing booking code: a fixed
// "CB" prefix followed by eight characters from voucherAlphabet.
func GenerateVoucherCode() string {
	code := make([]byte, 0, 10)
	code = append(code, 'C', 'B')
	for i := 0; i < 8; i++ {
		code = append(code, voucherAlphabet[rand.IntN(len(voucherAlphabet))])
	}
	return string(code)
}
