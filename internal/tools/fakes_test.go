package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/payment"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

type fakeStore struct {
	clientes  map[string]*store.Cliente
	passeios  []store.Passeio
	reservas  map[string]*store.Reserva
	cobrancas []*store.Cobranca
	chunks    []store.KnowledgeChunk

	nextID int

	knowledgeFetches  int
	createReservaErr  error
	createCobrancaErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clientes: make(map[string]*store.Cliente),
		reservas: make(map[string]*store.Reserva),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) GetOrCreateCliente(telefone, nome string) (*store.Cliente, error) {
	for _, c := range f.clientes {
		if c.Telefone == telefone {
			if nome != "" && nome != c.Nome {
				c.Nome = nome
			}
			return c, nil
		}
	}
	if nome == "" {
		nome = "Cliente"
	}
	c := &store.Cliente{ID: f.id("cli"), Nome: nome, Telefone: telefone}
	f.clientes[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetClienteByID(id string) (*store.Cliente, error) {
	return f.clientes[id], nil
}

func (f *fakeStore) GetAllPasseios() ([]store.Passeio, error) {
	return f.passeios, nil
}

func (f *fakeStore) GetPasseioByID(id string) (*store.Passeio, error) {
	for i := range f.passeios {
		if f.passeios[i].ID == id {
			return &f.passeios[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateReserva(r *store.Reserva) error {
	if f.createReservaErr != nil {
		return f.createReservaErr
	}
	r.ID = f.id("res")
	r.CreatedAt = time.Now()
	f.reservas[r.ID] = r
	return nil
}

func (f *fakeStore) GetReservaByID(id string) (*store.Reserva, error) {
	return f.reservas[id], nil
}

func (f *fakeStore) GetReservaByVoucher(voucher string) (*store.Reserva, error) {
	for _, r := range f.reservas {
		if r.Voucher == voucher {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateReservaStatus(id, status string) error {
	r, found := f.reservas[id]
	if !found {
		return fmt.Errorf("reserva not found: %s", id)
	}
	r.Status = status
	return nil
}

func (f *fakeStore) CreateCobranca(c *store.Cobranca) error {
	if f.createCobrancaErr != nil {
		return f.createCobrancaErr
	}
	c.ID = f.id("cob")
	f.cobrancas = append(f.cobrancas, c)
	return nil
}

func (f *fakeStore) GetPendingCobrancaByReservaID(reservaID, tipo string) (*store.Cobranca, error) {
	for _, c := range f.cobrancas {
		if c.ReservaID == reservaID && c.Tipo == tipo && c.Status == store.StatusPendente {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetAllKnowledgeChunks() ([]store.KnowledgeChunk, error) {
	f.knowledgeFetches++
	return f.chunks, nil
}

type fakePayments struct {
	customers     int
	pixCharges    int
	boletoCharges int
}

func (f *fakePayments) FindOrCreateCustomer(_ context.Context, name, cpfCnpj, email, phone string) (*payment.Customer, error) {
	f.customers++
	return &payment.Customer{ID: "cus_1", Name: name, CpfCnpj: cpfCnpj, Email: email}, nil
}

func (f *fakePayments) CreatePixCharge(_ context.Context, customerID string, value float64, description, externalRef string) (*payment.Payment, *payment.PixQRCode, error) {
	f.pixCharges++
	return &payment.Payment{ID: fmt.Sprintf("pay_pix_%d", f.pixCharges), Customer: customerID, Value: value, BillingType: "PIX", Status: "PENDING", DueDate: "2025-06-11"},
		&payment.PixQRCode{EncodedImage: "aGVsbG8=", Payload: "00020126pix", ExpirationDate: "2025-06-11"}, nil
}

func (f *fakePayments) CreateBoletoCharge(_ context.Context, customerID string, value float64, description, externalRef string) (*payment.Payment, error) {
	f.boletoCharges++
	return &payment.Payment{ID: fmt.Sprintf("pay_bol_%d", f.boletoCharges), Customer: customerID, Value: value, BillingType: "BOLETO", Status: "PENDING", DueDate: "2025-06-13", BankSlipURL: "https://asaas.example/boleto"}, nil
}

func price(v float64) *float64 { return &v }

// seedCatalog loads a small catalog: one single-price boat tour, one
// range-priced buggy tour, one unpriced dive tour, plus a second boat
// entry for ambiguity cases.
func seedCatalog(f *fakeStore) {
	f.passeios = []store.Passeio{
		{ID: "p-barco", Nome: "Passeio de Barco", Categoria: "barco", Local: "Cabo Frio", PrecoMin: price(100), PrecoMax: price(100), Horarios: "Saídas às 9h30 e 14h00"},
		{ID: "p-buggy", Nome: "Passeio de Buggy", Categoria: "buggy", Local: "Dunas", PrecoMin: price(250), PrecoMax: price(350)},
		{ID: "p-mergulho", Nome: "Mergulho com Cilindro", Categoria: "mergulho", Local: "Ilha do Japonês"},
	}
}

func newTestExecutor(t *testing.T) (*Executor, *fakeStore, *fakePayments) {
	t.Helper()

	st := newFakeStore()
	pay := &fakePayments{}
	e := NewExecutor(st, pay, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.today = func() time.Time {
		return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	}
	return e, st, pay
}
