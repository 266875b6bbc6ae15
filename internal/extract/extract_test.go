package extract

import (
	"testing"
	"time"
)

func refDate(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
}

func TestResolveDate(t *testing.T) {
	today := refDate(t)

	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"hoje", "pode ser hoje", "2025-06-10", true},
		{"amanha", "amanhã", "2025-06-11", true},
		{"amanha no accent", "amanha de manha", "2025-06-11", true},
		{"depois de amanha", "depois de amanhã", "2025-06-12", true},
		{"iso", "dia 2025-07-01 por favor", "2025-07-01", true},
		{"br no year", "15/03", "2025-03-15", true},
		{"br two digit year", "05/01/26", "2026-01-05", true},
		{"br full year", "5/1/2027", "2027-01-05", true},
		{"br with dash", "15-03", "2025-03-15", true},
		{"invalid month", "15/13", "", false},
		{"weekday same day forced next", "terça que vem", "2025-06-17", true},
		{"weekday upcoming", "sexta", "2025-06-13", true},
		{"free text", "quero saber o preço", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDate(tt.input, today)
			if ok != tt.ok {
				t.Fatalf("ResolveDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ResolveDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPartySize(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"somos 3 pessoas", 3, true},
		{"duas pessoas", 2, true},
		{"4 adultos e 1 criança", 4, true},
		{"R$100 por pessoa", 0, false},
		{"quero reservar para 15/03", 0, false},
		{"vamos em dez pessoas", 10, true},
		{"2 pax", 2, true},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := PartySize(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("PartySize(%q) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCPF(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"meu cpf é 123.456.789-01", "12345678901", true},
		{"12345678901", "12345678901", true},
		{"cnpj 12.345.678/0001-95", "12345678000195", true},
		{"1234567890", "", false},
		{"somos 3 pessoas", "", false},
	}

	for _, tt := range tests {
		got, ok := CPF(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("CPF(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEmail(t *testing.T) {
	if got, ok := Email("manda pra ana.silva@example.com.br por favor"); !ok || got != "ana.silva@example.com.br" {
		t.Errorf("Email() = (%q, %v)", got, ok)
	}
	if _, ok := Email("sem email aqui"); ok {
		t.Error("Email() matched text without an address")
	}
}

func TestPaymentType(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"quero pagar no pix", "PIX", true},
		{"PIX", "PIX", true},
		{"prefiro boleto", "BOLETO", true},
		{"cartão de crédito", "", false},
	}

	for _, tt := range tests {
		got, ok := PaymentType(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("PaymentType(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"explicit intro", "meu nome é ana silva", "Ana Silva", true},
		{"sou o", "sou o joão pedro de souza", "João Pedro de Souza", true},
		{"before comma", "Maria da Conceição, quero reservar", "Maria da Conceição", true},
		{"tour request is not a name", "passeio de barco, amanhã", "", false},
		{"single word", "Ana, tudo bem?", "", false},
		{"digits", "Casa 42 rua b, reserva", "", false},
		{"no comma no intro", "quero reservar um passeio", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Name(tt.input)
			if ok != tt.ok {
				t.Fatalf("Name(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMenuSelection(t *testing.T) {
	tests := []struct {
		input   string
		menuLen int
		want    int
		ok      bool
	}{
		{"2", 5, 2, true},
		{"opção 3", 5, 3, true},
		{"numero 1", 3, 1, true},
		{"6", 5, 0, false},
		{"0", 5, 0, false},
		{"quero o segundo", 5, 0, false},
		{"2 pessoas", 5, 0, false},
		{"2", 0, 0, false},
	}

	for _, tt := range tests {
		got, ok := MenuSelection(tt.input, tt.menuLen)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MenuSelection(%q, %d) = (%d, %v), want (%d, %v)",
				tt.input, tt.menuLen, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Passeio de Barco!", "passeio de barco"},
		{"Catamarã  VIP", "catamara vip"},
		{"  aço & água  ", "aco agua"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
