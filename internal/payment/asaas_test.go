package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFindOrCreateCustomerReusesByCpf(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/customers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("cpfCnpj"); got != "12345678901" {
			t.Errorf("expected digits-only cpf lookup, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "cus_1", "name": "Ana Silva", "cpfCnpj": "12345678901"}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "key", testLogger())
	customer, err := client.FindOrCreateCustomer(context.Background(), "Ana Silva", "123.456.789-01", "", "")
	if err != nil {
		t.Fatalf("FindOrCreateCustomer failed: %v", err)
	}
	if customer.ID != "cus_1" {
		t.Errorf("expected existing customer cus_1, got %q", customer.ID)
	}
}

func TestFindOrCreateCustomerCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
			return
		}
		if got := r.Header.Get("access_token"); got != "key" {
			t.Errorf("unexpected access_token %q", got)
		}
		json.NewDecoder(r.Body).Decode(&created)
		json.NewEncoder(w).Encode(map[string]any{"id": "cus_2", "name": created["name"]})
	}))
	defer server.Close()

	client := New(server.URL, "key", testLogger())
	customer, err := client.FindOrCreateCustomer(context.Background(), "Ana Silva", "12345678901", "ana@example.com", "+55 (22) 99999-0000")
	if err != nil {
		t.Fatalf("FindOrCreateCustomer failed: %v", err)
	}
	if customer.ID != "cus_2" {
		t.Errorf("expected created customer, got %q", customer.ID)
	}
	if created["mobilePhone"] != "5522999990000" {
		t.Errorf("expected digits-only phone, got %v", created["mobilePhone"])
	}
	if created["email"] != "ana@example.com" {
		t.Errorf("email not forwarded: %v", created["email"])
	}
}

func TestCreatePixCharge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["billingType"] != "PIX" {
				t.Errorf("expected PIX billing, got %v", payload["billingType"])
			}
			due, err := time.Parse("2006-01-02", payload["dueDate"].(string))
			if err != nil {
				t.Errorf("dueDate not ISO: %v", payload["dueDate"])
			}
			if time.Until(due) > 48*time.Hour {
				t.Errorf("pix due date too far out: %v", due)
			}
			if payload["externalReference"] != "reserva-1" {
				t.Errorf("external reference missing: %v", payload["externalReference"])
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "pay_1", "customer": "cus_1", "value": 200.0, "billingType": "PIX", "status": "PENDING", "dueDate": payload["dueDate"]})
		case r.Method == http.MethodGet && r.URL.Path == "/payments/pay_1/pixQrCode":
			json.NewEncoder(w).Encode(map[string]any{"encodedImage": "aGVsbG8=", "payload": "00020126...", "expirationDate": "2025-06-12 00:00:00"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := New(server.URL, "key", testLogger())
	payment, qr, err := client.CreatePixCharge(context.Background(), "cus_1", 200, "Passeio de Barco", "reserva-1")
	if err != nil {
		t.Fatalf("CreatePixCharge failed: %v", err)
	}
	if payment.ID != "pay_1" || payment.Value != 200 {
		t.Errorf("unexpected payment: %+v", payment)
	}
	if qr.Payload != "00020126..." {
		t.Errorf("unexpected qr payload: %+v", qr)
	}
}

func TestCreateBoletoCharge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["billingType"] != "BOLETO" {
			t.Errorf("expected BOLETO billing, got %v", payload["billingType"])
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "pay_2", "billingType": "BOLETO", "bankSlipUrl": "https://asaas.example/boleto/pay_2", "dueDate": payload["dueDate"]})
	}))
	defer server.Close()

	client := New(server.URL, "key", testLogger())
	payment, err := client.CreateBoletoCharge(context.Background(), "cus_1", 350, "Buggy", "reserva-2")
	if err != nil {
		t.Fatalf("CreateBoletoCharge failed: %v", err)
	}
	if payment.BankSlipURL == "" {
		t.Error("expected bank slip url")
	}
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"code": "invalid_value", "description": "valor invalido"}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "key", testLogger())
	_, err := client.GetPayment(context.Background(), "pay_x")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "valor invalido"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not mention %q", err.Error(), want)
	}
}
