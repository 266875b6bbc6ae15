package twilio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calebstour/caleb-sales-agent/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWhatsAppPrefixHelpers(t *testing.T) {
	if got := EnsureWhatsAppPrefix("+5522999999999"); got != "whatsapp:+5522999999999" {
		t.Errorf("EnsureWhatsAppPrefix = %q", got)
	}
	if got := EnsureWhatsAppPrefix("whatsapp:+5522999999999"); got != "whatsapp:+5522999999999" {
		t.Errorf("EnsureWhatsAppPrefix double-applied: %q", got)
	}
	if got := StripWhatsAppPrefix("whatsapp:+5522999999999"); got != "+5522999999999" {
		t.Errorf("StripWhatsAppPrefix = %q", got)
	}
	if got := StripWhatsAppPrefix("+5522999999999"); got != "+5522999999999" {
		t.Errorf("StripWhatsAppPrefix changed a bare number: %q", got)
	}
}

func TestSendWhatsApp(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser, gotPass string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		r.ParseForm()
		gotTo = r.FormValue("To")
		gotFrom = r.FormValue("From")
		gotBody = r.FormValue("Body")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer ts.Close()

	c := NewClient(config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "tok",
		FromNumber: "whatsapp:+14155238886",
	}, discardLogger())
	c.baseURL = ts.URL

	if err := c.SendWhatsApp(context.Background(), "+5522999999999", "Oi!"); err != nil {
		t.Fatalf("SendWhatsApp: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "tok" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotTo != "whatsapp:+5522999999999" {
		t.Errorf("To = %q, want whatsapp prefix applied", gotTo)
	}
	if gotFrom != "whatsapp:+14155238886" {
		t.Errorf("From = %q", gotFrom)
	}
	if gotBody != "Oi!" {
		t.Errorf("Body = %q", gotBody)
	}
}

func TestSendWhatsAppAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
	}))
	defer ts.Close()

	c := NewClient(config.TwilioConfig{AccountSID: "AC123", AuthToken: "bad"}, discardLogger())
	c.baseURL = ts.URL

	if err := c.SendWhatsApp(context.Background(), "+5522999999999", "Oi!"); err == nil {
		t.Fatal("expected error on 401 response")
	}
}

func TestSendWhatsAppUnconfigured(t *testing.T) {
	c := NewClient(config.TwilioConfig{}, discardLogger())
	if err := c.SendWhatsApp(context.Background(), "+5522999999999", "Oi!"); err == nil {
		t.Fatal("expected error when credentials are missing")
	}
}

func TestNotifyBusinessWithoutNumberIsNoop(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := NewClient(config.TwilioConfig{AccountSID: "AC123", AuthToken: "tok"}, discardLogger())
	c.baseURL = ts.URL

	if err := c.NotifyBusiness(context.Background(), "alerta"); err != nil {
		t.Fatalf("NotifyBusiness: %v", err)
	}
	if called {
		t.Error("no business number configured, nothing should be sent")
	}
}

func TestNotifyBusinessSends(t *testing.T) {
	var gotTo string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotTo = r.FormValue("To")
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	c := NewClient(config.TwilioConfig{
		AccountSID:     "AC123",
		AuthToken:      "tok",
		BusinessNumber: "+5522988249911",
	}, discardLogger())
	c.baseURL = ts.URL

	if err := c.NotifyBusiness(context.Background(), "NOVA RESERVA CONFIRMADA"); err != nil {
		t.Fatalf("NotifyBusiness: %v", err)
	}
	if gotTo != "whatsapp:+5522988249911" {
		t.Errorf("To = %q", gotTo)
	}
}
