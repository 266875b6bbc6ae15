// Package twilio is the WhatsApp transport: an outbound message client
// backed by the Twilio REST API and an HTTP server that receives the
// inbound WhatsApp webhook and the Asaas payment webhook.
package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/config"
	"github.com/calebstour/caleb-sales-agent/internal/httpkit"
)

const defaultAPIBase = "https://api.twilio.com"

// Sender delivers outbound WhatsApp messages. Satisfied by *Client.
type Sender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
	NotifyBusiness(ctx context.Context, body string) error
}

// Client sends WhatsApp messages through the Twilio Messages API.
type Client struct {
	accountSID     string
	authToken      string
	from           string
	businessNumber string
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient builds a Twilio client from config. FromNumber defaults to
// the Twilio WhatsApp sandbox sender when unset.
func NewClient(cfg config.TwilioConfig, logger *slog.Logger) *Client {
	from := cfg.FromNumber
	if from == "" {
		from = "whatsapp:+14155238886"
	}
	return &Client{
		accountSID:     cfg.AccountSID,
		authToken:      cfg.AuthToken,
		from:           EnsureWhatsAppPrefix(from),
		businessNumber: cfg.BusinessNumber,
		baseURL:        defaultAPIBase,
		httpClient:     httpkit.NewClient(httpkit.WithTimeout(15*time.Second), httpkit.WithLogger(logger)),
		logger:         logger,
	}
}

// SendWhatsApp sends body to the given phone number over WhatsApp.
func (c *Client) SendWhatsApp(ctx context.Context, to, body string) error {
	if c.accountSID == "" || c.authToken == "" {
		return fmt.Errorf("twilio: not configured")
	}

	form := url.Values{}
	form.Set("To", EnsureWhatsAppPrefix(to))
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("twilio: send message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	c.logger.Debug("whatsapp message sent", "to", StripWhatsAppPrefix(to), "chars", len(body))
	return nil
}

// NotifyBusiness sends an operational alert to the configured business
// number. A missing business number makes this a no-op, not an error:
// alerts are optional and booking flow must not depend on them.
func (c *Client) NotifyBusiness(ctx context.Context, body string) error {
	if c.businessNumber == "" {
		return nil
	}
	return c.SendWhatsApp(ctx, c.businessNumber, body)
}

// EnsureWhatsAppPrefix returns the number in Twilio's channel-address
// form ("whatsapp:+5522999999999").
func EnsureWhatsAppPrefix(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// StripWhatsAppPrefix returns the bare phone number.
func StripWhatsAppPrefix(number string) string {
	return strings.TrimPrefix(number, "whatsapp:")
}
