// Package payment wraps the Asaas billing API: customer resolution and
// PIX / boleto charge creation.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/httpkit"
)

// Charge due-date offsets. PIX expires quickly; boletos get a few days
// to clear.
const (
	pixDueIn    = 24 * time.Hour
	boletoDueIn = 3 * 24 * time.Hour
)

var nonDigits = regexp.MustCompile(`\D`)

// Customer is an Asaas customer record.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	CpfCnpj string `json:"cpfCnpj,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Payment is an Asaas charge.
type Payment struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	Value       float64 `json:"value"`
	BillingType string  `json:"billingType"`
	Status      string  `json:"status"`
	DueDate     string  `json:"dueDate"`
	BankSlipURL string  `json:"bankSlipUrl,omitempty"`
}

// PixQRCode carries the PIX payload for a charge.
type PixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

// Client calls the Asaas REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Asaas client. baseURL falls back to the production API.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.asaas.com/v3"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpkit.NewClient(httpkit.WithLogger(logger)),
		logger:     logger,
	}
}

type apiError struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) request(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && len(ae.Errors) > 0 {
			return fmt.Errorf("asaas API error %d: %s", resp.StatusCode, ae.Errors[0].Description)
		}
		return fmt.Errorf("asaas API error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// FindOrCreateCustomer resolves the billing customer. When a tax id is
// given, an existing customer with the same cpfCnpj is reused.
func (c *Client) FindOrCreateCustomer(ctx context.Context, name, cpfCnpj, email, phone string) (*Customer, error) {
	cleanCpf := nonDigits.ReplaceAllString(cpfCnpj, "")

	if cleanCpf != "" {
		var listing struct {
			Data []Customer `json:"data"`
		}
		err := c.request(ctx, http.MethodGet, "/customers?cpfCnpj="+url.QueryEscape(cleanCpf), nil, &listing)
		if err != nil {
			return nil, err
		}
		if len(listing.Data) > 0 {
			return &listing.Data[0], nil
		}
	}

	payload := map[string]any{"name": name}
	if cleanCpf != "" {
		payload["cpfCnpj"] = cleanCpf
	}
	if email != "" {
		payload["email"] = email
	}
	if phone != "" {
		payload["mobilePhone"] = nonDigits.ReplaceAllString(phone, "")
	}

	var customer Customer
	if err := c.request(ctx, http.MethodPost, "/customers", payload, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreatePixCharge creates a PIX charge due in 24 hours and fetches its
// QR code payload.
func (c *Client) CreatePixCharge(ctx context.Context, customerID string, value float64, description, externalRef string) (*Payment, *PixQRCode, error) {
	payment, err := c.createPayment(ctx, customerID, "PIX", value, description, externalRef, pixDueIn)
	if err != nil {
		return nil, nil, err
	}

	var qr PixQRCode
	if err := c.request(ctx, http.MethodGet, "/payments/"+payment.ID+"/pixQrCode", nil, &qr); err != nil {
		return nil, nil, fmt.Errorf("fetch pix qrcode: %w", err)
	}
	return payment, &qr, nil
}

// CreateBoletoCharge creates a bank-slip charge due in 3 days.
func (c *Client) CreateBoletoCharge(ctx context.Context, customerID string, value float64, description, externalRef string) (*Payment, error) {
	return c.createPayment(ctx, customerID, "BOLETO", value, description, externalRef, boletoDueIn)
}

func (c *Client) createPayment(ctx context.Context, customerID, billingType string, value float64, description, externalRef string, dueIn time.Duration) (*Payment, error) {
	payload := map[string]any{
		"customer":    customerID,
		"billingType": billingType,
		"value":       value,
		"dueDate":     time.Now().Add(dueIn).Format("2006-01-02"),
		"description": description,
	}
	if externalRef != "" {
		payload["externalReference"] = externalRef
	}

	var payment Payment
	if err := c.request(ctx, http.MethodPost, "/payments", payload, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPayment retrieves a charge by the provider's payment id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.request(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}
