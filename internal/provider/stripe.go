package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrIndeterminate is returned when a processor call timed out or the
// connection dropped before an answer arrived. The charge may or may not
// exist; the caller must leave its ledger entry pending and let the webhook
// resolve it.
var ErrIndeterminate = errors.New("processor outcome indeterminate")

// ChargeStatus is the processor's synchronous answer to a charge attempt.
type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "succeeded"
	ChargeRequiresAction ChargeStatus = "requires_action"
	ChargeFailed         ChargeStatus = "failed"
)

// ChargeResult holds the outcome of a payment intent creation.
type ChargeResult struct {
	IntentID     string
	Status       ChargeStatus
	ClientSecret string
	RedirectURL  string
}

// CardDetails are the display fields of a retrieved payment method.
type CardDetails struct {
	MethodRef   string
	Brand       string
	Last4       string
	ExpiryMonth int
	ExpiryYear  int
}

// SetupIntent holds the client-side continuation for saving a card.
type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// WebhookEvent is a parsed, signature-verified webhook event.
type WebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StripeProvider wraps the Stripe REST API operations the wallet consumes:
// create customer, create+confirm an off-session payment intent, create a
// setup intent, retrieve a payment method, and verify inbound webhooks.
type StripeProvider struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewStripeProvider creates a Stripe provider. timeout bounds every API
// call; timed-out charges surface as ErrIndeterminate.
func NewStripeProvider(secretKey, webhookSecret string, timeout time.Duration) *StripeProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeProvider{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       "https://api.stripe.com",
		client:        &http.Client{Timeout: timeout},
	}
}

// CreateCustomer creates a customer object and returns its ID.
func (s *StripeProvider) CreateCustomer(ctx context.Context, email, name, phone string) (string, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)
	if phone != "" {
		form.Set("phone", phone)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := s.post(ctx, "/v1/customers", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ChargeRequest describes one off-session charge attempt. ClientRef is a
// caller-generated reference passed as the idempotency key and echoed in the
// intent metadata, so an indeterminate outcome can still be reconciled by
// the webhook.
type ChargeRequest struct {
	AmountCents int64
	CustomerRef string
	MethodRef   string
	ClientRef   string
	Metadata    map[string]string
}

// CreatePaymentIntent creates and immediately confirms a payment intent
// against a stored method.
func (s *StripeProvider) CreatePaymentIntent(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", "usd")
	form.Set("customer", req.CustomerRef)
	form.Set("payment_method", req.MethodRef)
	form.Set("confirm", "true")
	form.Set("off_session", "true")
	if req.ClientRef != "" {
		form.Set("metadata[client_ref]", req.ClientRef)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var resp struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ClientSecret string `json:"client_secret"`
		NextAction   *struct {
			RedirectToURL *struct {
				URL string `json:"url"`
			} `json:"redirect_to_url"`
		} `json:"next_action"`
	}
	if err := s.postIdempotent(ctx, "/v1/payment_intents", form, req.ClientRef, &resp); err != nil {
		return nil, err
	}

	result := &ChargeResult{IntentID: resp.ID, ClientSecret: resp.ClientSecret}
	switch resp.Status {
	case "succeeded":
		result.Status = ChargeSucceeded
	case "requires_action", "requires_source_action":
		result.Status = ChargeRequiresAction
		if resp.NextAction != nil && resp.NextAction.RedirectToURL != nil {
			result.RedirectURL = resp.NextAction.RedirectToURL.URL
		}
	case "processing":
		// Answer is in flight; treat like a timeout and wait for the webhook.
		return result, ErrIndeterminate
	default:
		result.Status = ChargeFailed
	}
	return result, nil
}

// CreateSetupIntent creates an off-session setup intent for saving a card.
func (s *StripeProvider) CreateSetupIntent(ctx context.Context, customerRef string) (*SetupIntent, error) {
	form := url.Values{}
	form.Set("customer", customerRef)
	form.Set("payment_method_types[0]", "card")
	form.Set("usage", "off_session")

	var resp SetupIntent
	if err := s.post(ctx, "/v1/setup_intents", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetrievePaymentMethod fetches card display details for a method ref.
func (s *StripeProvider) RetrievePaymentMethod(ctx context.Context, methodRef string) (*CardDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/payment_methods/"+methodRef, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	var resp struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Card *struct {
			Brand    string `json:"brand"`
			Last4    string `json:"last4"`
			ExpMonth int    `json:"exp_month"`
			ExpYear  int    `json:"exp_year"`
		} `json:"card"`
	}
	if err := s.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Type != "card" || resp.Card == nil {
		return nil, fmt.Errorf("payment method %s is not a card", methodRef)
	}
	return &CardDetails{
		MethodRef:   resp.ID,
		Brand:       resp.Card.Brand,
		Last4:       resp.Card.Last4,
		ExpiryMonth: resp.Card.ExpMonth,
		ExpiryYear:  resp.Card.ExpYear,
	}, nil
}

func (s *StripeProvider) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	return s.postIdempotent(ctx, path, form, "", out)
}

func (s *StripeProvider) postIdempotent(ctx context.Context, path string, form url.Values, idempotencyKey string, out interface{}) error {
	if s.secretKey == "" {
		return fmt.Errorf("stripe secret key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return s.do(req, out)
}

func (s *StripeProvider) do(req *http.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrIndeterminate, err)
		}
		return fmt.Errorf("stripe api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stripe error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
// Returns the parsed event if valid.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, sigHeader string) (*WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret not configured")
	}

	// Parse Stripe-Signature header: t=timestamp,v1=signature
	parts := strings.Split(sigHeader, ",")
	var timestamp string
	var signatures []string
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("invalid signature header format")
	}

	// Check timestamp tolerance (5 minutes)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	if time.Now().Unix()-ts > 300 {
		return nil, fmt.Errorf("webhook timestamp too old")
	}

	// Compute expected signature
	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}

// PaymentIntentData is the data.object of a payment_intent.* event.
type PaymentIntentData struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// ParsePaymentIntentData extracts payment intent fields from an event.
func ParsePaymentIntentData(data json.RawMessage) (*PaymentIntentData, error) {
	var wrapper struct {
		Object PaymentIntentData `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse payment intent data: %w", err)
	}
	return &wrapper.Object, nil
}

// SetupIntentData is the data.object of a setup_intent.succeeded event.
type SetupIntentData struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	PaymentMethod string `json:"payment_method"`
}

// ParseSetupIntentData extracts setup intent fields from an event.
func ParseSetupIntentData(data json.RawMessage) (*SetupIntentData, error) {
	var wrapper struct {
		Object SetupIntentData `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse setup intent data: %w", err)
	}
	return &wrapper.Object, nil
}

// PaymentMethodData is the data.object of a payment_method.attached event.
type PaymentMethodData struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Customer string `json:"customer"`
	Card     *struct {
		Brand    string `json:"brand"`
		Last4    string `json:"last4"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"card"`
}

// ParsePaymentMethodData extracts payment method fields from an event.
func ParsePaymentMethodData(data json.RawMessage) (*PaymentMethodData, error) {
	var wrapper struct {
		Object PaymentMethodData `json:"object"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse payment method data: %w", err)
	}
	return &wrapper.Object, nil
}
