package external

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "bookticket/internal/errors"
)

const paymentService = "payment"

// Payment session statuses reported by the payment service
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
)

type PaymentConfig struct {
	BaseURL    string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

type PaymentClient struct {
	baseURL    string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

type CheckoutSessionRequest struct {
	BookingID  int64   `json:"bookingId"`
	UserID     int64   `json:"userId"`
	Amount     float64 `json:"amount"`
	SuccessURL string  `json:"successUrl,omitempty"`
	CancelURL  string  `json:"cancelUrl,omitempty"`
}

type CheckoutSession struct {
	SessionID  string     `json:"sessionId"`
	PaymentURL string     `json:"paymentUrl"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type PaymentStatus struct {
	PaymentID     int64   `json:"paymentId"`
	BookingID     int64   `json:"bookingId"`
	PaymentStatus string  `json:"paymentStatus"`
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Message       string  `json:"message"`
}

func (s *PaymentStatus) IsCompleted() bool {
	return strings.EqualFold(s.PaymentStatus, PaymentCompleted)
}

func (s *PaymentStatus) IsFailed() bool {
	return strings.EqualFold(s.PaymentStatus, PaymentFailed)
}

func (s *PaymentStatus) IsTerminal() bool {
	return s.IsCompleted() || s.IsFailed()
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	return &PaymentClient{
		baseURL:    cfg.BaseURL,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// CreateCheckoutSession asks the payment service for a hosted checkout page
func (c *PaymentClient) CreateCheckoutSession(ctx context.Context, bookingID, userID int64, amount float64) (*CheckoutSession, error) {
	req := CheckoutSessionRequest{
		BookingID:  bookingID,
		UserID:     userID,
		Amount:     amount,
		SuccessURL: c.successURL,
		CancelURL:  c.cancelURL,
	}

	var session CheckoutSession
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/internal/payments/checkout/create", req, &session); err != nil {
		return nil, apperrors.NewUpstream(paymentService, "create checkout session", statusCodeOf(err), err)
	}
	if session.SessionID == "" || session.PaymentURL == "" {
		return nil, apperrors.NewUpstream(paymentService, "create checkout session", 0, errInvalidSession)
	}

	return &session, nil
}

// GetSessionStatus reads the current status of a checkout session
func (c *PaymentClient) GetSessionStatus(ctx context.Context, sessionID string) (*PaymentStatus, error) {
	endpoint := c.baseURL + "/api/v1/internal/payments/checkout/verify/" + url.PathEscape(sessionID)

	var status PaymentStatus
	if err := doJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, apperrors.NewUpstream(paymentService, "verify checkout session", statusCodeOf(err), err)
	}

	return &status, nil
}
