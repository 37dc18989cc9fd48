package external

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "bookticket/internal/errors"
	"bookticket/internal/models"
)

const notificationService = "notification"

var errInvalidSession = errors.New("payment service returned an incomplete session")

type NotificationConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotificationClient is the synchronous fallback channel for booking events
type NotificationClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewNotificationClient(cfg NotificationConfig) *NotificationClient {
	return &NotificationClient{
		baseURL:    cfg.BaseURL,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

func (c *NotificationClient) PostBookingSuccess(ctx context.Context, event models.BookingSuccessEvent) error {
	err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/internal/notifications/booking-success", event, nil)
	if err != nil {
		return apperrors.NewUpstream(notificationService, "post booking success", statusCodeOf(err), err)
	}
	return nil
}

func (c *NotificationClient) PostBookingFailure(ctx context.Context, event models.BookingFailedEvent) error {
	err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/internal/notifications/booking-failure", event, nil)
	if err != nil {
		return apperrors.NewUpstream(notificationService, "post booking failure", statusCodeOf(err), err)
	}
	return nil
}
