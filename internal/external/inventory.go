package external

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	apperrors "bookticket/internal/errors"
)

const inventoryService = "inventory"

type InventoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// InventoryClient talks to the theater service that owns seat inventory
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

type SeatsRequest struct {
	ShowID  int64   `json:"showId"`
	SeatIDs []int64 `json:"seatIds"`
}

type SeatInfo struct {
	SeatID      int64   `json:"seatId"`
	IsAvailable bool    `json:"isAvailable"`
	SeatPrice   float64 `json:"seatPrice"`
	SeatNumber  string  `json:"seatNumber"`
	SeatType    string  `json:"seatType"`
}

func NewInventoryClient(cfg InventoryConfig) *InventoryClient {
	return &InventoryClient{
		baseURL:    cfg.BaseURL,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// VerifySeats checks validity and current price of the requested seats
func (c *InventoryClient) VerifySeats(ctx context.Context, showID int64, seatIDs []int64) ([]SeatInfo, error) {
	return c.call(ctx, "verify seats", "/api/v1/shows/internal/seats/verify", showID, seatIDs)
}

func (c *InventoryClient) LockSeats(ctx context.Context, showID int64, seatIDs []int64) ([]SeatInfo, error) {
	return c.call(ctx, "lock seats", "/api/v1/shows/internal/seats/lock", showID, seatIDs)
}

func (c *InventoryClient) ReleaseSeats(ctx context.Context, showID int64, seatIDs []int64) ([]SeatInfo, error) {
	return c.call(ctx, "release seats", "/api/v1/shows/internal/seats/release", showID, seatIDs)
}

func (c *InventoryClient) BookSeats(ctx context.Context, showID int64, seatIDs []int64) ([]SeatInfo, error) {
	return c.call(ctx, "book seats", "/api/v1/shows/internal/seats/book", showID, seatIDs)
}

// call treats an empty result list as a hard failure
func (c *InventoryClient) call(ctx context.Context, op, path string, showID int64, seatIDs []int64) ([]SeatInfo, error) {
	var seats []SeatInfo
	err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+path, SeatsRequest{ShowID: showID, SeatIDs: seatIDs}, &seats)
	if err != nil {
		slog.Error("Inventory service call failed", "op", op, "show_id", showID, "error", err)
		return nil, apperrors.NewUpstream(inventoryService, op, statusCodeOf(err), err)
	}

	if len(seats) == 0 {
		return nil, apperrors.NewUpstream(inventoryService, op, 0, apperrors.ErrNoValidSeats)
	}

	return seats, nil
}
