package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"quoter_go/internal/domain"
	"quoter_go/internal/infra"

	"github.com/shopspring/decimal"
)

// DefaultRestURL is the CLOB REST endpoint.
const DefaultRestURL = "https://clob.polymarket.com"

// Client is the CLOB REST trading API client (boundary layer). It implements
// domain.TradingClient and domain.AccountClient; request signing is fully
// contained here.
type Client struct {
	baseURL    string
	assetID    string
	market     string
	owner      string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a CLOB client from the application config.
func NewClient(cfg *infra.Config) *Client {
	baseURL := cfg.API.Polymarket.RestURL
	if baseURL == "" {
		baseURL = DefaultRestURL
	}

	signer := NewSigner(
		cfg.API.Polymarket.Address,
		cfg.API.Polymarket.APIKey,
		cfg.API.Polymarket.APISecret,
		cfg.API.Polymarket.Passphrase,
	)

	return &Client{
		baseURL: baseURL,
		assetID: cfg.Market.AssetID,
		market:  cfg.Market.MarketAddress,
		owner:   cfg.API.Polymarket.APIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: signer,
		logger: slog.Default().With("module", "clob_client"),
	}
}

// PlaceOrder submits a limit order and returns the venue order id.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	side := "BUY"
	if order.Side == domain.SideAsk {
		side = "SELL"
	}

	reqBody := placeOrderRequest{
		Order: orderPayload{
			TokenID:    c.assetID,
			Price:      order.Price.String(),
			Size:       order.Size.String(),
			Side:       side,
			Expiration: "0",
		},
		Owner:     c.owner,
		OrderType: "GTC",
	}

	var resp placeOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/order", nil, reqBody, &resp); err != nil {
		return "", err
	}

	if !resp.Success || resp.OrderID == "" {
		return "", &domain.VenueRejectionError{Code: resp.Status, Msg: resp.ErrorMsg}
	}

	c.logger.Info("Order placed",
		slog.String("local_id", order.LocalID),
		slog.String("venue_id", resp.OrderID),
		slog.String("side", side),
		slog.String("price", order.Price.String()),
		slog.String("size", order.Size.String()),
	)
	return resp.OrderID, nil
}

// CancelOrder cancels one resting order by venue id.
func (c *Client) CancelOrder(ctx context.Context, venueID string) error {
	reqBody := cancelOrderRequest{OrderID: venueID}

	var resp cancelOrderResponse
	if err := c.doRequest(ctx, http.MethodDelete, "/order", nil, reqBody, &resp); err != nil {
		return err
	}

	for _, id := range resp.Canceled {
		if id == venueID {
			c.logger.Info("Order cancelled", slog.String("venue_id", venueID))
			return nil
		}
	}
	if msg, ok := resp.NotCanceled[venueID]; ok {
		return &domain.VenueRejectionError{Code: "NOT_CANCELED", Msg: msg}
	}
	return &domain.VenueRejectionError{Code: "NOT_CANCELED", Msg: "order not in cancel response"}
}

// GetOpenOrders lists this account's resting orders on the instrument.
// Matched size is subtracted so Size is always the remaining quantity.
func (c *Client) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	query := map[string]string{"market": c.market, "asset_id": c.assetID}

	var raw []openOrder
	if err := c.doRequest(ctx, http.MethodGet, "/data/orders", query, nil, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(raw))
	for _, oo := range raw {
		price, err := decimal.NewFromString(oo.Price)
		if err != nil {
			c.logger.Warn("Skipping open order with bad price",
				slog.String("venue_id", oo.ID), slog.String("price", oo.Price))
			continue
		}
		original, err := decimal.NewFromString(oo.OriginalSize)
		if err != nil {
			continue
		}
		matched := decimal.Zero
		if oo.SizeMatched != "" {
			if m, err := decimal.NewFromString(oo.SizeMatched); err == nil {
				matched = m
			}
		}

		side := domain.SideBid
		if oo.Side == "SELL" {
			side = domain.SideAsk
		}

		orders = append(orders, domain.Order{
			VenueID:   oo.ID,
			Side:      side,
			Price:     price,
			Size:      original.Sub(matched),
			Status:    domain.OrderStatusResting,
			CreatedAt: time.Unix(oo.CreatedAt, 0),
		})
	}
	return orders, nil
}

// GetBalances returns collateral (quote) and outcome-token (base) balances.
func (c *Client) GetBalances(ctx context.Context) (domain.Balances, error) {
	collateral, err := c.balanceAllowance(ctx, map[string]string{
		"asset_type": "COLLATERAL",
	})
	if err != nil {
		return domain.Balances{}, err
	}

	conditional, err := c.balanceAllowance(ctx, map[string]string{
		"asset_type": "CONDITIONAL",
		"token_id":   c.assetID,
	})
	if err != nil {
		return domain.Balances{}, err
	}

	return domain.Balances{
		BaseAvailable:  conditional,
		QuoteAvailable: collateral,
	}, nil
}

func (c *Client) balanceAllowance(ctx context.Context, query map[string]string) (decimal.Decimal, error) {
	var resp balanceAllowanceResponse
	if err := c.doRequest(ctx, http.MethodGet, "/balance-allowance", query, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	bal, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", resp.Balance, err)
	}
	// The API reports USDC-style 6-decimal fixed point.
	return bal.Shift(-6), nil
}

// doRequest signs, sends and decodes one API round trip, mapping failures
// onto the engine's error taxonomy.
func (c *Client) doRequest(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
		bodyStr = string(jsonBytes)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		vals := url.Values{}
		for k, v := range query {
			vals.Set(k, v)
		}
		reqURL += "?" + vals.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return err
	}

	headers, err := c.signer.GenerateHeaders(method, path, bodyStr)
	if err != nil {
		return &domain.AuthError{Op: method + " " + path, Msg: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Surface the deadline so the pool classifies it as Unknown.
			return ctxErr
		}
		return domain.NewNetworkError(method+" "+path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("read "+path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.AuthError{Op: method + " " + path, Msg: apiErrorMessage(bodyBytes, resp.Status)}
	case resp.StatusCode >= 500:
		return domain.NewNetworkError(method+" "+path,
			fmt.Errorf("server error: status=%d body=%s", resp.StatusCode, truncate(bodyBytes, 200)))
	case resp.StatusCode != http.StatusOK:
		return &domain.VenueRejectionError{
			Code: fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Msg:  apiErrorMessage(bodyBytes, resp.Status),
		}
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func apiErrorMessage(body []byte, fallback string) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error != "" {
		return ae.Error
	}
	return fallback
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
