// Package binance implements the exchange gateway against the Binance USD-M
// futures REST and websocket APIs.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/metrics"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

const (
	// TestnetBaseURL is the USD-M futures testnet REST endpoint.
	TestnetBaseURL = "https://testnet.binancefuture.com"
	// MainnetBaseURL is the USD-M futures production REST endpoint.
	MainnetBaseURL = "https://fapi.binance.com"

	defaultRecvWindow = 5 * time.Second
	defaultRateLimit  = 8 // requests per second
)

// Config holds client settings.
type Config struct {
	APIKey             string
	APISecret          string
	BaseURL            string // empty selects testnet
	RecvWindow         time.Duration
	Timeout            time.Duration
	RateLimitPerSecond int
}

// Client is an exchange gateway backed by the USD-M futures REST API.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	recvWindow time.Duration
	recorder   *metrics.Recorder
	logger     *slog.Logger
	stream     *MarkStream
}

// NewClient creates a new REST gateway client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = TestnetBaseURL
	}
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindow
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RateLimitPerSecond
	if rps <= 0 {
		rps = defaultRateLimit
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     NewSigner(cfg.APIKey, cfg.APISecret),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		recvWindow: recvWindow,
		recorder:   metrics.NewRecorder(),
		logger:     logger.With("component", "binance"),
	}
}

// Close wipes credential material.
func (c *Client) Close() error {
	c.signer.Wipe()
	return nil
}

// restOrder is the order payload returned by the order endpoints.
type restOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	OrigQty       string `json:"origQty"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	UpdateTime    int64  `json:"updateTime"`
}

type restError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// SubmitOrder places an order on the venue.
func (c *Client) SubmitOrder(ctx context.Context, order types.Order) (types.Order, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", order.Side.String())
	params.Set("quantity", order.Quantity.String())
	params.Set("newClientOrderId", order.ClientID)
	params.Set("newOrderRespType", "RESULT")

	switch order.Kind {
	case types.OrderKindMarket:
		params.Set("type", "MARKET")
	case types.OrderKindLimit:
		params.Set("type", "LIMIT")
		params.Set("price", order.Price.String())
		params.Set("timeInForce", "GTC")
	case types.OrderKindStop:
		params.Set("type", "STOP")
		params.Set("price", order.Price.String())
		params.Set("stopPrice", order.TriggerPrice.String())
		params.Set("timeInForce", "GTC")
	default:
		return types.Order{}, gateway.NewError(gateway.ErrCodeRejected,
			fmt.Sprintf("unsupported order type %s", order.Kind), nil)
	}

	var resp restOrder
	if err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params, "submit", &resp); err != nil {
		return types.Order{}, err
	}

	out := order
	c.applyRestOrder(&out, resp)
	c.recorder.RecordOrder(out.Symbol, out.Side.String(), out.Status.String())
	return out, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp restOrder
	return c.signedRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, "cancel", &resp)
}

// OrderStatus queries the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, symbol, orderID string) (types.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp restOrder
	if err := c.signedRequest(ctx, http.MethodGet, "/fapi/v1/order", params, "status", &resp); err != nil {
		return types.Order{}, err
	}

	var out types.Order
	out.Symbol = symbol
	c.applyRestOrder(&out, resp)
	return out, nil
}

// MarkPrice returns the current mark price for the symbol, served from the
// websocket stream cache when fresh and from REST otherwise.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.stream != nil {
		if price, ok := c.stream.Latest(symbol); ok {
			return price, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := c.publicRequest(ctx, "/fapi/v1/premiumIndex", params, "mark_price", &resp); err != nil {
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(resp.MarkPrice)
	if err != nil {
		return decimal.Zero, gateway.NewError(gateway.ErrCodeNetwork,
			fmt.Sprintf("malformed mark price %q", resp.MarkPrice), err)
	}
	return price, nil
}

func (c *Client) applyRestOrder(out *types.Order, resp restOrder) {
	if resp.OrderID != 0 {
		out.OrderID = strconv.FormatInt(resp.OrderID, 10)
	}
	if resp.ClientOrderID != "" {
		out.ClientID = resp.ClientOrderID
	}
	if resp.Symbol != "" {
		out.Symbol = resp.Symbol
	}
	if side, err := types.ParseSide(resp.Side); err == nil {
		out.Side = side
	}
	out.Kind = parseOrderKind(resp.Type)
	out.Status = parseOrderStatus(resp.Status)
	out.Quantity = parseDecimal(resp.OrigQty, out.Quantity)
	out.Price = parseDecimal(resp.Price, out.Price)
	out.TriggerPrice = parseDecimal(resp.StopPrice, out.TriggerPrice)
	out.FilledQuantity = parseDecimal(resp.ExecutedQty, decimal.Zero)
	out.AvgFillPrice = parseDecimal(resp.AvgPrice, decimal.Zero)
	if resp.UpdateTime > 0 {
		out.UpdatedAt = time.UnixMilli(resp.UpdateTime).UTC()
	}
}

func parseOrderKind(s string) types.OrderKind {
	switch s {
	case "LIMIT":
		return types.OrderKindLimit
	case "STOP", "STOP_MARKET":
		return types.OrderKindStop
	default:
		return types.OrderKindMarket
	}
}

func parseOrderStatus(s string) types.OrderStatus {
	switch s {
	case "NEW":
		return types.OrderStatusNew
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartiallyFilled
	case "FILLED":
		return types.OrderStatusFilled
	case "CANCELED":
		return types.OrderStatusCancelled
	case "REJECTED":
		return types.OrderStatusRejected
	case "EXPIRED":
		return types.OrderStatusExpired
	default:
		return types.OrderStatusNew
	}
}

func parseDecimal(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}

func (c *Client) signedRequest(ctx context.Context, method, path string, params url.Values, operation string, out any) error {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))

	query := params.Encode()
	query += "&signature=" + c.signer.Sign(query)

	return c.doRequest(ctx, method, path, query, operation, true, out)
}

func (c *Client) publicRequest(ctx context.Context, path string, params url.Values, operation string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, params.Encode(), operation, false, out)
}

func (c *Client) doRequest(ctx context.Context, method, path, query, operation string, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return gateway.NewError(gateway.ErrCodeNetwork, "rate limiter wait", err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveGateway(operation)

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return gateway.NewError(gateway.ErrCodeNetwork, "build request", err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordGatewayError(gateway.ErrCodeNetwork.String())
		return gateway.NewError(gateway.ErrCodeNetwork, fmt.Sprintf("%s %s", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.recorder.RecordGatewayError(gateway.ErrCodeNetwork.String())
		return gateway.NewError(gateway.ErrCodeNetwork, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		gwErr := c.classifyError(resp.StatusCode, body)
		c.recorder.RecordGatewayError(gwErr.Code.String())
		c.logger.Warn("request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", gwErr.Code.String(),
			"message", gwErr.Message)
		return gwErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return gateway.NewError(gateway.ErrCodeNetwork, "decode response", err)
		}
	}
	return nil
}

// classifyError maps an HTTP status and venue error payload to a gateway
// error code. Venue codes: -1003 rate limit, -1021 timestamp outside
// recvWindow, -1022 bad signature, -2011/-2013 unknown order, -2014/-2015
// bad API key.
func (c *Client) classifyError(status int, body []byte) *gateway.Error {
	var venue restError
	_ = json.Unmarshal(body, &venue)

	message := venue.Message
	if message == "" {
		message = fmt.Sprintf("http %d", status)
	}
	if venue.Code != 0 {
		message = fmt.Sprintf("%s (code %d)", message, venue.Code)
	}

	switch {
	case status == http.StatusTooManyRequests || status == 418 || venue.Code == -1003:
		return gateway.NewError(gateway.ErrCodeRateLimited, message, nil)
	case venue.Code == -2011 || venue.Code == -2013:
		return gateway.NewError(gateway.ErrCodeNotFound, message, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		venue.Code == -1022 || venue.Code == -2014 || venue.Code == -2015:
		return gateway.NewError(gateway.ErrCodeAuth, message, nil)
	case status >= 500 || venue.Code == -1021:
		return gateway.NewError(gateway.ErrCodeNetwork, message, nil)
	case status >= 400:
		return gateway.NewError(gateway.ErrCodeRejected, message, nil)
	default:
		return gateway.NewError(gateway.ErrCodeNetwork, message, nil)
	}
}

// Ensure Client implements the gateway interface
var _ gateway.Gateway = (*Client)(nil)
