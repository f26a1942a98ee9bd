package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"risk_go/internal/domain"
	"risk_go/internal/infra"
)

// Gateway endpoints, relative to the configured base URL.
const (
	endpointPlaceOrder   = "/PlaceOrder"
	endpointModifyOrder  = "/ModifyOrder"
	endpointCancelOrder  = "/CancelOrder"
	endpointExitOrder    = "/ExitSNOOrder"
	endpointPositionBook = "/PositionBook"
	endpointOrderBook    = "/OrderBook"
	endpointTradeBook    = "/TradeBook"
	endpointGetQuotes    = "/GetQuotes"
	endpointSecurityInfo = "/GetSecurityInfo"
)

// Client is the broker gateway client (boundary layer). Every call is one
// form-encoded POST with a fixed timeout; a timeout is a normal failure for
// the caller to retry on its next cycle, never fatal.
type Client struct {
	baseURL    string
	session    *Session
	sourceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a broker gateway client.
func NewClient(cfg *infra.Config, session *Session) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.Broker.BaseURL, "/"),
		session:  session,
		sourceID: cfg.Broker.SourceID,
		httpClient: &http.Client{
			Timeout: cfg.Broker.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "broker_client"),
	}
}

var _ domain.Broker = (*Client)(nil)
var _ domain.QuoteProvider = (*Client)(nil)

// PlaceOrder submits an order and returns the gateway's order number.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	payload := placeOrderPayload{
		UID:          c.session.UserID(),
		ActID:        c.session.AccountID(),
		Exchange:     req.Exchange,
		Symbol:       req.TradingSymbol,
		Qty:          itoa(req.Qty),
		Price:        ftoa(req.Price),
		Product:      req.ProductType,
		TranType:     tranType(req.Side),
		PriceType:    req.OrderType,
		Retention:    req.Retention,
		Remarks:      req.Remarks,
		Ordersource:  c.sourceID,
	}
	if req.TriggerPrice > 0 {
		payload.TriggerPrice = ftoa(req.TriggerPrice)
	}

	var resp placeOrderResponse
	if err := c.call(ctx, "PlaceOrder", endpointPlaceOrder, payload, &resp); err != nil {
		return "", err
	}
	if resp.OrderNo == "" {
		return "", domain.ErrNoOrderID
	}
	return resp.OrderNo, nil
}

// ModifyOrder changes a working order's quantity, price type and prices.
func (c *Client) ModifyOrder(ctx context.Context, req domain.ModifyRequest) error {
	payload := modifyOrderPayload{
		UID:       c.session.UserID(),
		OrderNo:   req.OrderID,
		Exchange:  req.Exchange,
		Symbol:    req.TradingSymbol,
		Qty:       itoa(req.Qty),
		PriceType: req.OrderType,
		Price:     ftoa(req.Price),
	}
	if req.TriggerPrice > 0 {
		payload.TriggerPrice = ftoa(req.TriggerPrice)
	}

	var resp statusResponse
	return c.call(ctx, "ModifyOrder", endpointModifyOrder, payload, &resp)
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	payload := cancelOrderPayload{UID: c.session.UserID(), OrderNo: orderID}
	var resp statusResponse
	return c.call(ctx, "CancelOrder", endpointCancelOrder, payload, &resp)
}

// ExitOrder exits a cover/bracket product order by its order number. Plain
// product positions are closed with an opposite market order instead.
func (c *Client) ExitOrder(ctx context.Context, orderID, product string) error {
	payload := exitOrderPayload{UID: c.session.UserID(), OrderNo: orderID, Product: product}
	var resp statusResponse
	return c.call(ctx, "ExitOrder", endpointExitOrder, payload, &resp)
}

// GetNetPositions fetches the position book. "no data" is an empty book.
func (c *Client) GetNetPositions(ctx context.Context) ([]domain.NetPosition, error) {
	rows, err := callList[positionRow](c, ctx, "PositionBook", endpointPositionBook)
	if err != nil {
		return nil, err
	}
	positions := make([]domain.NetPosition, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, r.toDomain())
	}
	return positions, nil
}

// GetOrderBook fetches the order book. "no data" is an empty book.
func (c *Client) GetOrderBook(ctx context.Context) ([]domain.WorkingOrder, error) {
	rows, err := callList[orderRow](c, ctx, "OrderBook", endpointOrderBook)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.WorkingOrder, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toDomain())
	}
	return orders, nil
}

// GetTradeBook fetches the day's fills. "no data" is an empty book.
func (c *Client) GetTradeBook(ctx context.Context) ([]domain.Trade, error) {
	rows, err := callList[tradeRow](c, ctx, "TradeBook", endpointTradeBook)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, r.toDomain())
	}
	return trades, nil
}

// GetQuote fetches a snapshot quote for one instrument.
func (c *Client) GetQuote(ctx context.Context, exchange, token string) (domain.Quote, error) {
	payload := quotePayload{UID: c.session.UserID(), Exchange: exchange, Token: token}
	var row quoteRow
	if err := c.call(ctx, "GetQuotes", endpointGetQuotes, payload, &row); err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Exchange:      row.Exchange,
		Token:         row.Token,
		TradingSymbol: row.Symbol,
		LastPrice:     atof(row.LastPrice),
	}, nil
}

// GetSecurityInfo fetches the gateway's reference data for one instrument.
func (c *Client) GetSecurityInfo(ctx context.Context, exchange, token string) (domain.SecurityInfo, error) {
	payload := quotePayload{UID: c.session.UserID(), Exchange: exchange, Token: token}
	var row quoteRow
	if err := c.call(ctx, "GetSecurityInfo", endpointSecurityInfo, payload, &row); err != nil {
		return domain.SecurityInfo{}, err
	}
	return domain.SecurityInfo{
		Exchange:      row.Exchange,
		Token:         row.Token,
		TradingSymbol: row.Symbol,
		TickSize:      row.TickSize,
		LotSize:       atoi(row.LotSize),
	}, nil
}

// call posts one object-shaped request and decodes the response into out,
// which must embed statusResponse semantics via its own stat field or be a
// statusResponse itself.
func (c *Client) call(ctx context.Context, op, endpoint string, payload any, out any) error {
	body, err := c.post(ctx, op, endpoint, payload)
	if err != nil {
		return err
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return domain.NewNetworkError(op, fmt.Errorf("malformed response: %w", err))
	}
	if status.Stat != "Ok" {
		return c.rejection(op, status.Emsg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewNetworkError(op, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// callList posts one request whose success response is a JSON array. A
// stat=Not_Ok body with a "no data" reason is an empty success; the broker
// reports an empty book that way.
func callList[T any](c *Client, ctx context.Context, op, endpoint string) ([]T, error) {
	payload := listPayload{UID: c.session.UserID(), ActID: c.session.AccountID()}
	body, err := c.post(ctx, op, endpoint, payload)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		var status statusResponse
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, domain.NewNetworkError(op, fmt.Errorf("malformed response: %w", err))
		}
		if isNoData(status.Emsg) {
			return []T{}, nil
		}
		return nil, c.rejection(op, status.Emsg)
	}

	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewNetworkError(op, fmt.Errorf("malformed response: %w", err))
	}
	return rows, nil
}

func (c *Client) post(ctx context.Context, op, endpoint string, payload any) ([]byte, error) {
	token, err := c.session.Token()
	if err != nil {
		return nil, err
	}

	jData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	form := "jData=" + url.QueryEscape(string(jData)) + "&jKey=" + url.QueryEscape(token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		infra.BrokerErrors.WithLabelValues(op).Inc()
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		infra.BrokerErrors.WithLabelValues(op).Inc()
		return nil, domain.NewNetworkError(op, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}
	return body, nil
}

// rejection maps a stat=Not_Ok reason to the right error. An invalid-session
// reason also flags the token file for the login flow.
func (c *Client) rejection(op, emsg string) error {
	if strings.Contains(strings.ToLower(emsg), "session expired") ||
		strings.Contains(strings.ToLower(emsg), "invalid session") {
		if err := c.session.MarkExpired(); err != nil {
			c.logger.Error("failed to mark session expired", slog.Any("error", err))
		}
		return domain.ErrSessionExpired
	}
	c.logger.Warn("broker rejected request", slog.String("op", op), slog.String("reason", emsg))
	return &domain.BrokerRejection{Op: op, Reason: emsg}
}

// isNoData matches the gateway's empty-book reason strings.
func isNoData(emsg string) bool {
	m := strings.ToLower(emsg)
	return strings.Contains(m, "no data")
}
