// Package bybit wraps the subset of the Bybit v5 spot API the bot needs:
// market data, wallet balance, order placement and history, plus the public
// orderbook stream.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const recvWindow = "5000"

// Client wraps REST access to Bybit v5.
type Client struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client
	Testnet    bool

	limiter *rate.Limiter
}

// NewClient builds a REST client; use testnet to switch base URLs.
func NewClient(apiKey, apiSecret string, testnet bool) *Client {
	base := "https://api.bybit.com"
	if testnet {
		base = "https://api-testnet.bybit.com"
	}
	return &Client{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		BaseURL:    base,
		Testnet:    testnet,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyBytes = b
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		payload := query.Encode()
		if method == http.MethodPost {
			payload = string(bodyBytes)
		}
		req.Header.Set("X-BAPI-API-KEY", c.APIKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(ts + c.APIKey + recvWindow + payload))
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit %s status %d", path, res.StatusCode)
	}

	var envelope apiResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.RetCode != 0 {
		return fmt.Errorf("bybit %s retCode %d: %s", path, envelope.RetCode, envelope.RetMsg)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// GetKlines fetches recent spot candles, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/kline", q, nil, false, &result); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(result.List))
	// Bybit returns newest first; reverse so callers see chronological order.
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		ms, _ := strconv.ParseInt(row[0], 10, 64)
		klines = append(klines, Kline{
			Start:  time.UnixMilli(ms),
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[5]),
		})
	}
	return klines, nil
}

// GetInstrumentsInfo fetches the spot instrument catalog.
func (c *Client) GetInstrumentsInfo(ctx context.Context) ([]Instrument, error) {
	q := url.Values{}
	q.Set("category", "spot")

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			BaseCoin      string `json:"baseCoin"`
			QuoteCoin     string `json:"quoteCoin"`
			LotSizeFilter struct {
				MinOrderAmt   string `json:"minOrderAmt"`
				MinOrderQty   string `json:"minOrderQty"`
				BasePrecision string `json:"basePrecision"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil, false, &result); err != nil {
		return nil, err
	}

	instruments := make([]Instrument, 0, len(result.List))
	for _, item := range result.List {
		instruments = append(instruments, Instrument{
			Symbol:        item.Symbol,
			BaseCoin:      item.BaseCoin,
			QuoteCoin:     item.QuoteCoin,
			MinOrderAmt:   parseFloat(item.LotSizeFilter.MinOrderAmt),
			MinOrderQty:   parseFloat(item.LotSizeFilter.MinOrderQty),
			BasePrecision: parseFloat(item.LotSizeFilter.BasePrecision),
		})
	}
	return instruments, nil
}

// GetWalletBalance fetches the unified account balance snapshot.
func (c *Client) GetWalletBalance(ctx context.Context) (*WalletBalance, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")

	var result struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
				UsdValue      string `json:"usdValue"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/account/wallet-balance", q, nil, true, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("bybit wallet balance: empty account list")
	}

	acct := result.List[0]
	balance := &WalletBalance{
		TotalEquity:      parseFloat(acct.TotalEquity),
		AvailableBalance: parseFloat(acct.TotalAvailableBalance),
		Coins:            make([]CoinBalance, 0, len(acct.Coin)),
	}
	for _, coin := range acct.Coin {
		balance.Coins = append(balance.Coins, CoinBalance{
			Coin:          coin.Coin,
			WalletBalance: parseFloat(coin.WalletBalance),
			UsdValue:      parseFloat(coin.UsdValue),
		})
	}
	return balance, nil
}

// PlaceMarketOrder submits a spot market order. For Buy the qty is the notional
// value in quote currency, for Sell it is the base quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64, orderLinkID string) (*OrderResult, error) {
	body := map[string]string{
		"category":    "spot",
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(qty, 'f', -1, 64),
		"orderLinkId": orderLinkID,
	}
	if side == "Buy" {
		body["marketUnit"] = "quoteCoin"
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &result); err != nil {
		return nil, err
	}
	return &OrderResult{OrderID: result.OrderID, OrderLinkID: result.OrderLinkID}, nil
}

// GetOrderHistory fetches recent spot orders, optionally filtered by symbol
// and/or order id.
func (c *Client) GetOrderHistory(ctx context.Context, symbol, orderID string, limit int) ([]OrderRecord, error) {
	q := url.Values{}
	q.Set("category", "spot")
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			AvgPrice    string `json:"avgPrice"`
			CumExecQty  string `json:"cumExecQty"`
			CumExecFee  string `json:"cumExecFee"`
			OrderStatus string `json:"orderStatus"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/order/history", q, nil, true, &result); err != nil {
		return nil, err
	}

	records := make([]OrderRecord, 0, len(result.List))
	for _, item := range result.List {
		ms, _ := strconv.ParseInt(item.CreatedTime, 10, 64)
		records = append(records, OrderRecord{
			OrderID:     item.OrderID,
			OrderLinkID: item.OrderLinkID,
			Symbol:      item.Symbol,
			Side:        item.Side,
			AvgPrice:    parseFloat(item.AvgPrice),
			CumExecQty:  parseFloat(item.CumExecQty),
			CumExecFee:  parseFloat(item.CumExecFee),
			OrderStatus: item.OrderStatus,
			CreatedAt:   time.UnixMilli(ms),
		})
	}
	return records, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
