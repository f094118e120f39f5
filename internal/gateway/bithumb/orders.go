package bithumb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Balance 是账户中订单币种与结算币种的可用/总量。
type Balance struct {
	AvailableKRW  float64
	AvailableCoin float64
	TotalKRW      float64
	TotalCoin     float64
	UpdatedAt     time.Time
}

// OrderResult is the immediate acknowledgement of a market order.
type OrderResult struct {
	OrderID string
}

// OrderDetail is the settled view of an order after polling.
type OrderDetail struct {
	Status      string
	FilledUnits float64
	AvgPrice    float64
	FeeTotal    float64
}

// GetBalance reads the account balance for the pair's order currency.
func (c *Client) GetBalance(ctx context.Context, orderCurrency string) (Balance, error) {
	params := url.Values{"order_currency": {orderCurrency}}
	body, err := c.doPrivate(ctx, "/info/balance", params)
	if err != nil {
		return Balance{}, fmt.Errorf("get balance failed: %w", err)
	}
	data := body.Get("data")
	coinKey := strings.ToLower(orderCurrency)
	return Balance{
		AvailableKRW:  data.Get("available_krw").Float(),
		AvailableCoin: data.Get("available_" + coinKey).Float(),
		TotalKRW:      data.Get("total_krw").Float(),
		TotalCoin:     data.Get("total_" + coinKey).Float(),
		UpdatedAt:     c.nowFn().UTC(),
	}, nil
}

// MarketBuy places a market buy for the given quantity of the order currency.
func (c *Client) MarketBuy(ctx context.Context, orderCurrency, paymentCurrency string, units float64) (OrderResult, error) {
	if units <= 0 {
		return OrderResult{}, fmt.Errorf("buy units must be positive, got %v", units)
	}
	params := url.Values{
		"order_currency":   {orderCurrency},
		"payment_currency": {paymentCurrency},
		"units":            {formatUnits(units)},
	}
	body, err := c.doPrivate(ctx, "/trade/market_buy", params)
	if err != nil {
		return OrderResult{}, fmt.Errorf("market buy failed: %w", err)
	}
	return OrderResult{OrderID: body.Get("order_id").String()}, nil
}

// MarketSell places a market sell for the given quantity.
func (c *Client) MarketSell(ctx context.Context, orderCurrency, paymentCurrency string, units float64) (OrderResult, error) {
	if units <= 0 {
		return OrderResult{}, fmt.Errorf("sell units must be positive, got %v", units)
	}
	params := url.Values{
		"order_currency":   {orderCurrency},
		"payment_currency": {paymentCurrency},
		"units":            {formatUnits(units)},
	}
	body, err := c.doPrivate(ctx, "/trade/market_sell", params)
	if err != nil {
		return OrderResult{}, fmt.Errorf("market sell failed: %w", err)
	}
	return OrderResult{OrderID: body.Get("order_id").String()}, nil
}

// GetOrderDetail fetches fills for an order. The average price is weighted
// across contract rows; fills are the source of truth for entry bookkeeping.
func (c *Client) GetOrderDetail(ctx context.Context, orderID, orderCurrency, paymentCurrency string) (OrderDetail, error) {
	params := url.Values{
		"order_id":         {orderID},
		"order_currency":   {orderCurrency},
		"payment_currency": {paymentCurrency},
	}
	body, err := c.doPrivate(ctx, "/info/order_detail", params)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("get order detail failed: %w", err)
	}
	data := body.Get("data")
	detail := OrderDetail{Status: data.Get("order_status").String()}

	var notional float64
	for _, contract := range data.Get("contract").Array() {
		units := contract.Get("units").Float()
		price := contract.Get("price").Float()
		detail.FilledUnits += units
		detail.FeeTotal += contract.Get("fee").Float()
		notional += units * price
	}
	if detail.FilledUnits > 0 {
		detail.AvgPrice = notional / detail.FilledUnits
	}
	return detail, nil
}

func formatUnits(units float64) string {
	return strconv.FormatFloat(units, 'f', 8, 64)
}
