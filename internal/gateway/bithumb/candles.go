package bithumb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"breakbot/internal/market"
)

// FetchCandles returns up to count bars for the pair, oldest first. The last
// row is usually the still-forming bar; callers filter it before treating
// the window as closed.
func (c *Client) FetchCandles(ctx context.Context, orderCurrency, paymentCurrency, interval string, count int) ([]market.Candle, error) {
	if count <= 0 {
		count = 100
	}
	path := fmt.Sprintf("/public/candlestick/%s_%s/%s", orderCurrency, paymentCurrency, interval)
	params := url.Values{"count": {strconv.Itoa(count)}}

	body, err := c.doPublic(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("fetch candles failed: %w", err)
	}

	rows := body.Get("data").Array()
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		cols := row.Array()
		if len(cols) < 6 {
			continue
		}
		candles = append(candles, market.Candle{
			OpenTime: cols[0].Int(),
			Open:     cols[1].Float(),
			High:     cols[2].Float(),
			Low:      cols[3].Float(),
			Close:    cols[4].Float(),
			Volume:   cols[5].Float(),
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })
	return candles, nil
}

// Ticker returns the latest traded price for the pair.
func (c *Client) Ticker(ctx context.Context, orderCurrency, paymentCurrency string) (float64, error) {
	path := fmt.Sprintf("/public/ticker/%s_%s", orderCurrency, paymentCurrency)
	body, err := c.doPublic(ctx, path, url.Values{})
	if err != nil {
		return 0, fmt.Errorf("fetch ticker failed: %w", err)
	}
	price := body.Get("data.closing_price").Float()
	if price <= 0 {
		return 0, fmt.Errorf("ticker returned no price")
	}
	return price, nil
}
