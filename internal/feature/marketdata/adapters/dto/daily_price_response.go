// Package dto mirrors the wire format of the market data provider API.
package dto

// DailyPriceResponse is the JSON body returned by a provider's daily
// endpoint. Numeric fields arrive as strings and are parsed by the adapter.
type DailyPriceResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`

	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}
