package oanda

import "net/url"

// Endpoint names used in logs and metrics.
const (
	EndpointPricing     = "pricing"
	EndpointCandles     = "candles"
	EndpointAccount     = "account"
	EndpointInstruments = "instruments"
)

// PricingPath is GET /v3/accounts/{accountID}/pricing.
func PricingPath(accountID string) string {
	return "/v3/accounts/" + url.PathEscape(accountID) + "/pricing"
}

// CandlesPath is GET /v3/instruments/{instrument}/candles.
func CandlesPath(instrument string) string {
	return "/v3/instruments/" + url.PathEscape(instrument) + "/candles"
}

// AccountPath is GET /v3/accounts/{accountID}.
func AccountPath(accountID string) string {
	return "/v3/accounts/" + url.PathEscape(accountID)
}

// InstrumentsPath is GET /v3/accounts/{accountID}/instruments.
func InstrumentsPath(accountID string) string {
	return AccountPath(accountID) + "/instruments"
}
