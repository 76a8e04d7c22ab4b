package finverse

import "encoding/json"

// TokenRequest is the client-credentials exchange body.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

const GrantTypeClientCredentials = "client_credentials"

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Payment is the subset of the Finverse payment snapshot this service reads.
// Amount is kept as json.Number so non-integer values are detectable.
type Payment struct {
	PaymentID string      `json:"payment_id"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	Status    string      `json:"status"`
}
