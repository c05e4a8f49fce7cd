// Package client implements a client for querying the USD/BTC exchange rate
// from an external rate service.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client defines attributes of a struct available to its methods.
type Client struct {
	client       *resty.Client
	serverConfig *config.ServerConfig
	log          *zerolog.Logger
}

type rateResponse struct {
	Rate float64 `json:"rate"`
}

// InitClient initializes a resty client.
func InitClient(serverConfig *config.ServerConfig, log *zerolog.Logger) *Client {
	rateClient := resty.New().SetTimeout(2 * time.Second)
	log.Info().Msg("rate service client initialized")
	return &Client{client: rateClient, serverConfig: serverConfig, log: log}
}

// GetRate queries the current USD/BTC rate. Callers fall back to a static
// estimate on any error, so failures here are logged but never fatal.
func (c *Client) GetRate(ctx context.Context) (float64, error) {
	if c.serverConfig.RateAddress == "" {
		return 0, errors.New("no rate service address is configured")
	}
	var body rateResponse
	response, err := c.client.R().SetContext(ctx).SetResult(&body).Get(c.serverConfig.RateAddress + "/api/rate/btcusd")
	if err != nil {
		c.log.Warn().Err(err).Msg("rate retrieval from service failed")
		return 0, err
	}
	if response.StatusCode() != 200 || body.Rate <= 0 {
		c.log.Warn().Int("status", response.StatusCode()).Msg("rate service returned an unusable response")
		return 0, errors.New("rate service returned an unusable response")
	}
	return body.Rate, nil
}
