// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package chain

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"ordmarket/bitcoin"
)

// relayMinimum is the network relay floor in sat/vB.
const relayMinimum int64 = 1

// conservativeFeeRates is returned when every fee backend fails.
// High enough to relay under congestion, never silently zero.
var conservativeFeeRates = bitcoin.FeeRates{
	Fastest:  20,
	HalfHour: 15,
	Hour:     10,
	Economy:  5,
	Minimum:  1,
}

// mempoolFeesResp mirrors the mempool.space recommended fees payload.
type mempoolFeesResp struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	EconomyFee  int64 `json:"economyFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

// GetFeeRates returns advertised fee rates in sat/vB. On total backend
// failure it degrades to documented conservative defaults with a warning,
// never an error. The minimum tier is clamped to the relay floor.
func (c *Client) GetFeeRates(ctx context.Context, network bitcoin.Network) bitcoin.FeeRates {
	body, err := c.get(ctx, network, "/v1/fees/recommended")
	if err != nil {
		log.WithFields(log.Fields{"network": network, "error": err}).
			Warn("fee rate backends failed, using conservative defaults")
		return conservativeFeeRates
	}

	var resp mempoolFeesResp
	if err = json.Unmarshal(body, &resp); err != nil {
		log.WithFields(log.Fields{"network": network, "error": err}).
			Warn("fee rate payload malformed, using conservative defaults")
		return conservativeFeeRates
	}

	rates := bitcoin.FeeRates{
		Fastest:  resp.FastestFee,
		HalfHour: resp.HalfHourFee,
		Hour:     resp.HourFee,
		Economy:  resp.EconomyFee,
		Minimum:  resp.MinimumFee,
	}
	if rates.Minimum < relayMinimum {
		rates.Minimum = relayMinimum
	}

	return rates
}
