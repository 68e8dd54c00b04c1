// Package gasoracle is a reference txmanager.FeeOracle HTTP client,
// grounded on the original ETHGasStationOracle (priority-to-fee mapping,
// gwei-to-wei conversion) and on the teacher's rpc/http.go for HTTP
// client construction. A failure here is never fatal to a send: the Fee
// Planner falls back to the Chain Adapter's own estimator whenever
// GetInfo returns an error.
package gasoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/arcsign/txmanager/txmanager"
)

const gweiToWei = 1_000_000_000

// response mirrors the ETH Gas Station wire shape: prices in tenths of a
// gwei, wait times in minutes.
type response struct {
	Fastest     float64 `json:"fastest"`
	Fast        float64 `json:"fast"`
	Average     float64 `json:"average"`
	SafeLow     float64 `json:"safeLow"`
	FastestWait float64 `json:"fastestWait"`
	FastWait    float64 `json:"fastWait"`
	AvgWait     float64 `json:"avgWait"`
	SafeLowWait float64 `json:"safeLowWait"`
	BlockTime   float64 `json:"block_time"`
}

// Client is a reference Fee Oracle over an ETH Gas Station-shaped HTTP
// endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New returns a Client polling endpoint with the given request timeout.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetInfo fetches the current fee schedule and maps priority to the
// corresponding tier. Any HTTP, status-code or decode failure is
// returned as an ordinary error — from the Fee Planner's point of view
// every failure mode here is equally recoverable via fallback.
func (c *Client) GetInfo(ctx context.Context, priority txmanager.Priority) (txmanager.FeeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return txmanager.FeeInfo{}, fmt.Errorf("gasoracle: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return txmanager.FeeInfo{}, fmt.Errorf("gasoracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return txmanager.FeeInfo{}, fmt.Errorf("gasoracle: unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return txmanager.FeeInfo{}, fmt.Errorf("gasoracle: parse response: %w", err)
	}

	gweiTenths, waitMinutes := selectTier(body, priority)

	maxFee := gweiTenthsToWei(gweiTenths)
	miningTime := time.Duration(waitMinutes * float64(time.Minute))

	info := txmanager.FeeInfo{
		MaxFee:             maxFee,
		ExpectedMiningTime: &miningTime,
	}
	if body.BlockTime > 0 {
		blockTime := time.Duration(body.BlockTime * float64(time.Second))
		info.ObservedBlockTime = &blockTime
	}

	log.Debug("gasoracle: fetched fee info", "priority", priority, "max_fee_wei", maxFee, "mining_time", miningTime)
	return info, nil
}

// selectTier maps priority to the (price, wait) pair ETH Gas Station
// assigns it, reproducing the match in the original gas_oracle.rs.
func selectTier(r response, priority txmanager.Priority) (priceGweiTenths, waitMinutes float64) {
	switch priority {
	case txmanager.PriorityASAP:
		return r.Fastest, r.FastestWait
	case txmanager.PriorityHigh:
		return r.Fast, r.FastWait
	case txmanager.PriorityNormal:
		return r.Average, r.AvgWait
	default: // PriorityLow
		return r.SafeLow, r.SafeLowWait
	}
}

func gweiTenthsToWei(v float64) *big.Int {
	// ETH Gas Station quotes prices in tenths of a gwei.
	wei := new(big.Float).Mul(big.NewFloat(v/10), big.NewFloat(gweiToWei))
	out, _ := wei.Int(nil)
	return out
}

var _ txmanager.FeeOracle = (*Client)(nil)
