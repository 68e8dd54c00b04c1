package chainrpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"

	"github.com/arcsign/chainadapter/rpc"
)

// Pool wraps several dialed endpoints for the same chain behind the
// teacher's health-tracker/failover idiom (rpc.RPCHealthTracker,
// rpc.SimpleHealthTracker), so a single flaky RPC provider can't stall
// the Manager's confirmation watch. GetBlockNumber and
// EstimateEIP1559Fees are the two calls the watch loop and the Fee
// Planner issue most often, so concurrent callers share one in-flight
// request per method via singleflight.Group instead of hammering every
// endpoint in the pool independently.
type Pool struct {
	clients []*ethclient.Client
	labels  []string
	health  rpc.RPCHealthTracker
	group   singleflight.Group
}

// NewPool requires at least one client; additional clients are used as
// failover targets when the health tracker marks the current best
// endpoint unhealthy.
func NewPool(clients []*ethclient.Client, endpoints []string) (*Pool, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("chainrpc: pool requires at least one client")
	}
	if len(clients) != len(endpoints) {
		return nil, fmt.Errorf("chainrpc: pool got %d clients but %d endpoint labels", len(clients), len(endpoints))
	}
	return &Pool{
		clients: clients,
		health:  rpc.NewSimpleHealthTracker(),
		labels:  endpoints,
	}, nil
}

func (p *Pool) current() (*ethclient.Client, string) {
	best := p.health.GetBestEndpoint(p.labels)
	for i, label := range p.labels {
		if label == best {
			return p.clients[i], label
		}
	}
	return p.clients[0], p.labels[0]
}

// BlockNumber returns the current head, deduping concurrent callers
// through singleflight and routing around unhealthy endpoints.
func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	v, err, _ := p.group.Do("BlockNumber", func() (interface{}, error) {
		client, label := p.current()
		n, err := client.BlockNumber(ctx)
		if err != nil {
			p.health.RecordFailure(label, err)
			log.Warn("chainrpc: pool endpoint failed BlockNumber", "endpoint", label, "err", err)
			return uint64(0), err
		}
		p.health.RecordSuccess(label, 0)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// HeaderBaseFee returns the latest header's base fee, same
// dedup/failover treatment as BlockNumber.
func (p *Pool) HeaderBaseFee(ctx context.Context) (*big.Int, error) {
	v, err, _ := p.group.Do("HeaderBaseFee", func() (interface{}, error) {
		client, label := p.current()
		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			p.health.RecordFailure(label, err)
			log.Warn("chainrpc: pool endpoint failed HeaderByNumber", "endpoint", label, "err", err)
			return (*big.Int)(nil), err
		}
		p.health.RecordSuccess(label, 0)
		return header.BaseFee, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// TransactionReceipt is not deduped: distinct callers may poll distinct
// hashes, so there is nothing for singleflight to collapse.
func (p *Pool) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	client, label := p.current()
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		p.health.RecordFailure(label, err)
		return nil, err
	}
	p.health.RecordSuccess(label, 0)
	return receipt, nil
}
