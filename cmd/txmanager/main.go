// Command txmanager is the reference CLI wiring a chainrpc.Adapter, a
// filestore.Store, an optional gasoracle.Client, and a txmanager.Manager
// together to deliver one transaction end to end. It follows
// cmd/arcsign's plain-switch dispatch idiom rather than reaching for a
// CLI framework, since the teacher itself never does for this repo.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/arcsign/chainadapter/ethereum"
	"github.com/arcsign/txmanager/chainrpc"
	"github.com/arcsign/txmanager/filestore"
	"github.com/arcsign/txmanager/gasoracle"
	"github.com/arcsign/txmanager/internal/app"
	"github.com/arcsign/txmanager/txmanager"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "send":
		handleSend(os.Args[2:])
	case "version":
		fmt.Printf("txmanager v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`txmanager - persistent EVM transaction delivery

Usage:
  txmanager send --config <path> --to <address> --value <wei> [--confirmations N] [--priority normal]
  txmanager version
  txmanager help

Configuration is read from --config (JSON or YAML) and layered with
TXMANAGER_* environment variables; see internal/app.TxManagerConfig.`)
}

func handleSend(args []string) {
	configPath, to, value, confirmations, priority := parseSendArgs(args)

	cfg, err := app.LoadTxManagerConfigFile(configPath)
	if err != nil {
		log.Error("txmanager: load config", "err", err)
		os.Exit(1)
	}
	cfg = app.ApplyTxManagerEnvOverrides(cfg)

	chainID := big.NewInt(cfg.ChainID)

	client, err := ethclient.DialContext(context.Background(), cfg.RPCEndpoint)
	if err != nil {
		log.Error("txmanager: dial RPC endpoint", "endpoint", cfg.RPCEndpoint, "err", err)
		os.Exit(1)
	}

	signer, err := ethereum.NewEthereumSigner(cfg.PrivateKeyHex, cfg.ChainID)
	if err != nil {
		log.Error("txmanager: construct signer", "err", err)
		os.Exit(1)
	}

	adapter := chainrpc.New(client, signer, chainID)
	if len(cfg.FailoverRPCEndpoints) > 0 {
		pool, err := dialPool(cfg.RPCEndpoint, cfg.FailoverRPCEndpoints)
		if err != nil {
			log.Error("txmanager: dial failover RPC pool", "err", err)
			os.Exit(1)
		}
		adapter = adapter.WithPool(pool)
	}
	store := filestore.New(cfg.StateFilePath)

	var oracle txmanager.FeeOracle
	if cfg.GasOracleURL != "" {
		oracle = gasoracle.New(cfg.GasOracleURL, cfg.BlockTime)
	}

	managerCfg := txmanager.DefaultConfig().
		WithTransactionMiningTime(cfg.TransactionMiningTime).
		WithBlockTime(cfg.BlockTime).
		WithLegacy(cfg.Legacy)

	ctx := context.Background()
	manager, recoveredReceipt, err := txmanager.New(ctx, adapter, oracle, store, chainID, managerCfg)
	if err != nil {
		log.Error("txmanager: construct manager", "err", err)
		os.Exit(1)
	}
	if recoveredReceipt != nil {
		log.Info("txmanager: recovered and confirmed a prior in-flight transaction", "hash", recoveredReceipt.TxHash)
		return
	}

	req := txmanager.Request{
		From:          common.HexToAddress(signer.GetAddress()),
		To:            common.HexToAddress(to),
		Value:         txmanager.NewValue(value),
		Confirmations: confirmations,
		Priority:      priority,
	}

	receipt, err := manager.Send(ctx, req)
	if err != nil {
		log.Error("txmanager: send failed", "err", err)
		os.Exit(1)
	}
	log.Info("txmanager: transaction confirmed", "hash", receipt.TxHash, "block", receipt.BlockNumber)
}

// parseSendArgs is a minimal flag reader in the teacher's no-framework
// style; it tolerates only the exact --flag value pairs send uses.
func parseSendArgs(args []string) (configPath, to string, value *big.Int, confirmations uint64, priority txmanager.Priority) {
	value = big.NewInt(0)
	confirmations = 0
	priority = txmanager.PriorityNormal

	for i := 0; i < len(args)-1; i += 2 {
		switch args[i] {
		case "--config":
			configPath = args[i+1]
		case "--to":
			to = args[i+1]
		case "--value":
			value.SetString(args[i+1], 10)
		case "--confirmations":
			var n uint64
			fmt.Sscanf(args[i+1], "%d", &n)
			confirmations = n
		case "--priority":
			priority = parsePriority(args[i+1])
		}
	}
	return
}

// dialPool dials primary plus every failover endpoint and wraps them in
// a chainrpc.Pool, so a mid-flight RPC outage on the primary doesn't
// stall the confirmation watch.
func dialPool(primary string, failovers []string) (*chainrpc.Pool, error) {
	endpoints := append([]string{primary}, failovers...)
	clients := make([]*ethclient.Client, 0, len(endpoints))
	for _, endpoint := range endpoints {
		client, err := ethclient.DialContext(context.Background(), endpoint)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		clients = append(clients, client)
	}
	return chainrpc.NewPool(clients, endpoints)
}

func parsePriority(s string) txmanager.Priority {
	switch s {
	case "low":
		return txmanager.PriorityLow
	case "high":
		return txmanager.PriorityHigh
	case "asap":
		return txmanager.PriorityASAP
	default:
		return txmanager.PriorityNormal
	}
}
