package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a lazily dialed connection to a single network. The first call
// tries each RPC URL in order and keeps the first one reporting the expected
// chain id.
type Client struct {
	config *ChainConfig
	client *ethclient.Client
	mu     sync.Mutex
}

var _ Backend = (*Client)(nil)

// NewClient creates a client for the given network. No connection is made
// until the first RPC call.
func NewClient(config *ChainConfig) *Client {
	return &Client{config: config}
}

// Config returns the network the client talks to.
func (c *Client) Config() *ChainConfig {
	return c.config
}

// getClient holds the lock for the whole dial so concurrent first calls do
// not open duplicate connections.
func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	lastErr := fmt.Errorf("no rpc urls configured")
	for _, rpcURL := range c.config.RPCURLs {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(dialCtx, rpcURL)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		idCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		chainID, err := client.ChainID(idCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}

		if chainID.Cmp(c.config.ChainID) != 0 {
			client.Close()
			lastErr = fmt.Errorf("chain ID mismatch: expected %s, got %s", c.config.ChainID.String(), chainID.String())
			continue
		}

		c.client = client
		return client, nil
	}

	return nil, fmt.Errorf("failed to connect to %s: %w", c.config.Name, lastErr)
}

// ChainID returns the configured chain id without a round trip.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.config.ChainID), nil
}

// BalanceAt returns the native balance of account at the given block (nil for latest).
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, account, blockNumber)
}

// PendingNonceAt returns the next nonce for account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, account)
}

// EstimateGas estimates gas for a call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

// SuggestGasPrice returns the suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

// SuggestGasTipCap returns the suggested priority fee for EIP-1559 transactions.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasTipCap(ctx)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}

// Close closes the underlying connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
