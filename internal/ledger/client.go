// Package ledger talks to a running Ethereum client on behalf of a node-managed,
// passphrase-protected account.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"
)

// DefaultAccount is the pre-funded account of the development chain.
var DefaultAccount = common.HexToAddress("0x00a329c0648769a73afac7f9381e08fb43dbea72")

// TxResult is the outcome of a transaction that reached the client. A rejected or
// reverted transaction is reported through Failed and Reason, not as an error.
type TxResult struct {
	Hash    common.Hash
	Receipt *types.Receipt
	Failed  bool
	Reason  string
}

// Config configures a Client.
type Config struct {
	Account    common.Address
	Passphrase string
	NoUnlock   bool // the account is already unlocked, skip personal_unlockAccount

	PollInterval   time.Duration // receipt polling interval, default 100ms
	ReceiptTimeout time.Duration // zero waits forever
	Logger         log15.Logger
}

// Client is a session with an Ethereum client.
type Client struct {
	cfg Config
	rpc *rpc.Client
	eth *ethclient.Client
	log log15.Logger
}

// Dial connects to the client at the given endpoint (http, ws or IPC path).
func Dial(ctx context.Context, endpoint string, cfg Config) (*Client, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "can't connect to %s", endpoint)
	}
	return NewClient(c, cfg), nil
}

// NewClient creates a session on top of an existing RPC connection.
func NewClient(c *rpc.Client, cfg Config) *Client {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = log15.Root()
	}
	return &Client{
		cfg: cfg,
		rpc: c,
		eth: ethclient.NewClient(c),
		log: cfg.Logger.New("account", cfg.Account),
	}
}

// Account returns the signing account.
func (c *Client) Account() common.Address {
	return c.cfg.Account
}

// Close terminates the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Unlock unlocks the signing account for the default duration.
func (c *Client) Unlock(ctx context.Context) error {
	if c.cfg.NoUnlock {
		return nil
	}
	var ok bool
	if err := c.rpc.CallContext(ctx, &ok, "personal_unlockAccount", c.cfg.Account, c.cfg.Passphrase, (*uint64)(nil)); err != nil {
		return errors.Wrap(err, "can't unlock account")
	}
	if !ok {
		return errors.Errorf("account %s was not unlocked", c.cfg.Account.Hex())
	}
	return nil
}

// Deploy creates a contract with the given creation code and blocks until the
// creating transaction is included. Constructor arguments must already be
// appended to code.
func (c *Client) Deploy(ctx context.Context, code []byte) (common.Address, error) {
	res, err := c.send(ctx, nil, code)
	if err != nil {
		return common.Address{}, err
	}
	if res.Failed {
		return common.Address{}, errors.Errorf("contract creation failed: %s", res.Reason)
	}
	c.log.Debug("contract created", "address", res.Receipt.ContractAddress, "tx", res.Hash)
	return res.Receipt.ContractAddress, nil
}

// Transact sends a state-changing call to the given address and blocks until
// the transaction is included.
//
// Rejections by the client (for example when gas estimation hits a revert) and
// reverted transactions are returned as a failed TxResult. The error is only set
// when the client could not be reached.
func (c *Client) Transact(ctx context.Context, to common.Address, data []byte) (TxResult, error) {
	return c.send(ctx, &to, data)
}

// Call executes a read-only call against the latest state.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{From: c.cfg.Account, To: &to, Data: data}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call to %s failed", to.Hex())
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, to *common.Address, data []byte) (TxResult, error) {
	args := map[string]interface{}{
		"from": c.cfg.Account,
		"data": hexutil.Bytes(data),
	}
	if to != nil {
		args["to"] = *to
	}
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return TxResult{Failed: true, Reason: err.Error()}, nil
		}
		return TxResult{}, errors.Wrap(err, "can't send transaction")
	}
	receipt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return TxResult{}, err
	}
	res := TxResult{Hash: hash, Receipt: receipt}
	if receipt.Status == types.ReceiptStatusFailed {
		res.Failed = true
		res.Reason = fmt.Sprintf("transaction %s reverted", hash.Hex())
	}
	return res, nil
}

// waitReceipt polls for the receipt of the given transaction.
func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if receipt != nil && err == nil {
			return receipt, nil
		} else if err != nil && !errors.Is(err, ethereum.NotFound) {
			if ctx.Err() != nil {
				return nil, errors.Wrapf(ctx.Err(), "waiting for %s", hash.Hex())
			}
			return nil, errors.Wrapf(err, "can't get receipt of %s", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for %s", hash.Hex())
		case <-ticker.C:
		}
	}
}
