package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "secret"

// fakeNode is a minimal JSON-RPC node. Transactions whose data starts with 0xff
// are rejected at submission, 0xfe makes them revert after inclusion.
type fakeNode struct {
	mu       sync.Mutex
	nonce    uint64
	unlocks  int
	stall    bool // never produce receipts
	pending  map[common.Hash]int // polls until the receipt appears
	receipts map[common.Hash]*types.Receipt
	lastCall map[string]interface{}
}

type ethService struct{ n *fakeNode }

func (s *ethService) SendTransaction(args map[string]interface{}) (common.Hash, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	data, err := hexutil.Decode(args["data"].(string))
	if err != nil {
		return common.Hash{}, err
	}
	if len(data) > 0 && data[0] == 0xff {
		return common.Hash{}, errors.New("execution reverted")
	}
	from := common.HexToAddress(args["from"].(string))
	hash := crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(s.n.nonce).Bytes())
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            hash,
		Logs:              []*types.Log{},
		CumulativeGasUsed: 21000,
		GasUsed:           21000,
	}
	if _, ok := args["to"]; !ok {
		receipt.ContractAddress = crypto.CreateAddress(from, s.n.nonce)
	}
	if len(data) > 0 && data[0] == 0xfe {
		receipt.Status = types.ReceiptStatusFailed
	}
	s.n.nonce++
	s.n.pending[hash] = 2
	s.n.receipts[hash] = receipt
	return hash, nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	if s.n.stall {
		return nil, nil
	}
	if s.n.pending[hash] > 0 {
		s.n.pending[hash]--
		return nil, nil
	}
	return s.n.receipts[hash], nil
}

func (s *ethService) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()

	s.n.lastCall = args
	return common.LeftPadBytes(big.NewInt(42).Bytes(), 32), nil
}

type personalService struct{ n *fakeNode }

func (s *personalService) UnlockAccount(addr common.Address, pass string, duration *uint64) (bool, error) {
	if pass != testPassphrase {
		return false, errors.New("could not decrypt key with given password")
	}
	s.n.mu.Lock()
	s.n.unlocks++
	s.n.mu.Unlock()
	return true, nil
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeNode) {
	node := &fakeNode{
		pending:  make(map[common.Hash]int),
		receipts: make(map[common.Hash]*types.Receipt),
	}
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &ethService{node}))
	require.NoError(t, srv.RegisterName("personal", &personalService{node}))
	t.Cleanup(srv.Stop)

	if cfg.Account == (common.Address{}) {
		cfg.Account = DefaultAccount
	}
	cfg.PollInterval = time.Millisecond
	c := NewClient(rpc.DialInProc(srv), cfg)
	t.Cleanup(c.Close)
	return c, node
}

func TestUnlock(t *testing.T) {
	c, node := newTestClient(t, Config{Passphrase: testPassphrase})
	require.NoError(t, c.Unlock(context.Background()))
	require.Equal(t, 1, node.unlocks)

	bad, _ := newTestClient(t, Config{Passphrase: "wrong"})
	require.Error(t, bad.Unlock(context.Background()))

	skip, node := newTestClient(t, Config{Passphrase: "wrong", NoUnlock: true})
	require.NoError(t, skip.Unlock(context.Background()))
	require.Equal(t, 0, node.unlocks)
}

func TestDeploy(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	addr, err := c.Deploy(context.Background(), []byte{0x60, 0x80})
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(DefaultAccount, 0), addr)

	_, err = c.Deploy(context.Background(), []byte{0xfe})
	require.Error(t, err)
}

func TestTransact(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")

	res, err := c.Transact(context.Background(), to, []byte{0x01})
	require.NoError(t, err)
	require.False(t, res.Failed)
	require.NotNil(t, res.Receipt)

	res, err = c.Transact(context.Background(), to, []byte{0xfe})
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.Contains(t, res.Reason, "reverted")

	res, err = c.Transact(context.Background(), to, []byte{0xff})
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.Contains(t, res.Reason, "execution reverted")
}

func TestCall(t *testing.T) {
	c, node := newTestClient(t, Config{})
	to := common.HexToAddress("0x0000000000000000000000000000000000000002")

	out, err := c.Call(context.Background(), to, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, int64(42), new(big.Int).SetBytes(out).Int64())
	require.Equal(t, to, common.HexToAddress(node.lastCall["to"].(string)))
}

func TestReceiptTimeout(t *testing.T) {
	c, node := newTestClient(t, Config{ReceiptTimeout: 20 * time.Millisecond})
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")

	node.stall = true
	_, err := c.Transact(context.Background(), to, []byte{0x01})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotContains(t, err.Error(), "can't get receipt")
}
