// Package erc20 adapts an on-chain ERC-20 token to the escrow asset interface.
// The pool is the address of the configured signing key.
package erc20

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ratevault/internal/domain"
	"github.com/kailas-cloud/ratevault/internal/domain/escrow"
)

// ABI is the subset of ERC-20 the adapter calls.
const ABI = `[
 {"type":"function","name":"transfer","stateMutability":"nonpayable",
  "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"transferFrom","stateMutability":"nonpayable",
  "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]}
]`

// ErrReverted signals a mined transaction whose status is not successful.
var ErrReverted = errors.New("erc20: transaction reverted")

// Config describes how to reach the token contract.
type Config struct {
	RPCURL         string
	Contract       string // token contract address
	PrivateKey     string // hex key of the pool account
	ChainID        int64  // 0 = ask the node
	ConfirmTimeout time.Duration
	Logger         *zap.Logger
}

// contract is the part of bind.BoundContract the adapter needs.
type contract interface {
	Call(opts *bind.CallOpts, results *[]any, method string, params ...any) error
	Transact(opts *bind.TransactOpts, method string, params ...any) (*types.Transaction, error)
}

type minedWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

// Asset moves tokens in and out of the pool account.
type Asset struct {
	contract       contract
	wait           minedWaiter
	auth           *bind.TransactOpts
	pool           common.Address
	confirmTimeout time.Duration
	logger         *zap.Logger
	closeFn        func()
}

var _ escrow.Asset = (*Asset)(nil)

// Dial connects to the node and binds the token contract.
func Dial(ctx context.Context, cfg Config) (*Asset, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("erc20: invalid contract address %q", cfg.Contract)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse abi: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("erc20: dial %s: %w", cfg.RPCURL, err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("erc20: chain id: %w", err)
		}
	}
	auth, err := newTransactor(key, chainID)
	if err != nil {
		client.Close()
		return nil, err
	}

	bound := bind.NewBoundContract(common.HexToAddress(cfg.Contract), parsed, client, client, client)
	a := newAsset(bound, func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, client, tx)
	}, auth, cfg.ConfirmTimeout, cfg.Logger)
	a.closeFn = client.Close
	return a, nil
}

func newTransactor(key *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("erc20: transactor: %w", err)
	}
	return auth, nil
}

func newAsset(c contract, wait minedWaiter, auth *bind.TransactOpts, timeout time.Duration, logger *zap.Logger) *Asset {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Asset{
		contract:       c,
		wait:           wait,
		auth:           auth,
		pool:           auth.From,
		confirmTimeout: timeout,
		logger:         logger,
	}
}

// Pool returns the custody account address.
func (a *Asset) Pool() common.Address { return a.pool }

// Close releases the RPC connection.
func (a *Asset) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// TransferIn calls transferFrom(from, pool, amount). The depositor must have approved the pool.
func (a *Asset) TransferIn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return a.transact(ctx, "transferFrom", from, a.pool, amount.ToBig())
}

// TransferOut calls transfer(to, amount) from the pool.
func (a *Asset) TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return a.transact(ctx, "transfer", to, amount.ToBig())
}

// Balance calls balanceOf(pool) on the latest block.
func (a *Asset) Balance(ctx context.Context) (*uint256.Int, error) {
	var out []any
	if err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", a.pool); err != nil {
		return nil, fmt.Errorf("erc20: balanceOf: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("erc20: balanceOf returned %d values", len(out))
	}
	raw, ok := out[0].(*big.Int)
	if !ok || raw == nil {
		return nil, fmt.Errorf("erc20: balanceOf returned %T", out[0])
	}
	bal, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("erc20: balanceOf %s exceeds 256 bits", raw.String())
	}
	return bal, nil
}

// transact sends the call and blocks until it is mined with a successful status.
// Once sent, the wait no longer follows the caller's context and is bounded only by
// the confirm timeout. A transaction that may still be mined is reported as
// domain.ErrTransferUnconfirmed.
func (a *Asset) transact(ctx context.Context, method string, params ...any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("erc20: %s: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.confirmTimeout)
	defer cancel()

	opts := *a.auth
	opts.Context = ctx

	tx, err := a.contract.Transact(&opts, method, params...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("erc20: send %s: %w: %w", method, domain.ErrTransferUnconfirmed, err)
		}
		return fmt.Errorf("erc20: send %s: %w", method, err)
	}
	receipt, err := a.wait(ctx, tx)
	if err != nil {
		a.logger.Error("erc20 transaction outcome unknown",
			zap.String("method", method),
			zap.String("tx", tx.Hash().Hex()),
			zap.Error(err),
		)
		return fmt.Errorf("erc20: wait %s %s: %w: %w", method, tx.Hash().Hex(), domain.ErrTransferUnconfirmed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrReverted)
	}

	a.logger.Debug("erc20 transaction mined",
		zap.String("method", method),
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}
