package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/web3"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// fallbackApproveGas is used when the node cannot estimate an approval.
const fallbackApproveGas uint64 = 100_000

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Signer implements swap.Chain on top of a Client and a local private key.
// Nonce assignment is serialized so concurrent sends never reuse a nonce.
type Signer struct {
	backend      web3.Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	pollInterval time.Duration
	afterSend    func()
	mu           sync.Mutex
}

var _ swap.Chain = (*Signer)(nil)

// SignerOption customizes a Signer.
type SignerOption func(*Signer)

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) SignerOption {
	return func(s *Signer) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithAfterSend registers a hook run after each broadcast. The simulated
// backend uses it to mine a block.
func WithAfterSend(fn func()) SignerOption {
	return func(s *Signer) { s.afterSend = fn }
}

// NewSigner builds a signer from a hex encoded private key. chainID <= 0 means
// the chain id is read from the node.
func NewSigner(ctx context.Context, client *Client, hexKey string, chainID int64, opts ...SignerOption) (*Signer, error) {
	if client == nil || client.backend == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析签名私钥失败: %w", err)
	}
	id := big.NewInt(chainID)
	if chainID <= 0 {
		id, err = client.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}
	s := &Signer{
		backend:      client.backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		chainID:      id,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Account returns the signer address in lower-case hex.
func (s *Signer) Account() string {
	return strings.ToLower(s.from.Hex())
}

// Allowance reads ERC-20 allowance(owner, spender).
func (s *Signer) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	input, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("编码 allowance 调用失败: %w", err)
	}
	tokenAddr := common.HexToAddress(token)
	raw, err := s.backend.CallContract(ctx, gethcore.CallMsg{To: &tokenAddr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 allowance 失败: %w", err)
	}
	out, err := erc20ABI.Unpack("allowance", raw)
	if err != nil {
		return nil, fmt.Errorf("解析 allowance 返回值失败: %w", err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("allowance 返回值类型异常")
	}
	return value, nil
}

// Approve sends approve(spender, amount) to the token contract.
func (s *Signer) Approve(ctx context.Context, token, spender string, amount *big.Int) (swap.Pending, error) {
	input, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return nil, fmt.Errorf("编码 approve 调用失败: %w", err)
	}
	tokenAddr := common.HexToAddress(token)
	gas, err := s.backend.EstimateGas(ctx, gethcore.CallMsg{From: s.from, To: &tokenAddr, Data: input})
	if err != nil || gas == 0 {
		gas = fallbackApproveGas
	} else {
		gas = swap.GasLimit(gas)
	}
	return s.Send(ctx, swap.Tx{To: token, Data: input, Value: new(big.Int), GasLimit: gas})
}

// Send signs an EIP-1559 transaction and broadcasts it.
func (s *Signer) Send(ctx context.Context, tx swap.Tx) (swap.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取小费建议失败: %w", err)
	}
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块头失败: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := common.HexToAddress(tx.To)
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       tx.GasLimit,
		To:        &to,
		Value:     value,
		Data:      tx.Data,
	})
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("广播交易失败: %w", err)
	}
	if s.afterSend != nil {
		s.afterSend()
	}
	return &pendingTx{backend: s.backend, hash: signed.Hash(), interval: s.pollInterval}, nil
}

type pendingTx struct {
	backend  web3.Backend
	hash     common.Hash
	interval time.Duration
}

func (p *pendingTx) Hash() string { return p.hash.Hex() }

// Wait polls for the receipt until it is mined or ctx is done. Receipt query
// errors are treated as transient: the transaction may still be mined, so the
// only outcomes are a receipt or ctx.Err().
func (p *pendingTx) Wait(ctx context.Context) (swap.Receipt, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	var lastErr error
	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.hash)
		if err == nil && receipt != nil {
			out := swap.Receipt{
				Hash:    p.hash.Hex(),
				Status:  receipt.Status,
				GasUsed: receipt.GasUsed,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return swap.Receipt{}, fmt.Errorf("等待交易回执超时: %w (最近一次查询错误: %v)", ctx.Err(), lastErr)
			}
			return swap.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
