package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/settlement"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend 托管合约调用需要的链接口，ethclient.Client 满足
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// TransactOptsFunc 返回签名授权
type TransactOptsFunc func(ctx context.Context) (*bind.TransactOpts, error)

// Escrow 托管合约客户端，实现 settlement.Escrow
type Escrow struct {
	backend       Backend
	abi           abi.ABI
	transactOpts  TransactOptsFunc
	confirmations uint64
	pollInterval  time.Duration

	// 同一签名身份的交易串行提交，避免 nonce 冲突
	sendMu sync.Mutex
}

var _ settlement.Escrow = (*Escrow)(nil)

// NewEscrow 创建托管合约客户端
func NewEscrow(backend Backend, contractABI abi.ABI, transactOpts TransactOptsFunc, confirmations int, pollInterval time.Duration) *Escrow {
	if confirmations < 1 {
		confirmations = 1
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Escrow{
		backend:       backend,
		abi:           contractABI,
		transactOpts:  transactOpts,
		confirmations: uint64(confirmations),
		pollInterval:  pollInterval,
	}
}

// NewEscrowFromManager 使用链管理器的客户端和签名身份
func NewEscrowFromManager(m *Manager, contractABI abi.ABI) *Escrow {
	return NewEscrow(m.GetClient(), contractABI, m.TransactOpts, m.config.Confirmations, m.config.PollInterval)
}

// GetBalance 查询托管地址余额
func (e *Escrow) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid escrow address %q", address)
	}
	return e.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// Distribute 调用托管合约的 distribute 方法，返回交易哈希
func (e *Escrow) Distribute(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid escrow address %q", address)
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	opts, err := e.transactOpts(ctx)
	if err != nil {
		return "", err
	}

	contract := bind.NewBoundContract(common.HexToAddress(address), e.abi, e.backend, e.backend, e.backend)
	tx, err := contract.Transact(opts, methodDistribute)
	if err != nil {
		// 估算 gas 阶段被合约拒绝
		if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
			return "", &settlement.ContractRevertError{Reason: err.Error()}
		}
		return "", fmt.Errorf("send distribute to %s: %w", address, err)
	}

	logger.Info("Submitted distribute to %s, tx %s (nonce %d)", address, tx.Hash().Hex(), tx.Nonce())
	return tx.Hash().Hex(), nil
}

// AwaitConfirmation 轮询回执直到达到确认数，回执失败返回 ContractRevertError
func (e *Escrow) AwaitConfirmation(ctx context.Context, txHash string) (*settlement.Settlement, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		confirmed, err := e.checkReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if confirmed != nil {
			return confirmed, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await confirmation of %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// checkReceipt 返回 nil, nil 表示还需要等待
func (e *Escrow) checkReceipt(ctx context.Context, hash common.Hash) (*settlement.Settlement, error) {
	receipt, err := e.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("await confirmation of %s: %w", hash.Hex(), ctx.Err())
		}
		// 节点瞬时错误，继续轮询直到超时
		logger.Warn("Failed to fetch receipt for %s: %v", hash.Hex(), err)
		return nil, nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &settlement.ContractRevertError{
			TxHash: hash.Hex(),
			Reason: fmt.Sprintf("receipt status %d in block %s", receipt.Status, receipt.BlockNumber.String()),
		}
	}

	head, err := e.backend.BlockNumber(ctx)
	if err != nil {
		logger.Warn("Failed to fetch block number: %v", err)
		return nil, nil
	}
	included := receipt.BlockNumber.Uint64()
	if head < included || head-included+1 < e.confirmations {
		return nil, nil
	}

	result := &settlement.Settlement{
		TxHash:      hash.Hex(),
		BlockNumber: included,
	}
	if total, merchantAmount, fee, ok := decodeDistributed(e.abi, receipt.Logs); ok {
		result.SettledAmount = total
		result.MerchantAmount = merchantAmount
		result.PlatformFee = fee
	}
	return result, nil
}

// decodeDistributed 从回执日志解码 FundsDistributed 事件
func decodeDistributed(contractABI abi.ABI, logs []*types.Log) (total, merchantAmount, fee *big.Int, ok bool) {
	ev, exists := contractABI.Events[eventFundsDistributed]
	if !exists {
		return nil, nil, nil, false
	}

	for _, log := range logs {
		if log == nil || len(log.Topics) == 0 || log.Topics[0] != ev.ID {
			continue
		}

		values, err := contractABI.Unpack(eventFundsDistributed, log.Data)
		if err != nil || len(values) < 3 {
			logger.Warn("Failed to unpack %s in tx %s: %v", eventFundsDistributed, log.TxHash.Hex(), err)
			continue
		}

		total, ok1 := values[0].(*big.Int)
		merchantAmount, ok2 := values[1].(*big.Int)
		fee, ok3 := values[2].(*big.Int)
		if ok1 && ok2 && ok3 {
			return total, merchantAmount, fee, true
		}
	}
	return nil, nil, nil, false
}
