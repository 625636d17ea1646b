package settlement

import (
	"errors"
	"fmt"
	"time"
)

// 错误分类，写入账本 error_kind 字段
const (
	KindNoEscrow            = "no_escrow"
	KindPendingSettlement   = "pending_settlement"
	KindChainCall           = "chain_call"
	KindContractRevert      = "contract_revert"
	KindConfirmationTimeout = "confirmation_timeout"
	KindPersistence         = "persistence"
	KindLedger              = "ledger"
	KindInternal            = "internal"
)

// MerchantNotFoundError 商户不存在
type MerchantNotFoundError struct {
	MerchantId int64
}

func (e *MerchantNotFoundError) Error() string {
	return fmt.Sprintf("merchant with ID %d not found", e.MerchantId)
}

// NoEscrowError 商户尚未部署托管合约，跳过
type NoEscrowError struct {
	MerchantId int64
}

func (e *NoEscrowError) Error() string {
	return fmt.Sprintf("merchant %d has no contract address", e.MerchantId)
}

// PendingSettlementError 商户存在结果未知的分账交易，需先确认
type PendingSettlementError struct {
	MerchantId int64
	TxHash     string
}

func (e *PendingSettlementError) Error() string {
	return fmt.Sprintf("merchant %d is awaiting confirmation of %s", e.MerchantId, e.TxHash)
}

// ChainCallError 链上调用的瞬时失败，下个周期重试
type ChainCallError struct {
	Op  string
	Err error
}

func (e *ChainCallError) Error() string {
	return fmt.Sprintf("chain call %s failed: %v", e.Op, e.Err)
}

func (e *ChainCallError) Unwrap() error {
	return e.Err
}

// ContractRevertError 托管合约拒绝了分账，余额不变
type ContractRevertError struct {
	TxHash string
	Reason string
}

func (e *ContractRevertError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("distribute reverted: %s", e.Reason)
	}
	return fmt.Sprintf("distribute %s reverted: %s", e.TxHash, e.Reason)
}

// ConfirmationTimeoutError 等待确认超时，交易可能仍会上链
type ConfirmationTimeoutError struct {
	TxHash  string
	Timeout time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("distribute %s not confirmed within %s", e.TxHash, e.Timeout)
}

// PersistenceError 链上已分账但账本写入失败
type PersistenceError struct {
	TxHash string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger write failed for confirmed settlement %s: %v", e.TxHash, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// LedgerError 读取账本失败，本次不提交分账
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// DistributionNotFoundError 分账记录不存在
type DistributionNotFoundError struct {
	Id int64
}

func (e *DistributionNotFoundError) Error() string {
	return fmt.Sprintf("distribution with ID %d not found", e.Id)
}

// InvalidResolutionError 人工确认的参数不合法
type InvalidResolutionError struct {
	Reason string
}

func (e *InvalidResolutionError) Error() string {
	return "invalid resolution: " + e.Reason
}

// ErrorKind 返回错误的分类标识
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		noEscrow   *NoEscrowError
		pending    *PendingSettlementError
		chainCall  *ChainCallError
		revert     *ContractRevertError
		timeout    *ConfirmationTimeoutError
		persisting *PersistenceError
		ledger     *LedgerError
	)
	switch {
	case errors.As(err, &persisting):
		return KindPersistence
	case errors.As(err, &timeout):
		return KindConfirmationTimeout
	case errors.As(err, &revert):
		return KindContractRevert
	case errors.As(err, &noEscrow):
		return KindNoEscrow
	case errors.As(err, &pending):
		return KindPendingSettlement
	case errors.As(err, &chainCall):
		return KindChainCall
	case errors.As(err, &ledger):
		return KindLedger
	default:
		return KindInternal
	}
}
