package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/blues/settlement/internal/event"
	"github.com/blues/settlement/internal/logger"
	"github.com/blues/settlement/internal/metrics"
	"github.com/blues/settlement/internal/model"
	"github.com/blues/settlement/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settlement 已确认的分账交易
type Settlement struct {
	TxHash      string
	BlockNumber uint64
	// 以下金额从确认回执的分账事件解码，事件缺失时为 nil
	SettledAmount  *big.Int
	MerchantAmount *big.Int
	PlatformFee    *big.Int
}

// Escrow 托管合约能力接口
type Escrow interface {
	// GetBalance 查询托管地址当前余额
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	// Distribute 提交分账交易，返回交易哈希
	Distribute(ctx context.Context, address string) (string, error)
	// AwaitConfirmation 阻塞直到交易确认、回滚或 ctx 结束
	AwaitConfirmation(ctx context.Context, txHash string) (*Settlement, error)
}

// Ledger 执行器使用的账本操作
type Ledger interface {
	Create(ctx context.Context, d *model.DistributionModel) error
	Get(ctx context.Context, id int64) (*model.DistributionModel, error)
	FindByTxHash(ctx context.Context, txHash string) (*model.DistributionModel, error)
	LatestPending(ctx context.Context, merchantId int64) (*model.DistributionModel, error)
	ListPending(ctx context.Context) ([]model.DistributionModel, error)
	Resolve(ctx context.Context, id int64, res repository.Resolution) error
}

// Options 执行器参数
type Options struct {
	ConfirmTimeout time.Duration // 等待分账确认的上限
	ResolveTimeout time.Duration // 检查待确认交易时单笔等待上限
	WriteRetries   int           // 账本写入重试次数
	RetryBackoff   time.Duration // 重试间隔基数
}

// Outcome 单次分账尝试的结果
type Outcome struct {
	Success bool
	Message string
	TxHash  string
	Record  *model.DistributionModel // 写入的账本记录，没有写入时为 nil
	Err     error
}

// Executor 对单个商户执行一次分账
type Executor struct {
	escrow    Escrow
	ledger    Ledger
	publisher event.Publisher
	metrics   *metrics.SettlementMetrics
	locks     *lockTable
	opts      Options
	now       func() time.Time
}

// NewExecutor 创建分账执行器
func NewExecutor(escrow Escrow, ledger Ledger, publisher event.Publisher, m *metrics.SettlementMetrics, opts Options) *Executor {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 5 * time.Minute
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 30 * time.Second
	}
	if opts.WriteRetries < 1 {
		opts.WriteRetries = 1
	}

	return &Executor{
		escrow:    escrow,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		locks:     newLockTable(),
		opts:      opts,
		now:       time.Now,
	}
}

// Execute 对商户执行一次分账尝试，商户锁覆盖从查询余额到写入账本的全过程
func (e *Executor) Execute(ctx context.Context, merchant *model.MerchantModel) *Outcome {
	log := logger.With(zap.Int64("merchant_id", merchant.Id))

	if !merchant.HasEscrow() {
		e.metrics.ObserveAttempt(metrics.OutcomeSkipped, KindNoEscrow)
		return &Outcome{
			Message: "No contract address found for merchant",
			Err:     &NoEscrowError{MerchantId: merchant.Id},
		}
	}
	address := merchant.EscrowAddress()

	release := e.locks.Lock(merchant.Id)
	defer release()

	// 存在结果未知的交易时不再提交，避免重复分账
	pending, err := e.ledger.LatestPending(ctx, merchant.Id)
	if err != nil {
		lerr := &LedgerError{Op: "latestPending", Err: err}
		log.Error("Failed to check pending distributions: %v", lerr)
		e.metrics.ObserveAttempt(metrics.OutcomeSkipped, KindLedger)
		return &Outcome{Message: lerr.Error(), Err: lerr}
	}
	if pending != nil {
		perr := &PendingSettlementError{MerchantId: merchant.Id, TxHash: pending.TxHash()}
		log.Warn("Skipping merchant: %v", perr)
		e.metrics.ObserveAttempt(metrics.OutcomeSkipped, KindPendingSettlement)
		return &Outcome{Message: perr.Error(), TxHash: pending.TxHash(), Err: perr}
	}

	// 1. 查询托管余额
	balance, err := e.escrow.GetBalance(ctx, address)
	if err != nil {
		cerr := classifyCallError("getBalance", err)
		log.Error("Failed to query escrow balance at %s: %v", address, cerr)
		return e.recordFailure(ctx, merchant, decimal.Zero, "", cerr)
	}
	if balance.Sign() == 0 {
		log.Info("Escrow %s has nothing to distribute", address)
		e.metrics.ObserveAttempt(metrics.OutcomeEmpty, "")
		return &Outcome{Success: true, Message: "nothing to distribute"}
	}

	observed := WeiToAmount(balance)
	log.Info("Distributing funds for merchant %d: %s", merchant.Id, observed.String())

	// 2. 提交分账交易
	txHash, err := e.escrow.Distribute(ctx, address)
	if err != nil {
		cerr := classifyCallError("distribute", err)
		log.Error("Failed to submit distribute for %s: %v", address, cerr)
		return e.recordFailure(ctx, merchant, observed, "", cerr)
	}

	// 3. 等待确认。交易已提交，调用方取消不应中断等待
	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ConfirmTimeout)
	settled, err := e.escrow.AwaitConfirmation(confirmCtx, txHash)
	timedOut := errors.Is(confirmCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		var revert *ContractRevertError
		switch {
		case errors.As(err, &revert):
			if revert.TxHash == "" {
				revert.TxHash = txHash
			}
			log.Error("Distribute %s reverted: %v", txHash, err)
			return e.recordFailure(ctx, merchant, observed, txHash, revert)
		case timedOut || errors.Is(err, context.DeadlineExceeded):
			terr := &ConfirmationTimeoutError{TxHash: txHash, Timeout: e.opts.ConfirmTimeout}
			log.Error("Distribute %s outcome unknown, flagged for manual reconciliation: %v", txHash, terr)
			return e.recordPending(ctx, merchant, observed, txHash, terr)
		default:
			// 已提交但无法确认结果，同样按待确认处理
			cerr := &ChainCallError{Op: "awaitConfirmation", Err: err}
			log.Error("Failed to confirm distribute %s: %v", txHash, cerr)
			return e.recordPending(ctx, merchant, observed, txHash, cerr)
		}
	}

	// 4. 已确认，按确认结果计算拆分
	total, notes := settledTotal(observed, settled)
	merchantAmount, platformFees := Split(total)
	if onChainSplitDiffers(settled, merchantAmount, platformFees) {
		log.Warn("On-chain split for %s differs from the configured ratio", txHash)
		notes = appendNote(notes, "on-chain split differs from configured ratio")
	}

	record := &model.DistributionModel{
		MerchantId:      merchant.Id,
		TotalAmount:     model.NewAmount(total),
		MerchantAmount:  model.NewAmount(merchantAmount),
		PlatformFees:    model.NewAmount(platformFees),
		TransactionHash: &txHash,
		Status:          model.DistributionStatusCompleted,
		Notes:           notes,
		DistributedAt:   e.now(),
	}

	if err := e.persist(ctx, record); err != nil {
		perr := &PersistenceError{TxHash: txHash, Err: err}
		// 资金已转出但账本缺失，最高级别告警
		log.With(zap.String("tx_hash", txHash), zap.String("severity", "critical")).
			Error("CRITICAL: settlement confirmed on-chain but not recorded: total=%s merchant=%s fees=%s: %v",
				total.String(), merchantAmount.String(), platformFees.String(), perr)
		e.metrics.ObservePersistenceFailure()
		e.metrics.ObserveAttempt(metrics.OutcomeCompleted, KindPersistence)
		return &Outcome{Message: perr.Error(), TxHash: txHash, Err: perr}
	}

	e.metrics.ObserveAttempt(metrics.OutcomeCompleted, "")
	e.metrics.ObserveSettled(record.TotalAmount.Decimal, record.PlatformFees.Decimal)
	e.publish(ctx, record)

	log.Info("Funds distributed for merchant %d. Transaction: %s", merchant.Id, txHash)
	return &Outcome{
		Success: true,
		Message: "Funds distributed successfully",
		TxHash:  txHash,
		Record:  record,
	}
}

// ResolvePending 重新检查待确认交易，转为终态。返回已转终态和仍待确认的数量
func (e *Executor) ResolvePending(ctx context.Context) (resolved int, stillPending int, err error) {
	records, err := e.ledger.ListPending(ctx)
	if err != nil {
		return 0, 0, err
	}

	for i := range records {
		if ctx.Err() != nil {
			return resolved, stillPending + len(records) - i, ctx.Err()
		}
		ok, rerr := e.resolveOne(ctx, &records[i])
		if rerr != nil {
			logger.Error("Failed to resolve distribution %d: %v", records[i].Id, rerr)
		}
		if ok {
			resolved++
		} else {
			stillPending++
		}
	}

	return resolved, stillPending, nil
}

func (e *Executor) resolveOne(ctx context.Context, record *model.DistributionModel) (bool, error) {
	release := e.locks.Lock(record.MerchantId)
	defer release()

	txHash := record.TxHash()
	if txHash == "" {
		return false, fmt.Errorf("pending distribution %d has no transaction hash", record.Id)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ResolveTimeout)
	settled, err := e.escrow.AwaitConfirmation(waitCtx, txHash)
	cancel()

	var res repository.Resolution
	if err != nil {
		var revert *ContractRevertError
		if !errors.As(err, &revert) {
			e.metrics.ObserveResolution(metrics.OutcomePending)
			return false, nil
		}
		res = repository.Resolution{
			Status:    model.DistributionStatusFailed,
			ErrorKind: KindContractRevert,
			Notes:     appendNote(record.Notes, revert.Error()),
		}
	} else {
		total, notes := settledTotal(record.TotalAmount.Decimal, settled)
		merchantAmount, platformFees := Split(total)
		res = repository.Resolution{
			Status:         model.DistributionStatusCompleted,
			TotalAmount:    &total,
			MerchantAmount: &merchantAmount,
			PlatformFees:   &platformFees,
			Notes:          appendNote(record.Notes, appendNote("confirmed after timeout", notes)),
		}
	}

	if err := e.ledger.Resolve(ctx, record.Id, res); err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			return true, nil
		}
		return false, err
	}

	e.metrics.ObserveResolution(string(res.Status))
	if res.Status == model.DistributionStatusCompleted {
		e.metrics.ObserveSettled(*res.TotalAmount, *res.PlatformFees)
	}

	if updated, err := e.ledger.FindByTxHash(ctx, txHash); err == nil && updated != nil {
		e.publish(ctx, updated)
	}

	logger.Info("Resolved pending distribution %d (%s) as %s", record.Id, txHash, res.Status)
	return true, nil
}

// ManualResolution 运营人工核对链上结果后的确认
type ManualResolution struct {
	Status      model.DistributionStatus `json:"status"`
	TotalAmount *decimal.Decimal         `json:"totalAmount,omitempty"` // 仅 completed 可填，按比例重新拆分
	Note        string                   `json:"note"`
}

// ResolveManually 人工将待确认记录转为终态，交易被丢弃或长期未上链时使用
func (e *Executor) ResolveManually(ctx context.Context, id int64, req ManualResolution) (*model.DistributionModel, error) {
	if !req.Status.IsTerminal() {
		return nil, &InvalidResolutionError{Reason: fmt.Sprintf("status must be completed or failed, got %q", req.Status)}
	}
	if req.TotalAmount != nil {
		if req.Status != model.DistributionStatusCompleted {
			return nil, &InvalidResolutionError{Reason: "totalAmount is only accepted for completed"}
		}
		if req.TotalAmount.IsNegative() {
			return nil, &InvalidResolutionError{Reason: "totalAmount must not be negative"}
		}
	}

	record, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, &LedgerError{Op: "get", Err: err}
	}
	if record == nil {
		return nil, &DistributionNotFoundError{Id: id}
	}

	release := e.locks.Lock(record.MerchantId)
	defer release()

	note := "resolved manually"
	if req.Note != "" {
		note += ": " + req.Note
	}
	res := repository.Resolution{
		Status: req.Status,
		Notes:  appendNote(record.Notes, note),
	}
	if req.Status == model.DistributionStatusCompleted {
		total := record.TotalAmount.Decimal
		if req.TotalAmount != nil {
			total = *req.TotalAmount
		}
		merchantAmount, platformFees := Split(total)
		res.TotalAmount, res.MerchantAmount, res.PlatformFees = &total, &merchantAmount, &platformFees
	} else {
		res.ErrorKind = record.ErrorKind
	}

	if err := e.ledger.Resolve(ctx, id, res); err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			return nil, err
		}
		return nil, &LedgerError{Op: "resolve", Err: err}
	}

	e.metrics.ObserveResolution(string(res.Status))
	if res.Status == model.DistributionStatusCompleted {
		e.metrics.ObserveSettled(*res.TotalAmount, *res.PlatformFees)
	}

	updated, err := e.ledger.Get(ctx, id)
	if err != nil || updated == nil {
		return nil, &LedgerError{Op: "get", Err: fmt.Errorf("reload distribution %d: %v", id, err)}
	}
	e.publish(ctx, updated)

	logger.With(zap.Int64("merchant_id", record.MerchantId), zap.String("tx_hash", record.TxHash())).
		Warn("Distribution %d resolved manually as %s", id, res.Status)
	return updated, nil
}

// recordFailure 写入失败记录
func (e *Executor) recordFailure(ctx context.Context, merchant *model.MerchantModel, observed decimal.Decimal, txHash string, cause error) *Outcome {
	return e.recordAttempt(ctx, merchant, observed, txHash, model.DistributionStatusFailed, cause)
}

// recordPending 写入结果未知的记录，等待人工或自动确认
func (e *Executor) recordPending(ctx context.Context, merchant *model.MerchantModel, observed decimal.Decimal, txHash string, cause error) *Outcome {
	return e.recordAttempt(ctx, merchant, observed, txHash, model.DistributionStatusPending, cause)
}

func (e *Executor) recordAttempt(ctx context.Context, merchant *model.MerchantModel, observed decimal.Decimal, txHash string, status model.DistributionStatus, cause error) *Outcome {
	merchantAmount, platformFees := Split(observed)
	kind := ErrorKind(cause)

	notes := cause.Error()
	if status == model.DistributionStatusPending {
		notes = appendNote(notes, "manual reconciliation required")
	}

	record := &model.DistributionModel{
		MerchantId:     merchant.Id,
		TotalAmount:    model.NewAmount(observed),
		MerchantAmount: model.NewAmount(merchantAmount),
		PlatformFees:   model.NewAmount(platformFees),
		Status:         status,
		ErrorKind:      kind,
		Notes:          notes,
		DistributedAt:  e.now(),
	}
	if txHash != "" {
		record.TransactionHash = &txHash
	}

	e.metrics.ObserveAttempt(string(status), kind)

	outcome := &Outcome{Message: cause.Error(), TxHash: txHash, Err: cause}
	if err := e.persist(ctx, record); err != nil {
		logger.With(zap.Int64("merchant_id", merchant.Id)).
			Error("Failed to record %s distribution attempt: %v", status, err)
		return outcome
	}

	outcome.Record = record
	e.publish(ctx, record)
	return outcome
}

// persist 写入账本，失败时重试；有交易哈希时以其作为幂等键
func (e *Executor) persist(ctx context.Context, record *model.DistributionModel) error {
	// 账本写入不随调用方取消
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= e.opts.WriteRetries; attempt++ {
		record.Id = 0
		lastErr = e.ledger.Create(ctx, record)
		if lastErr == nil {
			return nil
		}

		if txHash := record.TxHash(); txHash != "" {
			existing, err := e.ledger.FindByTxHash(ctx, txHash)
			if err == nil && existing != nil {
				*record = *existing
				return nil
			}
		}

		logger.Warn("Ledger write attempt %d/%d failed: %v", attempt, e.opts.WriteRetries, lastErr)
		if attempt < e.opts.WriteRetries && e.opts.RetryBackoff > 0 {
			time.Sleep(e.opts.RetryBackoff * time.Duration(attempt))
		}
	}

	return lastErr
}

func (e *Executor) publish(ctx context.Context, record *model.DistributionModel) {
	if err := e.publisher.PublishDistribution(ctx, record); err != nil {
		logger.Warn("Failed to publish distribution %d: %v", record.Id, err)
	}
}

// settledTotal 以确认结果中的分账金额为准，缺失时回退到提交前的余额
func settledTotal(observed decimal.Decimal, settled *Settlement) (decimal.Decimal, string) {
	if settled == nil || settled.SettledAmount == nil {
		return observed, ""
	}

	total := WeiToAmount(settled.SettledAmount)
	if total.Equal(observed) {
		return total, ""
	}
	return total, fmt.Sprintf("settled amount %s differs from pre-call balance %s", total.String(), observed.String())
}

// onChainSplitDiffers 链上事件中的拆分是否与本地比例不一致
func onChainSplitDiffers(settled *Settlement, merchantAmount, platformFees decimal.Decimal) bool {
	if settled == nil || settled.MerchantAmount == nil || settled.PlatformFee == nil {
		return false
	}
	return !withinTolerance(WeiToAmount(settled.MerchantAmount), merchantAmount) ||
		!withinTolerance(WeiToAmount(settled.PlatformFee), platformFees)
}

// classifyCallError 区分合约回滚和瞬时调用失败
func classifyCallError(op string, err error) error {
	var revert *ContractRevertError
	if errors.As(err, &revert) {
		return revert
	}
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return &ContractRevertError{Reason: err.Error()}
	}
	return &ChainCallError{Op: op, Err: err}
}

func appendNote(notes, extra string) string {
	switch {
	case extra == "":
		return notes
	case notes == "":
		return extra
	default:
		return notes + "; " + extra
	}
}
