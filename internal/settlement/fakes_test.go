package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/blues/settlement/internal/model"
	"github.com/blues/settlement/internal/repository"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func newMerchant(id int64, contractAddress string) *model.MerchantModel {
	m := &model.MerchantModel{
		Id:           id,
		BusinessName: fmt.Sprintf("Merchant %d", id),
	}
	if contractAddress != "" {
		m.ContractAddress = &contractAddress
	}
	return m
}

// fakeEscrow 内存托管合约，distribute 会清空余额
type fakeEscrow struct {
	mu sync.Mutex

	balances map[string]*big.Int
	// 余额查询之后、确认之前到账的金额
	lateDeposits map[string]*big.Int
	settled      map[string]*big.Int

	balanceErr    error
	distributeErr error
	confirmErr    error
	blockConfirm  bool

	seq             int
	distributeCalls int
	confirmCalls    int
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{
		balances:     make(map[string]*big.Int),
		lateDeposits: make(map[string]*big.Int),
		settled:      make(map[string]*big.Int),
	}
}

func (f *fakeEscrow) setBalance(address string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = amount
}

func (f *fakeEscrow) setBlockConfirm(block bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockConfirm = block
}

func (f *fakeEscrow) distributions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distributeCalls
}

func (f *fakeEscrow) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeEscrow) Distribute(ctx context.Context, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distributeCalls++
	if f.distributeErr != nil {
		return "", f.distributeErr
	}

	f.seq++
	txHash := fmt.Sprintf("0x%064x", f.seq)

	amount := new(big.Int)
	if b, ok := f.balances[address]; ok {
		amount.Add(amount, b)
	}
	if d, ok := f.lateDeposits[address]; ok {
		amount.Add(amount, d)
		delete(f.lateDeposits, address)
	}
	f.settled[txHash] = amount
	f.balances[address] = new(big.Int)
	return txHash, nil
}

func (f *fakeEscrow) AwaitConfirmation(ctx context.Context, txHash string) (*Settlement, error) {
	f.mu.Lock()
	f.confirmCalls++
	block := f.blockConfirm
	confirmErr := f.confirmErr
	amount := f.settled[txHash]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if confirmErr != nil {
		return nil, confirmErr
	}

	merchantAmount := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(9)), big.NewInt(10))
	return &Settlement{
		TxHash:         txHash,
		BlockNumber:    100,
		SettledAmount:  amount,
		MerchantAmount: merchantAmount,
		PlatformFee:    new(big.Int).Sub(amount, merchantAmount),
	}, nil
}

// fakeLedger 内存账本
type fakeLedger struct {
	mu      sync.Mutex
	records []model.DistributionModel
	nextId  int64

	// 前 n 次写入直接失败
	failCreates int
	// 前 n 次写入成功落库但返回错误
	failAfterCommit int
	createCalls     int
	// 查询待确认记录时返回的错误
	pendingErr error
}

func (l *fakeLedger) Create(ctx context.Context, d *model.DistributionModel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.createCalls++

	if l.failCreates > 0 {
		l.failCreates--
		return errors.New("database is locked")
	}
	if tx := d.TxHash(); tx != "" {
		for i := range l.records {
			if l.records[i].TxHash() == tx {
				return errors.New("UNIQUE constraint failed: distributions.transaction_hash")
			}
		}
	}

	l.nextId++
	d.Id = l.nextId
	l.records = append(l.records, *d)

	if l.failAfterCommit > 0 {
		l.failAfterCommit--
		return errors.New("connection reset by peer")
	}
	return nil
}

func (l *fakeLedger) FindByTxHash(ctx context.Context, txHash string) (*model.DistributionModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].TxHash() == txHash {
			d := l.records[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) Get(ctx context.Context, id int64) (*model.DistributionModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].Id == id {
			d := l.records[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) LatestPending(ctx context.Context, merchantId int64) (*model.DistributionModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingErr != nil {
		return nil, l.pendingErr
	}
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].MerchantId == merchantId && l.records[i].Status == model.DistributionStatusPending {
			d := l.records[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) ListPending(ctx context.Context) ([]model.DistributionModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pending []model.DistributionModel
	for i := range l.records {
		if l.records[i].Status == model.DistributionStatusPending {
			pending = append(pending, l.records[i])
		}
	}
	return pending, nil
}

func (l *fakeLedger) Resolve(ctx context.Context, id int64, res repository.Resolution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		d := &l.records[i]
		if d.Id != id {
			continue
		}
		if d.Status != model.DistributionStatusPending {
			return repository.ErrNotPending
		}
		d.Status = res.Status
		d.ErrorKind = res.ErrorKind
		d.Notes = res.Notes
		if res.TotalAmount != nil {
			d.TotalAmount = model.NewAmount(*res.TotalAmount)
		}
		if res.MerchantAmount != nil {
			d.MerchantAmount = model.NewAmount(*res.MerchantAmount)
		}
		if res.PlatformFees != nil {
			d.PlatformFees = model.NewAmount(*res.PlatformFees)
		}
		return nil
	}
	return repository.ErrNotPending
}

func (l *fakeLedger) all() []model.DistributionModel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.DistributionModel(nil), l.records...)
}

// fakeMerchants 内存商户来源
type fakeMerchants struct {
	merchants []model.MerchantModel
	listErr   error
}

func (f *fakeMerchants) Get(ctx context.Context, id int64) (*model.MerchantModel, error) {
	for i := range f.merchants {
		if f.merchants[i].Id == id {
			m := f.merchants[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeMerchants) ListWithEscrow(ctx context.Context) ([]model.MerchantModel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var eligible []model.MerchantModel
	for i := range f.merchants {
		if f.merchants[i].HasEscrow() {
			eligible = append(eligible, f.merchants[i])
		}
	}
	return eligible, nil
}
