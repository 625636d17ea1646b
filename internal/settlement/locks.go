package settlement

import "sync"

// lockTable 按商户ID加锁，全量分账与手动分账共用
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*lockEntry)}
}

// Lock 获取商户锁，返回释放函数
func (t *lockTable) Lock(merchantId int64) func() {
	t.mu.Lock()
	entry, ok := t.locks[merchantId]
	if !ok {
		entry = &lockEntry{}
		t.locks[merchantId] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, merchantId)
		}
		t.mu.Unlock()
	}
}

// size 当前持有或等待中的商户锁数量
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
