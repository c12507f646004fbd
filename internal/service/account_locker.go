package service

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// accountLocker сериализует изменение баланса одного счета внутри процесса.
// Блокировки нескольких счетов берутся в порядке возрастания id.
type accountLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocker() *accountLocker {
	return &accountLocker{locks: make(map[uuid.UUID]*accountLock)}
}

// Lock блокирует все переданные счета и возвращает функцию освобождения.
// Повторяющиеся id блокируются один раз.
func (l *accountLocker) Lock(ids ...uuid.UUID) (unlock func()) {
	ordered := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i][:], ordered[j][:]) < 0
	})

	held := make([]*accountLock, 0, len(ordered))
	for _, id := range ordered {
		lk := l.acquire(id)
		lk.mu.Lock()
		held = append(held, lk)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *accountLocker) acquire(id uuid.UUID) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &accountLock{}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

// release удаляет запись, когда счет больше никто не ждет
func (l *accountLocker) release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk := l.locks[id]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}
