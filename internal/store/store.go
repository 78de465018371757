package store

import (
	"sync"
	"time"
)

// Receipt records how one write attempt settled.
type Receipt struct {
	Op     string
	TxID   *uint64
	TxHash string
	Block  uint64
	Result string
	Error  string
	At     time.Time
}

// Store is an in-memory journal of write attempts for the current process.
type Store struct {
	mu       sync.Mutex
	receipts []Receipt
	limit    int
}

// New keeps at most limit receipts; limit <= 0 keeps all of them.
func New(limit int) *Store {
	return &Store{receipts: []Receipt{}, limit: limit}
}

func (s *Store) Add(r Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	if s.limit > 0 && len(s.receipts) > s.limit {
		s.receipts = append([]Receipt(nil), s.receipts[len(s.receipts)-s.limit:]...)
	}
}

// Last returns up to n most recent receipts, newest last.
func (s *Store) Last(n int) []Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.receipts) {
		n = len(s.receipts)
	}
	return append([]Receipt(nil), s.receipts[len(s.receipts)-n:]...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}
