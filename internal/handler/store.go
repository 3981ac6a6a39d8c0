package handler

import (
	"sync"

	"github.com/orcaya/payplace-go/internal/model"
)

// RecordStore keeps payment records in memory, keyed by the internal payment
// reference. Handlers hold the only pointer to each record, so mutation
// happens under the store's lock via Update.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*model.PaymentRecord
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]*model.PaymentRecord)}
}

// Put stores a record under its internal reference.
func (s *RecordStore) Put(rec *model.PaymentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Number] = rec
}

// Get returns a snapshot copy of the record, if present.
func (s *RecordStore) Get(number string) (model.PaymentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[number]
	if !ok {
		return model.PaymentRecord{}, false
	}
	return *rec, true
}

// Update runs fn on the live record under the write lock. It returns false
// when the record does not exist.
func (s *RecordStore) Update(number string, fn func(*model.PaymentRecord) error) (model.PaymentRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[number]
	if !ok {
		return model.PaymentRecord{}, false, nil
	}
	if err := fn(rec); err != nil {
		return *rec, true, err
	}
	return *rec, true, nil
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
