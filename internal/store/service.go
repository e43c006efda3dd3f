package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Service indexes stored records in memory on top of a Storage.
type Service struct {
	storage    Storage
	records    map[string]*Record
	maxRecords int
	mu         sync.RWMutex
}

// ServiceConfig holds configuration for the store service.
type ServiceConfig struct {
	// StoragePath is the directory for record files. Empty keeps records
	// in memory only.
	StoragePath string

	// MaxRecords caps how many records are kept; the oldest are pruned.
	// Zero means no limit.
	MaxRecords int
}

// NewService creates a store service and loads existing records.
func NewService(cfg ServiceConfig) (*Service, error) {
	var storage Storage
	if cfg.StoragePath != "" {
		storage = NewFileStorage(cfg.StoragePath)
	} else {
		storage = NewMemoryStorage()
	}
	svc, err := NewServiceWithStorage(storage)
	if err != nil {
		return nil, err
	}
	svc.maxRecords = cfg.MaxRecords
	return svc, nil
}

// NewServiceWithStorage creates a service over an existing storage.
func NewServiceWithStorage(storage Storage) (*Service, error) {
	svc := &Service{
		storage: storage,
		records: make(map[string]*Record),
	}

	records, err := storage.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	for _, r := range records {
		svc.records[r.ID] = r
	}
	return svc, nil
}

// Put validates and saves a record, then prunes down to MaxRecords.
func (s *Service) Put(ctx context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	if err := s.storage.Save(r); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to save record: %w", err)
	}
	s.records[r.ID] = r
	s.mu.Unlock()

	if s.maxRecords > 0 {
		if _, err := s.Prune(ctx, s.maxRecords); err != nil {
			return fmt.Errorf("failed to prune records: %w", err)
		}
	}
	return nil
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return r, nil
}

// ListFilter narrows List.
type ListFilter struct {
	RFQID string
	Limit int
}

// List returns record summaries, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.RFQID != "" && r.RFQID != f.RFQID {
			continue
		}
		out = append(out, r.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Delete removes the record with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return notFound(id)
	}
	if err := s.storage.Delete(id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	delete(s.records, id)
	return nil
}

// Count returns the number of stored records.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Prune deletes the oldest records beyond keep and returns how many were
// removed.
func (s *Service) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	all := s.List(ctx, ListFilter{})
	if len(all) <= keep {
		return 0, nil
	}

	removed := 0
	for _, r := range all[keep:] {
		if err := s.Delete(ctx, r.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
