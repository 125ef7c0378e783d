package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Kamar-Folarin/repo-provisioner/internal/errors"
	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

// MemoryStore keeps runs in process memory. It is used when no database is
// configured and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

// SaveRun stores a copy of run, so later mutations by the caller are not
// visible until the next save.
func (s *MemoryStore) SaveRun(ctx context.Context, run *models.ProvisionRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	s.mu.Lock()
	s.runs[run.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.ProvisionRun, error) {
	s.mu.RLock()
	data, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewResourceNotFoundError("run", id)
	}
	return decodeRun(data)
}

func (s *MemoryStore) ListRuns(ctx context.Context, subjectID string) ([]*models.ProvisionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*models.ProvisionRun
	for _, data := range s.runs {
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		if subjectID == "" || run.SubjectID == subjectID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return errors.NewResourceNotFoundError("run", id)
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func decodeRun(data []byte) (*models.ProvisionRun, error) {
	var run models.ProvisionRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}
