package diagnosis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type recordRepoMemory struct {
	mu      sync.RWMutex
	seq     int64
	records []*Record
}

// NewMemoryRecordRepo returns a RecordRepository held in process memory.
func NewMemoryRecordRepo() RecordRepository {
	return &recordRepoMemory{}
}

func clone(r *Record) *Record {
	out := *r
	if r.Recommendation != nil {
		text := *r.Recommendation
		out.Recommendation = &text
	}
	return &out
}

func (m *recordRepoMemory) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	now := time.Now().UTC()
	r.ID = uuid.New()
	r.Seq = m.seq
	r.CreatedAt = now
	r.UpdatedAt = now
	m.records = append(m.records, clone(r))
	return nil
}

func (m *recordRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.ID == id {
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *recordRepoMemory) ListByPatient(_ context.Context, patientName string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.PatientName == patientName {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (m *recordRepoMemory) UpdateRecommendation(_ context.Context, key RecordKey, text string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.Key() != key {
			continue
		}
		r.Recommendation = &text
		r.UpdatedAt = time.Now().UTC()
		return clone(r), nil
	}
	return nil, ErrNotFound
}

func (m *recordRepoMemory) DistinctPatientNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var names []string
	for _, r := range m.records {
		if _, ok := seen[r.PatientName]; ok {
			continue
		}
		seen[r.PatientName] = struct{}{}
		names = append(names, r.PatientName)
	}
	sort.Strings(names)
	return names, nil
}
