package decision

import (
	"context"
	"sync"

	"github.com/sentinelpay/fraudgate/internal/pagination"
)

// maxMemoryAssessments caps the in-memory audit trail.
const maxMemoryAssessments = 1000

// MemoryStore is an in-memory assessment store for demo/development mode.
// Keeps the most recent assessments in a bounded ring.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments []*RiskAssessment // newest last
}

// NewMemoryStore creates a new in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Record(ctx context.Context, assessment *RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *assessment
	m.assessments = append(m.assessments, &cp)
	if len(m.assessments) > maxMemoryAssessments {
		m.assessments = m.assessments[len(m.assessments)-maxMemoryAssessments:]
	}
	return nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*RiskAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.assessments) {
		limit = len(m.assessments)
	}

	// Newest first, starting strictly after the cursor position.
	result := make([]*RiskAssessment, 0, limit)
	for i := len(m.assessments) - 1; i >= 0 && len(result) < limit; i-- {
		a := m.assessments[i]
		if cursor != nil && !olderThan(a, cursor) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func olderThan(a *RiskAssessment, c *pagination.Cursor) bool {
	if a.EvaluatedAt.Before(c.CreatedAt) {
		return true
	}
	return a.EvaluatedAt.Equal(c.CreatedAt) && a.ID < c.ID
}
