package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"designdeck/core"
)

// memStore keeps designs in a plain map. Each instance owns its own state,
// so tests get isolation for free.
type memStore struct {
	mu      sync.RWMutex
	designs map[string]*core.Design
}

// NewStore creates a new in-memory design store.
func NewStore() *memStore {
	return &memStore{designs: make(map[string]*core.Design)}
}

// List returns metadata for all stored designs, without element payloads.
func (s *memStore) List(ctx context.Context) ([]*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	designs := make([]*core.Design, 0, len(s.designs))
	for _, d := range s.designs {
		designs = append(designs, d.Meta())
	}
	logrus.Infof("Listed %d designs", len(designs))
	return designs, nil
}

// Get returns a deep copy of the design with the given id.
func (s *memStore) Get(ctx context.Context, id string) (*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithField("design_id", id)
	d, ok := s.designs[id]
	if !ok {
		log.Warn("Design with specified ID not found")
		return nil, core.ErrDesignNotFound
	}
	log.Debug("Design retrieved successfully")
	return d.Clone(), nil
}

// Save creates or updates a design. CreatedAt is preserved on update.
func (s *memStore) Save(ctx context.Context, design *core.Design) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := design.Clone()
	now := time.Now()
	if existing, ok := s.designs[design.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.designs[design.ID] = stored

	logrus.WithFields(logrus.Fields{
		"design_id": design.ID,
		"elements":  len(design.Elements),
	}).Info("Design saved successfully")
	return nil
}

// Delete removes a design.
func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.designs[id]; !ok {
		logrus.WithField("design_id", id).Warn("Design not found for deletion")
		return core.ErrDesignNotFound
	}
	delete(s.designs, id)
	logrus.WithField("design_id", id).Info("Design deleted successfully")
	return nil
}
