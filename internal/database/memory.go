package database

import (
	"context"
	"sync"
	"time"
)

// MemoryDocumentRepository keeps snapshots in process memory. It is the
// default store and offers no durability across restarts.
type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{
		docs: make(map[string]Document),
	}
}

func (m *MemoryDocumentRepository) Ping(context.Context) error {
	return nil
}

func (m *MemoryDocumentRepository) GetDocument(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (m *MemoryDocumentRepository) SaveSnapshot(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.docs[doc.Id]; ok && cur.Version > doc.Version {
		return nil
	}

	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	m.docs[doc.Id] = doc
	return nil
}

func (m *MemoryDocumentRepository) Close() error {
	return nil
}
