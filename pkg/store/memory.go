package store

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process Store for unit tests and local-dev mode without a
// database. Not safe for cross-process use — there is nothing to share.
type Memory struct {
	mu         sync.RWMutex
	containers map[string]map[string]Document
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{containers: make(map[string]map[string]Document)}
}

func (m *Memory) Get(_ context.Context, container, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.containers[container]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc, ok := docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Upsert(_ context.Context, container string, doc Document) error {
	if !ValidID(doc.ID) {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containers[container] == nil {
		m.containers[container] = make(map[string]Document)
	}
	m.containers[container][doc.ID] = cloneDoc(doc)
	return nil
}

func (m *Memory) Query(_ context.Context, container string, pred Predicate) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, doc := range m.containers[container] {
		c := cloneDoc(doc)
		if pred == nil || pred(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, container, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.containers[container], id)
	return nil
}

func cloneDoc(doc Document) Document {
	return Document{ID: doc.ID, Body: maps.Clone(doc.Body)}
}
