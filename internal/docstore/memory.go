package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Backend. Documents live as long as the value.
type Memory struct {
	mu    sync.Mutex
	seq   int
	order []DocumentID
	docs  map[DocumentID]*memoryDoc
}

type memoryDoc struct {
	name    string
	content []byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[DocumentID]*memoryDoc)}
}

func (m *Memory) FindByName(_ context.Context, name string) (DocumentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if d, ok := m.docs[id]; ok && d.name == name {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (m *Memory) Fetch(_ context.Context, id DocumentID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d.content...), nil
}

func (m *Memory) Replace(_ context.Context, id DocumentID, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.content = append([]byte(nil), content...)
	return nil
}

func (m *Memory) Create(_ context.Context, name string, content []byte) (DocumentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := DocumentID(fmt.Sprintf("mem-%d", m.seq))
	m.docs[id] = &memoryDoc{name: name, content: append([]byte(nil), content...)}
	m.order = append(m.order, id)
	return id, nil
}

// Delete drops id, as if another process had removed it.
func (m *Memory) Delete(id DocumentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

// Len reports how many documents exist.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

var _ Backend = (*Memory)(nil)
