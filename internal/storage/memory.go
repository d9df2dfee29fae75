package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Object is a stored payload held by Memory.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory is an in-process Store used by the development server and tests.
type Memory struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string]Object
}

// NewMemory returns an empty in-memory store.
func NewMemory(baseURL string) *Memory {
	return &Memory{BaseURL: baseURL, objects: make(map[string]Object)}
}

func (m *Memory) Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	key, err := normaliseKey(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.objects[key] = Object{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()
	return publicURL(m.BaseURL, key), nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	key, err := normaliseKey(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Get returns the object stored under key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
