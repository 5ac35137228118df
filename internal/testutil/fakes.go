// fakes.go - scripted collaborators for pipeline tests
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/Lllllllleong/documentspecflow/internal/files"
	"github.com/Lllllllleong/documentspecflow/internal/models"
)

// FakeOCR returns fixed blocks, or Err when set.
type FakeOCR struct {
	mu     sync.Mutex
	Blocks []models.OCRBlock
	Err    error
	Calls  int
	Inputs [][]byte
}

func (f *FakeOCR) Recognize(_ context.Context, _ string, data []byte) ([]models.OCRBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Inputs = append(f.Inputs, data)
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]models.OCRBlock(nil), f.Blocks...), nil
}

// CallCount is safe to read while the fake is in use.
func (f *FakeOCR) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// FakeLLM answers every prompt with Response, or fails with Err.
// Hook, when set, runs before answering and can block or inspect the prompt.
type FakeLLM struct {
	mu       sync.Mutex
	Response string
	Err      error
	Prompts  []string
	Hook     func(prompt string)
}

func (f *FakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	if f.Hook != nil {
		f.Hook(prompt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

// PromptCount is safe to read while the fake is in use.
func (f *FakeLLM) PromptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// LastPrompt returns the most recent prompt, or "".
func (f *FakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Prompts) == 0 {
		return ""
	}
	return f.Prompts[len(f.Prompts)-1]
}

// MemoryFiles implements files.Store in memory.
type MemoryFiles struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
	SaveErr error
	// OnSave, when set, runs after a successful Save the way an
	// object-finalize trigger would.
	OnSave func(name string)
}

func NewMemoryFiles() *MemoryFiles {
	return &MemoryFiles{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *MemoryFiles) Save(_ context.Context, name, contentType string, data []byte) error {
	if err := m.save(name, contentType, data); err != nil {
		return err
	}
	if m.OnSave != nil {
		m.OnSave(name)
	}
	return nil
}

func (m *MemoryFiles) save(name, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, ok := m.objects[name]; ok {
		return errors.New("object already exists")
	}
	m.objects[name] = append([]byte(nil), data...)
	m.types[name] = contentType
	return nil
}

func (m *MemoryFiles) Open(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, files.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

var _ files.Store = (*MemoryFiles)(nil)
