package ports

import (
	"context"
	"fmt"
	"sync"
)

// Function-field mocks for tests. Unset fields return benign defaults
// so a test only scripts the ports it cares about.

// MockTextLLM scripts TextLLM behavior.
type MockTextLLM struct {
	CompleteFunc     func(ctx context.Context, req TextRequest) (string, error)
	CompleteJSONFunc func(ctx context.Context, req TextRequest, schema Schema, out any) error

	mu    sync.Mutex
	calls []TextRequest
}

func (m *MockTextLLM) Complete(ctx context.Context, req TextRequest) (string, error) {
	m.record(req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

func (m *MockTextLLM) CompleteJSON(ctx context.Context, req TextRequest, schema Schema, out any) error {
	m.record(req)
	if m.CompleteJSONFunc != nil {
		return m.CompleteJSONFunc(ctx, req, schema, out)
	}
	return nil
}

func (m *MockTextLLM) record(req TextRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
}

// Calls returns every request seen so far.
func (m *MockTextLLM) Calls() []TextRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TextRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockVisionLLM scripts VisionLLM behavior.
type MockVisionLLM struct {
	AnalyzeImageFunc func(ctx context.Context, imageURL, prompt string, schema Schema, out any) error
}

func (m *MockVisionLLM) AnalyzeImage(ctx context.Context, imageURL, prompt string, schema Schema, out any) error {
	if m.AnalyzeImageFunc != nil {
		return m.AnalyzeImageFunc(ctx, imageURL, prompt, schema, out)
	}
	return nil
}

// MockImageGen scripts ImageGen behavior and counts invocations.
type MockImageGen struct {
	GenerateImageFunc func(ctx context.Context, prompt string) (string, error)

	mu    sync.Mutex
	count int
}

func (m *MockImageGen) GenerateImage(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.count++
	n := m.count
	m.mu.Unlock()

	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, prompt)
	}
	return fmt.Sprintf("https://media.test/image-%d.png", n), nil
}

// Count returns how many generations ran.
func (m *MockImageGen) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// MockVideoGen scripts VideoGen behavior.
type MockVideoGen struct {
	GenerateVideoFunc func(ctx context.Context, prompt string) (string, error)

	mu    sync.Mutex
	count int
}

func (m *MockVideoGen) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.count++
	n := m.count
	m.mu.Unlock()

	if m.GenerateVideoFunc != nil {
		return m.GenerateVideoFunc(ctx, prompt)
	}
	return fmt.Sprintf("https://media.test/video-%d.mp4", n), nil
}

// Count returns how many generations ran.
func (m *MockVideoGen) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// MockModeration scripts Moderation behavior; the default passes
// everything.
type MockModeration struct {
	ModerateTextFunc func(ctx context.Context, text string) (ModerationResult, error)
}

func (m *MockModeration) ModerateText(ctx context.Context, text string) (ModerationResult, error) {
	if m.ModerateTextFunc != nil {
		return m.ModerateTextFunc(ctx, text)
	}
	return ModerationResult{}, nil
}

// MockPiiDetector scripts PiiDetector behavior; the default finds
// nothing.
type MockPiiDetector struct {
	DetectPIIFunc func(text string) []PIIMatch
}

func (m *MockPiiDetector) DetectPII(text string) []PIIMatch {
	if m.DetectPIIFunc != nil {
		return m.DetectPIIFunc(text)
	}
	return nil
}

// MockBlobStore keeps blobs in a map.
type MockBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string
}

func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		blobs: make(map[string][]byte),
		types: make(map[string]string),
	}
}

func (m *MockBlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return "blob://" + key, nil
}

func (m *MockBlobStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	key := ref
	if len(ref) > 7 && ref[:7] == "blob://" {
		key = ref[7:]
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, "", fmt.Errorf("blob %s not found", key)
	}
	return append([]byte(nil), data...), m.types[key], nil
}
