package provider

import (
	"context"
	"fmt"
)

// Mock is an offline adapter for tests and dry runs. It parrots the
// prompt back and accounts usage with the local tokenizer estimate.
type Mock struct {
	files   fileTable
	history []string
	open    bool

	// Reply, when set, overrides the parroted response.
	Reply string
	// Fail, when set, makes every SendMessage report a backend failure.
	Fail error
	// FixedUsage, when non-zero, overrides the estimated usage.
	FixedUsage Usage
}

func (m *Mock) Open(ctx context.Context) error {
	m.open = true
	m.history = nil
	return nil
}

func (m *Mock) Close(ctx context.Context) error {
	m.open = false
	m.files.clear()
	m.history = nil
	return nil
}

func (m *Mock) DeleteFile(ctx context.Context, localPath string) error {
	m.files.remove([]string{localPath})
	return nil
}

// TrackedFiles exposes the correlation table for assertions.
func (m *Mock) TrackedFiles() []SessionFile {
	out := make([]SessionFile, len(m.files.files))
	copy(out, m.files.files)
	return out
}

func (m *Mock) SendMessage(ctx context.Context, prompt, preamble string, inputFiles, deleteFiles []string) Result {
	if !m.open {
		return errorResult("AI error (mock): session not open", fmt.Errorf("session not open"))
	}
	if m.Fail != nil {
		return errorResult(fmt.Sprintf("AI error (mock): %v", m.Fail), m.Fail)
	}

	m.files.remove(deleteFiles)
	for _, path := range inputFiles {
		if m.files.tracked(path) {
			continue
		}
		m.files.add(SessionFile{
			LocalPath:   path,
			CloudHandle: MakeCloudName(path),
			State:       Synced,
		})
	}

	answer := m.Reply
	if answer == "" {
		answer = fmt.Sprintf("I am a mock AI provider. You said: %q.", prompt)
	}
	m.history = append(m.history, prompt, answer)

	usage := m.FixedUsage
	if usage == (Usage{}) {
		usage.Upload = EstimateTokens(preamble + prompt)
		usage.Download = EstimateTokens(answer)
		usage.Total = usage.Upload + usage.Download
	}
	return Result{Text: answer, Usage: usage}
}
