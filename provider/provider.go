// Package provider defines the abstraction every cloud backend adapter
// satisfies, plus the cloud-handle naming scheme that lets an out-of-band
// sweep reclaim orphaned remote files.
package provider

import "context"

// Usage is the token accounting for one completed round-trip.
type Usage struct {
	Upload   int64
	Download int64
	Total    int64
}

// Result is the outcome of a SendMessage round-trip. Failures never
// propagate as panics or returned errors from SendMessage itself: Err is
// set, Text carries a descriptive message, and Usage is zero, so the
// session manager can always proceed to report status.
type Result struct {
	Text  string
	Usage Usage
	Err   error
}

// errorResult packages a backend failure per the SendMessage contract.
func errorResult(text string, err error) Result {
	return Result{Text: text, Err: err}
}

// SyncState tracks whether a session file has a live remote counterpart.
type SyncState int

const (
	Pending SyncState = iota
	Synced
)

// SessionFile correlates a local path with its backend counterpart.
// CloudHandle is opaque and backend-assigned; only the owning adapter
// interprets it.
type SessionFile struct {
	LocalPath   string
	CloudHandle string
	State       SyncState
}

// Provider is the contract a backend adapter satisfies. For SendMessage:
//
//   - deleteFiles are applied first, dropping matching entries from the
//     adapter's correlation table;
//   - each inputFiles entry not yet correlated is assigned a cloud handle
//     and marked Synced;
//   - every currently-tracked file is included in the outbound context in
//     first-tracked order;
//   - the outgoing prompt and incoming response are appended to the
//     adapter's conversation history;
//   - any failure is returned inside the Result, never raised.
type Provider interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	SendMessage(ctx context.Context, prompt, preamble string, inputFiles, deleteFiles []string) Result
	DeleteFile(ctx context.Context, localPath string) error
}

// ModelOverrider is optionally implemented by adapters that can switch
// models per request (the user wrote "model <name>" in a prompt).
type ModelOverrider interface {
	SetModel(model string)
}

// fileTable is the per-adapter correlation table. Order is first-tracked.
type fileTable struct {
	files []SessionFile
}

func (t *fileTable) tracked(localPath string) bool {
	for _, f := range t.files {
		if f.LocalPath == localPath {
			return true
		}
	}
	return false
}

func (t *fileTable) add(f SessionFile) {
	t.files = append(t.files, f)
}

// remove drops entries for the given local paths and returns what was
// removed.
func (t *fileTable) remove(localPaths []string) []SessionFile {
	if len(localPaths) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(localPaths))
	for _, p := range localPaths {
		drop[p] = true
	}
	var removed []SessionFile
	kept := t.files[:0]
	for _, f := range t.files {
		if drop[f.LocalPath] {
			removed = append(removed, f)
		} else {
			kept = append(kept, f)
		}
	}
	t.files = kept
	return removed
}

func (t *fileTable) clear() {
	t.files = nil
}
