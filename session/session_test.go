package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/errors"
	"github.com/blackmesalabs/ash/provider"
)

func newTestManager(t *testing.T) (*Manager, *provider.Mock) {
	t.Helper()
	mock := &provider.Mock{}
	cfg := &config.Config{
		Dir:         t.TempDir(),
		Provider:    "mock",
		Model:       "mock-model",
		LogDir:      t.TempDir(),
		LogIdentity: "user",
	}
	mgr := New(cfg, func() provider.Provider { return mock })
	if err := mgr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mgr, mock
}

func askUsage(t *testing.T, mgr *Manager, mock *provider.Mock, total int64) []string {
	t.Helper()
	mock.FixedUsage = provider.Usage{Upload: total, Total: total}
	_, warnings, err := mgr.Ask(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	return warnings
}

func TestThresholdEscalation(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := context.Background()

	if w := askUsage(t, mgr, mock, 2_400_000); len(w) != 0 {
		t.Errorf("below warn threshold, got warnings %v", w)
	}
	if mgr.ThresholdState() != StateNormal {
		t.Errorf("state = %v, want normal", mgr.ThresholdState())
	}

	w := askUsage(t, mgr, mock, 200_000)
	if len(w) == 0 || !strings.HasPrefix(w[0], "WARNING:") {
		t.Errorf("crossing warn threshold, got %v", w)
	}
	if !strings.Contains(w[0], "2,600,000") {
		t.Errorf("warning should carry the grouped total, got %q", w[0])
	}
	if mgr.ThresholdState() != StateWarned {
		t.Errorf("state = %v, want warned", mgr.ThresholdState())
	}

	// Warnings repeat on every query while above the threshold.
	if w := askUsage(t, mgr, mock, 100_000); len(w) == 0 || !strings.HasPrefix(w[0], "WARNING:") {
		t.Errorf("warning should re-fire, got %v", w)
	}

	w = askUsage(t, mgr, mock, 1_400_000)
	if len(w) == 0 || !strings.HasPrefix(w[0], "STRONG WARNING:") {
		t.Errorf("crossing strong threshold, got %v", w)
	}
	if mgr.ThresholdState() != StateStronglyWarned {
		t.Errorf("state = %v, want strongly-warned", mgr.ThresholdState())
	}

	mock.FixedUsage = provider.Usage{Upload: 1_000_000, Total: 1_000_000}
	text, w, err := mgr.Ask(ctx, "one more")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(w) == 0 || !strings.HasPrefix(w[0], "CRITICAL:") {
		t.Errorf("crossing the limit, got %v", w)
	}
	if !strings.Contains(text, "AI session terminated due to excessive token usage") {
		t.Errorf("termination notice missing from %q", text)
	}
	if mgr.Active() {
		t.Error("session should be closed after termination")
	}
	if c := mgr.Counters(); c.Total != 0 {
		t.Errorf("counters should reset on close, got %+v", c)
	}
}

func TestCountersTotalDerived(t *testing.T) {
	mgr, mock := newTestManager(t)
	// A backend-reported total that disagrees with the parts is ignored.
	mock.FixedUsage = provider.Usage{Upload: 100, Download: 50, Total: 999}
	if _, _, err := mgr.Ask(context.Background(), "hello"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	c := mgr.Counters()
	if c.Total != 150 || c.Total != c.Upload+c.Download {
		t.Errorf("counters = %+v, want Total derived from parts", c)
	}
}

func TestRestartResets(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := context.Background()

	askUsage(t, mgr, mock, 3_000_000)
	if mgr.ThresholdState() != StateWarned {
		t.Fatalf("state = %v, want warned", mgr.ThresholdState())
	}
	if err := mgr.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !mgr.Active() {
		t.Error("session should be open after restart")
	}
	if c := mgr.Counters(); c.Total != 0 || c.Upload != 0 || c.Download != 0 {
		t.Errorf("counters not reset: %+v", c)
	}
	if mgr.ThresholdState() != StateNormal {
		t.Errorf("state = %v, want normal", mgr.ThresholdState())
	}
}

func TestAskWithoutSession(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir(), LogDir: t.TempDir()}
	mgr := New(cfg, func() provider.Provider { return &provider.Mock{} })
	if _, _, err := mgr.Ask(context.Background(), "hello"); err == nil {
		t.Error("Ask without an open session should error")
	}
}

func TestOutputCollisionRefused(t *testing.T) {
	mgr, _ := newTestManager(t)
	out := filepath.Join(t.TempDir(), "results.txt")
	original := []byte("precious data\n")
	if err := os.WriteFile(out, original, 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := mgr.Ask(context.Background(), "count lines output to "+out)
	if !errors.Is(err, errors.ErrOutputExists) {
		t.Fatalf("err = %v, want output-exists", err)
	}
	got, err := os.ReadFile(out)
	if err != nil || string(got) != string(original) {
		t.Errorf("existing output file was modified: %q", got)
	}
}

func TestOutputWrite(t *testing.T) {
	mgr, mock := newTestManager(t)
	mock.Reply = "forty two"
	out := filepath.Join(t.TempDir(), "results.txt")

	text, _, err := mgr.Ask(context.Background(), "the answer output to "+out)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.HasPrefix(text, "Created "+out) {
		t.Errorf("text = %q, want Created notice", text)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "forty two\n" {
		t.Errorf("output content = %q", got)
	}
}

func TestFileTracking(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.vcd")
	b := filepath.Join(dir, "b.txt")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, _, err := mgr.Ask(ctx, "analyze file "+a+" "+b); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if files := mgr.Files(); len(files) != 2 {
		t.Fatalf("Files = %v, want both inputs", files)
	}
	if tracked := mock.TrackedFiles(); len(tracked) != 2 || !provider.IsCloudName(tracked[0].CloudHandle) {
		t.Errorf("provider correlation table = %+v", tracked)
	}

	if got := mgr.MatchFiles("*.vcd"); len(got) != 1 || got[0] != a {
		t.Errorf("MatchFiles(*.vcd) = %v", got)
	}
	if got := mgr.MatchFiles("*"); len(got) != 2 {
		t.Errorf("MatchFiles(*) = %v", got)
	}

	if _, _, err := mgr.Ask(ctx, "delete file "+a); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if files := mgr.Files(); len(files) != 1 || files[0] != b {
		t.Errorf("Files after delete = %v, want [%q]", files, b)
	}
	if tracked := mock.TrackedFiles(); len(tracked) != 1 {
		t.Errorf("provider should have dropped the deleted file, got %+v", tracked)
	}

	if err := mgr.DeleteFile(ctx, b); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if files := mgr.Files(); len(files) != 0 {
		t.Errorf("Files after DeleteFile = %v", files)
	}
}

func TestProviderFailureSkipsTracking(t *testing.T) {
	mgr, mock := newTestManager(t)
	mock.Fail = errors.New("backend unavailable")
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(a, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, _, err := mgr.Ask(context.Background(), "analyze file "+a)
	if err != nil {
		t.Fatalf("provider failures must come back as text, got err %v", err)
	}
	if !strings.Contains(text, "AI error") {
		t.Errorf("text = %q, want backend error text", text)
	}
	if files := mgr.Files(); len(files) != 0 {
		t.Errorf("failed query must not track files, got %v", files)
	}
	if c := mgr.Counters(); c.Total != 0 {
		t.Errorf("failed query must not accrue usage, got %+v", c)
	}
}

func TestStatusLine(t *testing.T) {
	mgr, _ := newTestManager(t)
	got := mgr.Status()
	if !strings.HasPrefix(got, "[status] Tokens: 0 | Files: 0 (0B) | Time: N/A") {
		t.Errorf("Status = %q", got)
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{2500000, "2,500,000"},
	}
	for _, tt := range tests {
		if got := groupThousands(tt.in); got != tt.want {
			t.Errorf("groupThousands(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1K"},
		{2_600_000, "2M"},
		{5_100_000_000, "5G"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in, ""); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
