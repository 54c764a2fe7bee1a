package marketdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	xerrors "NOLA-Exchange/internal/errors"
)

func TestReaderReadsSnapshot(t *testing.T) {
	dir := t.TempDir()
	content := `{"ts": 1714564800000, "payload": {"data": {"active_cryptocurrencies": 12000}}}`
	if err := os.WriteFile(filepath.Join(dir, "global.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := NewReader(dir).Read("global")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Timestamp != 1714564800000 {
		t.Fatalf("unexpected timestamp %d", snap.Timestamp)
	}
	if string(snap.Payload) != `{"data": {"active_cryptocurrencies": 12000}}` {
		t.Fatalf("unexpected payload %s", snap.Payload)
	}
}

func TestReaderNotYetAvailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lists.json"), []byte(`{"ts": 1, "payl`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := NewReader(dir)
	for _, name := range []string{"majors", "lists"} {
		if _, err := r.Read(name); !errors.Is(err, ErrNotYetAvailable) {
			t.Fatalf("%s: expected not yet available, got %v", name, err)
		}
	}
}

func TestReaderRejectsUnknownName(t *testing.T) {
	_, err := NewReader(t.TempDir()).Read("../etc/passwd")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
