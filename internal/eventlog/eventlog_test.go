package eventlog

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestAppend_format(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	if err := AppendAt(root, ts, "hello\nworld"); err != nil {
		t.Fatalf("AppendAt: %v", err)
	}
	data, err := os.ReadFile(Path(root))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := string(data); got != "[2024-05-06 07:08:09] hello world\n" {
		t.Errorf("line: got %q", got)
	}
}

func TestTail(t *testing.T) {
	root := t.TempDir()
	lines, err := Tail(root, 5)
	if err != nil || lines != nil {
		t.Fatalf("Tail missing: %v %v", lines, err)
	}
	for i := 0; i < 10; i++ {
		Appendf(root, "line %d", i)
	}
	lines, err = Tail(root, 3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 3 || !strings.HasSuffix(lines[2], "line 9") || !strings.HasSuffix(lines[0], "line 7") {
		t.Errorf("Tail: got %v", lines)
	}
}
