// Package eventlog writes the append-only, human-readable audit trail at <root>/.usagi/events.log.
// Lines are never parsed back by usagi itself; external viewers tail the file.
package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

var mu sync.Mutex

// Path returns <root>/.usagi/events.log.
func Path(root string) string {
	return filepath.Join(root, ".usagi", "events.log")
}

// Append writes one "[YYYY-mm-dd HH:MM:SS] msg" line. Errors are returned but callers
// usually ignore them: a missing audit line must never stop the pipeline.
func Append(root, msg string) error {
	return AppendAt(root, time.Now(), msg)
}

// AppendAt is Append with an explicit timestamp.
func AppendAt(root string, ts time.Time, msg string) error {
	p := Path(root)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	line := fmt.Sprintf("[%s] %s\n", ts.Format(timeLayout), strings.ReplaceAll(msg, "\n", " "))
	mu.Lock()
	defer mu.Unlock()
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.WriteString(line)
	return err
}

// Appendf formats and appends, dropping the error.
func Appendf(root, format string, args ...any) {
	_ = Append(root, fmt.Sprintf(format, args...))
}

// Tail returns up to n last lines of the event log (oldest first). A missing log yields nil.
func Tail(root string, n int) ([]string, error) {
	f, err := os.Open(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, sc.Err()
}
