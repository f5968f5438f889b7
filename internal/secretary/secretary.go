// Package secretary turns human-side input into request files the watcher picks up:
// escalation questions for the boss, and free text dropped into the boss inbox.
package secretary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/mailbox"
)

var logMu sync.Mutex

// LogPath returns <root>/.usagi/secretary.log.
func LogPath(root string) string {
	return filepath.Join(root, ".usagi", "secretary.log")
}

// AppendLog records one line of secretary dialog.
func AppendLog(root, who, text string) error {
	p := LogPath(root)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	logMu.Lock()
	defer logMu.Unlock()
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = fmt.Fprintf(f, "[%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05"), who, strings.ReplaceAll(text, "\n", " "))
	return err
}

// FormatInput renders dialog lines as a request file body.
func FormatInput(title string, lines []string) string {
	body := strings.TrimSpace(strings.Join(lines, "\n"))
	return "# usagi spec\n\n" +
		"title: " + title + "\n\n" +
		"## request\n\n" +
		"以下は秘書(🐻)との対話ログから整形した依頼です。\n\n" +
		body + "\n"
}

// PlaceInputForBoss writes <inputsDir>/secretary/<ts>.md so the watcher hands it to the boss.
func PlaceInputForBoss(inputsDir, title string, lines []string) (string, error) {
	dir := filepath.Join(inputsDir, "secretary")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return mailbox.WriteUnique(filepath.Join(dir, time.Now().Format("20060102-150405")+".md"), []byte(FormatInput(title, lines)))
}

// InboxDir returns <root>/.usagi/inbox, where external integrations drop boss input.
func InboxDir(root string) string {
	return filepath.Join(root, ".usagi", "inbox")
}

// WriteBossInput stores text from source as <unix>-<source>.txt in the boss inbox. The source
// is slugged, so it never contributes a path separator; an empty slug becomes "cli".
func WriteBossInput(root, source, text string) (string, error) {
	source = mailbox.Slug(source)
	if source == "" {
		source = "cli"
	}
	dir := InboxDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return mailbox.WriteUnique(filepath.Join(dir, fmt.Sprintf("%d-%s.txt", time.Now().Unix(), source)), []byte(text))
}

// DrainBossInbox converts each inbox txt into <inputsDir>/inbox/<stem>.md with a 目的 section
// and moves the txt to .usagi/trash/inbox/. Empty files are trashed without output.
// It returns the created request files.
func DrainBossInbox(root, inputsDir string) ([]string, error) {
	entries, err := os.ReadDir(InboxDir(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, nil
	}
	outDir := filepath.Join(inputsDir, "inbox")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var created []string
	for _, name := range names {
		src := filepath.Join(InboxDir(root), name)
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			trash(root, src)
			eventlog.Appendf(root, "boss_inbox: empty -> trashed: %s", name)
			continue
		}
		md := "# 外部入力（inbox 経由）\n\n## 目的\n\n" + text + "\n"
		dst, err := mailbox.WriteUnique(filepath.Join(outDir, strings.TrimSuffix(name, ".txt")+".md"), []byte(md))
		if err != nil {
			return created, err
		}
		created = append(created, dst)
		trash(root, src)
		rel, _ := filepath.Rel(root, dst)
		eventlog.Appendf(root, "boss_inbox: drained: %s -> %s", name, rel)
	}
	return created, nil
}

func trash(root, p string) {
	dir := filepath.Join(root, ".usagi", "trash", "inbox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.Rename(p, uniquePath(filepath.Join(dir, filepath.Base(p))))
}

func uniquePath(p string) string {
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return p
	}
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 2; ; i++ {
		cand := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand
		}
	}
}
