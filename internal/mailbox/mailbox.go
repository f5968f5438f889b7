// Package mailbox implements the per-agent Markdown mailbox: inbox, outbox, notes and archive
// directories under <root>/.usagi/agents/<agent_id>/. Delivery and archival are single-file
// operations; the rename into archive/ is the serialization point between concurrent ticks.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/otel"
)

// Mailbox holds the directory paths of one agent.
type Mailbox struct {
	Root    string
	AgentID string
	Inbox   string
	Outbox  string
	Notes   string
	Archive string
}

// Handle references one message file.
type Handle struct {
	AgentID string
	Path    string
}

// Name returns the message file name.
func (h Handle) Name() string { return filepath.Base(h.Path) }

// Stem returns the file name without the .md suffix.
func (h Handle) Stem() string { return strings.TrimSuffix(h.Name(), filepath.Ext(h.Path)) }

// AgentsDir returns <root>/.usagi/agents.
func AgentsDir(root string) string {
	return filepath.Join(root, ".usagi", "agents")
}

// For returns the mailbox paths without touching the filesystem.
func For(root, agentID string) Mailbox {
	base := filepath.Join(AgentsDir(root), agentID)
	return Mailbox{
		Root:    root,
		AgentID: agentID,
		Inbox:   filepath.Join(base, "inbox"),
		Outbox:  filepath.Join(base, "outbox"),
		Notes:   filepath.Join(base, "notes"),
		Archive: filepath.Join(base, "archive"),
	}
}

// Ensure creates the mailbox directories if missing. Safe to call concurrently.
func Ensure(root, agentID string) (Mailbox, error) {
	if strings.TrimSpace(agentID) == "" {
		return Mailbox{}, errors.New("mailbox: agent id is required")
	}
	if strings.ContainsAny(agentID, `/\`) || agentID == "." || agentID == ".." {
		return Mailbox{}, fmt.Errorf("mailbox: invalid agent id %q", agentID)
	}
	mb := For(root, agentID)
	for _, d := range []string{mb.Inbox, mb.Outbox, mb.Notes, mb.Archive} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return Mailbox{}, fmt.Errorf("mailbox: ensure %s: %w", agentID, err)
		}
	}
	return mb, nil
}

// Deliver writes a new message into to's inbox under a unique name and logs the delivery.
// An existing file is never overwritten.
func Deliver(ctx context.Context, root, from, to, title, body string, kind Kind) (Handle, error) {
	if kind == "" {
		kind = KindMessage
	}
	if _, err := Ensure(root, from); err != nil {
		return Handle{}, err
	}
	mb, err := Ensure(root, to)
	if err != nil {
		return Handle{}, err
	}
	now := time.Now()
	name := fmt.Sprintf("%s-%s-%s.md", now.Format("20060102-150405"), from, slugOr(title, "message"))
	content := Encode(Message{
		Kind:    kind,
		From:    from,
		To:      to,
		Title:   title,
		Created: now.Format("2006-01-02 15:04:05"),
		Body:    body,
	})
	p, err := WriteUnique(filepath.Join(mb.Inbox, name), []byte(content))
	if err != nil {
		return Handle{}, fmt.Errorf("mailbox: deliver to %s: %w", to, err)
	}
	eventlog.Appendf(root, "mailbox: delivered kind=%s %s -> %s: %s", kind, from, to, filepath.Base(p))
	otel.RecordDelivery(ctx, string(kind))
	return Handle{AgentID: to, Path: p}, nil
}

// ListInbox returns the inbox messages in file name order, which is delivery order.
func ListInbox(root, agentID string) ([]Handle, error) {
	mb, err := Ensure(root, agentID)
	if err != nil {
		return nil, err
	}
	return list(mb.Inbox, agentID)
}

// ListArchive returns archived messages in file name order.
func ListArchive(root, agentID string) ([]Handle, error) {
	mb, err := Ensure(root, agentID)
	if err != nil {
		return nil, err
	}
	return list(mb.Archive, agentID)
}

func list(dir, agentID string) ([]Handle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Handle
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		out = append(out, Handle{AgentID: agentID, Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Read loads and decodes a message.
func Read(h Handle) (Message, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return Message{}, err
	}
	return Decode(string(data)), nil
}

// Archive moves a processed inbox message into archive/ with a rename.
func Archive(ctx context.Context, root, agentID string, h Handle) (Handle, error) {
	mb, err := Ensure(root, agentID)
	if err != nil {
		return Handle{}, err
	}
	dst := uniquePath(filepath.Join(mb.Archive, h.Name()))
	if err := os.Rename(h.Path, dst); err != nil {
		return Handle{}, fmt.Errorf("mailbox: archive %s: %w", h.Name(), err)
	}
	eventlog.Appendf(root, "mailbox: archived %s: %s", agentID, filepath.Base(dst))
	otel.RecordArchive(ctx, agentID)
	return Handle{AgentID: agentID, Path: dst}, nil
}

// WriteUnique creates p exclusively, trying "-2", "-3", ... suffixes on collision, and
// returns the path it wrote. An existing file is never overwritten.
func WriteUnique(p string, data []byte) (string, error) {
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	cand := p
	for i := 2; ; i++ {
		f, err := os.OpenFile(cand, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if _, werr := f.Write(data); werr != nil {
				_ = f.Close()
				_ = os.Remove(cand)
				return "", werr
			}
			return cand, f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		cand = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
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

const maxSlugRunes = 60

// Slug lowercases letters and digits and collapses everything else into single dashes.
// The result is capped at 60 runes to keep file names short.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n >= maxSlugRunes {
			break
		}
		n++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func slugOr(s, fallback string) string {
	if v := Slug(s); v != "" {
		return v
	}
	return fallback
}
