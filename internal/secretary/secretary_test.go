package secretary

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestPlaceInputForBoss(t *testing.T) {
	inputs := filepath.Join(t.TempDir(), "inputs")
	p1, err := PlaceInputForBoss(inputs, "要確認: demo", []string{"- project: demo", "質問:"})
	if err != nil {
		t.Fatalf("PlaceInputForBoss: %v", err)
	}
	p2, err := PlaceInputForBoss(inputs, "again", nil)
	if err != nil {
		t.Fatalf("PlaceInputForBoss: %v", err)
	}
	if p1 == p2 {
		t.Fatal("second placement overwrote the first")
	}
	if filepath.Dir(p1) != filepath.Join(inputs, "secretary") {
		t.Errorf("dir: %s", p1)
	}
	data, _ := os.ReadFile(p1)
	text := string(data)
	if !strings.HasPrefix(text, "# usagi spec\n\ntitle: 要確認: demo\n\n## request\n\n") || !strings.Contains(text, "- project: demo\n質問:") {
		t.Errorf("got:\n%s", text)
	}
}

func TestDrainBossInbox(t *testing.T) {
	root := t.TempDir()
	inputs := filepath.Join(root, "inputs")
	if created, err := DrainBossInbox(root, inputs); err != nil || created != nil {
		t.Fatalf("missing inbox: %v %v", created, err)
	}
	if _, err := WriteBossInput(root, "discord", "README を書いて"); err != nil {
		t.Fatalf("WriteBossInput: %v", err)
	}
	if _, err := WriteBossInput(root, "empty", "   "); err != nil {
		t.Fatalf("WriteBossInput: %v", err)
	}
	created, err := DrainBossInbox(root, inputs)
	if err != nil {
		t.Fatalf("DrainBossInbox: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created: %v", created)
	}
	data, _ := os.ReadFile(created[0])
	if !strings.Contains(string(data), "## 目的\n\nREADME を書いて\n") {
		t.Errorf("md:\n%s", data)
	}
	left, _ := os.ReadDir(InboxDir(root))
	if len(left) != 0 {
		t.Errorf("inbox should be empty, has %d", len(left))
	}
	trashed, _ := os.ReadDir(filepath.Join(root, ".usagi", "trash", "inbox"))
	if len(trashed) != 2 {
		t.Errorf("trash: %d files", len(trashed))
	}
}

func TestAppendLog(t *testing.T) {
	root := t.TempDir()
	if err := AppendLog(root, "human", "hello\nworld"); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	data, _ := os.ReadFile(LogPath(root))
	if !strings.HasSuffix(string(data), "] human: hello world\n") {
		t.Errorf("got %q", data)
	}
}

func TestWriteBossInput_sourceStaysInInbox(t *testing.T) {
	root := t.TempDir()
	for _, source := range []string{"x/../../../../escaped", "..", "/etc/passwd", ""} {
		p, err := WriteBossInput(root, source, "hello")
		if err != nil {
			t.Fatalf("WriteBossInput(%q): %v", source, err)
		}
		if filepath.Dir(p) != InboxDir(root) {
			t.Errorf("WriteBossInput(%q) wrote %s outside %s", source, p, InboxDir(root))
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escaped.txt")); !os.IsNotExist(err) {
		t.Fatalf("escaped file exists: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(InboxDir(root), "*-x-escaped.txt"))
	if len(files) != 1 {
		t.Errorf("slugged source files = %v", files)
	}
}

func TestPlaceInputForBoss_concurrentNoOverwrite(t *testing.T) {
	inputs := filepath.Join(t.TempDir(), "inputs")
	const n = 8
	var wg sync.WaitGroup
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := PlaceInputForBoss(inputs, "ballot", []string{"q"})
			if err != nil {
				t.Errorf("PlaceInputForBoss: %v", err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()
	files, _ := filepath.Glob(filepath.Join(inputs, "secretary", "*.md"))
	if len(files) != n {
		t.Fatalf("files = %d, want %d: %v", len(files), n, paths)
	}
}
