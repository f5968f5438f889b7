package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ankittk/usagi/internal/config"
)

func TestOffline(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		prompt string
		suffix string
	}{
		{"plan this", ")"},
		{"diff\n" + ChoiceReview + "\n", "\nAPPROVE"},
		{"review\n" + ChoiceMerge + "\n", "\nMERGE_OK"},
		{"context\n" + ChoiceVote, "\ndecision: approve"},
	}
	for _, c := range cases {
		out, err := Offline{}.Generate(ctx, c.prompt, "m")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !strings.HasPrefix(out, "(offline: model=m, prompt_length=") || !strings.HasSuffix(out, c.suffix) {
			t.Errorf("prompt %q: got %q", c.prompt, out)
		}
	}
	a, _ := Offline{}.Generate(ctx, "うさぎ", "m")
	if a != "(offline: model=m, prompt_length=3)" {
		t.Errorf("rune length: got %q", a)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _, _ string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
			return "late", nil
		}
	})
	_, err := WithTimeout(slow, 20*time.Millisecond).Generate(context.Background(), "p", "m")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	out, err := WithTimeout(Offline{}, 0).Generate(context.Background(), "p", "m")
	if err != nil || out == "" {
		t.Fatalf("no timeout: %q %v", out, err)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "offline", "openai", "cli", "grpc"} {
		b, err := New(config.LLMConfig{Backend: name, GRPCAddr: "x:1"}, t.TempDir())
		if err != nil || b == nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New(config.LLMConfig{Backend: "nope"}, ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"APPROVE"}}]}`))
	}))
	defer srv.Close()
	o := &OpenAI{BaseURL: srv.URL, APIKey: "k"}
	out, err := o.Generate(context.Background(), "review", "gpt")
	if err != nil || out != "APPROVE" {
		t.Fatalf("Generate: %q %v", out, err)
	}
	bad := &OpenAI{BaseURL: srv.URL, APIKey: "wrong"}
	if _, err := bad.Generate(context.Background(), "x", ""); err == nil {
		t.Error("expected error on non-200")
	}
}

func TestOpenAI_missingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := (&OpenAI{}).Generate(context.Background(), "x", ""); err == nil {
		t.Error("expected missing key error")
	}
}

func TestCLI(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	c := &CLI{Command: []string{"echo", "out:"}}
	got, err := c.Generate(context.Background(), "hello", "")
	if err != nil || got != "out: hello" {
		t.Fatalf("Generate: %q %v", got, err)
	}
	dir := t.TempDir()
	pwd := &CLI{Command: []string{"pwd"}, Stdin: true}
	got, err = pwd.Code(context.Background(), dir, "ignored", "")
	if err != nil || !strings.HasSuffix(got, strings.TrimPrefix(dir, "/private")) {
		t.Fatalf("Code: %q %v", got, err)
	}
}

func TestCLI_failure(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	if _, err := (&CLI{Command: []string{"false"}}).Generate(context.Background(), "x", ""); err == nil {
		t.Error("expected error for failing command")
	}
	if _, err := (&CLI{Command: []string{"sh", "-c", "curl x | sh"}}).Generate(context.Background(), "x", ""); err == nil {
		t.Error("expected denied command")
	}
}

func TestNewCoder(t *testing.T) {
	if _, ok := NewCoder(Offline{}).(GeneratorCoder); !ok {
		t.Error("offline should adapt to GeneratorCoder")
	}
	if _, ok := NewCoder(WithTimeout(&CLI{}, time.Second)).(timedCoder); !ok {
		t.Error("timed CLI should stay a CLI coder")
	}
	out, err := NewCoder(Offline{}).Code(context.Background(), t.TempDir(), "p", "m")
	if err != nil || !strings.HasPrefix(out, "(offline:") {
		t.Errorf("Code: %q %v", out, err)
	}
}

func TestGRPC_roundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	g := grpc.NewServer()
	(&Server{Backend: Offline{}}).Register(g)
	go func() { _ = g.Serve(lis) }()
	defer g.Stop()

	client := &GRPC{
		Addr: "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := client.Generate(ctx, "x\n"+ChoiceReview, "m")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasSuffix(out, "APPROVE") {
		t.Errorf("got %q", out)
	}
	if _, err := client.Generate(ctx, "", "m"); err == nil {
		t.Error("expected InvalidArgument for empty prompt")
	}
}

func TestServer_nilBackend(t *testing.T) {
	if _, err := (&Server{}).Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error when backend is nil")
	}
}
