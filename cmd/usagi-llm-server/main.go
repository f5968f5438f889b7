// usagi-llm-server exposes an LLM backend over gRPC (offline by default).
// Example: go run ./cmd/usagi-llm-server --addr=:50051 --backend=openai
// Then set llm.backend: grpc and llm.grpc_addr: localhost:50051 in usagi.runtime.yaml.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpcgo "google.golang.org/grpc"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/llm"
)

func main() {
	def := config.DefaultRuntime().LLM
	addr := flag.String("addr", ":50051", "gRPC listen address")
	backend := flag.String("backend", "offline", "Backend: offline, openai or cli")
	baseURL := flag.String("base-url", def.BaseURL, "OpenAI-compatible base URL")
	command := flag.String("command", strings.Join(def.Command, " "), "Command for the cli backend")
	timeout := flag.Duration("timeout", def.Timeout, "Per-call timeout")
	flag.Parse()

	b, err := llm.New(config.LLMConfig{
		Backend: *backend,
		BaseURL: *baseURL,
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Command: strings.Fields(*command),
		Timeout: *timeout,
	}, "")
	if err != nil {
		slog.Error("backend", "err", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		slog.Error("listen", "addr", *addr, "err", err)
		os.Exit(1)
	}
	srv := grpcgo.NewServer()
	(&llm.Server{Backend: b}).Register(srv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}()

	slog.Info("llm gRPC server listening", "addr", *addr, "backend", b.Name())
	if err := srv.Serve(lis); err != nil {
		slog.Error("serve", "err", err)
		os.Exit(1)
	}
}
