package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/daemon"
)

// EnvAPIKey guards the status API when set.
const EnvAPIKey = "USAGI_API_KEY"

// daemonFlags are shared by start and the hidden daemon command.
type daemonFlags struct {
	addr       string
	pprofAddr  string
	dbDriver   string
	dbURL      string
	enableOtel bool
	noGit      bool
	logLevel   string
}

func (f *daemonFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "", "Status API listen address (e.g. 127.0.0.1:7351); empty disables it")
	cmd.Flags().StringVar(&f.pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&f.dbDriver, "db-driver", "sqlite", "Ledger driver: sqlite or postgres")
	cmd.Flags().StringVar(&f.dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().BoolVar(&f.enableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter on /metrics)")
	cmd.Flags().BoolVar(&f.noGit, "no-git", false, "Run without git worktrees; merges are recorded as skipped")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func (f *daemonFlags) options(root string) daemon.StartOptions {
	return daemon.StartOptions{
		Root:       root,
		HTTPAddr:   f.addr,
		APIKey:     os.Getenv(EnvAPIKey),
		PprofAddr:  f.pprofAddr,
		DBDriver:   f.dbDriver,
		DBURL:      f.dbURL,
		EnableOtel: f.enableOtel,
		NoGit:      f.noGit,
		LogLevel:   f.logLevel,
	}
}

func runForeground(cmd *cobra.Command, opts daemon.StartOptions) error {
	opts.Version = cmd.Root().Version
	closer, err := daemon.SetupLogging(opts.Root, opts.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	return daemon.StartForeground(cmd.Context(), opts)
}

func newStartCmd() *cobra.Command {
	var (
		flags      daemonFlags
		foreground bool
		envFile    string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start usagi (input watcher + mailbox control loop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			opts := flags.options(config.MustRootFrom(cmd.Context()))

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting usagi in foreground (root %s)\n", opts.Root)
				return runForeground(cmd, opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "usagi started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logs: %s\n", daemon.LogPath(opts.Root))
			if opts.HTTPAddr != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "API: http://%s\n", opts.HTTPAddr)
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before starting")

	return cmd
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}
