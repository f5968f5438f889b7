package daemon

// StartOptions configures the daemon process.
type StartOptions struct {
	Root       string
	HTTPAddr   string // status API and /metrics; empty disables the server
	APIKey     string // optional; guards /api/*
	PprofAddr  string
	DBDriver   string // "sqlite" (default) or "postgres"
	DBURL      string // for postgres: connection string (or DATABASE_URL env)
	EnableOtel bool   // Prometheus exporter plus mailbox/vote/merge/job instrumentation
	NoGit      bool   // run workers without worktrees; merges are recorded as skipped
	LogLevel   string
	Version    string // reported as service.version on metrics
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
