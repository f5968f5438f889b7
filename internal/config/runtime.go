package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// RuntimeFile is the default runtime policy file name under the root.
const RuntimeFile = "usagi.runtime.yaml"

// Pipeline modes.
const (
	PipelineMailbox  = "mailbox"
	PipelineApproval = "approval"
)

// Runtime is the policy consumed by the daemon and role handlers.
type Runtime struct {
	BossID   string `koanf:"boss_id"`
	Pipeline string `koanf:"pipeline"`
	OrgPath  string `koanf:"org_path"`

	LLM   LLMConfig   `koanf:"llm"`
	Merge MergePolicy `koanf:"merge"`
	Vote  VotePolicy  `koanf:"vote"`
	Watch WatchConfig `koanf:"watch"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Backend  string        `koanf:"backend"` // offline, openai, cli, grpc
	Model    string        `koanf:"model"`
	BaseURL  string        `koanf:"base_url"`
	APIKey   string        `koanf:"api_key"`
	Command  []string      `koanf:"command"`
	GRPCAddr string        `koanf:"grpc_addr"`
	Sandbox  bool          `koanf:"sandbox"`
	Timeout  time.Duration `koanf:"timeout"`
}

// MergePolicy controls the manager's merge step.
type MergePolicy struct {
	Policy string `koanf:"policy"` // auto, never
}

// Enabled reports whether approved branches are merged automatically.
func (m MergePolicy) Enabled() bool { return m.Policy != "never" }

// VotePolicy configures escalation voting.
type VotePolicy struct {
	Enabled bool     `koanf:"enabled"`
	Voters  []string `koanf:"voters"`
}

// WatchConfig configures input intake and the control loop.
type WatchConfig struct {
	InputsDir        string        `koanf:"inputs_dir"`
	OutputsDir       string        `koanf:"outputs_dir"`
	WorkRoot         string        `koanf:"work_root"`
	Workers          int           `koanf:"workers"`
	Debounce         time.Duration `koanf:"debounce"`
	TickInterval     time.Duration `koanf:"tick_interval"`
	InputPostprocess string        `koanf:"input_postprocess"` // keep, trash
}

var defaults = map[string]any{
	"boss_id":                 "boss",
	"pipeline":                PipelineMailbox,
	"org_path":                "usagi.org.yaml",
	"llm.backend":             "offline",
	"llm.model":               "codex",
	"llm.base_url":            "https://api.openai.com",
	"llm.command":             []string{"codex", "exec"},
	"llm.timeout":             "120s",
	"merge.policy":            "auto",
	"vote.enabled":            true,
	"vote.voters":             []string{"boss", "ghost_boss", "secretary"},
	"watch.inputs_dir":        "inputs",
	"watch.outputs_dir":       "outputs",
	"watch.work_root":         "work",
	"watch.workers":           5,
	"watch.debounce":          "400ms",
	"watch.tick_interval":     "500ms",
	"watch.input_postprocess": "keep",
}

// LoadRuntime layers defaults, the YAML file at path (when it exists) and USAGI_* env vars.
// Nested keys use a double underscore: USAGI_VOTE__ENABLED=false.
func LoadRuntime(path string) (Runtime, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return Runtime{}, err
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Runtime{}, fmt.Errorf("load runtime %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Runtime{}, err
		}
	}
	if err := k.Load(env.Provider("USAGI_", ".", envKey), nil); err != nil {
		return Runtime{}, err
	}
	var rt Runtime
	if err := k.Unmarshal("", &rt); err != nil {
		return Runtime{}, fmt.Errorf("decode runtime: %w", err)
	}
	rt.normalize()
	return rt, nil
}

// DefaultRuntime returns the built-in policy with no file or env overlay.
func DefaultRuntime() Runtime {
	rt := Runtime{
		BossID:   "boss",
		Pipeline: PipelineMailbox,
		OrgPath:  "usagi.org.yaml",
		LLM: LLMConfig{
			Backend: "offline",
			Model:   "codex",
			BaseURL: "https://api.openai.com",
			Command: []string{"codex", "exec"},
			Timeout: 120 * time.Second,
		},
		Merge: MergePolicy{Policy: "auto"},
		Vote:  VotePolicy{Enabled: true, Voters: []string{"boss", "ghost_boss", "secretary"}},
		Watch: WatchConfig{
			InputsDir:        "inputs",
			OutputsDir:       "outputs",
			WorkRoot:         "work",
			Workers:          5,
			Debounce:         400 * time.Millisecond,
			TickInterval:     500 * time.Millisecond,
			InputPostprocess: "keep",
		},
	}
	return rt
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "USAGI_"))
	return strings.ReplaceAll(s, "__", ".")
}

func (rt *Runtime) normalize() {
	if rt.BossID == "" {
		rt.BossID = "boss"
	}
	if rt.Pipeline != PipelineApproval {
		rt.Pipeline = PipelineMailbox
	}
	if rt.Watch.Workers < 1 {
		rt.Watch.Workers = 1
	}
	if rt.Watch.Workers > 20 {
		rt.Watch.Workers = 20
	}
	if rt.Watch.Debounce <= 0 {
		rt.Watch.Debounce = 400 * time.Millisecond
	}
	if rt.Watch.TickInterval <= 0 {
		rt.Watch.TickInterval = 500 * time.Millisecond
	}
}

// Resolve returns p joined to root unless it is already absolute.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
