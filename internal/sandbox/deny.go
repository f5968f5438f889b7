package sandbox

import (
	"fmt"
	"strings"
)

type rule struct {
	match  string
	reason string
}

// shellRules are case-insensitive substrings that may not appear anywhere in a tool command line.
var shellRules = []rule{
	{"sqlite3", "touches the ledger"},
	{".usagi/", "touches daemon state"},
	{"drop table", "destructive sql"},
	{"delete from", "destructive sql"},
	{"rm -rf .git", "destroys the repository"},
	{"chmod 777", "world-writable files"},
	{"| sh", "pipes into a shell"},
	{"| bash", "pipes into a shell"},
	{"eval $(", "evaluates generated code"},
	{"> /dev/sd", "writes a block device"},
	{"mkfs.", "formats a filesystem"},
	{":(){ :|:& };:", "fork bomb"},
}

// gitRules are git subcommand prefixes reserved for the manager's merge step.
var gitRules = []rule{
	{"merge", "merges belong to the manager"},
	{"rebase", "rewrites history"},
	{"reset --hard", "rewrites history"},
	{"filter-branch", "rewrites history"},
	{"reflog expire", "rewrites history"},
	{"checkout", "moves the worktree off its branch"},
	{"switch", "moves the worktree off its branch"},
	{"worktree", "worktrees are managed by usagi"},
	{"branch ", "branches are managed by usagi"},
	{"branch -", "branches are managed by usagi"},
	{"push", "network access"},
	{"pull", "network access"},
	{"fetch", "network access"},
	{"remote", "network access"},
}

// DeniedError reports which rule rejected a command.
type DeniedError struct {
	Command string
	Match   string
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("sandbox: %q denied (%s: %q)", e.Command, e.Reason, e.Match)
}

func matchShell(cmdLine string) *rule {
	lower := strings.ToLower(cmdLine)
	for i := range shellRules {
		if strings.Contains(lower, shellRules[i].match) {
			return &shellRules[i]
		}
	}
	return nil
}

func matchGit(args []string) *rule {
	sub := strings.ToLower(strings.TrimSpace(strings.Join(args, " ")))
	if sub == "" {
		return nil
	}
	for i := range gitRules {
		if strings.HasPrefix(sub, gitRules[i].match) {
			return &gitRules[i]
		}
	}
	return nil
}

// BlockedShellCommand reports whether cmdLine hits a shell rule.
func BlockedShellCommand(cmdLine string) bool {
	return matchShell(cmdLine) != nil
}

// BlockedGitCommand reports whether git args (without "git") hit a git rule.
func BlockedGitCommand(args []string) bool {
	return matchGit(args) != nil
}

// CheckCommand vets the configured LLM CLI argv before it is spawned. The error is a *DeniedError.
func CheckCommand(argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return fmt.Errorf("sandbox: empty command")
	}
	line := strings.Join(argv, " ")
	if r := matchShell(line); r != nil {
		return &DeniedError{Command: line, Match: r.match, Reason: r.reason}
	}
	if argv[0] == "git" {
		if r := matchGit(argv[1:]); r != nil {
			return &DeniedError{Command: line, Match: r.match, Reason: r.reason}
		}
	}
	return nil
}
