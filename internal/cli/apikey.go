package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"
)

var apikeyUsage = template.Must(template.New("apikey").Parse(`Generated API key:

  {{.Key}}

{{if .EnvFile}}Appended {{.Var}} to {{.EnvFile}}; start with: usagi start --env-file {{.EnvFile}}
{{else}}Export it where the daemon runs:  export {{.Var}}={{.Key}}
{{end}}Dashboard: http://<addr>/?api_key=<key>   API clients: header X-API-Key
`))

func newApikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the key guarding /api/*",
	}
	cmd.AddCommand(newApikeyGenerateCmd())
	return cmd
}

func newApikeyGenerateCmd() *cobra.Command {
	var (
		envFile string
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a new random key, optionally appending it to an env file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := newAPIKey()
			if err != nil {
				return err
			}
			if envFile != "" {
				if err := appendEnv(envFile, EnvAPIKey, key); err != nil {
					return err
				}
			}
			if quiet {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), key)
				return err
			}
			return apikeyUsage.Execute(cmd.OutOrStdout(), map[string]string{
				"Key": key, "Var": EnvAPIKey, "EnvFile": envFile,
			})
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Append "+EnvAPIKey+"=<key> to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the key")
	return cmd
}

func newAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func appendEnv(path, name, value string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s=%s\n", name, value); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
