package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/secretary"
	"github.com/ankittk/usagi/pkg/client"
)

func newSendCmd() *cobra.Command {
	var (
		source string
		api    string
	)
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Leave a request for the boss (stdin when no text is given)",
		Long: "send writes the text into the boss inbox; the control loop turns it into an input.\n" +
			"With --api the text goes through a running daemon's HTTP API instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to send")
			}

			var p string
			var err error
			if api != "" {
				p, err = client.New(api, os.Getenv(EnvAPIKey)).Send(cmd.Context(), source, text)
			} else {
				p, err = secretary.WriteBossInput(config.MustRootFrom(cmd.Context()), source, text)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", p)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "Source tag recorded in the inbox file name")
	cmd.Flags().StringVar(&api, "api", "", "Daemon base URL (e.g. http://127.0.0.1:7351)")
	return cmd
}
