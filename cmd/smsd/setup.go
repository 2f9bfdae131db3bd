package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tutorbookapp/relay/internal/config"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newSetupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively write a relay config file",
		Long: "Prompts for Twilio credentials and store settings and writes a\n" +
			"relay.yaml. The auth token is read without echo when run from a\n" +
			"terminal; set TWILIO_AUTH_TOKEN in the environment to skip it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "relay.yaml", "where to write the config")
	return cmd
}

func runSetup(cmd *cobra.Command, outputPath string) error {
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use --output", outputPath)
	}

	var cfg config.Config
	var err error

	cfg.Twilio.AccountSID, err = prompt(out, in, "Twilio account SID")
	if err != nil {
		return err
	}
	cfg.Twilio.AuthToken, err = promptSecret(out, in, "Twilio auth token")
	if err != nil {
		return err
	}
	cfg.Twilio.Phone, err = prompt(out, in, "Gateway phone (E.164)")
	if err != nil {
		return err
	}
	cfg.DB.Database, err = prompt(out, in, "MySQL database [tutorbook]")
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	fmt.Fprintf(out, "Wrote %s\n", outputPath)
	fmt.Fprintln(out, "Run \"smsd db migrate\" next, then \"smsd serve\".")
	return nil
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal; otherwise it
// falls back to a plain line read so piped input still works.
func promptSecret(out io.Writer, in *bufio.Reader, label string) (string, error) {
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		fmt.Fprintf(out, "%s: (from TWILIO_AUTH_TOKEN)\n", label)
		return v, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(out, "%s: ", label)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", label, err)
		}
		return strings.TrimSpace(string(secret)), nil
	}
	return prompt(out, in, label)
}
