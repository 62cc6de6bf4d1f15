package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	passwords "github.com/pilab-dev/hospital-gate/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var errEmptyPassword = errors.New("password must not be empty")

func newHashPasswordCmd() *cobra.Command {
	var (
		cost      int
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(cmd, fromStdin)
			if err != nil {
				return err
			}
			hash, err := passwords.NewBcryptPasswordHasher(cost).Hash(pw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin without prompting")
	return cmd
}

// readPassword prompts on a terminal and otherwise reads one line of input.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if len(raw) == 0 {
			return "", errEmptyPassword
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errEmptyPassword
	}
	return pw, nil
}
