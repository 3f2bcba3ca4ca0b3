package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/model"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and remember the session",
		Long: `Sign in against the backend. The session is kept in the configured
storage until "shopsync logout".

The password is read from standard input when --password is not given.

Example:
  shopsync login Renuka --password password
  echo password | shopsync login Renuka`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read password", err)
				}
				password = pw
			}
			return runLogin(cmd, rootOpts, args[0], password)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func runLogin(cmd *cobra.Command, opts *RootOptions, username, password string) error {
	c, err := openClient(cmd, opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	s, err := c.Session.Login(commandContext(cmd), username, password)
	if err != nil {
		return c.out.Fail("Login failed", err)
	}
	return c.out.Success("", sessionData(s))
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and its cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.App.Logout(commandContext(cmd)); err != nil {
				return c.out.Fail("", err)
			}
			return c.out.Success("Logged out.\n", map[string]any{"signed_in": false})
		},
	}
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var draft model.UserDraft

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a customer account",
		Long: `Create a customer account. The form is checked locally first: names
may not contain "admin", the email must look like local@domain.tld and the
password needs 8+ characters with upper and lower case.

Example:
  shopsync register --username Meera --email meera@example.com --password Secret123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			text, err := c.Session.Register(commandContext(cmd), draft)
			if err != nil {
				return c.out.Fail("Registration failed", err)
			}
			return c.out.Success(text+"\n", map[string]any{"message": text})
		},
	}
	cmd.Flags().StringVar(&draft.Username, "username", "", "account name")
	cmd.Flags().StringVar(&draft.Email, "email", "", "email address")
	cmd.Flags().StringVar(&draft.Password, "password", "", "account password")
	return cmd
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			s, ok := c.Session.Current(commandContext(cmd))
			if !ok {
				return c.out.Success("Not signed in.\n", map[string]any{"signed_in": false})
			}
			return c.out.Success(
				fmt.Sprintf("Signed in as %s (%s)\n", s.Username, s.Role),
				sessionData(s),
			)
		},
	}
}

func sessionData(s model.Session) map[string]any {
	return map[string]any{
		"signed_in": true,
		"user_id":   s.UserID,
		"username":  s.Username,
		"role":      string(s.Role),
	}
}

// readSecret prompts on out and reads one line from in.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
