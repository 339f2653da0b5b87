package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/me/alm/pkg/model"
	"github.com/me/alm/pkg/token"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the ALM API",
		Long: `Authenticate with email and password and store the session locally.

If the API is unreachable and the transport is auto, a demo session is
created instead; a rejected login is always reported as an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = promptLine(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd, in, "Password: "); err != nil {
					return err
				}
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			if err := app.Session.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			printSessionStarted(cmd.OutOrStdout(), app.Session.State().User, app.Session.State().Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var req model.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if req.Name == "" {
				if req.Name, err = promptLine(cmd, in, "Name: "); err != nil {
					return err
				}
			}
			if req.Email == "" {
				if req.Email, err = promptLine(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if req.Password == "" {
				if req.Password, err = promptPassword(cmd, in, "Password: "); err != nil {
					return err
				}
				if req.ConfirmPassword, err = promptPassword(cmd, in, "Confirm password: "); err != nil {
					return err
				}
			}

			if err := app.Session.Register(cmd.Context(), req); err != nil {
				return err
			}
			printSessionStarted(cmd.OutOrStdout(), app.Session.State().User, app.Session.State().Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Full name (prompted if omitted)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email (prompted if omitted)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password, at least 6 characters (prompted if omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func printSessionStarted(w io.Writer, u *model.User, tok string) {
	fmt.Fprintf(w, "Logged in as %s <%s> (%s)\n", u.Name, u.Email, u.Role)
	if token.IsDemo(tok) {
		fmt.Fprintln(w, "Demo mode: the API was not reachable, this session is local only.")
	}
}

// promptLine asks for one line of input.
func promptLine(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return promptLine(cmd, in, label)
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	pw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
