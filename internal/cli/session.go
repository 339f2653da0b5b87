package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/alm/pkg/model"
	"github.com/me/alm/pkg/token"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user, refreshed from the API",
		Long: `Load the stored session and refresh the profile from the API.

A profile that can no longer be fetched ends the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !app.Auth.IsAuthenticated(ctx) {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}
			if err := app.Session.RefreshUser(ctx); err != nil {
				return fmt.Errorf("%w (you have been logged out)", err)
			}

			u := app.Session.State().User
			fmt.Fprintf(out, "Name:  %s\n", u.Name)
			fmt.Fprintf(out, "Email: %s\n", u.Email)
			fmt.Fprintf(out, "Role:  %s\n", u.Role)
			if u.ID != "" {
				fmt.Fprintf(out, "ID:    %s\n", u.ID)
			}
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the stored session without contacting the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sess, err := app.Auth.Session(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Authenticated: %t\n", app.Auth.IsAuthenticated(ctx))
			fmt.Fprintf(out, "Admin:         %t\n", app.Auth.IsAdmin(ctx))
			if sess.User != nil {
				fmt.Fprintf(out, "User:          %s <%s>\n", sess.User.Name, sess.User.Email)
			}
			fmt.Fprintf(out, "Token:         %s\n", describeToken(sess.Token, time.Now()))
			fmt.Fprintf(out, "Transport:     %s\n", app.Config.Transport)
			fmt.Fprintf(out, "Store:         %s\n", app.Config.Store)
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored token for a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			fresh, err := app.Auth.RefreshToken(cmd.Context())
			if err != nil {
				if errors.Is(err, model.ErrSessionExpired) {
					return fmt.Errorf("%w: log in again with 'alm login'", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed: %s\n", describeToken(fresh, time.Now()))
			return nil
		},
	}
}

// describeToken summarizes a token without printing it.
func describeToken(raw string, now time.Time) string {
	switch {
	case raw == "":
		return "none"
	case token.IsDemo(raw):
		return "demo (never expires)"
	}
	exp, err := token.Expiry(raw)
	if err != nil {
		return fmt.Sprintf("unreadable (%v)", err)
	}
	if !exp.After(now) {
		return fmt.Sprintf("jwt, expired %s", humanize.RelTime(exp, now, "ago", "from now"))
	}
	return fmt.Sprintf("jwt, expires %s (%s)", humanize.RelTime(exp, now, "ago", "from now"), exp.Local().Format(time.RFC3339))
}
