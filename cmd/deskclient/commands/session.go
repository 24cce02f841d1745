package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/deskclient/internal/app"
	"github.com/florianilch/deskclient/internal/authclient"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "start a session with username and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "account name (prompted if omitted)",
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "read the password from stdin",
			},
		},
		Action: withApp(loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	prompt := cmd.Root().ErrWriter
	if prompt == nil {
		prompt = os.Stderr
	}

	username, password, err := readCredentials(os.Stdin, prompt, cmd.String("username"), cmd.Bool("password-stdin"))
	if err != nil {
		return err
	}

	if err := a.Login(ctx, username, password); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(writer(cmd), "Logged in as %s.\n", username)
	return nil
}

// readCredentials completes the username and password from in. The password
// is read without echo when in is a terminal.
func readCredentials(in *os.File, prompt io.Writer, username string, passwordFromStdin bool) (string, string, error) {
	interactive := term.IsTerminal(int(in.Fd()))

	if passwordFromStdin {
		if username == "" {
			return "", "", errors.New("--username is required with --password-stdin")
		}
		password, err := readSecret(in)
		return username, password, err
	}

	if !interactive {
		return "", "", errors.New("no terminal to prompt for the password, use --password-stdin")
	}

	reader := bufio.NewReader(in)
	if username == "" {
		_, _ = fmt.Fprint(prompt, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	_, _ = fmt.Fprint(prompt, "Password: ")
	raw, err := term.ReadPassword(int(in.Fd()))
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return "", "", fmt.Errorf("reading password: %w", err)
	}

	if username == "" || len(raw) == 0 {
		return "", "", errors.New("username and password are required")
	}
	return username, string(raw), nil
}

// readSecret reads a secret piped on r, dropping the trailing newline.
func readSecret(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.New("empty password on stdin")
	}
	return secret, nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the session and remove the stored tokens",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			if err := a.Logout(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(writer(cmd), "Logged out.")
			return nil
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the session state",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print as JSON",
			},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app.App) error {
			status, err := a.Status(ctx)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(writer(cmd))
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			printStatus(writer(cmd), status, time.Now())
			return nil
		}),
	}
}

func printStatus(w io.Writer, s *app.Status, now time.Time) {
	_, _ = fmt.Fprintf(w, "state:       %s\n", s.State)
	if s.Subject != "" {
		_, _ = fmt.Fprintf(w, "subject:     %s\n", s.Subject)
	}
	if s.ExpiresAt != nil {
		remaining := s.ExpiresAt.Sub(now).Truncate(time.Second)
		if remaining > 0 {
			_, _ = fmt.Fprintf(w, "expires:     %s (in %s)\n", s.ExpiresAt.Format(time.RFC3339), remaining)
		} else {
			_, _ = fmt.Fprintf(w, "expires:     %s (expired)\n", s.ExpiresAt.Format(time.RFC3339))
		}
	}
	if s.State != authclient.StateAnonymous {
		_, _ = fmt.Fprintf(w, "refreshable: %t\n", s.Refreshable)
	}
}

// writer returns the root command's output stream.
func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
