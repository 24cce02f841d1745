package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/deskclient/internal/app"
	"github.com/florianilch/deskclient/internal/servicedesk"
)

func getCommand() *cli.Command {
	names := make([]string, len(servicedesk.Resources))
	for i, r := range servicedesk.Resources {
		names[i] = string(r)
	}

	return &cli.Command{
		Name:      "get",
		Usage:     "print a resource listing or a single item as JSON",
		ArgsUsage: "<" + strings.Join(names, "|") + "> [id]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "query parameter as key=value (repeatable)",
			},
		},
		Action: withApp(getAction),
	}
}

func getAction(ctx context.Context, cmd *cli.Command, a *app.App) error {
	if cmd.NArg() < 1 || cmd.NArg() > 2 {
		return fmt.Errorf("usage: %s %s", cmd.FullName(), cmd.ArgsUsage)
	}

	query, err := parseParams(cmd.StringSlice("param"))
	if err != nil {
		return err
	}

	data, err := a.Fetch(ctx, cmd.Args().Get(0), cmd.Args().Get(1), query)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(writer(cmd))
	return err
}

// parseParams turns key=value pairs into query values.
func parseParams(params []string) (url.Values, error) {
	query := url.Values{}
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		query.Add(key, value)
	}
	return query, nil
}
