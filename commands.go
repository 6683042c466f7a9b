package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/cccs/clue-client/internal/api"
	"github.com/cccs/clue-client/internal/api/actions"
	"github.com/cccs/clue-client/internal/api/auth"
	"github.com/cccs/clue-client/internal/api/fetchers"
	"github.com/cccs/clue-client/internal/api/lookup"
	"github.com/cccs/clue-client/internal/api/static"
	"github.com/cccs/clue-client/internal/app"
	"github.com/cccs/clue-client/internal/audit"
	"github.com/cccs/clue-client/internal/config"
	"github.com/spf13/cobra"
)

// configLoader supplies the configuration; tests replace the environment.
type configLoader func(context.Context) (config.Config, error)

func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return cfg, fmt.Errorf("configuration load failed: %w", err)
	}
	return cfg, nil
}

// cli carries the state shared by every command of one invocation.
type cli struct {
	load   configLoader
	out    io.Writer
	format string

	app *app.App
}

// execute runs the command line in args, releasing the application state
// whether or not the command succeeded. Each invocation writes one audit
// entry.
func execute(ctx context.Context, load configLoader, out io.Writer, args []string) error {
	ctx, entry := audit.Context(ctx)
	defer entry.End(ctx)()

	c := &cli{load: load, out: out}

	root := c.rootCommand()
	root.SetArgs(args)

	err := errors.Join(root.ExecuteContext(ctx), c.close(ctx))
	entry.Fail(err)

	return err
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "clue",
		Short:         "Query a Clue threat intelligence server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			audit.Log(cmd.Context()).Begin(cmd.CommandPath())
			if !needsApp(cmd) {
				return nil
			}
			return c.open(cmd.Context())
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVarP(&c.format, "output", "o", formatText, "output format: text, json or yaml")

	root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.statusCommand(),
		c.typesCommand(),
		c.detectTypesCommand(),
		c.enrichCommand(),
		c.actionsCommand(),
		c.fetchersCommand(),
		c.docsCommand(),
		c.docCommand(),
		c.prefsCommand(),
	)

	return root
}

// needsApp is false for the commands cobra adds itself.
func needsApp(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		switch cmd.Name() {
		case "help", "completion":
			return false
		}
	}
	return true
}

func (c *cli) open(ctx context.Context) error {
	if _, err := newPrinter(c.out, c.format); err != nil {
		return err
	}

	cfg, err := c.load(ctx)
	if err != nil {
		return err
	}
	audit.Log(ctx).Server = cfg.API.URL

	c.app, err = app.New(ctx, cfg)
	return err
}

func (c *cli) close(ctx context.Context) error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

func (c *cli) print(v any) error {
	p, err := newPrinter(c.out, c.format)
	if err != nil {
		return err
	}
	return p.Print(v)
}

// printResult prints the payload of a successful result, or returns the
// server's rejection as an error.
func printResult[T any](c *cli, result api.Result[T]) error {
	if err := result.Err(); err != nil {
		return err
	}
	return c.print(result.Data)
}

func (c *cli) loginCommand() *cobra.Command {
	var user, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a user name and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := c.app.Login(cmd.Context(), auth.LoginRequest{User: user, Password: password})
			if err != nil {
				return err
			}
			if !saved {
				return fmt.Errorf("the server did not issue an application token")
			}
			return c.printStatus(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")

	cmd.AddCommand(&cobra.Command{
		Use:   "oauth CALLBACK",
		Short: "Complete an OAuth login with the provider's callback URL or query string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callback, err := parseCallback(args[0])
			if err != nil {
				return err
			}

			saved, err := c.app.LoginOAuth(cmd.Context(), callback)
			if err != nil {
				return err
			}
			if !saved {
				return fmt.Errorf("the server did not issue an application token")
			}
			return c.printStatus(cmd.Context())
		},
	})

	return cmd
}

// parseCallback accepts either the full redirect URL or only its query.
func parseCallback(raw string) (url.Values, error) {
	query := raw
	if _, after, found := strings.Cut(raw, "?"); found {
		query = after
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("invalid OAuth callback: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("invalid OAuth callback: no parameters")
	}

	return values, nil
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential and cached responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Logout(cmd.Context()); err != nil {
				return err
			}
			return c.printStatus(cmd.Context())
		},
	}
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printStatus(cmd.Context())
		},
	}
}

func (c *cli) printStatus(ctx context.Context) error {
	status, err := c.app.Status(ctx)
	if err != nil {
		return err
	}
	return c.print(status)
}

func (c *cli) typesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the selector types each plugin supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := lookup.Types(cmd.Context(), c.app.Client)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
}

func (c *cli) detectTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect-types",
		Short: "List the pattern used to detect each selector type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := lookup.TypesDetection(cmd.Context(), c.app.Client)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
}

func (c *cli) enrichCommand() *cobra.Command {
	var (
		options        lookup.EnrichOptions
		classification string
	)

	cmd := &cobra.Command{
		Use:   "enrich TYPE:VALUE...",
		Short: "Enrich selectors using every matching plugin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selectors, err := parseSelectors(args, classification)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("timeout") {
				options.Timeout = c.app.MaxTimeout(cmd.Context())
			}
			options.Classification = classification

			result, err := lookup.Enrich(cmd.Context(), c.app.Client, selectors, options)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
	cmd.Flags().StringSliceVarP(&options.Sources, "source", "s", nil, "restrict to these plugins (repeatable)")
	cmd.Flags().StringVarP(&classification, "classification", "c", "", "classification of the selectors and maximum classification of results")
	cmd.Flags().Float64VarP(&options.Timeout, "timeout", "t", 0, "seconds to wait on each plugin (default: max_timeout preference)")
	cmd.Flags().BoolVar(&options.IncludeRaw, "raw", false, "include raw plugin data")
	cmd.Flags().BoolVar(&options.NoCache, "no-cache", false, "bypass the server's cache")

	return cmd
}

func (c *cli) actionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List and execute actions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the available actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := actions.Get(cmd.Context(), c.app.Client)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	})

	var (
		params         []string
		timeout        float64
		classification string
	)

	run := &cobra.Command{
		Use:   "run ACTION_ID TYPE:VALUE...",
		Short: "Execute an action against one or more selectors",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selectors, err := parseSelectors(args[1:], classification)
			if err != nil {
				return err
			}

			parsed, err := parseParams(params)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("timeout") {
				timeout = c.app.MaxTimeout(cmd.Context())
			}

			result, err := actions.Post(cmd.Context(), c.app.Client, args[0], selectors, parsed, actions.ExecuteOptions{Timeout: timeout})
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
	run.Flags().StringArrayVarP(&params, "param", "p", nil, "action parameter as key=value; JSON values are decoded (repeatable)")
	run.Flags().Float64VarP(&timeout, "timeout", "t", 0, "seconds the action may run (default: max_timeout preference)")
	run.Flags().StringVarP(&classification, "classification", "c", "", "classification of the selectors")
	cmd.AddCommand(run)

	return cmd
}

func (c *cli) fetchersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetchers",
		Short: "List and run fetchers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the available fetchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := fetchers.Get(cmd.Context(), c.app.Client)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	})

	var classification string
	run := &cobra.Command{
		Use:   "run FETCHER_ID TYPE:VALUE",
		Short: "Run a fetcher against a selector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := parseSelector(args[1], classification)
			if err != nil {
				return err
			}

			result, err := fetchers.Post(cmd.Context(), c.app.Client, args[0], selector)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
	run.Flags().StringVarP(&classification, "classification", "c", "", "classification of the selector")
	cmd.AddCommand(run)

	return cmd
}

func (c *cli) docsCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List the server's documentation files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := static.Docs(cmd.Context(), c.app.Client, filter)
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only list files matching this filter")

	return cmd
}

func (c *cli) docCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doc FILE",
		Short: "Print a documentation file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := static.Doc(cmd.Context(), c.app.Client, args[0])
			if err != nil {
				return err
			}
			return printResult(c, result)
		},
	}
}

func (c *cli) prefsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show and change stored preferences",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show every preference",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				prefs, err := c.app.Preferences(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(prefs)
			},
		},
		&cobra.Command{
			Use:   "get NAME",
			Short: "Show one preference",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := c.app.Preference(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(value)
			},
		},
		&cobra.Command{
			Use:   "set NAME VALUE",
			Short: "Store a preference; JSON values are decoded",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.SetPreference(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Remove every stored preference",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.ResetPreferences(cmd.Context())
			},
		},
	)

	return cmd
}

// parseSelector reads TYPE:VALUE. Only the first colon separates, so values
// such as URLs keep theirs.
func parseSelector(arg, classification string) (api.Selector, error) {
	selectorType, value, found := strings.Cut(arg, ":")
	if !found || selectorType == "" || value == "" {
		return api.Selector{}, fmt.Errorf("invalid selector %q: expected TYPE:VALUE", arg)
	}

	return api.Selector{
		Type:           strings.ToLower(selectorType),
		Value:          value,
		Classification: classification,
	}, nil
}

func parseSelectors(args []string, classification string) ([]api.Selector, error) {
	selectors := make([]api.Selector, 0, len(args))
	for _, arg := range args {
		selector, err := parseSelector(arg, classification)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, selector)
	}
	return selectors, nil
}

// parseParams reads key=value pairs. Values that are valid JSON are decoded,
// anything else is kept as a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
