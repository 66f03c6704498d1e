package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quill-hq/quill/internal/app"
	"github.com/quill-hq/quill/internal/checkout"
	"github.com/quill-hq/quill/internal/config"
	"github.com/quill-hq/quill/internal/logger"
	"github.com/quill-hq/quill/internal/probe"
	"github.com/quill-hq/quill/pkg/billing"
)

// cli carries state shared by every subcommand.
type cli struct {
	out, errOut io.Writer

	baseURL string
	token   string

	loadConfig func() (*config.Config, error)
	rt         *app.Client
}

func newCLI(out, errOut io.Writer) *cli {
	return &cli{out: out, errOut: errOut, loadConfig: config.Load}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quill",
		Short:         "Manage quill subscriptions, credits and checkouts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsRuntime(cmd) {
				return nil
			}
			return c.setup(cmd)
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVar(&c.baseURL, "base-url", "", "billing API base URL (overrides API_BASE_URL)")
	root.PersistentFlags().StringVar(&c.token, "token", "", "bearer token (overrides AUTH_TOKEN)")

	root.AddCommand(
		c.plansCmd(),
		c.subscribeCmd(),
		c.creditsCmd(),
		c.statusCmd(),
		c.analyticsCmd(),
		c.successCmd(),
		c.probeCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.baseURL != "" {
		cfg.APIBaseURL = strings.TrimSpace(c.baseURL)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt, err := app.NewClient(cmd.Context(), cfg, log, app.ClientOptions{
		Out:     c.out,
		Alerter: checkout.NewConsoleAlerter(c.errOut),
	})
	if err != nil {
		return err
	}
	if c.token != "" {
		rt.Flow.Login(c.token)
	}
	c.rt = rt
	return nil
}

// teardown is safe to call more than once.
func (c *cli) teardown() error {
	if c.rt == nil {
		return nil
	}
	err := c.rt.Close()
	c.rt = nil
	_ = logger.Close()
	return err
}

func needsRuntime(cmd *cobra.Command) bool {
	for p := cmd; p != nil; p = p.Parent() {
		switch p.Name() {
		case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd, "completion":
			return false
		}
	}
	return true
}

func (c *cli) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans and credit packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.rt.Flow.DisplayPlans(cmd.Context())
		},
	}
}

func (c *cli) subscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe [plan]",
		Short: "Start a subscription checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.rt.Flow.Subscribe(cmd.Context(), args[0])
			return err
		},
	}
}

func (c *cli) creditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credits [amount]",
		Short: "Start a credit purchase checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			_, err = c.rt.Flow.BuyCredits(cmd.Context(), amount)
			return err
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show subscription tier and credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := c.rt.Flow.ShowStatus(cmd.Context()); err != nil {
				return err
			}
			if sid, ok, err := c.rt.Flow.PendingSession(); err == nil && ok {
				fmt.Fprintf(c.out, "Pending checkout: %s\n", sid)
			}
			return nil
		},
	}
}

func (c *cli) analyticsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print usage analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := c.rt.Flow.ShowAnalytics(cmd.Context(), days)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", billing.DefaultAnalyticsDays, "number of days to include")
	return cmd
}

func (c *cli) successCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "success [redirect-url]",
		Short: "Complete a checkout from its success redirect URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.rt.Flow.HandleSuccess(cmd.Context(), args[0])
			return err
		},
	}
}

func (c *cli) probeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Diagnose the configured Anthropic API key",
	}

	account := &cobra.Command{
		Use:   "account",
		Short: "Check the account endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.rt.Prober()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Checking API key: %s\n", p.MaskedKey())
			res, err := p.CheckAccount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Status code: %d\n", res.StatusCode)
			if res.Data != nil {
				for _, k := range sortedKeys(res.Data) {
					fmt.Fprintf(c.out, "  %s: %v\n", k, res.Data[k])
				}
				return nil
			}
			fmt.Fprintln(c.out, res.Body)
			return nil
		},
	}

	var models []string
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Find which models the API key can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.rt.Prober()
			if err != nil {
				return err
			}
			report, err := p.ProbeModels(cmd.Context(), models)
			if report != nil {
				c.printReport(report)
			}
			return err
		},
	}
	modelsCmd.Flags().StringSliceVar(&models, "model", nil, "model to probe (repeatable; defaults to the built-in list)")

	cmd.AddCommand(account, modelsCmd)
	return cmd
}

func (c *cli) printReport(r *probe.Report) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Fprintf(c.out, "Tested %d models\n", r.Tested)
	fmt.Fprintf(c.out, "Working (%d):\n", len(r.Working))
	for _, m := range r.Working {
		green.Fprintf(c.out, "  ✓ %s\n", m)
	}
	fmt.Fprintf(c.out, "Failed (%d):\n", len(r.Failed))
	for _, f := range r.Failed {
		red.Fprintf(c.out, "  ✗ %s: %s\n", f.Model, f.Error)
	}
}
