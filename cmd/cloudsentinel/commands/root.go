package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DrSkyle/cloudsentinel/internal/app"
	"github.com/DrSkyle/cloudsentinel/pkg/config"
	"github.com/DrSkyle/cloudsentinel/pkg/telemetry"
	"github.com/DrSkyle/cloudsentinel/pkg/version"
)

var (
	cfgFile  string
	cfg      config.Config
	opts     app.Options
	handlers *app.Handlers
)

var rootCmd = &cobra.Command{
	Use:   "cloudsentinel",
	Short: "AWS audit, reporting and ephemeral resource automation",
	Long: `CloudSentinel - Event-driven AWS automation

Report. Alert. Expire.`,
	Version:       version.Current,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Run: nil (Forces help output).
	Run: nil,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $CLOUDSENTINEL_CONFIG)")
	flags.String("region", "", "AWS Region")
	flags.String("profile", "", "AWS shared config profile")
	flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR")
	flags.String("slack-webhook", "", "Slack Webhook URL mirrored with every notification")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Log every AWS API call")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Print notifications instead of publishing them")
	flags.StringVar(&opts.LocalOut, "local-out", "", "Write report CSVs under this directory instead of S3")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "permissions" {
			return nil
		}
		return initRuntime(cmd)
	}

	rootCmd.AddCommand(reportCmd, monitorCmd, alertCmd, tagCmd, permissionsCmd)
}

// initRuntime loads .env, the config file and the environment, with flags taking precedence.
func initRuntime(cmd *cobra.Command) error {
	_ = godotenv.Load()

	v := viper.New()
	bind := map[string]string{"region": "region", "profile": "profile", "log-level": "log_level", "slack-webhook": "slack_webhook"}
	for flag, key := range bind {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	file := cfgFile
	if file == "" {
		file = os.Getenv(app.ConfigFileEnv)
	}
	loaded, err := config.Load(v, file)
	if err != nil {
		return err
	}
	cfg = loaded

	logger := telemetry.NewLogger(os.Stderr, telemetry.ParseLevel(cfg.LogLevel), false)
	if opts.Verbose {
		logger = telemetry.NewLogger(os.Stderr, slog.LevelDebug, false)
	}
	slog.SetDefault(logger)

	if _, err := telemetry.Init(cmd.Context(), "cloudsentinel-cli", version.Current, cfg.OtelEndpoint); err != nil {
		logger.Warn("Telemetry failed", "error", err)
	}

	opts.Out = cmd.OutOrStdout()
	handlers = app.NewHandlers(cfg, logger, opts)
	return nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF99")).
			MarginBottom(1)
	flagStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF99"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
)

func renderHelp(cmd *cobra.Command) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("CLOUDSENTINEL %s", version.Current)))
	fmt.Println("Scheduled reports, CloudTrail alerts and ephemeral resource expiry.")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Println(titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Println("")
	}

	fmt.Println(titleStyle.Render("EXAMPLES"))
	fmt.Println("  cloudsentinel report --dry-run --local-out ./out   # Run the weekly report locally")
	fmt.Println("  cloudsentinel alert --event event.json            # Classify a saved CloudTrail event")
	fmt.Println("  cloudsentinel monitor --dry-run                   # Expire resources, print notices")
	fmt.Println("")

	fmt.Println(titleStyle.Render("FLAGS"))
	visit := func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	}
	cmd.LocalFlags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)
	fmt.Println("")
}
