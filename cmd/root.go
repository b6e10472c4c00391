package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/logpoison-tool/internal/cache"
	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/exploit"
	"github.com/logpoison-tool/internal/logger"
	"github.com/logpoison-tool/internal/transport"
	"github.com/logpoison-tool/internal/ui"
)

// ErrNotExploited is returned when a run ends without a usable log. The
// console has already told the operator why.
var ErrNotExploited = errors.New("no log could be exploited")

var (
	cfgFile string
	cfg     *config.Config
	log     logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "logpoison",
	Short: "LFI log poisoning toolkit",
	Long: `Turns a local file inclusion into command execution by poisoning a
server log that the vulnerable parameter can include.

The target is scanned for readable logs (web server access and error logs,
SSH, FTP and mail logs, /proc/self), a PHP payload is planted through a
request field the log records, and every operator command is executed by
re-poisoning and re-including the log.

For authorized penetration tests, training labs and CTF targets only.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(config *config.Config, logger logger.Logger) error {
	cfg = config
	log = logger
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/default.yaml or $HOME/.logpoison.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet mode")
	rootCmd.PersistentFlags().String("proxy", "", "upstream proxy URL (http, https or socks5)")
	rootCmd.PersistentFlags().Int("timeout", 0, "request timeout in seconds (default from config, 10)")
	rootCmd.PersistentFlags().String("user-agent", "", "browser User-Agent for non-poisoning requests")
	rootCmd.PersistentFlags().Bool("follow-redirects", true, "follow HTTP redirects")
	rootCmd.PersistentFlags().Bool("verify-ssl", false, "verify TLS certificates")
	rootCmd.PersistentFlags().Bool("no-cache", false, "disable the scan result cache")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	// Bind flags to viper
	for _, name := range []string{
		"verbose", "quiet", "proxy", "timeout", "user-agent",
		"follow-redirects", "verify-ssl", "no-cache", "no-color",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	// Add completion command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion",
		Short: "Generate completion script",
		Long: `To load completions:

Bash:
$ source <(logpoison completion bash)

Zsh:
$ source <(logpoison completion zsh)

Fish:
$ logpoison completion fish | source

PowerShell:
PS> logpoison completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactValidArgs(1),
		PersistentPreRunE:     func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return cmd.Root().GenPowerShellCompletion(os.Stdout)
			}
		},
	})
}

// initConfig lets LOGPOISON_* environment variables stand in for flags
func initConfig() {
	viper.SetEnvPrefix("logpoison")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// prepare loads an explicit config file, applies flag overrides and
// rebuilds the logger before any subcommand runs
func prepare(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		loaded, err := config.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		fmt.Fprintln(os.Stderr, "Using config file:", cfgFile)
	}

	if err := cfg.ApplyOverrides(overridesFromFlags(cmd)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log = logger.New(cfg.LogLevel, cfg.LogFormat)
	return nil
}

func overridesFromFlags(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		Proxy:     viper.GetString("proxy"),
		Timeout:   viper.GetInt("timeout"),
		UserAgent: viper.GetString("user-agent"),
		VerifySSL: viper.GetBool("verify-ssl"),
		NoCache:   viper.GetBool("no-cache"),
	}

	if cmd.Flags().Changed("follow-redirects") {
		follow := viper.GetBool("follow-redirects")
		o.FollowRedirects = &follow
	}

	switch {
	case viper.GetBool("verbose"):
		o.LogLevel = "debug"
	case viper.GetBool("quiet"):
		o.LogLevel = "error"
	}

	return o
}

// newSession wires transport, cache and console into an exploit session
func newSession(console *ui.Console, opts exploit.Options) (*exploit.Session, error) {
	client, err := transport.New(cfg, log)
	if err != nil {
		return nil, err
	}

	var c *cache.Manager
	if cfg.Cache.Enabled {
		if c, err = cache.NewManager(cfg, log); err != nil {
			log.Warn("Scan cache unavailable", "error", err)
		}
	}

	session, err := exploit.New(cfg, log, client, console, c, opts)
	if err != nil {
		client.Close()
		if c != nil {
			c.Close()
		}
		return nil, err
	}

	return session, nil
}
