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

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List logs readable through the LFI parameter",
	Long: `Probe every catalog path through the vulnerable parameter and report
the ones whose content looks like a log. Nothing is poisoned.

Results are cached per target, parameter and catalog, in cache.dir or in
Redis when cache.redis_addr is set, so a following exploit run can skip the
scan. Use --rescan to refresh them or --no-cache to bypass the cache.`,
	Example: `  logpoison scan -u http://target.htb/index.php
  logpoison scan -u http://target.htb/index.php -p page --rescan`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("url", "u", "", "target URL (e.g. http://target.htb/index.php)")
	scanCmd.Flags().StringP("param", "p", "language", "vulnerable parameter name")
	scanCmd.Flags().Bool("rescan", false, "ignore cached scan results")
	scanCmd.MarkFlagRequired("url")

	viper.BindPFlag("scan.url", scanCmd.Flags().Lookup("url"))
	viper.BindPFlag("scan.param", scanCmd.Flags().Lookup("param"))
	viper.BindPFlag("scan.rescan", scanCmd.Flags().Lookup("rescan"))
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := ui.NewStd(viper.GetBool("no-color"))
	target := viper.GetString("scan.url")
	param := viper.GetString("scan.param")

	session, err := newSession(console, exploit.Options{
		Target: target,
		Param:  param,
		Rescan: viper.GetBool("scan.rescan"),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	console.Header(target, param)
	logs := session.Scan(ctx)

	if ctx.Err() != nil {
		console.Newline()
		console.Warn("Scan interrupted by user")
		return nil
	}

	if len(logs) == 0 {
		console.Newline()
		console.Error("No readable logs found")
		return ErrNotExploited
	}

	console.LogsTable(logs)
	return nil
}
