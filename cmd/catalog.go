package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/logpoison-tool/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the log catalog",
	Long: `Print the log classes, candidate paths and poisoning methods the
scanner uses. With --format yaml the output can be edited and loaded back
through the catalog key of a config file.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().String("format", "table", "output format (table, yaml)")
	viper.BindPFlag("catalog.format", catalogCmd.Flags().Lookup("format"))
}

func runCatalog(cmd *cobra.Command, args []string) error {
	switch format := viper.GetString("catalog.format"); format {
	case "table":
		ui.NewStd(viper.GetBool("no-color")).CatalogTable(cfg.Catalog)
		return nil
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]interface{}{
			"indicators": cfg.Indicators,
			"catalog":    cfg.Catalog,
		})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
