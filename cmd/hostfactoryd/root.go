package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/config"
)

const (
	OutputJSON       = "json"
	OutputYAML       = "yaml"
	OutputTableShort = "short"
	OutputTableWide  = "wide"
)

var version = ""

// GlobalOptions are the persistent flags every subcommand reads:
// where the daemon's config file lives and how results print.
type GlobalOptions struct {
	ConfigFile string
	Verbose    bool
	Output     string
}

var (
	globalOpts = GlobalOptions{}
	rootCmd    = &cobra.Command{
		Use:     "hostfactoryd",
		Short:   "Host Factory AWS provisioning plugin",
		Version: version,
	}
)

func main() {
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Verbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.Output, "output", "o", OutputTableShort,
		fmt.Sprintf("output mode: %v", []string{OutputTableShort, OutputTableWide, OutputYAML, OutputJSON}))
	rootCmd.PersistentFlags().StringVarP(&globalOpts.ConfigFile, "file", "f", "/etc/hostfactoryd/config.yaml", "daemon YAML config file")

	cobra.EnableCommandSorting = false
	lo.Must0(rootCmd.Execute())
}

// loadConfig reads globalOpts.ConfigFile over the package defaults;
// an empty path yields the defaults, while a missing or unreadable file
// is returned as an error.
func loadConfig(globalOpts GlobalOptions) (config.Config, error) {
	return config.Load(globalOpts.ConfigFile, config.Default())
}
