package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	envFile string
	dbPath  string
	persist bool
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "statusdash",
		Short:         "Personal daily status dashboard: journal, sleep and tracked time",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "extra dotenv file to load")
	pf.StringVar(&flags.dbPath, "db", "", "sqlite file for the persistent cache and settings (default: none)")
	pf.BoolVar(&flags.persist, "persist", false, "use the default sqlite file under the user config dir when --db is not set")

	root.AddCommand(newExportCmd(&flags))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
