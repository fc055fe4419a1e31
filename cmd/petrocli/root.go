// Command petrocli wires config, logger, Buffer Pool Manager and B+Tree
// together to seed and inspect an index file — the same role DaemonDB's
// cmd/seed and cmd/inspect_idx play for that engine, just against this
// module's own storage core.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jclennon97/bustub-jc/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "petrocli",
	Short: "inspect and seed a petro B+Tree index file",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (defaults built in if omitted)")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(inspectCmd)
}

func loadConfig() config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
