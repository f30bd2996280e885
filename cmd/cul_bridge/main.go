// Command cul_bridge connects a CUL radio stick to the object store and
// serves the operator API.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "cul_bridge",
	Short: "Bridge between a CUL transceiver and a device object store",
	Long: `cul_bridge reads FS20, FHT, HMS, EM and MAX! telegrams from a CUL stick
attached over serial or TCP, keeps device and state objects in a local
SQLite store and accepts commands over HTTP and MQTT.

Configuration is read from /etc/cul_bridge/cul_bridge.toml (created with
defaults if missing) and can be overridden with CUL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default /etc/cul_bridge/cul_bridge.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level == "" {
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
