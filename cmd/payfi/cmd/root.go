package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xueqianLu/payfi/internal/config"
	"github.com/xueqianLu/payfi/internal/logger"
)

var (
	cfgFile   string
	logLevel  string
	assumeYes bool

	cfg config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "payfi",
	Short: "Drive PayFi on-chain actions from a terminal or as a service",
	Long: `payfi runs the purchase, stake, burn, swap and withdraw actions of the PayFi
backend: it asks the backend for an unsigned transaction, signs and broadcasts it,
waits for the receipt and reports the result back.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		log = logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "approve every signature without prompting")
}
