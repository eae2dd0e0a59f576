package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainbook/config"
	"chainbook/infra/log"
)

const EnvPrefix = "CHAINBOOK"

// ParseConfig reads viper into conf, sets the root directory everywhere
// and validates the result.
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point for chainbook.
func RootCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chainbook",
		Short:         "Limit order book with custody accounting",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			if err := BindFlagsLoadViper(cmd, args); err != nil {
				return err
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			return log.OverrideWithNewLogger(logger, conf.LogFormat, conf.LogLevel)
		},
	}
	cmd.PersistentFlags().String(HomeFlag, os.ExpandEnv(filepath.Join("$HOME", config.DefaultHomeDir)), "directory for config and data")
	cmd.PersistentFlags().String("log_level", conf.LogLevel, "log level (debug | info | warn | error)")
	cmd.PersistentFlags().String("log_format", conf.LogFormat, "log format (plain | json)")
	cobra.OnInitialize(func() { InitEnv(EnvPrefix) })
	return cmd
}
