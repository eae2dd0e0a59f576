package commands

import (
	"github.com/spf13/cobra"

	"chainbook/config"
	"chainbook/infra/log"
)

// InitFilesCmd writes the default config file under the home directory.
func InitFilesCmd(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the chainbook home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}
			written, err := config.WriteDefaultConfigFileIfNone(conf.RootDir)
			if err != nil {
				return err
			}
			if written {
				logger.Info("Generated config", "path", config.ConfigFile(conf.RootDir))
			} else {
				logger.Info("Found config", "path", config.ConfigFile(conf.RootDir))
			}
			return nil
		},
	}
}
