package main

import (
	"context"
	"os"

	"chainbook/cmd/chainbook/commands"
	"chainbook/config"
	"chainbook/infra/log"
)

func main() {
	conf := config.DefaultConfig()
	logger := log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)

	rootCmd := commands.RootCommand(conf, logger)
	rootCmd.AddCommand(
		commands.InitFilesCmd(conf, logger),
		commands.NewStartCmd(conf, logger),
		commands.NewOrderCmd(conf),
		commands.NewDepthCmd(conf),
		commands.VersionCmd,
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
