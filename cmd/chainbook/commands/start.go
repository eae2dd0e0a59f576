package commands

import (
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chainbook/config"
	"chainbook/infra/log"
	"chainbook/node"
)

// AddNodeFlags exposes the most used config values as flags.
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("rpc.laddr", conf.RPC.ListenAddress, "gRPC listen address")
	cmd.Flags().String("storage.ledger", conf.Storage.Ledger, "settlement ledger: memory | pebble")
	cmd.Flags().Bool("storage.sync_writes", conf.Storage.SyncWrites, "fsync every journal append")
	cmd.Flags().String("events.driver", conf.Events.Driver, "event sink: none | kafka-go | sarama")
	cmd.Flags().StringSlice("events.brokers", conf.Events.Brokers, "kafka brokers")
	cmd.Flags().String("events.topic", conf.Events.Topic, "kafka topic")
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve prometheus metrics")
}

// NewStartCmd runs the node until interrupted.
func NewStartCmd(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the order book node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}

			n, err := node.New(conf, logger,
				node.DefaultMetricsProvider(conf.Instrumentation), node.DefaultSinkProvider)
			if err != nil {
				return err
			}
			defer func() {
				if err := n.Close(); err != nil {
					logger.Error("close node", "err", err)
				}
			}()

			ln, err := net.Listen("tcp", conf.RPC.ListenAddress)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = n.Run(ctx, ln)
			logger.Info("Stopped node")
			return err
		},
	}
	AddNodeFlags(cmd, conf)
	return cmd
}
