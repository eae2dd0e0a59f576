package commands

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chainbook/api/grpcserver"
	"chainbook/config"
)

const (
	flagMarket  = "market"
	flagOwner   = "owner"
	flagTimeout = "timeout"
)

// addClientFlags registers the flags every client command needs.
func addClientFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.PersistentFlags().String("rpc.laddr", conf.RPC.ListenAddress, "gRPC address of the node")
	cmd.PersistentFlags().String(flagMarket, "", "market name (default: first configured market)")
	cmd.PersistentFlags().Duration(flagTimeout, 10*time.Second, "call timeout")
}

// withClient dials the node and calls fn with a bounded context.
func withClient(cmd *cobra.Command, conf *config.Config, fn func(context.Context, *grpcserver.Client, string) (interface{}, error)) error {
	market, _ := cmd.Flags().GetString(flagMarket)
	if market == "" && len(conf.Markets) > 0 {
		market = conf.Markets[0].Name
	}
	timeout, _ := cmd.Flags().GetDuration(flagTimeout)

	conn, err := grpcserver.Dial(conf.RPC.ListenAddress)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := fn(ctx, grpcserver.NewClient(conn), market)
	if err != nil {
		return err
	}
	if s, ok := resp.(interface{ String() string }); ok {
		_, err = cmd.OutOrStdout().Write([]byte(s.String()))
		return err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(out, '\n'))
	return err
}

func parseID(arg string) (uint64, error) {
	return strconv.ParseUint(arg, 10, 64)
}

// NewOrderCmd groups the order commands.
func NewOrderCmd(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create, cancel, claim or inspect orders",
	}
	addClientFlags(cmd, conf)
	cmd.PersistentFlags().String(flagOwner, "", "account placing or owning the order")

	create := &cobra.Command{
		Use:   "create [buy|sell] [amount] [asset] [limit]",
		Short: "Offer funds at a limit price",
		Example: "  chainbook order create sell 10 XRD 2 --owner alice\n" +
			"  chainbook order create buy 30 USD 3 --owner bob",
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString(flagOwner)
			return withClient(cmd, conf, func(ctx context.Context, c *grpcserver.Client, market string) (interface{}, error) {
				return c.CreateOrder(ctx, &grpcserver.CreateOrderRequest{
					Market: market,
					Owner:  owner,
					Side:   args[0],
					Funds:  grpcserver.Bucket{Asset: args[2], Amount: args[1]},
					Limit:  args[3],
				})
			})
		},
	}

	byID := func(use, short string, call func(*grpcserver.Client, context.Context, *grpcserver.OrderRequest) (interface{}, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [order-id]",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				owner, _ := cmd.Flags().GetString(flagOwner)
				return withClient(cmd, conf, func(ctx context.Context, c *grpcserver.Client, market string) (interface{}, error) {
					return call(c, ctx, &grpcserver.OrderRequest{Market: market, Owner: owner, OrderID: id})
				})
			},
		}
	}

	cmd.AddCommand(
		create,
		byID("cancel", "Cancel an order, returning proceeds and principal",
			func(c *grpcserver.Client, ctx context.Context, r *grpcserver.OrderRequest) (interface{}, error) {
				return c.CancelOrder(ctx, r)
			}),
		byID("claim", "Claim the proceeds of filled size",
			func(c *grpcserver.Client, ctx context.Context, r *grpcserver.OrderRequest) (interface{}, error) {
				return c.ClaimTokens(ctx, r)
			}),
		byID("get", "Show an order",
			func(c *grpcserver.Client, ctx context.Context, r *grpcserver.OrderRequest) (interface{}, error) {
				return c.GetOrder(ctx, r)
			}),
	)
	return cmd
}

// NewDepthCmd prints the aggregated book.
func NewDepthCmd(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depth",
		Short: "Show aggregated price levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			levels, _ := cmd.Flags().GetInt("levels")
			return withClient(cmd, conf, func(ctx context.Context, c *grpcserver.Client, market string) (interface{}, error) {
				return c.GetDepth(ctx, &grpcserver.GetDepthRequest{Market: market, Levels: levels})
			})
		},
	}
	addClientFlags(cmd, conf)
	cmd.Flags().Int("levels", 10, "levels per side, 0 for all")
	return cmd
}
