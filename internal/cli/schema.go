package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/pathsql/pkg/clickhouse"
	"github.com/malbeclabs/pathsql/pkg/config"
)

type SchemaCmd struct {
	cfg *config.Config
}

func NewSchemaCmd(cfg *config.Config) *SchemaCmd {
	return &SchemaCmd{cfg: cfg}
}

func (c *SchemaCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the traces table schema as the model sees it",
		RunE: func(cmd *cobra.Command, args []string) error {
			create, err := cmd.Flags().GetBool("create")
			if err != nil {
				return fmt.Errorf("failed to get create flag: %w", err)
			}
			if err := c.cfg.RequireClickHouse(); err != nil {
				return err
			}

			ctx := cmd.Context()
			log := newLogger(c.cfg)
			client, err := clickhouse.Open(ctx, c.cfg.ClickHouseOptions(log)...)
			if err != nil {
				return err
			}
			defer client.Close()

			if create {
				if err := clickhouse.CreateTracesTable(ctx, client.Conn(), client.Database()); err != nil {
					return err
				}
				log.Info("traces table ready", "database", client.Database(), "table", clickhouse.TracesTable)
			}

			schema, err := clickhouse.NewSchemaFetcher(client.Conn(), client.Database(), clickhouse.TracesTable).FetchSchema(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), schema)
			return nil
		},
	}
	cmd.Flags().Bool("create", false, "create the traces table first if it does not exist")
	return cmd
}
