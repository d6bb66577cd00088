package cli

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/spf13/cobra"
)

type TablesCmd struct{}

func NewTablesCmd() *TablesCmd {
	return &TablesCmd{}
}

func (c *TablesCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables published in the public dataset index",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, err := cmd.Root().PersistentFlags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}
			url, err := cmd.Flags().GetString("url")
			if err != nil {
				return fmt.Errorf("failed to get url flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			tables, err := partition.ListTables(ctx, &http.Client{Timeout: 30 * time.Second}, url)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), tables)
			}

			table := newTable(cmd.OutOrStdout(), "Table", "URL")
			for _, t := range tables {
				table.Append([]string{t.Name, t.URL})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("url", config.XatuTablesURL, "table index URL")

	return cmd
}
