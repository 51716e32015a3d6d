package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRollbackCmd создаёт группу команд для истории откатов.
func NewRollbackCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "История откатов ресурсов",
	}

	cmd.AddCommand(newRollbackListCmd(clientFn, outputFn))

	return cmd
}

func newRollbackListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		tenantID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список откатов клиента",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := clientFn().ListRollbacks(tenantID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE", "STRATEGY", "STATUS", "ROLLED BACK", "CREATED"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					e.ID,
					e.PipelineID,
					e.Strategy,
					e.Status,
					fmt.Sprintf("%d/%d", e.RolledBack, e.ResourceCount),
					e.CreatedAt,
				}
			}

			outputFn().Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "ID клиента (обязательно)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Максимум записей")
	cmd.MarkFlagRequired("tenant")

	return cmd
}
