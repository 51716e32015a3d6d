package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для работы с запусками пайплайна.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Просмотр запусков пайплайна",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		tenantID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список запусков клиента",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelines, err := clientFn().ListPipelines(tenantID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "STAGES", "FAILED", "TIME", "STARTED"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = []string{
					p.Key(),
					p.Status,
					fmt.Sprintf("%d", len(p.CompletedStages)),
					fmt.Sprintf("%d", len(p.FailedStages)),
					fmt.Sprintf("%.1fs", p.ExecutionSeconds),
					p.StartedAt,
				}
			}

			outputFn().Print(headers, rows, pipelines)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "ID клиента (обязательно)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Максимум записей")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <pipeline-id>",
		Short: "Показать состояние запуска",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := clientFn().GetPipeline(args[0])
			if err != nil {
				return err
			}

			fields := [][2]string{
				{"ID", p.Key()},
				{"Status", p.Status},
				{"Completed", strings.Join(p.CompletedStages, ", ")},
				{"Failed", strings.Join(p.FailedStages, ", ")},
			}

			// Активный запуск отдаёт прогресс, завершённый — итоги
			if p.CurrentStage != "" {
				fields = append(fields,
					[2]string{"Current stage", p.CurrentStage},
					[2]string{"Progress", fmt.Sprintf("%.0f%%", p.Progress)},
					[2]string{"Time remaining", fmt.Sprintf("%.1fs", p.TimeRemaining)},
				)
			} else {
				fields = append(fields,
					[2]string{"Resources", fmt.Sprintf("%d", p.ResourceCount)},
					[2]string{"Rollback", fmt.Sprintf("attempted=%v successful=%v", p.RollbackAttempted, p.RollbackSuccessful)},
					[2]string{"Execution", fmt.Sprintf("%.1fs", p.ExecutionSeconds)},
				)
			}
			if p.Error != "" {
				fields = append(fields, [2]string{"Error", p.Error})
			}

			outputFn().Details(fields, p)
			return nil
		},
	}

	return cmd
}
