package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAgentCmd создаёт группу команд для работы с агентами.
func NewAgentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Управление голосовыми агентами",
	}

	cmd.AddCommand(
		newAgentCreateCmd(clientFn, outputFn),
		newAgentListCmd(clientFn, outputFn),
		newAgentShowCmd(clientFn, outputFn),
		newAgentDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newAgentCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		tenantID    string
		name        string
		description string
		websiteURL  string
		voiceID     string
		language    string
		areaCode    string
		contains    string
		wait        bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Запустить пайплайн создания агента",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := ProvisionAgentRequest{
				TenantID:    tenantID,
				AgentName:   name,
				Description: description,
				WebsiteURL:  websiteURL,
				VoiceID:     voiceID,
				Language:    language,
				PhonePreferences: PhonePreferences{
					AreaCode: areaCode,
					Contains: contains,
				},
			}

			if wait {
				result, err := client.ProvisionAgentWait(req)
				if err != nil {
					return err
				}

				headers := []string{"PIPELINE", "STATUS", "AGENT", "PHONE", "STAGES", "TIME"}
				rows := [][]string{{
					result.PipelineID,
					result.Status,
					result.ExternalID,
					result.PhoneNumber,
					fmt.Sprintf("%d/%d", len(result.CompletedStages), len(result.CompletedStages)+len(result.FailedStages)),
					fmt.Sprintf("%.1fs", result.ExecutionSeconds),
				}}
				out.Print(headers, rows, result)
				if result.Error != "" {
					out.Error("pipeline finished with error: %s", result.Error)
				}
				return nil
			}

			accepted, err := client.ProvisionAgent(req)
			if err != nil {
				return err
			}

			out.Success("Pipeline %s started", accepted.PipelineID)
			out.Print(
				[]string{"PIPELINE", "STATUS"},
				[][]string{{accepted.PipelineID, accepted.Status}},
				accepted,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "ID клиента (обязательно)")
	cmd.Flags().StringVar(&name, "name", "", "Имя агента (обязательно)")
	cmd.Flags().StringVar(&description, "description", "", "Описание бизнеса")
	cmd.Flags().StringVar(&websiteURL, "website", "", "URL сайта для построения базы знаний (обязательно)")
	cmd.Flags().StringVar(&voiceID, "voice", "", "ID голоса")
	cmd.Flags().StringVar(&language, "language", "", "Язык агента (по умолчанию en)")
	cmd.Flags().StringVar(&areaCode, "area-code", "", "Предпочитаемый код зоны телефона")
	cmd.Flags().StringVar(&contains, "contains", "", "Предпочитаемые цифры в номере")
	cmd.Flags().BoolVar(&wait, "wait", false, "Дождаться завершения пайплайна")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("website")

	return cmd
}

func newAgentListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		tenantID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Список агентов клиента",
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := clientFn().ListAgents(tenantID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "PHONE", "WEBSITE", "KB", "CREATED"}
			rows := make([][]string, len(agents))
			for i, a := range agents {
				rows[i] = []string{
					a.ID,
					a.Name,
					a.PhoneNumber,
					a.WebsiteURL,
					fmt.Sprintf("%d", a.Categories),
					a.CreatedAt,
				}
			}

			outputFn().Print(headers, rows, agents)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "ID клиента (обязательно)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Максимум записей")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func newAgentShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <agent-id>",
		Short: "Показать агента",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := clientFn().GetAgent(args[0])
			if err != nil {
				return err
			}

			outputFn().Details([][2]string{
				{"ID", agent.ID},
				{"Tenant", agent.TenantID},
				{"Name", agent.Name},
				{"External ID", agent.ExternalID},
				{"Phone", agent.PhoneNumber},
				{"Website", agent.WebsiteURL},
				{"Language", agent.Language},
				{"Voice", agent.VoiceID},
				{"KB categories", fmt.Sprintf("%d", agent.Categories)},
				{"Pipeline", agent.PipelineID},
				{"Created", agent.CreatedAt},
			}, agent)
			return nil
		},
	}

	return cmd
}

func newAgentDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Удалить запись агента",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteAgent(args[0]); err != nil {
				return err
			}
			outputFn().Success("Agent %s deleted", args[0])
			return nil
		},
	}

	return cmd
}
