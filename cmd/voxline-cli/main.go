// Voxline CLI — инструмент командной строки для запуска пайплайнов
// создания агентов и просмотра их состояния через HTTP API.
//
// Использование:
//
//	voxline [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	agent     Управление голосовыми агентами
//	pipeline  Просмотр запусков пайплайна
//	rollback  История откатов ресурсов
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/voxline/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "voxline",
		Short:         "Voxline CLI — voice agent provisioning tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewAgentCmd(clientFn, outputFn),
		cli.NewPipelineCmd(clientFn, outputFn),
		cli.NewRollbackCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
