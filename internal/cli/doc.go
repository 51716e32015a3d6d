// Package cli реализует инструмент командной строки Voxline.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Voxline API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для запуска пайплайнов создания агентов и
// просмотра их состояния.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Voxline API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	agents, err := client.ListAgents("tenant-1", 50)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: voxline agent list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - agent: create, list, show, delete
//   - pipeline: list, show
//   - rollback: list
//
// Каждая группа создаётся через фабричную функцию (NewAgentCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
