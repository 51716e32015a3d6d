// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (provisioner, координатор, репозитории)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - agent_handler.go    — обработчики для /agents
//   - pipeline_handler.go — обработчики для /pipelines
//   - rollback_handler.go — обработчики для /rollbacks
//
// API предоставляет REST endpoints для создания голосовых агентов
// и наблюдения за пайплайнами и откатами.
package api
