// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - pipeline.started  — пайплайн принят и запущен
//   - pipeline.stage    — этап пайплайна завершён
//   - pipeline.finished — пайплайн завершён успешно
//   - pipeline.failed   — пайплайн завершён неуспешно
//
// Exchanges:
//   - voxline.pipelines — события пайплайнов
//   - voxline.dlq       — dead letter queue
package mq
