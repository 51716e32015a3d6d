package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypePipelineStarted  MessageType = "pipeline.started"
	MessageTypeStageCompleted   MessageType = "pipeline.stage"
	MessageTypePipelineFinished MessageType = "pipeline.finished"
	MessageTypePipelineFailed   MessageType = "pipeline.failed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// PipelineStartedPayload — payload события о старте пайплайна.
type PipelineStartedPayload struct {
	PipelineID uuid.UUID `json:"pipeline_id"`
	TenantID   string    `json:"tenant_id"`
	WebsiteURL string    `json:"website_url"`
}

// StageCompletedPayload — payload события о завершении этапа.
type StageCompletedPayload struct {
	PipelineID  uuid.UUID `json:"pipeline_id"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"` // completed или failed
	Error       string    `json:"error,omitempty"`
	ExecutionMs int64     `json:"execution_ms"`
}

// PipelineFinishedPayload — payload события об успешном итоге пайплайна.
type PipelineFinishedPayload struct {
	PipelineID      uuid.UUID  `json:"pipeline_id"`
	TenantID        string     `json:"tenant_id"`
	Status          string     `json:"status"`
	AgentID         *uuid.UUID `json:"agent_id,omitempty"`
	CompletedStages []string   `json:"completed_stages,omitempty"`
	ExecutionMs     int64      `json:"execution_ms"`
}

// PipelineFailedPayload — payload события о провале пайплайна.
// Потребляется reaper'ом для дочистки осиротевших ресурсов.
type PipelineFailedPayload struct {
	PipelineID         uuid.UUID `json:"pipeline_id"`
	TenantID           string    `json:"tenant_id"`
	Error              string    `json:"error,omitempty"`
	FailedStages       []string  `json:"failed_stages,omitempty"`
	ResourceCount      int       `json:"resource_count"`
	RollbackAttempted  bool      `json:"rollback_attempted"`
	RollbackSuccessful bool      `json:"rollback_successful"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishPipelineStarted публикует событие о старте пайплайна.
func (p *Publisher) PublishPipelineStarted(ctx context.Context, payload PipelineStartedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypePipelineStarted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangePipelines, RoutingKeyStarted, msg)
}

// PublishStageCompleted публикует событие о завершении этапа.
func (p *Publisher) PublishStageCompleted(ctx context.Context, payload StageCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeStageCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangePipelines, RoutingKeyStage, msg)
}

// PublishPipelineFinished публикует событие о терминальном итоге пайплайна.
func (p *Publisher) PublishPipelineFinished(ctx context.Context, payload PipelineFinishedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypePipelineFinished,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangePipelines, RoutingKeyFinished, msg)
}

// PublishPipelineFailed публикует событие о провале пайплайна.
// Потребитель: Reaper.
func (p *Publisher) PublishPipelineFailed(ctx context.Context, payload PipelineFailedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypePipelineFailed,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangePipelines, RoutingKeyFailed, msg)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}
