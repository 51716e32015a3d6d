package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/voxline/internal/domain"
)

// AgentRepo — репозиторий агентов.
type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo создаёт AgentRepo.
func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Create создаёт запись агента.
func (r *AgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	kbJSON, err := json.Marshal(agent.KnowledgeBase)
	if err != nil {
		return fmt.Errorf("marshal knowledge base: %w", err)
	}

	query := `
		INSERT INTO agents (id, tenant_id, name, description, external_id, phone_number,
		                    website_url, language, voice_id, knowledge_base, pipeline_id,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		agent.ID,
		agent.TenantID,
		agent.Name,
		nullString(agent.Description),
		nullString(agent.ExternalID),
		nullString(agent.PhoneNumber),
		agent.WebsiteURL,
		agent.Language,
		nullString(agent.VoiceID),
		kbJSON,
		agent.PipelineID,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetByID возвращает агента по ID.
func (r *AgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	query := `
		SELECT id, tenant_id, name, description, external_id, phone_number,
		       website_url, language, voice_id, knowledge_base, pipeline_id,
		       created_at, updated_at
		FROM agents
		WHERE id = $1
	`
	return scanAgent(r.pool.QueryRow(ctx, query, id))
}

// ListByTenant возвращает агентов клиента, новые первыми.
func (r *AgentRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, name, description, external_id, phone_number,
		       website_url, language, voice_id, knowledge_base, pipeline_id,
		       created_at, updated_at
		FROM agents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// Update обновляет изменяемые поля агента.
func (r *AgentRepo) Update(ctx context.Context, agent *domain.Agent) error {
	kbJSON, err := json.Marshal(agent.KnowledgeBase)
	if err != nil {
		return fmt.Errorf("marshal knowledge base: %w", err)
	}

	query := `
		UPDATE agents
		SET description = $2, external_id = $3, phone_number = $4,
		    knowledge_base = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		agent.ID,
		nullString(agent.Description),
		nullString(agent.ExternalID),
		nullString(agent.PhoneNumber),
		kbJSON,
		agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет запись агента. Используется компенсатором agent_record.
func (r *AgentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAgent сканирует одну строку в Agent.
func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var agent domain.Agent
	var kbJSON []byte
	var description, externalID, phoneNumber, voiceID *string

	err := row.Scan(
		&agent.ID,
		&agent.TenantID,
		&agent.Name,
		&description,
		&externalID,
		&phoneNumber,
		&agent.WebsiteURL,
		&agent.Language,
		&voiceID,
		&kbJSON,
		&agent.PipelineID,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}

	if kbJSON != nil {
		if err := json.Unmarshal(kbJSON, &agent.KnowledgeBase); err != nil {
			return nil, fmt.Errorf("unmarshal knowledge base: %w", err)
		}
	}
	if description != nil {
		agent.Description = *description
	}
	if externalID != nil {
		agent.ExternalID = *externalID
	}
	if phoneNumber != nil {
		agent.PhoneNumber = *phoneNumber
	}
	if voiceID != nil {
		agent.VoiceID = *voiceID
	}

	return &agent, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
