package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/provision"
	"github.com/shaiso/voxline/internal/rollback"
)

// Agent DTOs

// ProvisionAgentRequest — запрос на создание голосового агента.
type ProvisionAgentRequest struct {
	TenantID         string                  `json:"tenant_id"`
	AgentName        string                  `json:"agent_name"`
	Description      string                  `json:"description,omitempty"`
	WebsiteURL       string                  `json:"website_url"`
	VoiceID          string                  `json:"voice_id,omitempty"`
	Language         string                  `json:"language,omitempty"`
	PhonePreferences domain.PhonePreferences `json:"phone_preferences,omitempty"`
}

// ToDomain конвертирует запрос в domain.ProvisionRequest.
func (r ProvisionAgentRequest) ToDomain() domain.ProvisionRequest {
	return domain.ProvisionRequest{
		TenantID:         r.TenantID,
		AgentName:        r.AgentName,
		Description:      r.Description,
		WebsiteURL:       r.WebsiteURL,
		VoiceID:          r.VoiceID,
		Language:         r.Language,
		PhonePreferences: r.PhonePreferences,
	}
}

// ProvisionAcceptedResponse — ответ на принятый фоновый запуск.
type ProvisionAcceptedResponse struct {
	PipelineID uuid.UUID `json:"pipeline_id"`
	Status     string    `json:"status"`
}

// ProvisionResultResponse — ответ на синхронный запуск.
type ProvisionResultResponse struct {
	PipelineID         uuid.UUID  `json:"pipeline_id"`
	Status             string     `json:"status"`
	AgentID            *uuid.UUID `json:"agent_id,omitempty"`
	ExternalID         string     `json:"external_id,omitempty"`
	PhoneNumber        string     `json:"phone_number,omitempty"`
	CompletedStages    []string   `json:"completed_stages"`
	FailedStages       []string   `json:"failed_stages,omitempty"`
	ResourceCount      int        `json:"resource_count"`
	RollbackAttempted  bool       `json:"rollback_attempted"`
	RollbackSuccessful bool       `json:"rollback_successful"`
	Error              string     `json:"error,omitempty"`
	ExecutionSeconds   float64    `json:"execution_seconds"`
}

// ResultFromProvision конвертирует provision.Result в ответ API.
func ResultFromProvision(res *provision.Result) ProvisionResultResponse {
	return ProvisionResultResponse{
		PipelineID:         res.PipelineID,
		Status:             string(res.Status),
		AgentID:            res.AgentID,
		ExternalID:         res.ExternalID,
		PhoneNumber:        res.PhoneNumber,
		CompletedStages:    res.CompletedStages,
		FailedStages:       res.FailedStages,
		ResourceCount:      res.ResourceCount,
		RollbackAttempted:  res.RollbackAttempted,
		RollbackSuccessful: res.RollbackSuccessful,
		Error:              res.Error,
		ExecutionSeconds:   res.ExecutionTime.Seconds(),
	}
}

// AgentResponse — ответ с агентом.
type AgentResponse struct {
	ID          uuid.UUID            `json:"id"`
	TenantID    string               `json:"tenant_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	ExternalID  string               `json:"external_id,omitempty"`
	PhoneNumber string               `json:"phone_number,omitempty"`
	WebsiteURL  string               `json:"website_url"`
	Language    string               `json:"language"`
	VoiceID     string               `json:"voice_id,omitempty"`
	Categories  int                  `json:"kb_categories"`
	PipelineID  uuid.UUID            `json:"pipeline_id"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AgentFromDomain конвертирует domain.Agent в AgentResponse.
func AgentFromDomain(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:          a.ID,
		TenantID:    a.TenantID,
		Name:        a.Name,
		Description: a.Description,
		ExternalID:  a.ExternalID,
		PhoneNumber: a.PhoneNumber,
		WebsiteURL:  a.WebsiteURL,
		Language:    a.Language,
		VoiceID:     a.VoiceID,
		Categories:  a.KnowledgeBase.PopulatedCategories(),
		PipelineID:  a.PipelineID,
		CreatedAt:   a.CreatedAt,
	}
}

// Pipeline DTOs

// PipelineRunResponse — ответ с записью запуска.
type PipelineRunResponse struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           string     `json:"tenant_id"`
	Status             string     `json:"status"`
	AgentID            *uuid.UUID `json:"agent_id,omitempty"`
	WebsiteURL         string     `json:"website_url"`
	CompletedStages    []string   `json:"completed_stages,omitempty"`
	FailedStages       []string   `json:"failed_stages,omitempty"`
	ResourceCount      int        `json:"resource_count"`
	RollbackAttempted  bool       `json:"rollback_attempted"`
	RollbackSuccessful bool       `json:"rollback_successful"`
	Error              string     `json:"error,omitempty"`
	ExecutionSeconds   float64    `json:"execution_seconds"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// PipelineRunFromDomain конвертирует domain.PipelineRun в ответ API.
func PipelineRunFromDomain(run domain.PipelineRun) PipelineRunResponse {
	return PipelineRunResponse{
		ID:                 run.ID,
		TenantID:           run.TenantID,
		Status:             string(run.Status),
		AgentID:            run.AgentID,
		WebsiteURL:         run.WebsiteURL,
		CompletedStages:    run.CompletedStages,
		FailedStages:       run.FailedStages,
		ResourceCount:      run.ResourceCount,
		RollbackAttempted:  run.RollbackAttempted,
		RollbackSuccessful: run.RollbackSuccessful,
		Error:              run.Error,
		ExecutionSeconds:   run.ExecutionTime.Seconds(),
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
	}
}

// Rollback DTOs

// RollbackEntryResponse — ответ с записью истории откатов.
type RollbackEntryResponse struct {
	ID            uuid.UUID          `json:"id"`
	PipelineID    uuid.UUID          `json:"pipeline_id"`
	TenantID      string             `json:"tenant_id"`
	Strategy      string             `json:"strategy"`
	Status        string             `json:"status"`
	ResourceCount int                `json:"resource_count"`
	RolledBack    int                `json:"rolled_back"`
	FailedCount   int                `json:"failed_count"`
	Failures      []rollback.Failure `json:"failures,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// RollbackEntryFromDomain конвертирует rollback.HistoryEntry в ответ API.
func RollbackEntryFromDomain(entry rollback.HistoryEntry) RollbackEntryResponse {
	return RollbackEntryResponse{
		ID:            entry.ID,
		PipelineID:    entry.PipelineID,
		TenantID:      entry.TenantID,
		Strategy:      string(entry.Strategy),
		Status:        string(entry.Status),
		ResourceCount: entry.ResourceCount,
		RolledBack:    entry.RolledBack,
		FailedCount:   entry.FailedCount,
		Failures:      entry.Failures,
		CreatedAt:     entry.CreatedAt,
	}
}
