package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// AgentResponse — агент из API.
type AgentResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	WebsiteURL  string `json:"website_url"`
	Language    string `json:"language"`
	VoiceID     string `json:"voice_id,omitempty"`
	Categories  int    `json:"kb_categories"`
	PipelineID  string `json:"pipeline_id"`
	CreatedAt   string `json:"created_at"`
}

// ProvisionAcceptedResponse — принятый фоновый запуск.
type ProvisionAcceptedResponse struct {
	PipelineID string `json:"pipeline_id"`
	Status     string `json:"status"`
}

// ProvisionResultResponse — итог синхронного запуска.
type ProvisionResultResponse struct {
	PipelineID         string   `json:"pipeline_id"`
	Status             string   `json:"status"`
	AgentID            string   `json:"agent_id,omitempty"`
	ExternalID         string   `json:"external_id,omitempty"`
	PhoneNumber        string   `json:"phone_number,omitempty"`
	CompletedStages    []string `json:"completed_stages"`
	FailedStages       []string `json:"failed_stages,omitempty"`
	ResourceCount      int      `json:"resource_count"`
	RollbackAttempted  bool     `json:"rollback_attempted"`
	RollbackSuccessful bool     `json:"rollback_successful"`
	Error              string   `json:"error,omitempty"`
	ExecutionSeconds   float64  `json:"execution_seconds"`
}

// PipelineResponse — запуск пайплайна из API.
//
// Активный запуск приходит живым срезом координатора, завершённый —
// терминальной записью; поля объединяют оба представления.
type PipelineResponse struct {
	ID                 string   `json:"id,omitempty"`
	PipelineID         string   `json:"pipeline_id,omitempty"`
	TenantID           string   `json:"tenant_id,omitempty"`
	Status             string   `json:"status"`
	Progress           float64  `json:"progress_percentage,omitempty"`
	TimeRemaining      float64  `json:"time_remaining_seconds,omitempty"`
	CurrentStage       string   `json:"current_stage,omitempty"`
	AgentID            string   `json:"agent_id,omitempty"`
	WebsiteURL         string   `json:"website_url,omitempty"`
	CompletedStages    []string `json:"completed_stages,omitempty"`
	FailedStages       []string `json:"failed_stages,omitempty"`
	ResourceCount      int      `json:"resource_count,omitempty"`
	RollbackAttempted  bool     `json:"rollback_attempted,omitempty"`
	RollbackSuccessful bool     `json:"rollback_successful,omitempty"`
	Error              string   `json:"error,omitempty"`
	ExecutionSeconds   float64  `json:"execution_seconds,omitempty"`
	StartedAt          string   `json:"started_at,omitempty"`
	CompletedAt        string   `json:"completed_at,omitempty"`
}

// Key возвращает идентификатор запуска из любого представления.
func (p *PipelineResponse) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.PipelineID
}

// RollbackEntryResponse — запись истории откатов из API.
type RollbackEntryResponse struct {
	ID            string `json:"id"`
	PipelineID    string `json:"pipeline_id"`
	TenantID      string `json:"tenant_id"`
	Strategy      string `json:"strategy"`
	Status        string `json:"status"`
	ResourceCount int    `json:"resource_count"`
	RolledBack    int    `json:"rolled_back"`
	FailedCount   int    `json:"failed_count"`
	CreatedAt     string `json:"created_at"`
}

// --- Request types ---

// PhonePreferences — пожелания к телефонному номеру.
type PhonePreferences struct {
	AreaCode    string `json:"area_code,omitempty"`
	Contains    string `json:"contains,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// ProvisionAgentRequest — создание агента.
type ProvisionAgentRequest struct {
	TenantID         string           `json:"tenant_id"`
	AgentName        string           `json:"agent_name"`
	Description      string           `json:"description,omitempty"`
	WebsiteURL       string           `json:"website_url"`
	VoiceID          string           `json:"voice_id,omitempty"`
	Language         string           `json:"language,omitempty"`
	PhonePreferences PhonePreferences `json:"phone_preferences,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Voxline API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// Синхронный provision держит соединение весь бюджет
		// пайплайна, таймаут клиента должен его переживать
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Agents ---

// ProvisionAgent запускает фоновый пайплайн создания агента.
func (c *Client) ProvisionAgent(req ProvisionAgentRequest) (*ProvisionAcceptedResponse, error) {
	var accepted ProvisionAcceptedResponse
	err := c.post("/api/v1/agents", req, &accepted)
	return &accepted, err
}

// ProvisionAgentWait запускает пайплайн и дожидается терминального статуса.
func (c *Client) ProvisionAgentWait(req ProvisionAgentRequest) (*ProvisionResultResponse, error) {
	var result ProvisionResultResponse
	err := c.post("/api/v1/agents?wait=true", req, &result)
	return &result, err
}

// ListAgents возвращает агентов клиента.
func (c *Client) ListAgents(tenantID string, limit int) ([]AgentResponse, error) {
	params := url.Values{}
	params.Set("tenant_id", tenantID)
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var agents []AgentResponse
	err := c.list("/api/v1/agents", params, &agents)
	return agents, err
}

// GetAgent возвращает агента по ID.
func (c *Client) GetAgent(id string) (*AgentResponse, error) {
	var agent AgentResponse
	err := c.get("/api/v1/agents/"+id, &agent)
	return &agent, err
}

// DeleteAgent удаляет запись агента.
func (c *Client) DeleteAgent(id string) error {
	return c.delete("/api/v1/agents/" + id)
}

// --- Pipelines ---

// ListPipelines возвращает запуски клиента.
func (c *Client) ListPipelines(tenantID string, limit int) ([]PipelineResponse, error) {
	params := url.Values{}
	params.Set("tenant_id", tenantID)
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", params, &pipelines)
	return pipelines, err
}

// GetPipeline возвращает состояние запуска.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.get("/api/v1/pipelines/"+id, &p)
	return &p, err
}

// --- Rollbacks ---

// ListRollbacks возвращает историю откатов клиента.
func (c *Client) ListRollbacks(tenantID string, limit int) ([]RollbackEntryResponse, error) {
	params := url.Values{}
	params.Set("tenant_id", tenantID)
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var entries []RollbackEntryResponse
	err := c.list("/api/v1/rollbacks", params, &entries)
	return entries, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
