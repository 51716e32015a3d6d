package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/voxline/internal/domain"
)

// HTTPAgentDirectory — REST-клиент голосового провайдера.
type HTTPAgentDirectory struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPAgentDirectory создаёт клиент провайдера.
func NewHTTPAgentDirectory(baseURL, apiKey string) *HTTPAgentDirectory {
	return &HTTPAgentDirectory{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// CreateAgent создаёт агента у провайдера и возвращает его внешний ID.
func (d *HTTPAgentDirectory) CreateAgent(ctx context.Context, params AgentParams) (string, error) {
	body := map[string]any{
		"name":        params.Name,
		"description": params.Description,
		"language":    params.Language,
		"voice_id":    params.VoiceID,
		"knowledge":   params.KnowledgeBase,
	}

	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := d.doJSON(ctx, http.MethodPost, "/v1/agents", body, &out); err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	if out.AgentID == "" {
		return "", fmt.Errorf("create agent: provider returned empty agent_id")
	}
	return out.AgentID, nil
}

// DeleteAgent удаляет агента у провайдера.
func (d *HTTPAgentDirectory) DeleteAgent(ctx context.Context, externalID string) error {
	if err := d.doJSON(ctx, http.MethodDelete, "/v1/agents/"+externalID, nil, nil); err != nil {
		return fmt.Errorf("delete agent %s: %w", externalID, err)
	}
	return nil
}

// AttachPhoneNumber привязывает номер к агенту.
func (d *HTTPAgentDirectory) AttachPhoneNumber(ctx context.Context, externalID, number string) error {
	body := map[string]string{"phone_number": number}
	if err := d.doJSON(ctx, http.MethodPost, "/v1/agents/"+externalID+"/phone", body, nil); err != nil {
		return fmt.Errorf("attach phone to %s: %w", externalID, err)
	}
	return nil
}

// RegisterWebhook подписывает webhook на события агента.
func (d *HTTPAgentDirectory) RegisterWebhook(ctx context.Context, externalID, url string) (string, error) {
	body := map[string]string{"url": url}

	var out struct {
		WebhookID string `json:"webhook_id"`
	}
	if err := d.doJSON(ctx, http.MethodPost, "/v1/agents/"+externalID+"/webhooks", body, &out); err != nil {
		return "", fmt.Errorf("register webhook for %s: %w", externalID, err)
	}
	return out.WebhookID, nil
}

// DeleteWebhook удаляет webhook-подписку.
func (d *HTTPAgentDirectory) DeleteWebhook(ctx context.Context, webhookID string) error {
	if err := d.doJSON(ctx, http.MethodDelete, "/v1/webhooks/"+webhookID, nil, nil); err != nil {
		return fmt.Errorf("delete webhook %s: %w", webhookID, err)
	}
	return nil
}

func (d *HTTPAgentDirectory) doJSON(ctx context.Context, method, path string, body, result any) error {
	return doProviderJSON(ctx, d.httpClient, method, d.baseURL+path, d.apiKey, body, result)
}

// HTTPPhoneProvider — REST-клиент телефонного провайдера.
type HTTPPhoneProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPhoneProvider создаёт клиент телефонного провайдера.
func NewHTTPPhoneProvider(baseURL, apiKey string) *HTTPPhoneProvider {
	return &HTTPPhoneProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// SearchNumbers возвращает доступные номера под пожелания клиента.
func (p *HTTPPhoneProvider) SearchNumbers(ctx context.Context, prefs domain.PhonePreferences, limit int) ([]PhoneCandidate, error) {
	if limit <= 0 {
		limit = 10
	}
	path := fmt.Sprintf("/v1/available-numbers?country=%s&area_code=%s&contains=%s&limit=%d",
		prefs.CountryCode, prefs.AreaCode, prefs.Contains, limit)

	var out struct {
		Numbers []PhoneCandidate `json:"numbers"`
	}
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("search numbers: %w", err)
	}
	return out.Numbers, nil
}

// Provision арендует номер и возвращает ID ресурса у провайдера.
func (p *HTTPPhoneProvider) Provision(ctx context.Context, number string) (string, error) {
	body := map[string]string{"number": number}

	var out struct {
		ResourceID string `json:"resource_id"`
	}
	if err := p.doJSON(ctx, http.MethodPost, "/v1/numbers", body, &out); err != nil {
		return "", fmt.Errorf("provision number %s: %w", number, err)
	}
	if out.ResourceID == "" {
		return "", fmt.Errorf("provision number %s: provider returned empty resource_id", number)
	}
	return out.ResourceID, nil
}

// Release освобождает арендованный номер.
func (p *HTTPPhoneProvider) Release(ctx context.Context, resourceID string) error {
	if err := p.doJSON(ctx, http.MethodDelete, "/v1/numbers/"+resourceID, nil, nil); err != nil {
		return fmt.Errorf("release number %s: %w", resourceID, err)
	}
	return nil
}

func (p *HTTPPhoneProvider) doJSON(ctx context.Context, method, path string, body, result any) error {
	return doProviderJSON(ctx, p.httpClient, method, p.baseURL+path, p.apiKey, body, result)
}

// doProviderJSON — общий JSON-запрос к провайдеру с Bearer-авторизацией.
func doProviderJSON(ctx context.Context, client *http.Client, method, url, apiKey string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
