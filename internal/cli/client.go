package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/repository"
)

// APIClient talks to a running athena service.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *APIClient) doRequest(method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *APIClient) Analyze(req models.AnalysisRequest) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := c.doRequest(http.MethodPost, "/api/v1/analyze", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) AnalyzeCombined(req models.AnalysisRequest) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := c.doRequest(http.MethodPost, "/api/v1/analyze/combined", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) Recommendations(req models.AnalysisRequest) ([]models.Recommendation, error) {
	var resp struct {
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	if err := c.doRequest(http.MethodPost, "/api/v1/recommendations", req, &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

func (c *APIClient) Intents() (map[string][]string, error) {
	var resp struct {
		Intents map[string][]string `json:"intents"`
	}
	if err := c.doRequest(http.MethodGet, "/api/v1/intents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Intents, nil
}

func (c *APIClient) RecentAnalyses(limit int) ([]models.AnalysisResult, error) {
	var resp struct {
		Analyses []models.AnalysisResult `json:"analyses"`
	}
	path := fmt.Sprintf("/api/v1/history/recent?limit=%d", limit)
	if err := c.doRequest(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Analyses, nil
}

func (c *APIClient) RiskTrends(days int) ([]repository.TrendPoint, error) {
	var resp struct {
		Trends []repository.TrendPoint `json:"trends"`
	}
	path := fmt.Sprintf("/api/v1/history/trends?days=%d", days)
	if err := c.doRequest(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trends, nil
}

func (c *APIClient) AnalysisByID(id string) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := c.doRequest(http.MethodGet, "/api/v1/history/"+id, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
