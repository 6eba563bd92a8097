package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dannyviti/gh-pr-analyzer/internal/domain"
)

// Client is the API client for gh-pr-analyzer
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListRepoRuns retrieves analysis runs for a repository, newest first
func (c *Client) ListRepoRuns(owner, repo string, limit int) ([]*domain.AnalysisRun, error) {
	path := fmt.Sprintf("/api/v1/repos/%s/%s/runs", owner, repo)

	var response struct {
		Data []*domain.AnalysisRun `json:"data"`
	}
	if err := c.get(path, limitParams(limit), &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListRuns retrieves analysis runs across all repositories, newest first
func (c *Client) ListRuns(limit int) ([]*domain.AnalysisRun, error) {
	var response struct {
		Data []*domain.AnalysisRun `json:"data"`
	}
	if err := c.get("/api/v1/runs", limitParams(limit), &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRun retrieves a single analysis run
func (c *Client) GetRun(id string) (*domain.AnalysisRun, error) {
	path := fmt.Sprintf("/api/v1/runs/%s", id)

	var response struct {
		Data *domain.AnalysisRun `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetRunPRs retrieves the per-PR results of an analysis run
func (c *Client) GetRunPRs(id string) ([]domain.PRDetail, error) {
	path := fmt.Sprintf("/api/v1/runs/%s/prs", id)

	var response struct {
		Data []domain.PRDetail `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func limitParams(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return params
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
