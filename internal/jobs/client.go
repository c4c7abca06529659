// Package jobs is the client for the hiring platform's REST API. The
// session controller fetches the job posting and candidate resume to build
// interviewer instructions, and submits the generated report when an
// interview finalizes.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxhire/voxhire/internal/observe"
	"github.com/voxhire/voxhire/internal/report"
	"github.com/voxhire/voxhire/pkg/interview"
)

// Job is a job posting the interview is conducted for.
type Job struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Seniority    string   `json:"seniority"`
	Competencies []string `json:"competencies"`
}

// Resume is the candidate material attached to an interview.
type Resume struct {
	CandidateName string `json:"candidate_name"`
	Summary       string `json:"summary"`
	Text          string `json:"text"`
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient overrides the HTTP client, for tests or custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Client talks to the hiring platform. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the platform API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("jobs: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("jobs: parse baseURL: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// GetJob fetches one job posting.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	ctx, span := observe.StartSpan(ctx, "platform.get_job")
	defer span.End()

	var job Job
	if err := c.get(ctx, "/v1/jobs/"+url.PathEscape(jobID), &job); err != nil {
		return nil, fmt.Errorf("jobs: get job %s: %w", jobID, err)
	}
	return &job, nil
}

// GetResume fetches the resume for one candidate.
func (c *Client) GetResume(ctx context.Context, candidateID string) (*Resume, error) {
	ctx, span := observe.StartSpan(ctx, "platform.get_resume")
	defer span.End()

	var resume Resume
	path := "/v1/candidates/" + url.PathEscape(candidateID) + "/resume"
	if err := c.get(ctx, path, &resume); err != nil {
		return nil, fmt.Errorf("jobs: get resume %s: %w", candidateID, err)
	}
	return &resume, nil
}

// SubmitReport uploads the generated hiring report for an interview.
func (c *Client) SubmitReport(ctx context.Context, id interview.ID, rep *report.Report) error {
	ctx, span := observe.StartSpan(ctx, "platform.submit_report")
	defer span.End()

	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("jobs: marshal report: %w", err)
	}

	path := "/v1/interviews/" + url.PathEscape(string(id)) + "/report"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("jobs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jobs: submit report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("jobs: submit report: %s", responseError(resp))
	}
	return nil
}

// get issues an authorized GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", responseError(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// responseError summarizes a non-2xx response, including a truncated body
// when the platform sent one.
func responseError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, msg)
}
