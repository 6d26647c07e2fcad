package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Release types matching API responses

type Release struct {
	ID              string   `json:"id"`
	Tenant          string   `json:"tenant"`
	App             string   `json:"app"`
	Version         string   `json:"version"`
	Platforms       []string `json:"platforms"`
	Phase           string   `json:"phase"`
	Branch          string   `json:"branch,omitempty"`
	KickoffAt       string   `json:"kickoffAt"`
	TargetAt        string   `json:"targetAt"`
	RegressionSlots []string `json:"regressionSlots"`
	CreatedAt       string   `json:"createdAt"`
}

type StageStatus struct {
	Stage       string `json:"stage"`
	State       string `json:"state"`
	AutoAdvance bool   `json:"autoAdvance"`
	Evaluating  bool   `json:"evaluating"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type Task struct {
	ID        string            `json:"id"`
	ReleaseID string            `json:"releaseId"`
	Stage     string            `json:"stage"`
	CycleID   string            `json:"cycleId,omitempty"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Platforms []string          `json:"platforms,omitempty"`
	Outcomes  map[string]string `json:"outcomes,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	UpdatedAt string            `json:"updatedAt"`
}

type Cycle struct {
	ID          string `json:"id"`
	ReleaseID   string `json:"releaseId"`
	Slot        int    `json:"slot"`
	SlotAt      string `json:"slotAt"`
	Status      string `json:"status"`
	Tag         string `json:"tag,omitempty"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type Build struct {
	ID          string `json:"id"`
	ReleaseID   string `json:"releaseId"`
	Platform    string `json:"platform"`
	Stage       string `json:"stage"`
	Locator     string `json:"locator,omitempty"`
	Source      string `json:"source"`
	Consumed    bool   `json:"consumed"`
	CycleID     string `json:"cycleId,omitempty"`
	StagedAt    string `json:"stagedAt"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type ReleaseSnapshot struct {
	Release *Release      `json:"release"`
	Stages  []StageStatus `json:"stages"`
	Tasks   []Task        `json:"tasks"`
	Cycles  []Cycle       `json:"cycles"`
	Builds  []Build       `json:"builds"`
}

type JournalEvent struct {
	ID        string            `json:"id"`
	ReleaseID string            `json:"releaseId"`
	Timestamp string            `json:"timestamp"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// API methods

// Health returns the flat status map the API serves: "status" plus one
// entry per backing service.
func (c *Client) Health() (map[string]string, error) {
	var h map[string]string
	if err := c.get("/api/health", &h); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *Client) Version() (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.get("/api/version", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

func (c *Client) ListReleases() ([]Release, error) {
	var releases []Release
	if err := c.get("/api/releases", &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

func (c *Client) GetRelease(id string) (*ReleaseSnapshot, error) {
	var snap ReleaseSnapshot
	if err := c.get("/api/releases/"+id, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Advance(releaseID string) error {
	return c.post("/api/releases/"+releaseID+"/advance", "{}")
}

func (c *Client) RetryTask(taskID string) error {
	return c.post("/api/tasks/"+taskID+"/retry", "{}")
}

func (c *Client) AbandonCycle(cycleID string) error {
	return c.post("/api/cycles/"+cycleID+"/abandon", "{}")
}

func (c *Client) ListBuilds(releaseID string) ([]Build, error) {
	var builds []Build
	if err := c.get("/api/releases/"+releaseID+"/builds", &builds); err != nil {
		return nil, err
	}
	return builds, nil
}

func (c *Client) Journal(releaseID string) ([]JournalEvent, error) {
	var events []JournalEvent
	if err := c.get("/api/releases/"+releaseID+"/journal", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// RecentJournal fetches the newest events across every release.
func (c *Client) RecentJournal() ([]JournalEvent, error) {
	var events []JournalEvent
	if err := c.get("/api/journal", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// HTTP helpers

func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) post(path, body string) error {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
