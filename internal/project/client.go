// Package project talks to the platform control-plane API: listing and
// creating projects and fetching their connection credentials.
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

type Project struct {
	Ref       string    `json:"ref"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials is the connection material for one project. The pooler URL
// is what the sync engine should use for DDL-heavy work.
type Credentials struct {
	DatabaseURL string `json:"database_url"`
	PoolerURL   string `json:"pooler_url"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
}

type CreateRequest struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client is an authenticated control-plane API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client authenticating with a static bearer token.
func New(baseURL, token string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    oauth2.NewClient(context.Background(), src),
	}
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, http.MethodGet, "/v1/projects", nil, &out); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (c *Client) GetProject(ctx context.Context, ref string) (Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodGet, "/v1/projects/"+ref, nil, &out); err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", ref, err)
	}
	return out, nil
}

func (c *Client) CreateProject(ctx context.Context, req CreateRequest) (Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodPost, "/v1/projects", req, &out); err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return out, nil
}

func (c *Client) GetCredentials(ctx context.Context, ref string) (Credentials, error) {
	var out Credentials
	if err := c.do(ctx, http.MethodGet, "/v1/projects/"+ref+"/credentials", nil, &out); err != nil {
		return Credentials{}, fmt.Errorf("get credentials for %s: %w", ref, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("api responded %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("api responded %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
