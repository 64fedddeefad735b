package project

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjectsSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/projects", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]Project{
			{Ref: "abc", Name: "orders-svc", Region: "eu-west-1", Status: "active"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123")
	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "abc", projects[0].Ref)
	assert.Equal(t, "orders-svc", projects[0].Name)
}

func TestCreateProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/projects", r.URL.Path)

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "new-app", req.Name)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Project{Ref: "xyz", Name: req.Name, Region: req.Region, Status: "provisioning"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	p, err := c.CreateProject(context.Background(), CreateRequest{Name: "new-app", Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "xyz", p.Ref)
	assert.Equal(t, "provisioning", p.Status)
}

func TestGetCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/abc/credentials", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Credentials{
			DatabaseURL: "postgres://app:pw@db.abc.example.com:5432/postgres",
			PoolerURL:   "postgres://app:pw@pool.abc.example.com:6543/postgres",
			Host:        "db.abc.example.com",
			Port:        5432,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	creds, err := c.GetCredentials(context.Background(), "abc")
	require.NoError(t, err)
	assert.Contains(t, creds.PoolerURL, "pool.abc.example.com")
}

func TestAPIErrorMessageSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(apiError{Message: "token lacks projects:read"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.ListProjects(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "token lacks projects:read")
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.GetProject(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
