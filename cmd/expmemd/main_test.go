package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/expmem/internal/config"
	httpapi "github.com/fyrsmithlabs/expmem/internal/http"
	"github.com/fyrsmithlabs/expmem/internal/session"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "expmemd by Fyrsmith Labs")
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestHealthCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(httpapi.HealthResponse{
			Status:      "ok",
			MemoryCount: 3,
			Sentinel:    session.Report{Healthy: true},
		})
	}))
	defer ts.Close()

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), &out, ts.URL))
	assert.Contains(t, out.String(), "Status:   ok")
	assert.Contains(t, out.String(), "Memories: 3")
	assert.Contains(t, out.String(), "Healthy:  true")
}

func TestHealthCommand_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := runHealth(context.Background(), &bytes.Buffer{}, ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenMailStore(t *testing.T) {
	s, err := openMailStore(config.MailboxConfig{Provider: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryMailStore{}, s)

	s, err = openMailStore(config.MailboxConfig{Provider: "badger", Path: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &session.BadgerMailStore{}, s)
	require.NoError(t, s.Close())

	_, err = openMailStore(config.MailboxConfig{Provider: "redis"}, nil)
	assert.Error(t, err)
}
