package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"online","plugin":"UserInfoAPI","version":"1.0.0"}`))
	})
	mux.HandleFunc("/api/online-players", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":1,"players":[{"username":"Steve","onlineTime":60}]}`))
	})
	mux.HandleFunc("/api/export", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("username\nSteve\n"))
	})
	mux.HandleFunc("/api/user/batch", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unexpected"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	t.Setenv("USERINFO_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	a := &app{}
	t.Cleanup(a.close)

	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", srv.URL + "/api", "--api-key", "k", "--no-cache"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	srv := newAPIServer(t)

	out, err := execute(t, srv, "status")
	require.NoError(t, err)

	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "online", status["status"])
}

func TestOnlineCommand_Statuses(t *testing.T) {
	srv := newAPIServer(t)

	out, err := execute(t, srv, "online", "Steve", "Alex")
	require.NoError(t, err)

	var statuses map[string]bool
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	assert.Equal(t, map[string]bool{"Steve": true, "Alex": false}, statuses)
}

func TestExportCommand_PrintsRaw(t *testing.T) {
	srv := newAPIServer(t)

	out, err := execute(t, srv, "export", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, "username\nSteve\n", out)
}

func TestBatchCommand_TooMany(t *testing.T) {
	srv := newAPIServer(t)

	args := []string{"batch"}
	for i := 0; i < 51; i++ {
		args = append(args, "player")
	}
	_, err := execute(t, srv, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "51")
}

func TestChatCommand_RequiresTarget(t *testing.T) {
	srv := newAPIServer(t)

	_, err := execute(t, srv, "chat")
	assert.Error(t, err)
}

func TestCachePruneCommand_CacheDisabled(t *testing.T) {
	srv := newAPIServer(t)

	out, err := execute(t, srv, "cache", "prune")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 stale entries\n", out)
}

func TestExportCommand_ArchiveRequiresBucket(t *testing.T) {
	srv := newAPIServer(t)

	_, err := execute(t, srv, "export", "--format", "csv", "--archive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.bucket")
}

func TestExportCommand_Archive(t *testing.T) {
	srv := newAPIServer(t)

	var (
		mu      sync.Mutex
		uploads = map[string]string{}
	)
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploads[r.Method+" "+r.URL.Path] = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(bucket.Close)

	t.Setenv("USERINFO_ARCHIVE_ENDPOINT", bucket.URL)
	t.Setenv("USERINFO_ARCHIVE_BUCKET", "exports")
	t.Setenv("USERINFO_ARCHIVE_ACCESS_KEY", "access")
	t.Setenv("USERINFO_ARCHIVE_SECRET_KEY", "secret")
	t.Setenv("USERINFO_ARCHIVE_PATH_STYLE", "true")

	out, err := execute(t, srv, "export", "--format", "csv", "--archive")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "archived 15 bytes to userinfo-exports/"), out)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, uploads, 1)
	for target, body := range uploads {
		assert.True(t, strings.HasPrefix(target, "PUT /exports/userinfo-exports/"), target)
		assert.True(t, strings.HasSuffix(target, ".csv"), target)
		assert.Equal(t, "username\nSteve\n", body)
	}
}
