package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCommand_Dir(t *testing.T) {
	quietEnv(t)
	db := tempDB(t)
	identifyJSON(t, db, "--email", "a@x.com")
	identifyJSON(t, db, "--email", "a@x.com", "--phone", "123")

	dir := t.TempDir()
	out, err := execute(t, "--db", db, "--format", "json", "export", "--dir", dir)
	require.NoError(t, err, "output: %s", out)

	var res exportView
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &res))
	assert.Equal(t, 2, res.Count)
	assert.True(t, strings.HasPrefix(res.Key, "contacts-"))
	assert.Equal(t, filepath.Join(dir, res.Key), res.Location)

	data, err := os.ReadFile(res.Location)
	require.NoError(t, err)
	var doc struct {
		Count    int `json:"count"`
		Contacts []struct {
			ID int64 `json:"id"`
		} `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2, doc.Count)
	require.Len(t, doc.Contacts, 2)
	assert.Equal(t, int64(1), doc.Contacts[0].ID)
}

func TestExportCommand_S3(t *testing.T) {
	quietEnv(t)
	t.Setenv("IDRECON_SNAPSHOT_S3_ACCESS_KEY", "test-access")
	t.Setenv("IDRECON_SNAPSHOT_S3_SECRET_KEY", "test-secret")

	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := tempDB(t)
	identifyJSON(t, db, "--phone", "42")

	out, err := execute(t, "--db", db, "export",
		"--s3-bucket", "snaps",
		"--s3-prefix", "nightly",
		"--s3-endpoint", srv.URL,
		"--s3-path-style")
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "Exported 1 contact(s) to s3://snaps/nightly/contacts-")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "PUT /snaps/nightly/contacts-"), paths[0])
}

func TestExportCommand_NoTarget(t *testing.T) {
	quietEnv(t)

	_, err := execute(t, "--db", tempDB(t), "export")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no export target")
}
