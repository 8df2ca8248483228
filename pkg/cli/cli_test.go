package cli

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apievolve/pkg/api"
	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/service"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

const customersV0 = `
api: customers
revision: 0
side: provider
records:
  - name: Customer
    fields:
      - name: id
        type: int64
      - name: name
        type: string
  - name: NotFound
    exception: true
operations:
  - name: get
    input: Customer
    output: Customer
    throws: [NotFound]
`

const customersV1 = `
api: customers
revision: 1
records:
  - name: Customer
    fields:
      - name: id
        type: int64
      - name: fullName
        type: string
        replaces: [name]
      - name: balance
        type: {kind: numeric, precision: 10, scale: 2}
        optionality: optional
  - name: NotFound
    exception: true
operations:
  - name: get
    input: Customer
    output: Customer
    throws: [NotFound]
`

const billing = `
api: billing
revision: 1
side: consumer
records:
  - name: Customer
    fields:
      - name: id
        type: int64
      - name: fullName
        type: string
  - name: NotFound
    exception: true
operations:
  - name: get
    input: Customer
    output: Customer
    throws: [NotFound]
`

const billingWithoutID = `
api: billing
revision: 1
records:
  - name: Customer
    fields:
      - name: fullName
        type: string
operations:
  - name: get
    input: Customer
    output: Customer
`

// captureOutput redirects command output for the duration of fn
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()
	fn()
	return buf.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// historyDir writes the customers revisions to a temporary directory
func historyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "v0.yaml", customersV0)
	writeFile(t, dir, "v1.yml", customersV1)
	writeFile(t, dir, "README.md", "not a definition")
	return dir
}

// newRegistry starts a registry server backed by a temporary filesystem store
func newRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	svc := service.New(store, service.DefaultConfig(), logger, nil)
	srv := httptest.NewServer(api.NewServer(svc, api.Options{Logger: logger}))
	t.Cleanup(srv.Close)
	return srv
}

// seedRegistry pushes the customers revisions to a registry
func seedRegistry(t *testing.T, registry string) {
	t.Helper()
	dir := t.TempDir()
	for _, doc := range []struct{ name, content string }{
		{"v0.yaml", customersV0},
		{"v1.yaml", customersV1},
	} {
		file := writeFile(t, dir, doc.name, doc.content)
		captureOutput(t, func() {
			require.NoError(t, runPush([]string{"-registry", registry, "-history", "customers", "-file", file}))
		})
	}
}
