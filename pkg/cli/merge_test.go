package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apievolve/pkg/api"
	"github.com/platinummonkey/apievolve/pkg/schema"
)

func TestRunMerge_Local(t *testing.T) {
	dir := historyDir(t)

	var err error
	output := captureOutput(t, func() { err = runMerge([]string{"-history", dir}) })
	require.NoError(t, err)

	doc, err := schema.Parse([]byte(output))
	require.NoError(t, err, output)
	assert.Equal(t, "customers", doc.API)
	require.NotEmpty(t, doc.Records)

	output = captureOutput(t, func() { err = runMerge([]string{"-history", dir, "-supported", "0", "-format", "json"}) })
	require.NoError(t, err)

	var resp api.MergedResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp), output)
	assert.Equal(t, "customers", resp.History)
	assert.Equal(t, []int{0}, resp.SupportedRevisions)
	require.NotNil(t, resp.Definition)
}

func TestRunMerge_Remote(t *testing.T) {
	srv := newRegistry(t)
	seedRegistry(t, srv.URL)

	var err error
	output := captureOutput(t, func() {
		err = runMerge([]string{"-registry", srv.URL, "-history", "customers", "-format", "json"})
	})
	require.NoError(t, err)

	var resp api.MergedResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp), output)
	assert.Equal(t, []int{0, 1}, resp.SupportedRevisions)

	output = captureOutput(t, func() {
		err = runMerge([]string{"-registry", srv.URL, "-history", "customers", "-supported", "1"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "name: Customer")
}

func TestRunMerge_Errors(t *testing.T) {
	dir := historyDir(t)

	for name, args := range map[string][]string{
		"missing history":  {},
		"bad format":       {"-history", dir, "-format", "text"},
		"unknown revision": {"-history", dir, "-supported", "3"},
		"missing dir":      {"-history", "/nonexistent/history"},
	} {
		t.Run(name, func(t *testing.T) {
			var err error
			captureOutput(t, func() { err = runMerge(args) })
			assert.Error(t, err)
		})
	}
}
