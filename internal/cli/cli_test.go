package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesDir = "testdata/rules"

const entriesJSON = `[
  {"_feed": "blog", "title": {"value": "Weekly notes"}, "updated": "2024-06-01T00:00:00Z"},
  {"_feed": "other", "title": {"value": "Casino golang"}, "updated": "2023-01-01T00:00:00Z"},
  {"_feed": "other", "title": {"value": "Bad date"}, "updated": "garbage"}
]`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "", "validate", rulesDir, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootRejectsBadClock(t *testing.T) {
	_, err := execute(t, "", "validate", rulesDir, "--now", "yesterday-ish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--now")
}

func TestValidateText(t *testing.T) {
	out, err := execute(t, "", "validate", rulesDir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 filters, 2 rubrics, 1 decision trees")
}

func TestValidateJSON(t *testing.T) {
	out, err := execute(t, "", "validate", rulesDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Files)
	assert.Equal(t, []string{"go", "latest"}, resp.Data.Rubrics)
	assert.Equal(t, []string{"kind"}, resp.Data.Decisions)
	assert.Equal(t, 4, resp.Data.Bundles)
}

func TestValidateInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	doc := "rubrics:\n  x:\n    rule: missing\n    template: {title: X}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte(doc), 0o644))

	out, err := execute(t, "", "validate", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error.Message, "missing")
}

func TestValidateMissingDirectory(t *testing.T) {
	_, err := execute(t, "", "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRouteJSON(t *testing.T) {
	out, err := execute(t, entriesJSON, "route", rulesDir, "--format", "json", "--now", "2024-06-10T00:00:00Z")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []RouteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)

	// usertags of the blog feed contain "go"
	assert.Equal(t, []string{"go", "latest"}, resp.Data[0].Include)
	assert.Equal(t, []string{"go", "latest"}, resp.Data[1].Exclude)
	assert.Equal(t, []string{"go"}, resp.Data[2].Exclude)
	assert.Contains(t, resp.Data[2].Errors, "latest")
}

func TestRouteText(t *testing.T) {
	out, err := execute(t, entriesJSON, "route", rulesDir, "--now", "2024-06-10T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "#0 include=[go,latest] exclude=[]")
	assert.Contains(t, out, "! latest:")
}

func TestRouteInputFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "entry.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"_feed": "blog", "title": {"value": "x"}, "updated": "2024-06-09T00:00:00Z"}`), 0o644))

	out, err := execute(t, "", "route", rulesDir, "-i", p, "--now", "2024-06-10T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "#0 include=[go,latest]")
}

func TestRouteBadInput(t *testing.T) {
	cases := []string{"not json", "[1]", "42"}
	for _, in := range cases {
		_, err := execute(t, in, "route", rulesDir)
		require.Error(t, err, in)
		assert.Equal(t, ExitCommandError, GetExitCode(err), in)
	}
}

func TestDecide(t *testing.T) {
	out, err := execute(t, entriesJSON, "decide", rulesDir, "kind", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []DecisionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "ok", resp.Data[0].Result)
	assert.Equal(t, "junk", resp.Data[1].Result)
	assert.Equal(t, "ok", resp.Data[2].Result)
}

func TestDecideUnknownTree(t *testing.T) {
	_, err := execute(t, entriesJSON, "decide", rulesDir, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExitError(t *testing.T) {
	inner := os.ErrNotExist
	err := WrapExitError(ExitCommandError, "open", inner)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "open: file does not exist", err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
