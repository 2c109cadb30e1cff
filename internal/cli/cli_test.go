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

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, root, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--root", root}, args...)
	code := RunWithIO(full, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func newRoot(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "JORA")
}

func TestBootstrapsStore(t *testing.T) {
	root := newRoot(t)
	res := run(t, root, "", "count")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "0\n", res.stdout)
	for _, name := range []string{"OPEN.csv", "IN_PROGRESS.csv", "CLOSED.csv"} {
		b, err := os.ReadFile(filepath.Join(root, name))
		require.NoError(t, err)
		assert.Equal(t, "Title,Priority,Description,ID\n", string(b))
	}
}

func TestNewAndShow(t *testing.T) {
	root := newRoot(t)
	res := run(t, root, "Fix bug\n3\nNPE on login\n", "new")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Added task Fix bug with ID #1 to OPEN\n")

	res = run(t, root, "", "-id", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "Fix bug\nID: 1\nPriority: 3, Status: OPEN\n\nNPE on login\n", res.stdout)

	res = run(t, root, "", "show", "2")
	assert.Equal(t, ExitNotFound, res.code)
	assert.Contains(t, res.stderr, "Task ID 2 not found.")
}

func TestBareInvocation(t *testing.T) {
	root := newRoot(t)
	res := run(t, root, "First\n1\n\n")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Added task First with ID #1 to OPEN")

	res = run(t, root, "")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "#1 [1] OPEN        First\n", res.stdout)
}

func TestNewAbortedWritesNothing(t *testing.T) {
	root := newRoot(t)
	res := run(t, root, "Half\n", "new")
	assert.Equal(t, ExitUsage, res.code)
	assert.Equal(t, "0\n", run(t, root, "", "count").stdout)
}

func TestMoveWorkflow(t *testing.T) {
	root := newRoot(t)
	require.Equal(t, ExitOK, run(t, root, "T\n2\n\n", "-n").code)

	res := run(t, root, "", "mv", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "Task ID 1 moved to IN_PROGRESS\n", res.stdout)

	res = run(t, root, "", "-mv", "1")
	assert.Equal(t, "Task ID 1 moved to CLOSED\n", res.stdout)

	res = run(t, root, "", "--no", "mv", "1")
	assert.Equal(t, "Task ID 1 moved to CLOSED\n", res.stdout)

	res = run(t, root, "n\n", "mv", "1")
	assert.Contains(t, res.stdout, "Re-open task? y/n\n")
	assert.Contains(t, res.stdout, "Task ID 1 moved to CLOSED\n")

	res = run(t, root, "yes\n", "mv", "1")
	assert.Contains(t, res.stdout, "Task ID 1 moved to IN_PROGRESS\n")

	b, err := os.ReadFile(filepath.Join(root, "IN_PROGRESS.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "T,2,,1")
}

func TestMoveErrors(t *testing.T) {
	root := newRoot(t)
	res := run(t, root, "", "mv", "999")
	assert.Equal(t, ExitNotFound, res.code)
	assert.Contains(t, res.stderr, "Task not found")

	res = run(t, root, "", "mv", "abc")
	assert.Equal(t, ExitUsage, res.code)

	res = run(t, root, "", "mv")
	assert.Equal(t, ExitUsage, res.code)
}

func TestDelete(t *testing.T) {
	root := newRoot(t)
	run(t, root, "one\n1\n\n", "new")
	run(t, root, "two\n2\n\n", "new")

	res := run(t, root, "", "-x", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "Task ID 1 deleted\n", res.stdout)
	assert.Equal(t, "1\n", run(t, root, "", "count").stdout)

	res = run(t, root, "", "rm", "1")
	assert.Equal(t, ExitNotFound, res.code)
}

func TestListOrderAndLimit(t *testing.T) {
	root := newRoot(t)
	run(t, root, "low\n1\n\n", "new")
	run(t, root, "top\n5\n\n", "new")
	run(t, root, "mid\n3\n\n", "new")

	res := run(t, root, "", "ls", "2")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "#2 [5] OPEN        top\n#3 [3] OPEN        mid\n", res.stdout)

	res = run(t, root, "", "-s", "many")
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Len(t, lines, 3)
}

func TestListAllIncludesClosed(t *testing.T) {
	root := newRoot(t)
	run(t, root, "done\n5\n\n", "new")
	run(t, root, "", "mv", "1")
	run(t, root, "", "mv", "1")

	assert.Equal(t, "(no tasks)\n", run(t, root, "", "ls").stdout)
	assert.Contains(t, run(t, root, "", "ls", "--all").stdout, "CLOSED")
}

func TestListJSON(t *testing.T) {
	root := newRoot(t)
	run(t, root, "Fix bug\n3\nNPE\n", "new")

	res := run(t, root, "", "--json", "ls")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var payload struct {
		Tasks []struct {
			ID       int    `json:"id"`
			Title    string `json:"title"`
			Priority int    `json:"priority"`
			Status   string `json:"status"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &payload))
	require.Len(t, payload.Tasks, 1)
	assert.Equal(t, "Fix bug", payload.Tasks[0].Title)
	assert.Equal(t, "OPEN", payload.Tasks[0].Status)
}

type taskPayload struct {
	Task struct {
		ID       int    `json:"id"`
		Title    string `json:"title"`
		Priority int    `json:"priority"`
		Status   string `json:"status"`
	} `json:"task"`
}

func TestNewJSONKeepsPromptsOffStdout(t *testing.T) {
	root := newRoot(t)
	res := run(t, root, "t\n3\nd\n", "--json", "new")
	require.Equal(t, ExitOK, res.code, res.stderr)

	var payload taskPayload
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &payload), res.stdout)
	assert.Equal(t, 1, payload.Task.ID)
	assert.Equal(t, "t", payload.Task.Title)
	assert.Equal(t, 3, payload.Task.Priority)
	assert.Contains(t, res.stderr, "Title: ")
}

func TestMoveJSONReopen(t *testing.T) {
	root := newRoot(t)
	run(t, root, "T\n2\n\n", "new")
	run(t, root, "", "mv", "1")
	run(t, root, "", "mv", "1")

	res := run(t, root, "y\n", "--json", "mv", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var payload taskPayload
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &payload), res.stdout)
	assert.Equal(t, "IN_PROGRESS", payload.Task.Status)
	assert.Contains(t, res.stderr, "Re-open task? y/n")
}

func TestShowYAML(t *testing.T) {
	root := newRoot(t)
	run(t, root, "Fix bug\n3\n\n", "new")
	res := run(t, root, "", "--yaml", "show", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "title: Fix bug")
	assert.Contains(t, res.stdout, "status: OPEN")
}

func TestStrictCorruptStore(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "OPEN.csv"), []byte("Title,Priority,Description,ID\nbroken,3\nok,1,,2\n"), 0o644))

	res := run(t, root, "", "count")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "1\n", res.stdout)
	assert.Contains(t, res.stderr, "skipping record")

	res = run(t, root, "", "--strict", "count")
	assert.Equal(t, ExitCorrupt, res.code)
}

func TestGlobalFlagConflicts(t *testing.T) {
	root := newRoot(t)
	assert.Equal(t, ExitUsage, run(t, root, "", "--json", "--yaml", "ls").code)
	assert.Equal(t, ExitUsage, run(t, root, "", "--yes", "--no", "mv", "1").code)
	assert.Equal(t, ExitUsage, run(t, root, "", "frobnicate").code)
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	code := RunWithIO([]string{"help"}, strings.NewReader(""), &out, &bytes.Buffer{})
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "Usage:")
}

func TestReorderFlagsKeepsNumbers(t *testing.T) {
	got := reorderFlags([]string{"3", "--all"}, map[string]bool{"--all": false})
	assert.Equal(t, []string{"--all", "3"}, got)
}
