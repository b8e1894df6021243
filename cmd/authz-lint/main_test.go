package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/lmsauthz/pkg/rbac"
)

func TestRun_ValidTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
permissions:
  - id: course.read
    resource: course
    action: read
  - id: course.create
    resource: course
    action: create
roles:
  - id: guest
    hierarchy_level: 0
    permissions: [course.read]
  - id: teacher
    hierarchy_level: 50
    parent: guest
    permissions: [course.create]
`), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-file", path, "-format", "json"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stderr.String(), "2 permissions, 2 roles")

	var summaries []roleSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "teacher", summaries[1].ID)
	assert.Equal(t, 50, summaries[1].HierarchyLevel)
	assert.Equal(t, []string{"guest"}, summaries[1].Ancestors)
	assert.Equal(t, []string{"course.read", "course.create"}, summaries[1].Permissions)
}

func TestRun_TextOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	data, err := rbac.DefaultDefinition().Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-file", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "ROLE")
	assert.Contains(t, stdout.String(), "department_head > teacher > guest")
}

func TestRun_InvalidTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  - id: a
    parent: b
    permissions: [missing.perm]
  - id: b
    parent: a
`), 0o600))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitInvalid, run([]string{"-file", path}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "rejected")
	assert.Contains(t, stderr.String(), "missing.perm")
}

func TestRun_Builtin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-builtin"}, &stdout, &stderr))

	def, err := rbac.ParseDefinition(stdout.Bytes())
	require.NoError(t, err)
	assert.Len(t, def.Roles, 6)
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no table", args: nil},
		{name: "bad format", args: []string{"-file", "x.yaml", "-format", "xml"}},
		{name: "unknown flag", args: []string{"-verbose"}},
		{name: "bucket without key", args: []string{"-s3-bucket", "lms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, exitUsage, run(tt.args, &stdout, &stderr))
		})
	}
}
