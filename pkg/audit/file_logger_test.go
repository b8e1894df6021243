package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_Basic(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer logger.Close()

	event := NewEvent(EventTypeRoleAssigned, EventStatusSuccess)
	event.ActorID = "admin-1"
	event.UserID = "teacher-1"
	event.RoleID = "teacher"

	require.NoError(t, logger.Log(context.Background(), event))
	assert.FileExists(t, filepath.Join(tmpDir, "audit.log"))

	events, err := logger.ReadLogs(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, EventTypeRoleAssigned, events[0].EventType)
	assert.Equal(t, "teacher-1", events[0].UserID)
	assert.Equal(t, "teacher", events[0].RoleID)
}

func TestFileLogger_ReadLogsLimit(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(context.Background(), NewEvent(EventTypeRoleRevoked, EventStatusSuccess)))
	}

	events, err := logger.ReadLogs(3)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	all, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestFileLogger_Rotation(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: tmpDir,
		Rotate:   true,
		MaxSize:  200,
		MaxFiles: 2,
	})
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 20; i++ {
		event := NewEvent(EventTypeRoleAssigned, EventStatusSuccess)
		event.Message = "padding to force rotation of the current file"
		require.NoError(t, logger.Log(context.Background(), event))
	}

	rotated, err := filepath.Glob(filepath.Join(tmpDir, "audit-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)
	assert.LessOrEqual(t, len(rotated), 2)
	assert.FileExists(t, filepath.Join(tmpDir, "audit.log"))
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	assert.Error(t, logger.Log(context.Background(), NewEvent(EventTypeRoleAssigned, EventStatusSuccess)))
}
