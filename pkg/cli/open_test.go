package cli

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

func TestOpenService_RejectsConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	open := OpenService(logger)

	_, _, err := open(context.Background(), "memory", "")
	assert.Error(t, err)

	_, _, err = open(context.Background(), "sqlite", "")
	assert.Error(t, err)
}

func TestOpenService_SQLite(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, out, _ := newTestApp(t)
	app.Open = OpenService(logger)
	dbPath := filepath.Join(t.TempDir(), "accessplane.db")
	storage := []string{"-storage", "sqlite", "-db", dbPath, "-actor", "ops"}

	_, err := run(app, out, append([]string{"migrate"}, storage...)...)
	require.NoError(t, err)

	output, err := run(app, out, append([]string{"seed"}, storage...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "5 created")

	_, err = run(app, out, append([]string{"assign", "-user", "u1", "-app", "a1", "-role-type", "CUSTOMER_ADMIN"}, storage...)...)
	require.NoError(t, err)

	output, err = run(app, out, append([]string{"check", "-user", "u1", "-app", "a1", "-permission", "teamManagement", "-level", "ADMIN"}, storage...)...)
	require.NoError(t, err)
	assert.Contains(t, output, "allowed")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	store, err := audit.NewDBLogger(db)
	require.NoError(t, err)
	events, err := store.Search(context.Background(), audit.Filter{
		ActorID:    "ops",
		EventTypes: []audit.EventType{audit.EventTypeAssignmentGranted},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].TargetUserID)
}

func TestServiceLevel(t *testing.T) {
	logger := logrus.New()
	assert.Equal(t, observability.WarnLevel, serviceLevel(logger))

	logger.SetLevel(logrus.DebugLevel)
	assert.Equal(t, observability.DebugLevel, serviceLevel(logger))
}
