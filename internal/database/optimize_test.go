package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subwatch/subwatch/internal/database"
	"github.com/subwatch/subwatch/internal/database/testutil"
)

func TestDriverName(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	require.Equal(t, "sqlite", database.DriverName(db))
}

func TestOptimizeRunsOnSQLite(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	require.NoError(t, database.Optimize(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open(database.Config{Driver: "oracle"})
	require.Error(t, err)
}
