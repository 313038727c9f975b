// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package migration

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestToPgx5 rewrites only the postgres schemes.
*/
func TestToPgx5(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/aegis":   "pgx5://u:p@db:5432/aegis",
		"postgresql://u:p@db:5432/aegis": "pgx5://u:p@db:5432/aegis",
		"pgx5://u:p@db:5432/aegis":       "pgx5://u:p@db:5432/aegis",
		"host=db user=u":                 "host=db user=u",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, toPgx5(input), input)
	}
}

/*
TestDown_RejectsNonPositiveSteps fails before opening the database.
*/
func TestDown_RejectsNonPositiveSteps(t *testing.T) {
	err := Down("postgres://localhost/aegis", "../../../migrations", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "steps must be positive")
}

/*
TestMigrationFiles pairs every up script with a down script.
*/
func TestMigrationFiles(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)

	var ups, downs []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups = append(ups, strings.TrimSuffix(name, ".up.sql"))
		case strings.HasSuffix(name, ".down.sql"):
			downs = append(downs, strings.TrimSuffix(name, ".down.sql"))
		}
	}
	sort.Strings(ups)
	sort.Strings(downs)

	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
