// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

/*
TestNewPool_InvalidDSN fails before any connection attempt.
*/
func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://%zz", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "invalid DSN")
}
