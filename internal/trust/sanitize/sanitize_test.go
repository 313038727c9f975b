// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sanitize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/trust/sanitize"
)

/*
TestDetectInjection covers each pattern family and common benign inputs.
*/
func TestDetectInjection(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		detected bool
		pattern  string
	}{
		{"drop_table", "'; DROP TABLE users; --", true, "sql_keyword"},
		{"union_select", "1 UNION SELECT password FROM users", true, "sql_keyword"},
		{"lowercase_keyword", "select * from t", true, "sql_keyword"},
		{"fullwidth_keyword", "ＳＥＬＥＣＴ * from t", true, "sql_keyword"},
		{"classic_tautology", "' OR '1'='1", true, "tautology"},
		{"numeric_tautology", "admin' or 1=1", true, "tautology"},
		{"comment_dash", "admin'--", true, "comment_marker"},
		{"comment_block", "name/**/", true, "comment_marker"},
		{"hash_comment", "admin'#", true, "comment_marker"},
		{"sleep", "1 AND sleep(5)", true, "dangerous_function"},
		{"benchmark", "benchmark(1000000,md5(1))", true, "dangerous_function"},
		{"schema_probe", "information_schema.tables", true, "dangerous_reference"},
		{"email", "alice@example.com", false, ""},
		{"plain_name", "O'Brien", false, ""},
		{"selected_word", "preselected items", false, ""},
		{"sleep_word", "I need sleep", false, ""},
		{"keyword_without_space", "update", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detected, pattern := sanitize.DetectInjection(tt.value)
			assert.Equal(t, tt.detected, detected)
			assert.Equal(t, tt.pattern, pattern)
		})
	}
}

/*
TestString_RejectsAndCleans verifies rejection, length limits, escaping and trimming.
*/
func TestString_RejectsAndCleans(t *testing.T) {
	_, err := sanitize.String("'; DROP TABLE users; --", sanitize.FieldName)
	require.Error(t, err)
	assert.ErrorIs(t, err, sanitize.ErrMaliciousInput)

	ae := sanitize.AppError(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeMaliciousInput, ae.Code)
	assert.Equal(t, sanitize.FieldName, ae.Details[0].Field)

	cleaned, err := sanitize.String("  O'Brien  ", sanitize.FieldName)
	require.NoError(t, err)
	assert.Equal(t, "O''Brien", cleaned)

	cleaned, err = sanitize.String(`say "hi"`, sanitize.FieldText)
	require.NoError(t, err)
	assert.Equal(t, `say \"hi\"`, cleaned)
}

/*
TestString_FieldLimits checks the per-field maximum lengths.
*/
func TestString_FieldLimits(t *testing.T) {
	tests := []struct {
		field string
		limit int
	}{
		{sanitize.FieldEmail, 254},
		{sanitize.FieldText, 2000},
		{sanitize.FieldName, 100},
		{"unknown_field", sanitize.DefaultMaxLength},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := sanitize.String(strings.Repeat("a", tt.limit), tt.field)
			assert.NoError(t, err)

			_, err = sanitize.String(strings.Repeat("a", tt.limit+1), tt.field)
			assert.ErrorIs(t, err, sanitize.ErrTooLong)
			assert.Equal(t, apperr.CodeValidation, sanitize.AppError(err).Code)
		})
	}
}

/*
TestIdentifier validates the identifier grammar and length bound.
*/
func TestIdentifier(t *testing.T) {
	valid := []string{"users", "_private", "Column_2", strings.Repeat("a", 63)}
	invalid := []string{"", "2fast", "users;", "first name", "naïve", strings.Repeat("a", 64)}

	for _, name := range valid {
		got, err := sanitize.Identifier(name)
		assert.NoError(t, err, name)
		assert.Equal(t, name, got)
	}
	for _, name := range invalid {
		_, err := sanitize.Identifier(name)
		assert.ErrorIs(t, err, sanitize.ErrInvalidIdentifier, name)
	}
}

/*
TestWhere builds placeholders and enforces the operator whitelist.
*/
func TestWhere(t *testing.T) {
	clause, arguments, err := sanitize.Where([]sanitize.Filter{
		{Field: "status", Operator: sanitize.OpEqual, Value: "active"},
		{Field: "deleted_at", Operator: sanitize.OpIsNull},
		{Field: "tier", Operator: "in", Value: []string{"gold", "silver"}},
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, "WHERE status = $3 AND deleted_at IS NULL AND tier = ANY($4)", clause)
	assert.Equal(t, []any{"active", []string{"gold", "silver"}}, arguments)

	_, _, err = sanitize.Where([]sanitize.Filter{{Field: "status", Operator: "; DROP", Value: 1}}, 1)
	assert.ErrorIs(t, err, sanitize.ErrUnsupportedOperator)

	_, _, err = sanitize.Where([]sanitize.Filter{{Field: "status or 1", Operator: sanitize.OpEqual, Value: 1}}, 1)
	assert.ErrorIs(t, err, sanitize.ErrInvalidIdentifier)

	_, _, err = sanitize.Where([]sanitize.Filter{{Field: "name", Operator: sanitize.OpEqual, Value: "x' OR '1'='1"}}, 1)
	assert.ErrorIs(t, err, sanitize.ErrMaliciousInput)

	clause, arguments, err = sanitize.Where(nil, 1)
	require.NoError(t, err)
	assert.Empty(t, clause)
	assert.Nil(t, arguments)
}

/*
TestOrderBy validates columns and directions.
*/
func TestOrderBy(t *testing.T) {
	clause, err := sanitize.OrderBy("created_at", "desc")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY created_at DESC", clause)

	clause, err = sanitize.OrderBy("name", "")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY name ASC", clause)

	_, err = sanitize.OrderBy("name", "sideways")
	assert.Error(t, err)

	_, err = sanitize.OrderBy("password_hash", sanitize.Ascending, "name", "created_at")
	assert.ErrorIs(t, err, sanitize.ErrInvalidIdentifier)
}

/*
TestPaginate rejects out-of-range values instead of clamping.
*/
func TestPaginate(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		offset int
		ok     bool
	}{
		{"minimum", 1, 0, true},
		{"maximum", 1000, 100000, true},
		{"zero_limit", 0, 0, false},
		{"limit_over", 1001, 0, false},
		{"negative_offset", 10, -1, false},
		{"offset_over", 10, 100001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := sanitize.Paginate(tt.limit, tt.offset)
			if !tt.ok {
				assert.ErrorIs(t, err, sanitize.ErrOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.limit, page.Limit)
			assert.Equal(t, tt.offset, page.Offset)
		})
	}

	page, err := sanitize.Paginate(50, 100)
	require.NoError(t, err)
	assert.Equal(t, "LIMIT 50 OFFSET 100", page.Clause())
}
