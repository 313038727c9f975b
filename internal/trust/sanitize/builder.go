// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sanitize

import (
	"fmt"
	"strings"
)

// # Filters

// Operator is a whitelisted comparison operator.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLike         Operator = "LIKE"
	OpILike        Operator = "ILIKE"
	OpIn           Operator = "IN"
	OpIsNull       Operator = "IS NULL"
	OpIsNotNull    Operator = "IS NOT NULL"
)

var allowedOperators = map[Operator]struct{}{
	OpEqual: {}, OpNotEqual: {}, OpLess: {}, OpLessEqual: {}, OpGreater: {}, OpGreaterEqual: {},
	OpLike: {}, OpILike: {}, OpIn: {}, OpIsNull: {}, OpIsNotNull: {},
}

// Filter is one predicate of a WHERE clause.
type Filter struct {
	Field    string
	Operator Operator
	Value    any
}

// Where builds a conjunction of filters with $N placeholders starting at
// firstPlaceholder. It returns an empty clause for no filters.
//
// String values are bound as parameters, never interpolated, and are also
// run through the injection battery so that stored data stays clean.
func Where(filters []Filter, firstPlaceholder int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	if firstPlaceholder < 1 {
		firstPlaceholder = 1
	}

	var queryBuilder strings.Builder
	arguments := make([]any, 0, len(filters))
	argID := firstPlaceholder

	queryBuilder.WriteString("WHERE ")
	for index, filter := range filters {
		column, err := Identifier(filter.Field)
		if err != nil {
			return "", nil, err
		}

		operator := Operator(strings.ToUpper(strings.TrimSpace(string(filter.Operator))))
		if _, ok := allowedOperators[operator]; !ok {
			return "", nil, fieldError(filter.Field, ErrUnsupportedOperator)
		}

		if index > 0 {
			queryBuilder.WriteString(" AND ")
		}

		switch operator {
		case OpIsNull, OpIsNotNull:
			queryBuilder.WriteString(fmt.Sprintf("%s %s", column, operator))
			continue
		case OpIn:
			queryBuilder.WriteString(fmt.Sprintf("%s = ANY($%d)", column, argID))
		default:
			queryBuilder.WriteString(fmt.Sprintf("%s %s $%d", column, operator, argID))
		}

		if err := checkValue(filter.Field, filter.Value); err != nil {
			return "", nil, err
		}
		arguments = append(arguments, filter.Value)
		argID++
	}

	return queryBuilder.String(), arguments, nil
}

func checkValue(field string, value any) error {
	switch typed := value.(type) {
	case string:
		if IsMalicious(typed) {
			return fieldError(field, ErrMaliciousInput)
		}
	case []string:
		for _, item := range typed {
			if IsMalicious(item) {
				return fieldError(field, ErrMaliciousInput)
			}
		}
	}
	return nil
}

// # Sorting

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// OrderBy builds an ORDER BY fragment. When allowed is non-empty, field must
// be one of the listed columns.
func OrderBy(field string, direction Direction, allowed ...string) (string, error) {
	column, err := Identifier(field)
	if err != nil {
		return "", err
	}

	if len(allowed) > 0 {
		permitted := false
		for _, candidate := range allowed {
			if candidate == column {
				permitted = true
				break
			}
		}
		if !permitted {
			return "", fieldError("sort", ErrInvalidIdentifier)
		}
	}

	normalized := Direction(strings.ToUpper(strings.TrimSpace(string(direction))))
	switch normalized {
	case "":
		normalized = Ascending
	case Ascending, Descending:
	default:
		return "", fieldError("direction", ErrUnsupportedOperator)
	}

	return fmt.Sprintf("ORDER BY %s %s", column, normalized), nil
}

// # Pagination

const (
	MinLimit  = 1
	MaxLimit  = 1000
	MaxOffset = 100000
)

// Page is a validated limit/offset pair.
type Page struct {
	Limit  int
	Offset int
}

// Clause renders the fragment. Values are validated integers, so they are
// safe to inline.
func (page Page) Clause() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", page.Limit, page.Offset)
}

// Paginate validates limit and offset. Out-of-range values are rejected,
// never clamped, so a caller can tell "page 0" from "page 1".
func Paginate(limit, offset int) (Page, error) {
	if limit < MinLimit || limit > MaxLimit {
		return Page{}, fieldError("limit", ErrOutOfRange)
	}
	if offset < 0 || offset > MaxOffset {
		return Page{}, fieldError("offset", ErrOutOfRange)
	}
	return Page{Limit: limit, Offset: offset}, nil
}
