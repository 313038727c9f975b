// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
)

// # Endpoint Classes

// DefaultClassName is the fallback class for unmatched paths.
const DefaultClassName = "default"

// Class is a named endpoint group with its own limits.
type Class struct {
	// Name is the stable identifier used in metrics and window keys.
	Name string
	// Prefix selects the paths belonging to the class.
	Prefix string
	// PerMinute is the admitted requests per 60 s window.
	PerMinute int
	// Burst is the admitted requests per 10 s window. Zero disables the burst check.
	Burst int
}

// Table is an ordered list of classes plus a fallback.
//
// Classification walks Classes in order and the first matching prefix wins,
// so more specific prefixes must come first.
type Table struct {
	Classes []Class
	Default Class
}

// DefaultTable returns the stock limits: authentication and payment
// endpoints are stricter than the general API.
func DefaultTable() Table {
	return Table{
		Classes: []Class{
			{Name: "auth", Prefix: "/api/v1/auth", PerMinute: 5, Burst: 3},
			{Name: "payments", Prefix: "/api/v1/payments", PerMinute: 10, Burst: 5},
		},
		Default: Class{Name: DefaultClassName, PerMinute: 100, Burst: 20},
	}
}

// Classify returns the class governing path.
func (table Table) Classify(path string) Class {
	for _, class := range table.Classes {
		if strings.HasPrefix(path, class.Prefix) {
			return class
		}
	}
	return table.Default
}

// Validate checks that every class has positive limits and a unique name.
func (table Table) Validate() error {
	seen := make(map[string]struct{}, len(table.Classes)+1)
	all := append(append([]Class(nil), table.Classes...), table.Default)

	for index, class := range all {
		if class.Name == "" {
			return fmt.Errorf("ratelimit: class %d has no name", index)
		}
		if _, dup := seen[class.Name]; dup {
			return fmt.Errorf("ratelimit: duplicate class %q", class.Name)
		}
		seen[class.Name] = struct{}{}

		if class.PerMinute <= 0 || class.Burst < 0 {
			return fmt.Errorf("ratelimit: class %q needs a positive per-minute limit", class.Name)
		}
		if index < len(table.Classes) && class.Prefix == "" {
			return fmt.Errorf("ratelimit: class %q has no prefix", class.Name)
		}
	}
	return nil
}

// # Text Encoding

// String renders the table in the format accepted by [ParseTable].
func (table Table) String() string {
	parts := make([]string, 0, len(table.Classes)+1)
	for _, class := range table.Classes {
		parts = append(parts, fmt.Sprintf("%s:%s=%d/%d", class.Name, class.Prefix, class.PerMinute, class.Burst))
	}
	parts = append(parts, fmt.Sprintf("%s=%d/%d", table.Default.Name, table.Default.PerMinute, table.Default.Burst))
	return strings.Join(parts, ",")
}

// ParseTable decodes a comma-separated table:
//
//	auth:/api/v1/auth=5/3,payments:/api/v1/payments=10/5,default=100/20
//
// Each entry is name:prefix=perMinute/burst. The entry named "default" has no
// prefix and becomes the fallback. Entry order is classification order.
func ParseTable(text string) (Table, error) {
	table := Table{}
	hasDefault := false

	for _, raw := range strings.Split(text, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		head, limits, found := strings.Cut(entry, "=")
		if !found {
			return Table{}, fmt.Errorf("ratelimit: entry %q has no limits", entry)
		}

		perMinute, burst, err := parseLimits(limits)
		if err != nil {
			return Table{}, fmt.Errorf("ratelimit: entry %q: %w", entry, err)
		}

		name, prefix, _ := strings.Cut(head, ":")
		name = strings.TrimSpace(name)
		class := Class{Name: name, Prefix: strings.TrimSpace(prefix), PerMinute: perMinute, Burst: burst}

		if name == DefaultClassName {
			table.Default = class
			hasDefault = true
			continue
		}
		table.Classes = append(table.Classes, class)
	}

	if !hasDefault {
		table.Default = DefaultTable().Default
	}
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

func parseLimits(text string) (int, int, error) {
	minuteText, burstText, found := strings.Cut(strings.TrimSpace(text), "/")
	perMinute, err := strconv.Atoi(minuteText)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid per-minute limit %q", minuteText)
	}
	if !found {
		return perMinute, 0, nil
	}
	burst, err := strconv.Atoi(burstText)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid burst limit %q", burstText)
	}
	return perMinute, burst, nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] for environment parsing.
func (table *Table) UnmarshalText(text []byte) error {
	parsed, err := ParseTable(string(text))
	if err != nil {
		return err
	}
	*table = parsed
	return nil
}
