// Package filter selects debug client records with --where clauses.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
)

// Fields a clause may name.
var fields = []string{"client", "project", "session", "caps", "panel_bytes"}

// WhereClause represents a parsed --where condition
type WhereClause struct {
	Field    string
	Operator string
	Value    string
	regex    *regexp.Regexp // compiled for ~ and !~
	caps     domain.Capabilities
	number   uint64
}

// ParseWhereClause parses a clause like "session=100" or "caps>=restart".
// Supported operators: =, !=, ~, !~, >=, <=, ^, $
func ParseWhereClause(clause string) (*WhereClause, error) {
	// Longest first to avoid partial matches
	operators := []string{"!~", ">=", "<=", "!=", "~", "=", "^", "$"}

	for _, op := range operators {
		idx := strings.Index(clause, op)
		if idx <= 0 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(clause[:idx]))
		value := strings.TrimSpace(clause[idx+len(op):])
		if field == "" || value == "" {
			return nil, fmt.Errorf("invalid where clause: %s", clause)
		}
		if !lo.Contains(fields, field) {
			return nil, fmt.Errorf("unknown field %q in where clause (use %s)", field, strings.Join(fields, ", "))
		}

		wc := &WhereClause{Field: field, Operator: op, Value: value}
		switch op {
		case "~", "!~":
			re, err := regexp.Compile(value)
			if err != nil {
				return nil, fmt.Errorf("invalid regex in where clause '%s': %w", clause, err)
			}
			wc.regex = re
		case ">=", "<=":
			if err := wc.parseOrdered(); err != nil {
				return nil, fmt.Errorf("where clause '%s': %w", clause, err)
			}
		}
		return wc, nil
	}

	return nil, fmt.Errorf("no valid operator found in where clause: %s (use =, !=, ~, !~, >=, <=, ^, $)", clause)
}

// parseOrdered prepares >= and <=: a superset/subset test for caps, a
// numeric comparison for everything else.
func (wc *WhereClause) parseOrdered() error {
	if wc.Field == "caps" {
		caps, err := domain.ParseCapabilities(wc.Value)
		if err != nil {
			return err
		}
		wc.caps = caps
		return nil
	}
	n, err := strconv.ParseUint(wc.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("%s needs a number", wc.Field)
	}
	wc.number = n
	return nil
}

// Match checks if a record matches this clause
func (wc *WhereClause) Match(c *domain.DebugClient) bool {
	fieldValue := wc.fieldValue(c)

	switch wc.Operator {
	case "=":
		return fieldValue == wc.Value
	case "!=":
		return fieldValue != wc.Value
	case "~":
		return wc.regex.MatchString(fieldValue)
	case "!~":
		return !wc.regex.MatchString(fieldValue)
	case "^":
		return strings.HasPrefix(fieldValue, wc.Value)
	case "$":
		return strings.HasSuffix(fieldValue, wc.Value)
	case ">=":
		if wc.Field == "caps" {
			return c.Capabilities.Has(wc.caps)
		}
		return wc.numeric(c) >= wc.number
	case "<=":
		if wc.Field == "caps" {
			return c.Capabilities.SubsetOf(wc.caps)
		}
		return wc.numeric(c) <= wc.number
	}
	return false
}

func (wc *WhereClause) numeric(c *domain.DebugClient) uint64 {
	switch wc.Field {
	case "client":
		return uint64(c.ID)
	case "project":
		return uint64(c.ProjectID)
	case "session":
		return uint64(c.SessionID)
	case "panel_bytes":
		return uint64(len(c.PanelItem))
	}
	return 0
}

func (wc *WhereClause) fieldValue(c *domain.DebugClient) string {
	if wc.Field == "caps" {
		return c.Capabilities.String()
	}
	return strconv.FormatUint(wc.numeric(c), 10)
}

// WhereFilter applies multiple where clauses (AND logic)
type WhereFilter struct {
	clauses []*WhereClause
}

// NewWhereFilter creates a filter from clause strings. No clauses yields a
// nil filter, which matches everything.
func NewWhereFilter(whereClauses []string) (*WhereFilter, error) {
	if len(whereClauses) == 0 {
		return nil, nil
	}

	filter := &WhereFilter{}
	for _, clause := range whereClauses {
		wc, err := ParseWhereClause(clause)
		if err != nil {
			return nil, err
		}
		filter.clauses = append(filter.clauses, wc)
	}
	return filter, nil
}

// Match returns true if the record matches ALL clauses
func (f *WhereFilter) Match(c *domain.DebugClient) bool {
	if f == nil {
		return true
	}
	for _, clause := range f.clauses {
		if !clause.Match(c) {
			return false
		}
	}
	return true
}

// Apply returns the matching records, keeping order.
func (f *WhereFilter) Apply(clients []*domain.DebugClient) []*domain.DebugClient {
	return lo.Filter(clients, func(c *domain.DebugClient, _ int) bool {
		return f.Match(c)
	})
}
