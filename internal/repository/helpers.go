package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert loses a race against a unique
// constraint.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// conditionBuilder accumulates positional WHERE clauses.
type conditionBuilder struct {
	conditions []string
	args       []interface{}
}

// add appends a clause containing a single "?" placeholder for value.
func (b *conditionBuilder) add(clause string, value interface{}) {
	b.args = append(b.args, value)
	b.conditions = append(b.conditions, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(b.args))))
}

// addIn appends "column IN (...)" for the values.
func (b *conditionBuilder) addIn(column string, values []string) {
	if len(values) == 0 {
		return
	}
	holders := make([]string, len(values))
	for i, v := range values {
		b.args = append(b.args, v)
		holders[i] = fmt.Sprintf("$%d", len(b.args))
	}
	b.conditions = append(b.conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(holders, ", ")))
}

// raw appends a clause with no arguments.
func (b *conditionBuilder) raw(clause string) {
	b.conditions = append(b.conditions, clause)
}

func (b *conditionBuilder) where() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conditions, " AND ")
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return pageSize, (page - 1) * pageSize
}

func sortClause(sortBy, sortOrder string, allowed map[string]string, fallback string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = fallback
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return column + " " + order
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
