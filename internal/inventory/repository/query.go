package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/inventory-ledger/pkg/org"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page is limit/offset pagination. Zero values pick the repository default.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize(def, max int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// filter accumulates WHERE clauses and their positional arguments.
type filter struct {
	clauses []string
	args    []interface{}
}

func newFilter(base string, args ...interface{}) *filter {
	return &filter{clauses: []string{base}, args: args}
}

// add appends a clause; each %s in clause is replaced by the placeholder for v.
func (f *filter) add(clause string, v interface{}) {
	f.args = append(f.args, v)
	p := fmt.Sprintf("$%d", len(f.args))
	f.clauses = append(f.clauses, strings.ReplaceAll(clause, "%s", p))
}

func (f *filter) addRaw(clause string) {
	f.clauses = append(f.clauses, clause)
}

func (f *filter) where() string {
	return "WHERE " + strings.Join(f.clauses, " AND ")
}

// paginate appends LIMIT/OFFSET placeholders and returns the full argument list.
func (f *filter) paginate(p Page) (string, []interface{}) {
	args := append(f.args, p.Limit, p.Offset)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func orgFrom(ctx context.Context) (uuid.UUID, error) {
	return org.OrgID(ctx)
}

func likePattern(s string) string {
	return "%" + s + "%"
}
