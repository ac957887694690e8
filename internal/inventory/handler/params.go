package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ehr/inventory-ledger/internal/inventory/domain"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/errors"
	"github.com/ehr/inventory-ledger/pkg/httputil"
)

const defaultLimit = 50

func invalid(field, msg string) error {
	return errors.Validation(map[string]string{field: msg})
}

// pathID parses the {id} route parameter.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, invalid("id", "must be a valid UUID")
	}
	return id, nil
}

// query wraps url.Values and keeps the first parse error.
type query struct {
	values url.Values
	err    error
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) fail(field, msg string) {
	if q.err == nil {
		q.err = invalid(field, msg)
	}
}

func (q *query) str(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

func (q *query) uuid(key string) *uuid.UUID {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.fail(key, "must be a valid UUID")
		return nil
	}
	return &id
}

func (q *query) int(key string, def int) int {
	raw := q.str(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(key, "must be an integer")
		return def
	}
	return n
}

func (q *query) bool(key string) bool {
	raw := q.str(key)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(key, "must be true or false")
	}
	return b
}

// time accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date.
func (q *query) time(key string) *time.Time {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.UTC()
		return &ts
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		q.fail(key, "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		return nil
	}
	return &d.Time
}

func (q *query) page() repository.Page {
	p := repository.Page{
		Limit:  q.int("limit", defaultLimit),
		Offset: q.int("offset", 0),
	}
	if p.Limit < 1 {
		q.fail("limit", "must be at least 1")
	}
	if p.Offset < 0 {
		q.fail("offset", "must be at least 0")
	}
	return p
}

func listMeta(p repository.Page, count int) *httputil.Meta {
	return &httputil.Meta{Limit: p.Limit, Offset: p.Offset, Count: count}
}
