package testutil

import (
	"context"
	"database/sql/driver"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/inventory-ledger/pkg/actor"
	"github.com/ehr/inventory-ledger/pkg/database"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/messaging"
	"github.com/ehr/inventory-ledger/pkg/org"
)

// MockDB wraps sqlmock for easier testing
type MockDB struct {
	DB   *database.DB
	Raw  *sqlx.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a mock database for unit tests. The lock timeout is
// fixed at 5s so ExpectOrgScope can match the set_config arguments.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	raw := sqlx.NewDb(db, "postgres")
	t.Cleanup(func() { raw.Close() })

	return &MockDB{
		DB:   database.Wrap(raw, logger.Nop(), database.WithLockTimeout(5*time.Second)),
		Raw:  raw,
		Mock: mock,
	}
}

// ExpectQuery sets up an expected query
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec sets up an expected exec
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// ExpectOrgScope expects the BEGIN plus set_config round trip issued by
// database.WithOrg.
func (m *MockDB) ExpectOrgScope(orgID uuid.UUID) {
	m.Mock.ExpectBegin()
	m.Mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.current_org', $1, true)")).
		WithArgs(orgID.String(), "5000ms", "0").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

// ExpectCommit sets up an expected commit
func (m *MockDB) ExpectCommit() *sqlmock.ExpectedCommit {
	return m.Mock.ExpectCommit()
}

// ExpectRollback sets up an expected rollback
func (m *MockDB) ExpectRollback() *sqlmock.ExpectedRollback {
	return m.Mock.ExpectRollback()
}

// ExpectationsWereMet verifies all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// MockRows creates a new mock rows object
func MockRows(columns ...string) *sqlmock.Rows {
	return sqlmock.NewRows(columns)
}

// OrgContext returns a context carrying orgID and a user acting in it.
func OrgContext(orgID, userID uuid.UUID) context.Context {
	ctx := org.WithOrgID(context.Background(), orgID)
	return actor.WithActor(ctx, &actor.Actor{ID: userID, OrgID: orgID})
}

// AnyTime is a matcher for any time.Time value
type AnyTime struct{}

// Match satisfies the sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// AnyUUID matches a UUID passed either as a string or as its driver value.
type AnyUUID struct{}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Match satisfies the sqlmock.Argument interface
func (a AnyUUID) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && uuidPattern.MatchString(s)
}

// AnyArg matches every value, including nil.
type AnyArg struct{}

// Match satisfies the sqlmock.Argument interface
func (AnyArg) Match(driver.Value) bool { return true }

// RecordedPublish is one message captured by MockPublisher.
type RecordedPublish struct {
	Type    string
	Payload interface{}
}

// MockPublisher records published events for later verification.
type MockPublisher struct {
	mu     sync.Mutex
	Events []RecordedPublish
	Err    error
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records an event, returning Err if set.
func (m *MockPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, RecordedPublish{Type: eventType, Payload: payload})
	return m.Err
}

// PublishEvent records a prepared event, returning Err if set.
func (m *MockPublisher) PublishEvent(ctx context.Context, event *messaging.Event) error {
	return m.Publish(ctx, event.Type, event)
}

// Published returns a snapshot of recorded events.
func (m *MockPublisher) Published() []RecordedPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedPublish, len(m.Events))
	copy(out, m.Events)
	return out
}

// AssertEventPublished checks if an event of the given type was published
func (m *MockPublisher) AssertEventPublished(t *testing.T, eventType string) {
	t.Helper()
	for _, e := range m.Published() {
		if e.Type == eventType {
			return
		}
	}
	t.Errorf("expected event %q to be published, but it wasn't", eventType)
}
