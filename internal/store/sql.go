package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"netpromote/internal/environment"
	"netpromote/internal/logging"
	"netpromote/pkg/errors"
)

// DefaultAuditTable receives one row per terminal promotion
const DefaultAuditTable = "netpromote_promotions"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

// SQLRecorder writes promotion outcomes to a SQL table. It works with the
// postgres and snowflake drivers; the driver name selects the placeholder
// style.
type SQLRecorder struct {
	db      *sql.DB
	driver  string
	table   string
	timeout time.Duration
	logger  zerolog.Logger
}

// OpenSQLRecorder opens a connection pool for driver and verifies it
func OpenSQLRecorder(ctx context.Context, driver, dsn, table string) (*SQLRecorder, error) {
	if dsn == "" {
		return nil, errors.ValidationError("audit.dsn", dsn, "a data source name is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "Failed to open audit database").
			WithContext("driver", driver)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "Failed to connect to audit database").
			WithContext("driver", driver).
			WithSuggestions("Check audit.dsn", "Verify the database is reachable").
			AsRecoverable()
	}

	return NewSQLRecorder(db, driver, table)
}

// NewSQLRecorder wraps an existing pool
func NewSQLRecorder(db *sql.DB, driver, table string) (*SQLRecorder, error) {
	if table == "" {
		table = DefaultAuditTable
	}
	if !tableName.MatchString(table) {
		return nil, errors.ValidationError("audit.table", table, "not a valid table identifier")
	}
	return &SQLRecorder{
		db:      db,
		driver:  driver,
		table:   table,
		timeout: 30 * time.Second,
		logger:  logging.Get("store.audit"),
	}, nil
}

// EnsureSchema creates the audit table when it does not exist
func (r *SQLRecorder) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	promotion_id VARCHAR(128) NOT NULL,
	source_env VARCHAR(128) NOT NULL,
	target_env VARCHAR(128) NOT NULL,
	source_commit VARCHAR(64),
	target_commit VARCHAR(64),
	status VARCHAR(32) NOT NULL,
	requested_by VARCHAR(128),
	approved_by VARCHAR(128),
	error_message TEXT,
	conflicts TEXT,
	recorded_at TIMESTAMP NOT NULL
)`, r.table)

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to create audit table").
			WithContext("table", r.table)
	}
	return nil
}

// RecordPromotion implements environment.Recorder
func (r *SQLRecorder) RecordPromotion(req environment.PromotionRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	conflicts, err := json.Marshal(req.Conflicts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode conflicts")
	}

	recordedAt := req.UpdatedAt
	if req.CompletedAt != nil {
		recordedAt = *req.CompletedAt
	}

	columns := []string{
		"promotion_id", "source_env", "target_env", "source_commit", "target_commit",
		"status", "requested_by", "approved_by", "error_message", "conflicts", "recorded_at",
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table, strings.Join(columns, ", "), r.placeholders(len(columns)))

	_, err = r.db.ExecContext(ctx, query,
		req.ID,
		req.Source,
		req.Target,
		req.SourceCommit,
		req.TargetCommit,
		req.Status.String(),
		req.RequestedBy,
		req.ApprovedBy,
		req.Error,
		string(conflicts),
		recordedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "Failed to record promotion").
			WithContext("promotion", req.ID).
			WithContext("table", r.table)
	}

	r.logger.Debug().
		Str("promotion", req.ID).
		Str("status", req.Status.String()).
		Msg("Promotion recorded")
	return nil
}

// Close releases the connection pool
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

func (r *SQLRecorder) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		if r.driver == "postgres" {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	return strings.Join(marks, ", ")
}
