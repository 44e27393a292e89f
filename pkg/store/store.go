// Package store executes the upsert stored procedures that persist fetched
// terms and taxonomy rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq"               // postgres driver
	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
)

var upsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "termsync_upserts_total",
	Help: "Total stored procedure executions by procedure and status",
}, []string{"procedure", "status"})

// Supported database/sql driver names.
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
)

// Type tags for procedure parameters.
const (
	TypeString = "str"
	TypeInt    = "int"
	TypeBool   = "bool"
)

var (
	// ErrInvalidProcedure is returned for procedure names that are not plain
	// (optionally schema-qualified) identifiers.
	ErrInvalidProcedure = errors.New("invalid procedure name")

	// ErrUnsupportedDriver is returned by Open for unknown driver names.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

var procedurePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Param is one named procedure parameter.
type Param struct {
	Name  string
	Type  string
	Value any
}

// String builds a string-typed parameter. A nil value is passed as SQL NULL.
func String(name string, value any) Param {
	return Param{Name: name, Type: TypeString, Value: value}
}

// Executor runs a stored procedure once with the given parameters. Each call is
// expected to be an idempotent insert-or-update.
type Executor interface {
	Execute(ctx context.Context, procedure string, params []Param) error
}

// PersistenceError reports a failed procedure execution for a single record.
type PersistenceError struct {
	Procedure string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Procedure, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Execer is the subset of *sql.DB used by SQLExecutor.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLExecutor executes procedures through database/sql.
type SQLExecutor struct {
	db     Execer
	driver string
	logger zerolog.Logger
}

// NewSQLExecutor creates an executor for the given driver dialect.
func NewSQLExecutor(db Execer, driver string, logger zerolog.Logger) (*SQLExecutor, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	switch driver {
	case DriverSQLServer, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return &SQLExecutor{
		db:     db,
		driver: driver,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Execute runs procedure with params. Failures are returned as *PersistenceError.
func (e *SQLExecutor) Execute(ctx context.Context, procedure string, params []Param) error {
	if !procedurePattern.MatchString(procedure) {
		upsertsTotal.WithLabelValues(procedure, "invalid").Inc()
		return &PersistenceError{Procedure: procedure, Err: ErrInvalidProcedure}
	}

	args := make([]any, 0, len(params))
	for _, p := range params {
		v, err := convert(p)
		if err != nil {
			upsertsTotal.WithLabelValues(procedure, "invalid").Inc()
			return &PersistenceError{Procedure: procedure, Err: err}
		}
		if e.driver == DriverSQLServer {
			args = append(args, sql.Named(p.Name, v))
		} else {
			args = append(args, v)
		}
	}

	start := time.Now()
	if _, err := e.db.ExecContext(ctx, e.statement(procedure, len(params)), args...); err != nil {
		upsertsTotal.WithLabelValues(procedure, "error").Inc()
		return &PersistenceError{Procedure: procedure, Err: err}
	}
	upsertsTotal.WithLabelValues(procedure, "ok").Inc()

	e.logger.Debug().
		Str("procedure", procedure).
		Int("params", len(params)).
		Dur("duration", time.Since(start)).
		Msg("Procedure executed")
	return nil
}

// statement builds the driver specific call text. For sqlserver a bare
// procedure name is executed as an RPC with named parameters.
func (e *SQLExecutor) statement(procedure string, n int) string {
	if e.driver == DriverSQLServer {
		return procedure
	}
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("CALL %s(%s)", procedure, strings.Join(placeholders, ", "))
}

func convert(p Param) (any, error) {
	if p.Value == nil {
		return nil, nil
	}
	switch p.Type {
	case TypeString, "":
		if s, ok := p.Value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(p.Value), nil
	case TypeInt, TypeBool:
		return p.Value, nil
	default:
		return nil, fmt.Errorf("parameter %s: unknown type tag %q", p.Name, p.Type)
	}
}

// Open opens and verifies a database handle for driver.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLServer, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if dsn == "" {
		return nil, errors.New("connection string is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}
