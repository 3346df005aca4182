package repository

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/callpath-core/pkg/config"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/telemetry"
)

// DBType names a supported database.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
)

const (
	defaultMaxConns = 10
	pingTimeout     = 10 * time.Second
)

// ParseDBType resolves a configured type. Empty means SQLite.
func ParseDBType(s string) (DBType, error) {
	switch s {
	case "", "sqlite", "sqlite3":
		return DBTypeSQLite, nil
	case "postgres", "postgresql":
		return DBTypePostgres, nil
	case "mysql":
		return DBTypeMySQL, nil
	}
	return "", apperrors.Newf(apperrors.CodeConfigError, "unsupported database type %q", s)
}

// Dialector returns the GORM dialector for cfg. An SQLite database with no
// file name lives in shared memory.
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	typ, err := ParseDBType(cfg.Type)
	if err != nil {
		return nil, err
	}
	switch typ {
	case DBTypePostgres:
		return postgres.Open(postgresDSN(cfg)), nil
	case DBTypeMySQL:
		return mysql.Open(mysqlDSN(cfg)), nil
	default:
		return sqlite.Open(cmp.Or(cfg.Database, "file::memory:?cache=shared")), nil
	}
}

func hostPort(cfg *config.DatabaseConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func postgresDSN(cfg *config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     hostPort(cfg),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func mysqlDSN(cfg *config.DatabaseConfig) string {
	c := gomysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = hostPort(cfg)
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.Local
	return c.FormatDSN()
}

// NewGormDB opens and pings the configured database. SQLite is limited to
// one connection so concurrent trace flushes queue instead of failing with
// SQLITE_BUSY.
func NewGormDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "open database", err)
	}
	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "install gorm tracing", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "open database", err)
	}
	conns := cfg.MaxConns
	if conns <= 0 {
		conns = defaultMaxConns
	}
	if typ, _ := ParseDBType(cfg.Type); typ == DBTypeSQLite {
		conns = 1
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(max(conns/2, 1))
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, fmt.Sprintf("ping %s database", cmp.Or(cfg.Type, "sqlite")), err)
	}
	return db, nil
}

// Repositories bundles the run and trace repositories over one connection.
type Repositories struct {
	Run   RunRepository
	Trace TraceRepository

	db *gorm.DB
}

// NewRepositories wires repositories for dbType. Postgres and MySQL write
// traces with raw multi-row inserts; SQLite goes through GORM.
func NewRepositories(db *gorm.DB, dbType string) *Repositories {
	r := &Repositories{
		Run:   NewGormRunRepository(db),
		Trace: NewGormTraceRepository(db),
		db:    db,
	}
	if typ, _ := ParseDBType(dbType); typ == DBTypePostgres || typ == DBTypeMySQL {
		if sqlDB, err := db.DB(); err == nil {
			r.Trace = NewSQLTraceRepository(sqlDB, DialectFor(dbType))
		}
	}
	return r
}

// Migrate creates or updates the run and trace tables.
func (r *Repositories) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "migrate schema", err)
	}
	return nil
}

// HealthCheck pings the database.
func (r *Repositories) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (r *Repositories) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the pooled connection, or nil.
func (r *Repositories) DB() *sql.DB {
	sqlDB, _ := r.db.DB()
	return sqlDB
}

// GormDB returns the GORM handle.
func (r *Repositories) GormDB() *gorm.DB { return r.db }
