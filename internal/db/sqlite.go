package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pysugar/microblog/internal/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// Open resolves databaseURL, connects and runs migrations.
func Open(databaseURL string, testing bool, log *zap.Logger) (*gorm.DB, error) {
	dsn, inMemory, err := ResolveDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log, testing),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if inMemory {
		// Every new connection to a named in-memory database starts empty
		// once the last one closes, so keep exactly one alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := migrate(db); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// migrate creates or updates every table the application owns.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Post{}, &models.Session{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ResolveDSN turns a database URL into a SQLite DSN. "sqlite://" with no
// path yields a private in-memory database with a unique name.
func ResolveDSN(databaseURL string) (dsn string, inMemory bool, err error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return "", false, fmt.Errorf("empty database url")
	case u == sqliteScheme || u == sqliteScheme+":memory:":
		return "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)", true, nil
	case strings.HasPrefix(u, sqliteScheme):
		path := strings.TrimPrefix(u, sqliteScheme)
		return withPragmas(path), false, nil
	case strings.Contains(u, "://"):
		return "", false, fmt.Errorf("unsupported database url %q", u)
	default:
		return withPragmas(u), false, nil
	}
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func newGormLogger(log *zap.Logger, testing bool) logger.Interface {
	if testing || log == nil {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
