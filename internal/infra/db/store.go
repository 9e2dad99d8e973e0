package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"certledger/internal/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSQLiteDSN = "certledger.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

type Store struct {
	DB           *gorm.DB
	Admins       *AdminRepository
	Certificates *CertificateRepository
	Revocations  *RevocationRepository
	Logs         *RevocationLogRepository
	SyncStatus   *SyncStatusRepository
}

func NewStore(cfg config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gdb, err := Open(cfg.DBDriver, cfg.DBDSN, cfg.LogLevel == "debug")
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY inside transactions.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}
	store := NewStoreFromDB(gdb)
	if cfg.DBAutoMigrate {
		if err := store.Migrate(context.Background()); err != nil {
			return nil, err
		}
		logger.Info("database migrated", zap.String("driver", cfg.DBDriver))
	}
	return store, nil
}

// Open connects to postgres or sqlite without migrating.
func Open(driver, dsn string, debug bool) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return dbTime(time.Now()) },
	}
	if debug {
		gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	switch strings.ToLower(driver) {
	case "postgres", "":
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		gdb, err := gorm.Open(postgres.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return gdb, nil
	case "sqlite":
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		gdb, err := gorm.Open(sqlite.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return gdb, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func NewStoreFromDB(gdb *gorm.DB) *Store {
	return &Store{
		DB:           gdb,
		Admins:       NewAdminRepository(gdb),
		Certificates: NewCertificateRepository(gdb),
		Revocations:  NewRevocationRepository(gdb),
		Logs:         NewRevocationLogRepository(gdb),
		SyncStatus:   NewSyncStatusRepository(gdb),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	if err := s.DB.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
