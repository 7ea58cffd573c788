// Package sqlite is the client's local store. SQLite rather than a server
// database: everything persisted here (messaging identity key, journey
// history) belongs to a single user on a single machine.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"

	"taxicoin/config"
	"taxicoin/pkg/logger"
	"taxicoin/storage"
)

type Store struct {
	db  *sql.DB
	log logger.ILogger
}

func New(ctx context.Context, cfg config.Config, log logger.ILogger) (storage.IStorage, error) {
	db, err := sql.Open("sqlite3", cfg.StorePath)
	if err != nil {
		log.Error("failed to open local store", logger.Error(err))
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping local store", logger.Error(err))
		db.Close()
		return nil, err
	}

	mPath, err := migrationsPath()
	if err != nil {
		log.Error("migrations directory not found", logger.Error(err))
		db.Close()
		return nil, err
	}

	m, err := migrate.New("file://"+mPath, "sqlite3://"+cfg.StorePath)
	if err != nil {
		log.Error("migration init error", logger.Error(err))
		db.Close()
		return nil, err
	}
	if err = m.Up(); err != nil {
		if strings.Contains(err.Error(), "no change") {
			log.Info("no migrations to apply")
		} else {
			log.Error("migration up error", logger.Error(err))
			db.Close()
			return nil, err
		}
	}
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		log.Warning("migration close error", logger.Any("source", srcErr), logger.Any("db", dbErr))
	}

	log.Info("local store ready", logger.String("path", cfg.StorePath))

	return &Store{db: db, log: log}, nil
}

// migrationsPath walks up from the working directory until it finds
// migrations/sqlite, so the store opens the same way from the repo root and
// from package test directories.
func migrationsPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, "migrations", "sqlite")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func (s *Store) Identity() storage.IIdentityStorage {
	return &identityRepo{db: s.db, log: s.log}
}

func (s *Store) Journey() storage.IJourneyStorage {
	return &journeyRepo{db: s.db, log: s.log}
}

func (s *Store) Close() {
	s.db.Close()
}
