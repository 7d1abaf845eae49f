/*
Copyright 2024 The ember-csi-go Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package db implements the persistence.Store interface over a relational
// database via gorm, dialect-agnostic across sqlite (for single-process
// deployments and tests) and postgres (for clustered controllers).
package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

// Dialect selects the SQL backend gorm connects to.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config configures the db-backed Store.
type Config struct {
	Dialect Dialect
	DSN     string
}

// volumeRow, snapshotRow, connectionRow and keyValueRow are gorm models.
// Each mirrors its persistence.* counterpart with a string primary key and
// JSON-unfriendly map fields flattened to JSON text columns, since the
// teacher's stack has no prior art for an ORM layer and the column
// shapes here are led entirely by persistence.Store's own field types.
type volumeRow struct {
	ID               string `gorm:"primaryKey"`
	Name             string `gorm:"index"`
	SizeGB           int64
	Status           string
	BackendID        string `gorm:"index"`
	SourceSnapshotID string
	SourceVolumeID   string
	Metadata         string
	CreatedAt        int64 `gorm:"index"`
}

type snapshotRow struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"index"`
	VolumeID   string `gorm:"index"`
	VolumeSize int64
	Status     string
	BackendID  string `gorm:"index"`
	CreatedAt  int64 `gorm:"index"`
}

type connectionRow struct {
	ID             string `gorm:"primaryKey"`
	VolumeID       string `gorm:"index"`
	AttachedHost   string
	ConnectorInfo  string
	ConnectionInfo string
	Capability     string
	Mountpoint     string
	AttachMode     string
	InstanceUUID   string
	Status         string
	CreatedAt      int64
}

type keyValueRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Store is the gorm-backed persistence.Store implementation.
type Store struct {
	db *gorm.DB
}

// New opens (and migrates) the database described by cfg.
func New(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DialectPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("db: unsupported dialect %q", cfg.Dialect)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Dialect, err)
	}

	if err := gdb.AutoMigrate(&volumeRow{}, &snapshotRow{}, &connectionRow{}, &keyValueRow{}); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	return &Store{db: gdb}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

var _ persistence.Store = (*Store)(nil)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
