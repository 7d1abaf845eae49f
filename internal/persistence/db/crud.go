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

package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

// --- Volume ---

func (s *Store) GetVolumes(ctx context.Context, filter persistence.VolumeFilter) ([]persistence.Volume, error) {
	q := s.db.WithContext(ctx).Model(&volumeRow{})
	if filter.ID != "" {
		q = q.Where("id = ?", filter.ID)
	}
	if filter.Name != "" {
		q = q.Where("name = ?", filter.Name)
	}
	if filter.Backend != "" {
		q = q.Where("backend_id = ?", filter.Backend)
	}

	var rows []volumeRow
	if err := q.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: get volumes: %w", err)
	}

	out := make([]persistence.Volume, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToVolume(r))
	}

	return out, nil
}

func (s *Store) SetVolume(ctx context.Context, v persistence.Volume) error {
	row := volumeToRow(v)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("db: set volume %s: %w", v.ID, err)
	}

	return nil
}

func (s *Store) DeleteVolume(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&volumeRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("db: delete volume %s: %w", id, err)
	}

	return nil
}

// --- Snapshot ---

func (s *Store) GetSnapshots(ctx context.Context, filter persistence.SnapshotFilter) ([]persistence.Snapshot, error) {
	q := s.db.WithContext(ctx).Model(&snapshotRow{})
	if filter.ID != "" {
		q = q.Where("id = ?", filter.ID)
	}
	if filter.Name != "" {
		q = q.Where("name = ?", filter.Name)
	}
	if filter.VolumeID != "" {
		q = q.Where("volume_id = ?", filter.VolumeID)
	}

	var rows []snapshotRow
	if err := q.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: get snapshots: %w", err)
	}

	out := make([]persistence.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToSnapshot(r))
	}

	return out, nil
}

func (s *Store) SetSnapshot(ctx context.Context, sn persistence.Snapshot) error {
	row := snapshotToRow(sn)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("db: set snapshot %s: %w", sn.ID, err)
	}

	return nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&snapshotRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("db: delete snapshot %s: %w", id, err)
	}

	return nil
}

// --- Connection ---

func (s *Store) GetConnections(ctx context.Context, filter persistence.ConnectionFilter) ([]persistence.Connection, error) {
	q := s.db.WithContext(ctx).Model(&connectionRow{})
	if filter.ID != "" {
		q = q.Where("id = ?", filter.ID)
	}
	if filter.VolumeID != "" {
		q = q.Where("volume_id = ?", filter.VolumeID)
	}

	var rows []connectionRow
	if err := q.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: get connections: %w", err)
	}

	out := make([]persistence.Connection, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToConnection(r))
	}

	return out, nil
}

func (s *Store) SetConnection(ctx context.Context, c persistence.Connection) error {
	row := connectionToRow(c)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("db: set connection %s: %w", c.ID, err)
	}

	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&connectionRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("db: delete connection %s: %w", id, err)
	}

	return nil
}

// --- KeyValue ---

func (s *Store) GetKeyValue(ctx context.Context, key string) (persistence.KeyValue, bool, error) {
	var row keyValueRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if isNotFound(err) {
		return persistence.KeyValue{}, false, nil
	}
	if err != nil {
		return persistence.KeyValue{}, false, fmt.Errorf("db: get key value %s: %w", key, err)
	}

	return persistence.KeyValue{Key: row.Key, Value: row.Value}, true, nil
}

func (s *Store) SetKeyValue(ctx context.Context, kv persistence.KeyValue) error {
	row := keyValueRow{Key: kv.Key, Value: kv.Value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("db: set key value %s: %w", kv.Key, err)
	}

	return nil
}

func (s *Store) DeleteKeyValue(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&keyValueRow{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("db: delete key value %s: %w", key, err)
	}

	return nil
}
