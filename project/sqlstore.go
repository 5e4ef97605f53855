package project

import (
	"encoding/json"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/loomworks/loom/types"
)

// assetRow is the relational form of an asset. Composite values travel as
// JSON columns.
type assetRow struct {
	ID        string `gorm:"primaryKey"`
	Kind      string
	Value     string
	ValueMeta string
	Config    string
	Name      string
	Source    string
	CreatedAt int64 `gorm:"autoCreateTime:false"`
	UpdatedAt int64 `gorm:"autoUpdateTime:false"`
	Hash      string
	Version   int
}

func (assetRow) TableName() string { return "assets" }

// historyRow is one content snapshot of an asset.
type historyRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	AssetID   string `gorm:"index"`
	Hash      string
	Value     string
	CreatedAt int64 `gorm:"autoCreateTime:false"`
}

func (historyRow) TableName() string { return "asset_history" }

// settingRow is one key/value settings entry, value JSON-encoded. Model
// credentials live here under their provider key.
type settingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (settingRow) TableName() string { return "settings" }

// SQLStore persists assets, asset history, and settings in SQLite.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLStore opens (or creates) the database at path and migrates the
// schema.
func OpenSQLStore(path string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrProjectUnavailable, "open project database").WithCause(err)
	}
	if err := db.AutoMigrate(&assetRow{}, &historyRow{}, &settingRow{}); err != nil {
		return nil, types.NewError(types.ErrProjectUnavailable, "migrate project database").WithCause(err)
	}
	return &SQLStore{db: db, logger: logger.With(zap.String("component", "project_sql"))}, nil
}

// Close releases the underlying connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAssets replaces the stored asset set with the given one.
func (s *SQLStore) SaveAssets(assets []types.Asset) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&assetRow{}).Error; err != nil {
			return err
		}
		for _, a := range assets {
			row, err := toAssetRow(a)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAssets reads every stored asset.
func (s *SQLStore) LoadAssets() ([]types.Asset, error) {
	var rows []assetRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrProjectUnavailable, "load assets").WithCause(err)
	}
	assets := make([]types.Asset, 0, len(rows))
	for _, row := range rows {
		a, err := fromAssetRow(row)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// AppendHistory records one content snapshot.
func (s *SQLStore) AppendHistory(assetID string, hash types.Fingerprint, value any, createdAt int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return types.NewError(types.ErrProjectUnavailable, "encode history value").WithCause(err)
	}
	return s.db.Create(&historyRow{
		AssetID:   assetID,
		Hash:      string(hash),
		Value:     string(data),
		CreatedAt: createdAt,
	}).Error
}

// HistorySnapshot is one persisted content version of an asset.
type HistorySnapshot struct {
	AssetID   string
	Hash      types.Fingerprint
	Value     any
	CreatedAt int64
}

// HistoryFor returns an asset's snapshots, newest first, up to limit
// (limit <= 0 means all).
func (s *SQLStore) HistoryFor(assetID string, limit int) ([]HistorySnapshot, error) {
	q := s.db.Where("asset_id = ?", assetID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []historyRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrProjectUnavailable, "load history").WithCause(err)
	}
	out := make([]HistorySnapshot, 0, len(rows))
	for _, row := range rows {
		var value any
		if err := json.Unmarshal([]byte(row.Value), &value); err != nil {
			return nil, types.NewError(types.ErrProjectUnavailable, "decode history value").WithCause(err)
		}
		out = append(out, HistorySnapshot{
			AssetID:   row.AssetID,
			Hash:      types.Fingerprint(row.Hash),
			Value:     value,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// PutSetting stores a JSON-encoded settings value under key.
func (s *SQLStore) PutSetting(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return types.NewError(types.ErrProjectUnavailable, "encode setting").WithCause(err)
	}
	row := settingRow{Key: key, Value: string(data)}
	return s.db.Save(&row).Error
}

// GetSetting decodes the settings value under key into out. Missing keys
// leave out untouched and return false.
func (s *SQLStore) GetSetting(key string, out any) (bool, error) {
	var row settingRow
	err := s.db.First(&row, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, types.NewError(types.ErrProjectUnavailable, "load setting").WithCause(err)
	}
	if err := json.Unmarshal([]byte(row.Value), out); err != nil {
		return false, types.NewError(types.ErrProjectUnavailable, "decode setting").WithCause(err)
	}
	return true, nil
}

func toAssetRow(a types.Asset) (assetRow, error) {
	value, err := json.Marshal(a.Value)
	if err != nil {
		return assetRow{}, types.NewError(types.ErrProjectUnavailable, "encode asset value").WithCause(err)
	}
	valueMeta, err := json.Marshal(a.ValueMeta)
	if err != nil {
		return assetRow{}, types.NewError(types.ErrProjectUnavailable, "encode asset meta").WithCause(err)
	}
	config, err := json.Marshal(a.Config)
	if err != nil {
		return assetRow{}, types.NewError(types.ErrProjectUnavailable, "encode asset config").WithCause(err)
	}
	return assetRow{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Value:     string(value),
		ValueMeta: string(valueMeta),
		Config:    string(config),
		Name:      a.Sys.Name,
		Source:    string(a.Sys.Source),
		CreatedAt: a.Sys.CreatedAt,
		UpdatedAt: a.Sys.UpdatedAt,
		Hash:      string(a.Hash),
		Version:   a.Version,
	}, nil
}

func fromAssetRow(row assetRow) (types.Asset, error) {
	a := types.Asset{
		ID:   row.ID,
		Kind: types.AssetKind(row.Kind),
		Sys: types.SysMeta{
			Name:      row.Name,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Source:    types.AssetSource(row.Source),
		},
		Hash:    types.Fingerprint(row.Hash),
		Version: row.Version,
	}
	if err := json.Unmarshal([]byte(row.Value), &a.Value); err != nil {
		return types.Asset{}, types.NewError(types.ErrProjectUnavailable, "decode asset value").WithCause(err)
	}
	if row.ValueMeta != "" && row.ValueMeta != "null" {
		if err := json.Unmarshal([]byte(row.ValueMeta), &a.ValueMeta); err != nil {
			return types.Asset{}, types.NewError(types.ErrProjectUnavailable, "decode asset meta").WithCause(err)
		}
	}
	if row.Config != "" && row.Config != "null" {
		if err := json.Unmarshal([]byte(row.Config), &a.Config); err != nil {
			return types.Asset{}, types.NewError(types.ErrProjectUnavailable, "decode asset config").WithCause(err)
		}
	}
	return a, nil
}
