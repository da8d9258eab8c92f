package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"device-ingest/configs"
	"device-ingest/internal/models"

	"golang.org/x/exp/slog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const insertBatchSize = 500

var ErrDeviceNotFound = errors.New("device not found in directory")

type DBManager struct {
	WriteDB     *gorm.DB
	ReadDBs     []*gorm.DB
	nextReplica int
	replicaMu   sync.Mutex
	log         *slog.Logger
}

func gormLogLevel(env string) gormlogger.LogLevel {
	if env == configs.EnvProd {
		return gormlogger.Warn
	}
	return gormlogger.Info
}

// NewDBManager opens the write database, migrates the device directory and
// opens cfg.ReadReplicas read connections.
func NewDBManager(cfg *configs.Config, log *slog.Logger) (*DBManager, error) {
	m := &DBManager{
		ReadDBs: make([]*gorm.DB, 0, cfg.ReadReplicas),
		log:     log.With("component", "database"),
	}
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.Env)),
	}

	writeDB, err := gorm.Open(mysql.Open(cfg.DatabaseURL), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to write database: %w", err)
	}
	m.WriteDB = writeDB

	if err := m.WriteDB.AutoMigrate(&models.Device{}, &models.Transcription{}); err != nil {
		return nil, fmt.Errorf("migrating shared tables: %w", err)
	}

	sqlDB, err := m.WriteDB.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	// Replicas share the DSN here; point READ_REPLICAS at real hosts behind a proxy.
	for i := 0; i < cfg.ReadReplicas; i++ {
		readDB, err := gorm.Open(mysql.Open(cfg.DatabaseURL), gormCfg)
		if err != nil {
			m.log.Warn("failed to connect to read replica", "replica", i, "error", err)
			continue
		}
		m.ReadDBs = append(m.ReadDBs, readDB)
	}

	m.log.Info("database connection established", "read_replicas", len(m.ReadDBs))
	return m, nil
}

// GetReadDB returns a read replica using round-robin
func (m *DBManager) GetReadDB() *gorm.DB {
	m.replicaMu.Lock()
	defer m.replicaMu.Unlock()

	if len(m.ReadDBs) == 0 {
		return m.WriteDB
	}

	db := m.ReadDBs[m.nextReplica]
	m.nextReplica = (m.nextReplica + 1) % len(m.ReadDBs)
	return db
}

// EnsureTable creates or migrates the named table from model's struct.
func (m *DBManager) EnsureTable(ctx context.Context, name string, model any) error {
	return m.WriteDB.WithContext(ctx).Table(name).AutoMigrate(model)
}

// InsertRows writes rows to table in batches inside one transaction.
func (m *DBManager) InsertRows(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	return m.WriteDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			if err := tx.Table(table).Create(rows[start:end]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RowQuery selects a page of rows from one partition table.
type RowQuery struct {
	Offset   int
	Limit    int
	Uploaded *bool
	OrderBy  string // column, always descending
}

// QueryRows returns the requested page and the total number of matching rows.
func (m *DBManager) QueryRows(ctx context.Context, table string, q RowQuery) ([]map[string]any, int64, error) {
	base := m.GetReadDB().WithContext(ctx).Table(table)
	if q.Uploaded != nil {
		base = base.Where("uploaded = ?", *q.Uploaded)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	rows := make([]map[string]any, 0, q.Limit)
	err := base.
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: true}).
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SaveDevice inserts a device directory row.
func (m *DBManager) SaveDevice(ctx context.Context, d *models.Device) error {
	return m.WriteDB.WithContext(ctx).Create(d).Error
}

// FindDevice loads a device directory row by device id.
func (m *DBManager) FindDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var d models.Device
	err := m.GetReadDB().WithContext(ctx).Where("device_id = ?", deviceID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Ping checks the write connection.
func (m *DBManager) Ping(ctx context.Context) error {
	sqlDB, err := m.WriteDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes every open connection pool.
func (m *DBManager) Close() error {
	var errs []error
	for _, db := range append([]*gorm.DB{m.WriteDB}, m.ReadDBs...) {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
