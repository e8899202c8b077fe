package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SharedValue is one row per (session, name).
type SharedValue struct {
	Session   string `gorm:"primaryKey;size:16"`
	Name      string `gorm:"primaryKey;size:64"`
	Version   int    `gorm:"not null"`
	Data      []byte `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects and migrates the schema.
func OpenPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgres(db, log)
}

func NewPostgres(db *gorm.DB, log *zap.Logger) (*Postgres, error) {
	if err := db.AutoMigrate(&SharedValue{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db, log: log.Named("store")}, nil
}

func (p *Postgres) Load(ctx context.Context, code string) ([]Value, error) {
	var rows []SharedValue
	err := p.db.WithContext(ctx).
		Where("session = ?", code).
		Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", code, err)
	}
	out := make([]Value, len(rows))
	for i, r := range rows {
		out[i] = Value{Name: r.Name, Version: r.Version, Data: r.Data}
	}
	return out, nil
}

func (p *Postgres) Save(ctx context.Context, code string, v Value) error {
	row := SharedValue{Session: code, Name: v.Name, Version: v.Version, Data: v.Data}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "data", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", code, v.Name, err)
	}
	return nil
}

func (p *Postgres) Purge(ctx context.Context, code string) error {
	res := p.db.WithContext(ctx).Where("session = ?", code).Delete(&SharedValue{})
	if res.Error != nil {
		return fmt.Errorf("purge %s: %w", code, res.Error)
	}
	p.log.Debug("purged session", zap.String("code", code), zap.Int64("rows", res.RowsAffected))
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
