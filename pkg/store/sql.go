package store

import (
	"context"
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Preference struct {
	ID       uint   `gorm:"primaryKey"`
	EntityID string `gorm:"unique;size:64"`
	Disabled bool
}

type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Preference{})
	if err != nil {
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) find(ctx context.Context, id string) (*Preference, error) {
	var preference Preference
	err := s.db.WithContext(ctx).Where(Preference{
		EntityID: id,
	}).First(&preference).Error
	if err != nil {
		return nil, err
	}
	return &preference, nil
}

func (s *SQLStore) Disabled(ctx context.Context, id string) (bool, error) {
	preference, err := s.find(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return preference.Disabled, nil
}

func (s *SQLStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	preference, err := s.find(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(&Preference{
			EntityID: id,
			Disabled: disabled,
		}).Error
	}
	if err != nil {
		return err
	}

	preference.Disabled = disabled
	return s.db.WithContext(ctx).Save(preference).Error
}

func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
