package database

import (
	"errors"

	"github.com/famlink/famlink/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Connect opens a postgres connection and migrates the schema.
func Connect(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.Migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Migrate creates or updates the schema for all chat models.
func (d *Database) Migrate() error {
	return d.db.AutoMigrate(
		&models.User{},
		&models.Family{},
		&models.FamilyMember{},
		&models.ChatRoom{},
		&models.ChatRoomMember{},
		&models.Message{},
		&models.Reaction{},
	)
}
