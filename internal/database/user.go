package database

import (
	"errors"
	"time"

	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (d *Database) SaveUser(user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return d.db.Create(user).Error
}

func (d *Database) GetUser(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := d.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// DisplayName resolves the name shown on typing events and presence
// profiles. Unknown users render as an empty string.
func (d *Database) DisplayName(id uuid.UUID) (string, error) {
	var user models.User
	err := d.db.Select("username").First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func (d *Database) UpdateLastSeen(id uuid.UUID) error {
	return d.db.Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", time.Now()).Error
}
