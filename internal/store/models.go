package store

import "time"

// GORM models used for persistence.
type ServiceModel struct {
	ID          string    `gorm:"primaryKey"`
	Name        string    `gorm:"not null"`
	SubServices string    `gorm:"type:text;not null"` // JSON-encoded []string
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// FileRecordModel keys on the (service_id, sub_service) pair directly instead
// of a concatenated string, so separator characters in names cannot collide.
type FileRecordModel struct {
	ServiceID    string `gorm:"primaryKey;index"`
	SubService   string `gorm:"primaryKey"`
	URL          string `gorm:"not null"`
	Name         string `gorm:"not null"`
	ContentType  string
	SizeBytes    int64
	UploadedAt   time.Time `gorm:"not null"`
	PurchaseLink string
	StorageKey   string `gorm:"not null"`
}

type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}
