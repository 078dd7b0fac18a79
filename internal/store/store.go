package store

import "catalogd/internal/domain"

// Store defines persistence operations for services, file records, and users.
type Store interface {
	// services
	SaveService(domain.Service) error
	GetService(id string) (domain.Service, bool, error)
	ListServices() ([]domain.Service, error)
	DeleteService(id string) error

	// file records
	SaveFileRecord(domain.FileRecord) error
	GetFileRecord(key domain.FileKey) (domain.FileRecord, bool, error)
	ListFileRecordsByService(serviceID string) ([]domain.FileRecord, error)
	DeleteFileRecord(key domain.FileKey) error

	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
