package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalogd/internal/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewGormStoreFromDB(db)
}

// NewGormStoreFromDB wraps an already-open gorm DB. Tests use this with the
// sqlite driver.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ServiceModel{}, &FileRecordModel{}, &UserModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveService stores or updates a service.
func (s *GormStore) SaveService(svc domain.Service) error {
	model, err := serviceToModel(svc)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sub_services", "updated_at"}),
	}).Create(&model).Error
}

// GetService retrieves a service.
func (s *GormStore) GetService(id string) (domain.Service, bool, error) {
	var model ServiceModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Service{}, false, nil
		}
		return domain.Service{}, false, err
	}
	svc, err := serviceFromModel(model)
	if err != nil {
		return domain.Service{}, false, err
	}
	return svc, true, nil
}

// ListServices returns all services ordered by created_at.
func (s *GormStore) ListServices() ([]domain.Service, error) {
	var models []ServiceModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Service, 0, len(models))
	for _, m := range models {
		svc, err := serviceFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, svc)
	}
	return res, nil
}

// DeleteService removes a service. File records are detached separately by
// the catalog layer so the object-store cleanup can run per record.
func (s *GormStore) DeleteService(id string) error {
	return s.db.Delete(&ServiceModel{}, "id = ?", id).Error
}

// SaveFileRecord stores or overwrites the record for one (service, sub-service) pair.
func (s *GormStore) SaveFileRecord(rec domain.FileRecord) error {
	model := fileRecordToModel(rec)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_id"}, {Name: "sub_service"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"url", "name", "content_type", "size_bytes", "uploaded_at", "purchase_link", "storage_key",
		}),
	}).Create(&model).Error
}

// GetFileRecord retrieves the record for a composite key.
func (s *GormStore) GetFileRecord(key domain.FileKey) (domain.FileRecord, bool, error) {
	var model FileRecordModel
	err := s.db.First(&model, "service_id = ? AND sub_service = ?", key.ServiceID, key.SubService).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.FileRecord{}, false, nil
		}
		return domain.FileRecord{}, false, err
	}
	return fileRecordFromModel(model), true, nil
}

// ListFileRecordsByService returns all records for one service.
func (s *GormStore) ListFileRecordsByService(serviceID string) ([]domain.FileRecord, error) {
	var models []FileRecordModel
	if err := s.db.Order("sub_service ASC").Find(&models, "service_id = ?", serviceID).Error; err != nil {
		return nil, err
	}
	res := make([]domain.FileRecord, 0, len(models))
	for _, m := range models {
		res = append(res, fileRecordFromModel(m))
	}
	return res, nil
}

// DeleteFileRecord removes the record for a composite key.
func (s *GormStore) DeleteFileRecord(key domain.FileKey) error {
	return s.db.Delete(&FileRecordModel{}, "service_id = ? AND sub_service = ?", key.ServiceID, key.SubService).Error
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func serviceToModel(svc domain.Service) (ServiceModel, error) {
	subs := svc.SubServices
	if subs == nil {
		subs = []string{}
	}
	encoded, err := json.Marshal(subs)
	if err != nil {
		return ServiceModel{}, fmt.Errorf("encode sub-services: %w", err)
	}
	return ServiceModel{
		ID:          svc.ID,
		Name:        svc.Name,
		SubServices: string(encoded),
		CreatedAt:   svc.CreatedAt,
		UpdatedAt:   svc.UpdatedAt,
	}, nil
}

func serviceFromModel(m ServiceModel) (domain.Service, error) {
	subs := []string{}
	if m.SubServices != "" {
		if err := json.Unmarshal([]byte(m.SubServices), &subs); err != nil {
			return domain.Service{}, fmt.Errorf("decode sub-services: %w", err)
		}
	}
	return domain.Service{
		ID:          m.ID,
		Name:        m.Name,
		SubServices: subs,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func fileRecordToModel(rec domain.FileRecord) FileRecordModel {
	return FileRecordModel{
		ServiceID:    rec.Key.ServiceID,
		SubService:   rec.Key.SubService,
		URL:          rec.URL,
		Name:         rec.Name,
		ContentType:  rec.Type,
		SizeBytes:    rec.Size,
		UploadedAt:   rec.UploadedAt,
		PurchaseLink: rec.PurchaseLink,
		StorageKey:   rec.StorageKey,
	}
}

func fileRecordFromModel(m FileRecordModel) domain.FileRecord {
	return domain.FileRecord{
		Key:          domain.FileKey{ServiceID: m.ServiceID, SubService: m.SubService},
		URL:          m.URL,
		Name:         m.Name,
		Type:         m.ContentType,
		Size:         m.SizeBytes,
		UploadedAt:   m.UploadedAt,
		PurchaseLink: m.PurchaseLink,
		StorageKey:   m.StorageKey,
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}
