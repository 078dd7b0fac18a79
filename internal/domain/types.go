package domain

import "time"

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// Service is a top-level catalog entry. ID is immutable once created;
// SubServices keeps insertion order and holds each name at most once.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SubServices []string  `json:"subServices"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasSubService reports whether name is already present.
func (s Service) HasSubService(name string) bool {
	for _, sub := range s.SubServices {
		if sub == name {
			return true
		}
	}
	return false
}

// FileKey addresses the document attached to one (service, sub-service) pair.
type FileKey struct {
	ServiceID  string `json:"serviceId"`
	SubService string `json:"subService"`
}

// String renders the legacy "<serviceId>-<subService>" form used in page
// anchors. It is display-only; persistence keys on both fields separately.
func (k FileKey) String() string {
	return k.ServiceID + "-" + k.SubService
}

// FileRecord describes an uploaded document for one (service, sub-service)
// pair. StorageKey is the exact object-store path written at upload time and
// is the only path used for later deletes.
type FileRecord struct {
	Key          FileKey   `json:"key"`
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
	PurchaseLink string    `json:"purchaseLink,omitempty"`
	StorageKey   string    `json:"-"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
