package store

import (
	"sync"

	"catalogd/internal/domain"
	"catalogd/internal/util"
)

// MemoryStore keeps everything in-process. Tests use it in place of the
// Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[string]domain.Service
	order    []string // service IDs in insertion order
	files    map[domain.FileKey]domain.FileRecord
	users    map[string]domain.User // key: user ID
	email    map[string]string      // email -> user ID
	sess     map[string]string      // token -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services: make(map[string]domain.Service),
		files:    make(map[domain.FileKey]domain.FileRecord),
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		sess:     make(map[string]string),
	}
}

// SaveService stores or replaces a service and tracks insertion order.
func (m *MemoryStore) SaveService(svc domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[svc.ID]; !exists {
		m.order = append(m.order, svc.ID)
	}
	m.services[svc.ID] = svc
	return nil
}

// GetService retrieves a service by ID.
func (m *MemoryStore) GetService(id string) (domain.Service, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	return svc, ok, nil
}

// ListServices returns services in insertion order.
func (m *MemoryStore) ListServices() ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Service, 0, len(m.order))
	for _, id := range m.order {
		if svc, ok := m.services[id]; ok {
			res = append(res, svc)
		}
	}
	return res, nil
}

// DeleteService removes a service.
func (m *MemoryStore) DeleteService(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// SaveFileRecord stores or overwrites a file record.
func (m *MemoryStore) SaveFileRecord(rec domain.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[rec.Key] = rec
	return nil
}

// GetFileRecord retrieves a file record by composite key.
func (m *MemoryStore) GetFileRecord(key domain.FileKey) (domain.FileRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[key]
	return rec, ok, nil
}

// ListFileRecordsByService returns records filtered by service ID.
func (m *MemoryStore) ListFileRecordsByService(serviceID string) ([]domain.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.FileRecord, 0)
	for key, rec := range m.files {
		if key.ServiceID == serviceID {
			res = append(res, rec)
		}
	}
	return res, nil
}

// DeleteFileRecord removes a file record.
func (m *MemoryStore) DeleteFileRecord(key domain.FileKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

// SaveUser registers a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// NewSession creates a session token for a user.
func (m *MemoryStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewID()
	m.sess[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to a user ID.
func (m *MemoryStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

// DeleteSession removes a token mapping.
func (m *MemoryStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
