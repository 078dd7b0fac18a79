package catalog

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"catalogd/internal/domain"
	"catalogd/internal/storage"
	"catalogd/internal/store"
	"catalogd/internal/util"
)

// Config holds dependencies for the catalog repository.
type Config struct {
	Store         store.Store
	Objects       storage.ObjectStore
	UploadTimeout time.Duration
}

// Catalog owns the service catalog. It keeps an in-process snapshot of all
// services that is rebuilt by Refresh after every mutation; there is no
// incremental cache update and no background sync. Read-after-write
// consistency comes from the full re-read, which is acceptable at catalog
// scale.
type Catalog struct {
	store         store.Store
	objects       storage.ObjectStore
	uploadTimeout time.Duration

	mu       sync.RWMutex
	services []domain.Service
}

// New constructs the catalog and loads the initial snapshot.
func New(cfg Config) (*Catalog, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	c := &Catalog{
		store:         cfg.Store,
		objects:       cfg.Objects,
		uploadTimeout: cfg.UploadTimeout,
	}
	if err := c.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh re-reads every service record into the snapshot. It is the single
// entry point keeping the snapshot in sync with the store.
func (c *Catalog) Refresh(_ context.Context) error {
	services, err := c.store.ListServices()
	if err != nil {
		return fmt.Errorf("%w: list services: %v", ErrBackendUnavailable, err)
	}
	c.mu.Lock()
	c.services = services
	c.mu.Unlock()
	return nil
}

// Services returns the current snapshot.
func (c *Catalog) Services() []domain.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Service, len(c.services))
	copy(out, c.services)
	return out
}

// AddService creates a service with a generated ID and no sub-services.
// Empty or whitespace-only names are a silent no-op.
func (c *Catalog) AddService(ctx context.Context, name string) (domain.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Service{}, ErrValidationSkipped
	}
	now := time.Now().UTC()
	svc := domain.Service{
		ID:          uuid.NewString(),
		Name:        name,
		SubServices: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.SaveService(svc); err != nil {
		return domain.Service{}, fmt.Errorf("%w: save service: %v", ErrBackendUnavailable, err)
	}
	if err := c.Refresh(ctx); err != nil {
		return domain.Service{}, err
	}
	return svc, nil
}

// RenameService overwrites the display name only. The name is intentionally
// not validated for emptiness, matching the add/rename asymmetry of the
// admin dashboard.
func (c *Catalog) RenameService(ctx context.Context, id, newName string) error {
	svc, ok, err := c.store.GetService(id)
	if err != nil {
		return fmt.Errorf("%w: fetch service: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	svc.Name = newName
	svc.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveService(svc); err != nil {
		return fmt.Errorf("%w: save service: %v", ErrBackendUnavailable, err)
	}
	return c.Refresh(ctx)
}

// AddSubService appends a sub-service name with set-union semantics: a name
// already present is not re-added, so repeated calls are idempotent.
func (c *Catalog) AddSubService(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrValidationSkipped
	}
	svc, ok, err := c.store.GetService(id)
	if err != nil {
		return fmt.Errorf("%w: fetch service: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	if svc.HasSubService(name) {
		return nil
	}
	svc.SubServices = append(svc.SubServices, name)
	svc.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveService(svc); err != nil {
		return fmt.Errorf("%w: save service: %v", ErrBackendUnavailable, err)
	}
	return c.Refresh(ctx)
}

// RemoveSubService removes every matching name from the sequence and
// detaches the associated file record, if any, so no orphaned document is
// left behind.
func (c *Catalog) RemoveSubService(ctx context.Context, id, name string) error {
	svc, ok, err := c.store.GetService(id)
	if err != nil {
		return fmt.Errorf("%w: fetch service: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	filtered := make([]string, 0, len(svc.SubServices))
	for _, sub := range svc.SubServices {
		if sub != name {
			filtered = append(filtered, sub)
		}
	}
	svc.SubServices = filtered
	svc.UpdatedAt = time.Now().UTC()
	if err := c.store.SaveService(svc); err != nil {
		return fmt.Errorf("%w: save service: %v", ErrBackendUnavailable, err)
	}
	if err := c.DetachFile(ctx, id, name); err != nil && err != ErrNotFound {
		util.LoggerFromContext(ctx).Warn("cascade detach failed",
			"service_id", id, "sub_service", name, "err", err)
	}
	return c.Refresh(ctx)
}

// DeleteService removes a service and detaches every sub-service file.
func (c *Catalog) DeleteService(ctx context.Context, id string) error {
	svc, ok, err := c.store.GetService(id)
	if err != nil {
		return fmt.Errorf("%w: fetch service: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	for _, sub := range svc.SubServices {
		if err := c.DetachFile(ctx, id, sub); err != nil && err != ErrNotFound {
			util.LoggerFromContext(ctx).Warn("cascade detach failed",
				"service_id", id, "sub_service", sub, "err", err)
		}
	}
	if err := c.store.DeleteService(id); err != nil {
		return fmt.Errorf("%w: delete service: %v", ErrBackendUnavailable, err)
	}
	return c.Refresh(ctx)
}

// AttachFile uploads the document for one (service, sub-service) pair and
// overwrites its file record. The object write and the record write are not
// atomic; a failed record write triggers a compensating object delete, and if
// that also fails the result is ErrPartialFailure (an orphaned blob remains).
// When the overwrite changes the storage key (a different filename), the
// previous object is deleted after the record write lands so the replaced
// blob is not stranded.
func (c *Catalog) AttachFile(ctx context.Context, serviceID, subService string, r io.Reader, filename, contentType string, size int64, purchaseLink string) (domain.FileRecord, error) {
	if r == nil || strings.TrimSpace(filename) == "" {
		return domain.FileRecord{}, ErrNoFile
	}
	svc, ok, err := c.store.GetService(serviceID)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("%w: fetch service: %v", ErrBackendUnavailable, err)
	}
	if !ok || !svc.HasSubService(subService) {
		return domain.FileRecord{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	key := domain.FileKey{ServiceID: serviceID, SubService: subService}
	prior, hadPrior, err := c.store.GetFileRecord(key)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("%w: fetch file record: %v", ErrBackendUnavailable, err)
	}
	storageKey := buildStorageKey(key, filename)
	url, err := c.objects.Put(ctx, storageKey, r, size, contentType)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("%w: put object: %v", ErrBackendUnavailable, err)
	}
	rec := domain.FileRecord{
		Key:          key,
		URL:          url,
		Name:         filename,
		Type:         contentType,
		Size:         size,
		UploadedAt:   time.Now().UTC(),
		PurchaseLink: strings.TrimSpace(purchaseLink),
		StorageKey:   storageKey,
	}
	if err := c.store.SaveFileRecord(rec); err != nil {
		if delErr := c.objects.Delete(ctx, storageKey); delErr != nil {
			return domain.FileRecord{}, fmt.Errorf("%w: record write failed (%v) and object cleanup failed (%v)", ErrPartialFailure, err, delErr)
		}
		return domain.FileRecord{}, fmt.Errorf("%w: save file record: %v", ErrBackendUnavailable, err)
	}
	if hadPrior && prior.StorageKey != storageKey {
		if err := c.objects.Delete(ctx, prior.StorageKey); err != nil {
			util.LoggerFromContext(ctx).Warn("replaced object delete failed",
				"storage_key", prior.StorageKey, "err", err)
		}
	}
	return rec, nil
}

// DetachFile deletes the file record and best-effort deletes the stored
// object. The object path comes from the StorageKey recorded at upload time,
// never re-derived, so it always matches what was written.
func (c *Catalog) DetachFile(ctx context.Context, serviceID, subService string) error {
	key := domain.FileKey{ServiceID: serviceID, SubService: subService}
	rec, ok, err := c.store.GetFileRecord(key)
	if err != nil {
		return fmt.Errorf("%w: fetch file record: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := c.store.DeleteFileRecord(key); err != nil {
		return fmt.Errorf("%w: delete file record: %v", ErrBackendUnavailable, err)
	}
	if err := c.objects.Delete(ctx, rec.StorageKey); err != nil {
		util.LoggerFromContext(ctx).Warn("object delete failed after record delete",
			"storage_key", rec.StorageKey, "err", err)
	}
	return nil
}

// SetPurchaseLink updates the purchase link on an existing file record. An
// empty link clears it. Unlike the upload path, no file needs to be staged.
func (c *Catalog) SetPurchaseLink(_ context.Context, serviceID, subService, link string) error {
	key := domain.FileKey{ServiceID: serviceID, SubService: subService}
	rec, ok, err := c.store.GetFileRecord(key)
	if err != nil {
		return fmt.Errorf("%w: fetch file record: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	rec.PurchaseLink = strings.TrimSpace(link)
	if err := c.store.SaveFileRecord(rec); err != nil {
		return fmt.Errorf("%w: save file record: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// LoadService reads one service directly from the store.
func (c *Catalog) LoadService(_ context.Context, id string) (domain.Service, error) {
	svc, ok, err := c.store.GetService(id)
	if err != nil {
		return domain.Service{}, fmt.Errorf("%w: fetch service: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return domain.Service{}, ErrNotFound
	}
	return svc, nil
}

// LoadFilesForService returns every file record of a service keyed by
// composite key.
func (c *Catalog) LoadFilesForService(_ context.Context, id string) (map[domain.FileKey]domain.FileRecord, error) {
	records, err := c.store.ListFileRecordsByService(id)
	if err != nil {
		return nil, fmt.Errorf("%w: list file records: %v", ErrBackendUnavailable, err)
	}
	out := make(map[domain.FileKey]domain.FileRecord, len(records))
	for _, rec := range records {
		out[rec.Key] = rec
	}
	return out, nil
}

func buildStorageKey(key domain.FileKey, filename string) string {
	name := sanitizeName(filename)
	if name == "" {
		name = "document"
	}
	return path.Join("files", key.ServiceID+"-"+sanitizeName(key.SubService)+"-"+name)
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
