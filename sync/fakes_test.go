package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/helio-ops/solsyncbackend/cloudstore"
	"github.com/helio-ops/solsyncbackend/models"
)

// fakeLocalRepo is an in-memory LocalImageRepositoryInterface.
type fakeLocalRepo struct {
	mu      sync.Mutex
	images  map[uint]*models.LocalImage
	nextID  uint
	listErr error
}

func newFakeLocalRepo() *fakeLocalRepo {
	return &fakeLocalRepo{images: make(map[uint]*models.LocalImage), nextID: 1}
}

func (f *fakeLocalRepo) Create(image *models.LocalImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	image.ID = f.nextID
	f.nextID++
	cp := *image
	f.images[cp.ID] = &cp
	return nil
}

func (f *fakeLocalRepo) GetByID(id uint) (*models.LocalImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, fmt.Errorf("local image %d not found", id)
	}
	cp := *img
	return &cp, nil
}

func (f *fakeLocalRepo) ListUnuploaded() ([]models.LocalImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.LocalImage
	for _, img := range f.images {
		if !img.IsUploaded && img.IsActive {
			out = append(out, *img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLocalRepo) ListByInstallation(installationID uint) ([]models.LocalImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LocalImage
	for _, img := range f.images {
		if img.InstallationID == installationID {
			out = append(out, *img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLocalRepo) ListActiveByInstallation(installationID uint) ([]models.LocalImage, error) {
	all, _ := f.ListByInstallation(installationID)
	var out []models.LocalImage
	for _, img := range all {
		if img.IsActive {
			out = append(out, img)
		}
	}
	return out, nil
}

func (f *fakeLocalRepo) FindByCloudID(cloudID uint) (*models.LocalImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.images {
		if img.CloudID != nil && *img.CloudID == cloudID {
			cp := *img
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLocalRepo) CountActive(installationID, typeID uint) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var perType, perInstallation int64
	for _, img := range f.images {
		if img.InstallationID != installationID || !img.IsActive {
			continue
		}
		perInstallation++
		if img.RequiredImageTypeID == typeID {
			perType++
		}
	}
	return perType, perInstallation, nil
}

func (f *fakeLocalRepo) MarkUploaded(id uint, cloudID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return fmt.Errorf("local image %d not found", id)
	}
	img.IsUploaded = true
	c := cloudID
	img.CloudID = &c
	return nil
}

func (f *fakeLocalRepo) UpdateThumbnailPath(id uint, thumbnailPath *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.images[id]; ok {
		img.ThumbnailPath = thumbnailPath
	}
	return nil
}

func (f *fakeLocalRepo) Deactivate(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return fmt.Errorf("local image %d not found", id)
	}
	img.IsActive = false
	return nil
}

// fakeCatalog is an in-memory CatalogRepositoryInterface.
type fakeCatalog struct {
	mu      sync.Mutex
	entries map[uint]*models.CatalogEntry
	nextID  uint
	listErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entries: make(map[uint]*models.CatalogEntry), nextID: 1}
}

func (f *fakeCatalog) Create(entry *models.CatalogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = f.nextID
	f.nextID++
	cp := *entry
	f.entries[cp.ID] = &cp
	return nil
}

func (f *fakeCatalog) GetByID(id uint) (*models.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("catalog entry %d not found", id)
	}
	cp := *entry
	return &cp, nil
}

func (f *fakeCatalog) GetActiveEntries() ([]models.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.CatalogEntry
	for _, entry := range f.entries {
		if entry.Active {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCatalog) GetActiveByHash(installationID, typeID uint, contentHash string) (*models.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.Active && entry.InstallationID == installationID &&
			entry.RequiredImageTypeID == typeID && entry.ContentHash == contentHash {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) Update(entry *models.CatalogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[entry.ID]; !ok {
		return fmt.Errorf("catalog entry %d not found", entry.ID)
	}
	cp := *entry
	f.entries[entry.ID] = &cp
	return nil
}

func (f *fakeCatalog) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, entry := range f.entries {
		if entry.Active {
			count++
		}
	}
	return count
}

// fakeCloud is an instrumented cloudstore.Client counting calls and peak
// concurrent uploads.
type fakeCloud struct {
	mu          sync.Mutex
	objects     map[string][]byte
	failures    map[string]int // objectName -> transient failures left; -1 means always fail
	uploadCalls int
	downloads   int
	deletes     []string
	inFlight    int
	maxInFlight int
	uploadDelay time.Duration
	deleteErr   error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{objects: make(map[string][]byte), failures: make(map[string]int)}
}

func (f *fakeCloud) EnsureInstallationContainer(ctx context.Context, installationID uint) error {
	return nil
}

func (f *fakeCloud) Upload(ctx context.Context, installationID uint, objectName string, data io.Reader, size int64, contentType string) (cloudstore.UploadResult, error) {
	f.mu.Lock()
	f.uploadCalls++
	remaining, scripted := f.failures[objectName]
	if scripted && remaining != 0 {
		if remaining > 0 {
			f.failures[objectName] = remaining - 1
		}
		f.mu.Unlock()
		return cloudstore.UploadResult{}, &cloudstore.TransientError{Op: "upload", Err: errors.New("simulated outage")}
	}
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.uploadDelay > 0 {
		time.Sleep(f.uploadDelay)
	}
	payload, err := io.ReadAll(data)

	f.mu.Lock()
	f.inFlight--
	if err != nil {
		f.mu.Unlock()
		return cloudstore.UploadResult{}, &cloudstore.TransientError{Op: "upload", Err: err}
	}
	key := fmt.Sprintf("installation-%d/%s", installationID, objectName)
	f.objects[key] = payload
	f.mu.Unlock()

	return cloudstore.UploadResult{
		ObjectKey: key,
		Location:  "https://objects.local/" + key,
		Size:      int64(len(payload)),
	}, nil
}

func (f *fakeCloud) List(ctx context.Context, installationID uint) ([]cloudstore.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := fmt.Sprintf("installation-%d/", installationID)
	var out []cloudstore.RemoteFile
	for key, payload := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, cloudstore.RemoteFile{ObjectKey: key, Name: key[len(prefix):], Size: int64(len(payload))})
		}
	}
	return out, nil
}

func (f *fakeCloud) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.objects[objectKey]
	if !ok {
		return nil, cloudstore.ErrObjectNotFound
	}
	f.downloads++
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (f *fakeCloud) Delete(ctx context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.objects[objectKey]; !ok {
		return cloudstore.ErrObjectNotFound
	}
	delete(f.objects, objectKey)
	f.deletes = append(f.deletes, objectKey)
	return nil
}

func (f *fakeCloud) stats() (calls, downloads, maxInFlight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadCalls, f.downloads, f.maxInFlight
}

// recordingSink captures published coordinator events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeStore is an in-memory imagestore.Store.
type fakeStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string][]byte)}
}

type fakeFileInfo struct {
	name string
	size int64
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() os.FileMode  { return 0644 }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return false }
func (fi fakeFileInfo) Sys() interface{}   { return nil }

func (f *fakeStore) SaveImage(installationID, typeID uint, data io.Reader, suggestedName string) (string, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("installation-%d/%s", installationID, suggestedName)
	f.mu.Lock()
	f.files[path] = payload
	f.mu.Unlock()
	return path, nil
}

func (f *fakeStore) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.files[relativePath]
	if !ok {
		return nil, nil, fmt.Errorf("image not found at '%s'", relativePath)
	}
	return io.NopCloser(bytes.NewReader(payload)), fakeFileInfo{name: relativePath, size: int64(len(payload))}, nil
}

func (f *fakeStore) Delete(relativePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, relativePath)
	f.deleted = append(f.deleted, relativePath)
	return nil
}

func (f *fakeStore) GetFullPath(relativePath string) (string, error) {
	return "/nonexistent-test-root/" + relativePath, nil
}

func (f *fakeStore) has(relativePath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[relativePath]
	return ok
}
