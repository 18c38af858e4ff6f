package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/helio-ops/solsyncbackend/cloudstore"
	"github.com/helio-ops/solsyncbackend/config"
	"github.com/helio-ops/solsyncbackend/imagestore"
	"github.com/helio-ops/solsyncbackend/models"
	"github.com/helio-ops/solsyncbackend/repository"
)

// Event types published to the EventSink.
const (
	EventSyncStatus      = "sync_status"
	EventImageUploaded   = "image_uploaded"
	EventImageDownloaded = "image_downloaded"
	EventImageDeleted    = "image_deleted"
	EventSyncError       = "sync_error"
)

var errCoordinatorStopped = errors.New("sync coordinator stopped")

// Coordinator reconciles the local metadata index against the metadata
// catalog and the remote object store. It owns the periodic sync timer, the
// bounded upload slot pool, and the connectivity status observed by the rest
// of the application. All collaborators are injected; there is no ambient
// global state.
type Coordinator struct {
	localImages repository.LocalImageRepositoryInterface
	catalog     repository.CatalogRepositoryInterface
	cloud       cloudstore.Client
	store       imagestore.Store

	cfg        config.Config
	interval   time.Duration
	retryDelay time.Duration

	slots  chan struct{} // upload slot pool; len(slots) is uploads in flight
	status *statusTracker
	events EventSink

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator wires the coordinator to its four collaborators. events may
// be nil when no observer is interested.
func NewCoordinator(
	localImages repository.LocalImageRepositoryInterface,
	catalog repository.CatalogRepositoryInterface,
	cloud cloudstore.Client,
	store imagestore.Store,
	cfg config.Config,
	events EventSink,
) *Coordinator {
	maxUploads := cfg.MaxConcurrentUploads
	if maxUploads <= 0 {
		maxUploads = 1
	}
	c := &Coordinator{
		localImages: localImages,
		catalog:     catalog,
		cloud:       cloud,
		store:       store,
		cfg:         cfg,
		interval:    time.Duration(cfg.SyncIntervalMinutes) * time.Minute,
		retryDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
		slots:       make(chan struct{}, maxUploads),
		events:      events,
		stopChan:    make(chan struct{}),
	}
	c.status = newStatusTracker(func(s Status) {
		c.publish(Event{Type: EventSyncStatus, Status: s.String()})
	})
	return c
}

// Status returns the current connectivity status.
func (c *Coordinator) Status() Status {
	return c.status.current()
}

// SubscribeStatus returns a channel receiving connectivity status changes.
func (c *Coordinator) SubscribeStatus() <-chan Status {
	return c.status.subscribe()
}

// Start launches the periodic reconciliation timer.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		log.Printf("sync: coordinator started, reconciling every %s", c.interval)
		for {
			select {
			case <-ticker.C:
				c.runPasses(context.Background())
			case <-c.stopChan:
				log.Println("sync: coordinator stopping, timer cancelled")
				return
			}
		}
	}()
}

// Stop cancels the timer, waits for the current pass to wind down, and makes
// sure the status is not left stuck at Syncing. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
		c.status.clearSyncing()
		log.Println("sync: coordinator stopped")
	})
}

// RunOnce triggers a push then pull reconciliation out of band, without
// waiting for the next timer tick.
func (c *Coordinator) RunOnce(ctx context.Context) {
	c.runPasses(ctx)
}

func (c *Coordinator) runPasses(ctx context.Context) {
	// timer-driven failures are observable only through logs and through the
	// unchanged is_uploaded flags; the next tick retries
	if err := c.SyncUnuploadedImages(ctx); err != nil {
		log.Printf("sync: push reconciliation failed: %v", err)
	}
	if err := c.SyncCloudImages(ctx); err != nil {
		log.Printf("sync: pull reconciliation failed: %v", err)
	}
}

func dedupKey(installationID, typeID uint, contentHash string) string {
	return fmt.Sprintf("%d:%d:%s", installationID, typeID, contentHash)
}

// SyncUnuploadedImages is the push reconciliation pass: every active local
// record without a cloud binding is either bound to an existing catalog entry
// with the same content hash or uploaded. A single record failing never
// aborts the batch.
func (c *Coordinator) SyncUnuploadedImages(ctx context.Context) error {
	c.status.beginPass()
	defer c.status.endPass()

	records, err := c.localImages.ListUnuploaded()
	if err != nil {
		return fmt.Errorf("push reconciliation: failed to list unuploaded images: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	log.Printf("sync: push reconciliation starting with %d unuploaded image(s)", len(records))

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		seen       = make(map[string]uint) // dedup key -> committed catalog entry id
		inFlight   = make(map[string]bool)
		duplicates []models.LocalImage
	)

	for _, rec := range records {
		rec := rec
		if rec.ContentHash == "" {
			log.Printf("sync: skipping local image %d (installation %d): missing content hash", rec.ID, rec.InstallationID)
			continue
		}
		key := dedupKey(rec.InstallationID, rec.RequiredImageTypeID, rec.ContentHash)

		mu.Lock()
		if cloudID, ok := seen[key]; ok {
			mu.Unlock()
			c.bind(rec, cloudID)
			continue
		}
		if inFlight[key] {
			// identical bytes already uploading in this pass; bind after wait
			duplicates = append(duplicates, rec)
			mu.Unlock()
			continue
		}
		mu.Unlock()

		entry, err := c.catalog.GetActiveByHash(rec.InstallationID, rec.RequiredImageTypeID, rec.ContentHash)
		if err != nil {
			log.Printf("sync: dedup lookup failed for local image %d: %v", rec.ID, err)
			continue
		}
		if entry != nil {
			if c.bind(rec, entry.ID) == nil {
				mu.Lock()
				seen[key] = entry.ID
				mu.Unlock()
			}
			continue
		}

		if !c.tryAcquireSlot() {
			log.Printf("sync: no upload slot free, deferring local image %d to next pass", rec.ID)
			continue
		}
		mu.Lock()
		inFlight[key] = true
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.releaseSlot()
			entry, err := c.uploadOne(ctx, rec)
			mu.Lock()
			delete(inFlight, key)
			if err == nil {
				seen[key] = entry.ID
			}
			mu.Unlock()
			if err != nil {
				log.Printf("sync: %v", err)
				c.publishError(rec.InstallationID, rec.ID, err)
			}
		}()
	}

	wg.Wait()

	for _, rec := range duplicates {
		key := dedupKey(rec.InstallationID, rec.RequiredImageTypeID, rec.ContentHash)
		cloudID, ok := seen[key]
		if !ok {
			log.Printf("sync: duplicate local image %d not committed this pass, will retry", rec.ID)
			continue
		}
		c.bind(rec, cloudID)
	}
	return nil
}

// bind attaches a local record to an already-existing catalog entry instead
// of uploading duplicate bytes.
func (c *Coordinator) bind(rec models.LocalImage, cloudID uint) error {
	if err := c.localImages.MarkUploaded(rec.ID, cloudID); err != nil {
		log.Printf("sync: failed to bind local image %d to catalog entry %d: %v", rec.ID, cloudID, err)
		return err
	}
	log.Printf("sync: bound local image %d to existing catalog entry %d", rec.ID, cloudID)
	c.publish(Event{Type: EventImageUploaded, InstallationID: rec.InstallationID, LocalID: rec.ID, CloudID: cloudID})
	return nil
}

// uploadOne pushes one record's bytes to the object store with retry, then
// creates the catalog entry and flips the local record. The local mutation
// happens only after the remote create succeeds.
func (c *Coordinator) uploadOne(ctx context.Context, rec models.LocalImage) (*models.CatalogEntry, error) {
	objectName := filepath.Base(rec.LocalPath)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(objectName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	maxAttempts := c.cfg.MaxUploadRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result cloudstore.UploadResult
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, lastErr = c.attemptUpload(ctx, rec, objectName, contentType)
		if lastErr == nil {
			break
		}
		var transient *cloudstore.TransientError
		if !errors.As(lastErr, &transient) {
			// validation and local I/O failures never retry
			return nil, fmt.Errorf("upload of local image %d failed: %w", rec.ID, lastErr)
		}
		log.Printf("sync: transient upload failure for local image %d (attempt %d/%d): %v", rec.ID, attempt, maxAttempts, lastErr)
		if attempt < maxAttempts {
			if err := c.waitRetry(ctx); err != nil {
				return nil, &UploadFailedError{LocalID: rec.ID, Attempts: attempt, Err: lastErr}
			}
		}
	}
	if lastErr != nil {
		return nil, &UploadFailedError{LocalID: rec.ID, Attempts: maxAttempts, Err: lastErr}
	}

	entry := &models.CatalogEntry{
		InstallationID:      rec.InstallationID,
		RequiredImageTypeID: rec.RequiredImageTypeID,
		Location:            result.Location,
		ObjectKey:           result.ObjectKey,
		AddedAt:             time.Now().Unix(),
		DisplayName:         rec.DisplayName,
		UploaderUserID:      rec.UploaderUserID,
		ContentHash:         rec.ContentHash,
		Active:              true,
	}
	if err := c.catalog.Create(entry); err != nil {
		return nil, fmt.Errorf("uploaded %s but failed to create catalog entry: %w", objectName, err)
	}
	if err := c.localImages.MarkUploaded(rec.ID, entry.ID); err != nil {
		// the entry exists, so the next pass will bind via the hash check
		return nil, fmt.Errorf("created catalog entry %d but failed to flip local image %d: %w", entry.ID, rec.ID, err)
	}

	log.Printf("sync: uploaded local image %d as catalog entry %d (%s)", rec.ID, entry.ID, result.ObjectKey)
	c.publish(Event{Type: EventImageUploaded, InstallationID: rec.InstallationID, LocalID: rec.ID, CloudID: entry.ID})
	return entry, nil
}

func (c *Coordinator) attemptUpload(ctx context.Context, rec models.LocalImage, objectName, contentType string) (cloudstore.UploadResult, error) {
	if err := c.cloud.EnsureInstallationContainer(ctx, rec.InstallationID); err != nil {
		return cloudstore.UploadResult{}, err
	}
	rc, info, err := c.store.Get(rec.LocalPath)
	if err != nil {
		return cloudstore.UploadResult{}, err
	}
	defer rc.Close()
	return c.cloud.Upload(ctx, rec.InstallationID, objectName, rc, info.Size(), contentType)
}

// SyncCloudImages is the pull reconciliation pass: every active catalog entry
// with no matching local record (by cloud id or by content hash within the
// installation) is downloaded and materialized locally.
func (c *Coordinator) SyncCloudImages(ctx context.Context) error {
	c.status.beginPass()
	defer c.status.endPass()

	entries, err := c.catalog.GetActiveEntries()
	if err != nil {
		return fmt.Errorf("pull reconciliation: failed to list active catalog entries: %w", err)
	}

	// local state indexed by hash once per installation instead of rescanning
	// the image list for every entry
	type localIndex struct {
		byCloudID map[uint]bool
		byHash    map[string]bool
	}
	indexes := make(map[uint]*localIndex)
	getIndex := func(installationID uint) (*localIndex, error) {
		if idx, ok := indexes[installationID]; ok {
			return idx, nil
		}
		images, err := c.localImages.ListByInstallation(installationID)
		if err != nil {
			return nil, err
		}
		idx := &localIndex{byCloudID: make(map[uint]bool), byHash: make(map[string]bool)}
		for _, img := range images {
			if img.CloudID != nil {
				idx.byCloudID[*img.CloudID] = true
			}
			idx.byHash[img.ContentHash] = true
		}
		indexes[installationID] = idx
		return idx, nil
	}

	for _, entry := range entries {
		idx, err := getIndex(entry.InstallationID)
		if err != nil {
			log.Printf("sync: failed to index local images for installation %d: %v", entry.InstallationID, err)
			continue
		}
		if idx.byCloudID[entry.ID] || idx.byHash[entry.ContentHash] {
			continue
		}
		if err := c.downloadOne(ctx, entry); err != nil {
			log.Printf("sync: %v", err)
			c.publishError(entry.InstallationID, 0, err)
			continue
		}
		idx.byCloudID[entry.ID] = true
		idx.byHash[entry.ContentHash] = true
	}
	return nil
}

func (c *Coordinator) downloadOne(ctx context.Context, entry models.CatalogEntry) error {
	rc, err := c.cloud.Download(ctx, entry.ObjectKey)
	if err != nil {
		if errors.Is(err, cloudstore.ErrObjectNotFound) {
			return &CatalogInconsistencyError{CloudID: entry.ID, Detail: "active entry references a missing remote object"}
		}
		return &DownloadFailedError{CloudID: entry.ID, Err: err}
	}
	defer rc.Close()

	relPath, err := c.store.SaveImage(entry.InstallationID, entry.RequiredImageTypeID, rc, filepath.Base(entry.ObjectKey))
	if err != nil {
		return &DownloadFailedError{CloudID: entry.ID, Err: err}
	}

	cloudID := entry.ID
	record := &models.LocalImage{
		CloudID:             &cloudID,
		InstallationID:      entry.InstallationID,
		RequiredImageTypeID: entry.RequiredImageTypeID,
		LocalPath:           relPath,
		DisplayName:         entry.DisplayName,
		AddedAt:             time.Now().Unix(),
		UploaderUserID:      entry.UploaderUserID,
		ContentHash:         entry.ContentHash,
		IsUploaded:          true,
		IsActive:            true,
	}
	if fullPath, perr := c.store.GetFullPath(relPath); perr == nil {
		record.TakenAt = imagestore.TakenAt(fullPath)
	}
	if err := c.localImages.Create(record); err != nil {
		if derr := c.store.Delete(relPath); derr != nil {
			log.Printf("sync: failed to clean up downloaded file %s: %v", relPath, derr)
		}
		return fmt.Errorf("downloaded catalog entry %d but failed to record it locally: %w", entry.ID, err)
	}

	log.Printf("sync: downloaded catalog entry %d into %s", entry.ID, relPath)
	c.publish(Event{Type: EventImageDownloaded, InstallationID: entry.InstallationID, LocalID: record.ID, CloudID: entry.ID})
	return nil
}

// UploadLocalImage uploads a single record on demand so a capture flow does
// not have to wait for the next timer tick. It shares the slot pool and the
// dedup check with the batch pass and propagates failure to the caller.
func (c *Coordinator) UploadLocalImage(ctx context.Context, localID uint) error {
	c.status.beginPass()
	defer c.status.endPass()

	rec, err := c.localImages.GetByID(localID)
	if err != nil {
		return fmt.Errorf("failed to load local image %d: %w", localID, err)
	}
	if !rec.IsActive {
		return fmt.Errorf("local image %d is inactive", localID)
	}
	if rec.IsUploaded {
		return nil
	}

	entry, err := c.catalog.GetActiveByHash(rec.InstallationID, rec.RequiredImageTypeID, rec.ContentHash)
	if err != nil {
		return fmt.Errorf("dedup lookup failed for local image %d: %w", localID, err)
	}
	if entry != nil {
		return c.bind(*rec, entry.ID)
	}

	if err := c.acquireSlot(ctx); err != nil {
		return err
	}
	defer c.releaseSlot()

	_, err = c.uploadOne(ctx, *rec)
	return err
}

// DeleteImage deactivates the catalog entry, removes the local copy if one
// exists, and deletes the remote object. Local-side effects are best effort;
// a failed remote delete is returned loudly since a silently orphaned remote
// object is worse than a surfaced error.
func (c *Coordinator) DeleteImage(ctx context.Context, cloudID uint) error {
	entry, err := c.catalog.GetByID(cloudID)
	if err != nil {
		return fmt.Errorf("failed to load catalog entry %d: %w", cloudID, err)
	}

	if entry.Active {
		entry.Active = false
		if err := c.catalog.Update(entry); err != nil {
			return fmt.Errorf("failed to deactivate catalog entry %d: %w", cloudID, err)
		}
	}

	local, err := c.localImages.FindByCloudID(cloudID)
	if err != nil {
		log.Printf("sync: failed to look up local copy of catalog entry %d: %v", cloudID, err)
	} else if local != nil {
		if err := c.store.Delete(local.LocalPath); err != nil {
			log.Printf("sync: failed to delete local file %s: %v", local.LocalPath, err)
		}
		if local.IsActive {
			if err := c.localImages.Deactivate(local.ID); err != nil {
				log.Printf("sync: failed to deactivate local image %d: %v", local.ID, err)
			}
		}
	}

	if err := c.cloud.Delete(ctx, entry.ObjectKey); err != nil {
		if errors.Is(err, cloudstore.ErrObjectNotFound) {
			log.Printf("sync: remote object %s already gone", entry.ObjectKey)
		} else {
			return fmt.Errorf("failed to delete remote object %s: %w", entry.ObjectKey, err)
		}
	}

	log.Printf("sync: deleted image for catalog entry %d", cloudID)
	c.publish(Event{Type: EventImageDeleted, InstallationID: entry.InstallationID, CloudID: cloudID})
	return nil
}

func (c *Coordinator) tryAcquireSlot() bool {
	select {
	case c.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Coordinator) acquireSlot(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopChan:
		return errCoordinatorStopped
	}
}

func (c *Coordinator) releaseSlot() {
	<-c.slots
}

func (c *Coordinator) waitRetry(ctx context.Context) error {
	select {
	case <-time.After(c.retryDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopChan:
		return errCoordinatorStopped
	}
}

func (c *Coordinator) publish(event Event) {
	if c.events == nil {
		return
	}
	event.Timestamp = time.Now().Unix()
	c.events.Publish(event)
}

func (c *Coordinator) publishError(installationID, localID uint, err error) {
	c.publish(Event{
		Type:           EventSyncError,
		InstallationID: installationID,
		LocalID:        localID,
		Error:          err.Error(),
	})
}
