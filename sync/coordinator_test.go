package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helio-ops/solsyncbackend/config"
	"github.com/helio-ops/solsyncbackend/imagestore"
	"github.com/helio-ops/solsyncbackend/models"
)

func testConfig() config.Config {
	return config.Config{
		SyncIntervalMinutes:  15,
		MaxUploadRetries:     3,
		RetryDelaySeconds:    30,
		MaxConcurrentUploads: 3,
	}
}

func newTestCoordinator(local *fakeLocalRepo, catalog *fakeCatalog, cloud *fakeCloud, store *fakeStore) *Coordinator {
	c := NewCoordinator(local, catalog, cloud, store, testConfig(), nil)
	c.retryDelay = time.Millisecond
	return c
}

// addLocal stores content in the fake image store and records a matching
// unuploaded local image.
func addLocal(t *testing.T, local *fakeLocalRepo, store *fakeStore, installationID, typeID uint, name, content string) *models.LocalImage {
	t.Helper()
	path, err := store.SaveImage(installationID, typeID, strings.NewReader(content), name)
	require.NoError(t, err)
	img := &models.LocalImage{
		InstallationID:      installationID,
		RequiredImageTypeID: typeID,
		LocalPath:           path,
		AddedAt:             time.Now().Unix(),
		UploaderUserID:      1,
		ContentHash:         imagestore.HashBytes([]byte(content)),
		IsActive:            true,
	}
	require.NoError(t, local.Create(img))
	return img
}

func TestPushUploadsAndFlipsRecord(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "roof.jpg", "roof pixels")

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUploaded)
	require.NotNil(t, got.CloudID)

	entry, err := catalog.GetByID(*got.CloudID)
	require.NoError(t, err)
	assert.Equal(t, img.ContentHash, entry.ContentHash)
	assert.Equal(t, uint(42), entry.InstallationID)
	assert.True(t, entry.Active)
	assert.Equal(t, "installation-42/roof.jpg", entry.ObjectKey)

	calls, _, _ := cloud.stats()
	assert.Equal(t, 1, calls)
}

func TestPushDedupUploadsIdenticalBytesOnce(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	a := addLocal(t, local, store, 42, 7, "a.jpg", "same bytes")
	b := addLocal(t, local, store, 42, 7, "b.jpg", "same bytes")

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	calls, _, _ := cloud.stats()
	assert.Equal(t, 1, calls, "identical bytes must be transferred once")
	assert.Equal(t, 1, catalog.activeCount())

	gotA, err := local.GetByID(a.ID)
	require.NoError(t, err)
	gotB, err := local.GetByID(b.ID)
	require.NoError(t, err)
	require.NotNil(t, gotA.CloudID)
	require.NotNil(t, gotB.CloudID)
	assert.True(t, gotA.IsUploaded)
	assert.True(t, gotB.IsUploaded)
	assert.Equal(t, *gotA.CloudID, *gotB.CloudID, "both records bind to the same catalog entry")
}

func TestPushBindsToExistingCatalogEntry(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "dup.jpg", "already in catalog")
	entry := &models.CatalogEntry{
		InstallationID:      42,
		RequiredImageTypeID: 7,
		ObjectKey:           "installation-42/original.jpg",
		ContentHash:         img.ContentHash,
		Active:              true,
	}
	require.NoError(t, catalog.Create(entry))

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	calls, _, _ := cloud.stats()
	assert.Equal(t, 0, calls, "existing hash must bind without an upload")
	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUploaded)
	require.NotNil(t, got.CloudID)
	assert.Equal(t, entry.ID, *got.CloudID)
}

func TestPushSameHashDifferentTypesUploadsBoth(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	a := addLocal(t, local, store, 42, 7, "wide.jpg", "one photo")
	b := addLocal(t, local, store, 42, 8, "close.jpg", "one photo")

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	// dedup is scoped to installation plus type, so the same bytes captured
	// as evidence for two different types stay distinct entries
	calls, _, _ := cloud.stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, catalog.activeCount())

	gotA, _ := local.GetByID(a.ID)
	gotB, _ := local.GetByID(b.ID)
	require.NotNil(t, gotA.CloudID)
	require.NotNil(t, gotB.CloudID)
	assert.NotEqual(t, *gotA.CloudID, *gotB.CloudID)
}

func TestPushOneFailureDoesNotAbortBatch(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	bad := addLocal(t, local, store, 42, 7, "bad.jpg", "bytes that never land")
	good := addLocal(t, local, store, 42, 7, "good.jpg", "bytes that land")
	cloud.failures["bad.jpg"] = -1

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	gotBad, _ := local.GetByID(bad.ID)
	gotGood, _ := local.GetByID(good.ID)
	assert.False(t, gotBad.IsUploaded)
	assert.Nil(t, gotBad.CloudID)
	assert.True(t, gotGood.IsUploaded)
}

func TestPushRetriesTransientFailureThenSucceeds(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "flaky.jpg", "eventually lands")
	cloud.failures["flaky.jpg"] = 2

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUploaded)
	calls, _, _ := cloud.stats()
	assert.Equal(t, 3, calls, "two failures then a success")
}

func TestPushRetryBudgetExhausted(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "doomed.jpg", "never lands")
	cloud.failures["doomed.jpg"] = -1

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	assert.False(t, got.IsUploaded)
	assert.Nil(t, got.CloudID)
	assert.Equal(t, 0, catalog.activeCount())
	calls, _, _ := cloud.stats()
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
}

func TestUploadLocalImageReportsExhaustedRetries(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "doomed.jpg", "never lands")
	cloud.failures["doomed.jpg"] = -1

	err := c.UploadLocalImage(context.Background(), img.ID)
	var uploadErr *UploadFailedError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, img.ID, uploadErr.LocalID)
	assert.Equal(t, 4, uploadErr.Attempts)
}

func TestUploadLocalImageAlreadyUploadedIsNoop(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "done.jpg", "already pushed")
	require.NoError(t, local.MarkUploaded(img.ID, 99))

	require.NoError(t, c.UploadLocalImage(context.Background(), img.ID))
	calls, _, _ := cloud.stats()
	assert.Equal(t, 0, calls)
}

func TestPushConcurrencyNeverExceedsSlotPool(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)
	cloud.uploadDelay = 30 * time.Millisecond

	for i := 0; i < 6; i++ {
		name := string(rune('a'+i)) + ".jpg"
		addLocal(t, local, store, 42, 7, name, "payload "+name)
	}

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	_, _, maxInFlight := cloud.stats()
	assert.LessOrEqual(t, maxInFlight, 3)

	// records that found no free slot were deferred, not failed; the next
	// pass picks them up
	remaining, err := local.ListUnuploaded()
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	require.NoError(t, c.SyncUnuploadedImages(context.Background()))
	remaining, err = local.ListUnuploaded()
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Equal(t, 6, catalog.activeCount())
}

func TestPullDownloadsMissingEntry(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	cloud.objects["installation-7/inverter.jpg"] = []byte("inverter pixels")
	entry := &models.CatalogEntry{
		InstallationID:      7,
		RequiredImageTypeID: 3,
		ObjectKey:           "installation-7/inverter.jpg",
		ContentHash:         imagestore.HashBytes([]byte("inverter pixels")),
		Active:              true,
	}
	require.NoError(t, catalog.Create(entry))

	require.NoError(t, c.SyncCloudImages(context.Background()))

	images, err := local.ListByInstallation(7)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.True(t, images[0].IsUploaded)
	require.NotNil(t, images[0].CloudID)
	assert.Equal(t, entry.ID, *images[0].CloudID)
	assert.Equal(t, entry.ContentHash, images[0].ContentHash)
	assert.True(t, store.has(images[0].LocalPath))
}

func TestPullSkipsEntriesAlreadyPresentByHash(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 7, 3, "inverter.jpg", "inverter pixels")
	cloud.objects["installation-7/inverter.jpg"] = []byte("inverter pixels")
	require.NoError(t, catalog.Create(&models.CatalogEntry{
		InstallationID:      7,
		RequiredImageTypeID: 3,
		ObjectKey:           "installation-7/inverter.jpg",
		ContentHash:         img.ContentHash,
		Active:              true,
	}))

	require.NoError(t, c.SyncCloudImages(context.Background()))

	_, downloads, _ := cloud.stats()
	assert.Equal(t, 0, downloads)
	images, err := local.ListByInstallation(7)
	require.NoError(t, err)
	assert.Len(t, images, 1, "no duplicate local record created")
}

func TestPullMissingRemoteObjectIsCatalogInconsistency(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	require.NoError(t, catalog.Create(&models.CatalogEntry{
		InstallationID:      7,
		RequiredImageTypeID: 3,
		ObjectKey:           "installation-7/vanished.jpg",
		ContentHash:         "deadbeef",
		Active:              true,
	}))

	// the pass itself succeeds; the inconsistency is per-entry
	require.NoError(t, c.SyncCloudImages(context.Background()))
	images, err := local.ListByInstallation(7)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestDeleteImagePropagatesEverywhere(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "gone.jpg", "to be removed")
	require.NoError(t, c.SyncUnuploadedImages(context.Background()))
	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CloudID)

	require.NoError(t, c.DeleteImage(context.Background(), *got.CloudID))

	entry, err := catalog.GetByID(*got.CloudID)
	require.NoError(t, err)
	assert.False(t, entry.Active)

	got, err = local.GetByID(img.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, store.has(img.LocalPath))
	assert.NotContains(t, cloud.objects, entry.ObjectKey)

	// a full reconciliation after the delete must not resurrect anything
	cloudCallsBefore := cloud.uploadCalls
	c.RunOnce(context.Background())
	calls, downloads, _ := cloud.stats()
	assert.Equal(t, cloudCallsBefore, calls)
	assert.Equal(t, 0, downloads)
}

func TestDeleteImageSurfacesRemoteFailure(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "stuck.jpg", "remote delete fails")
	require.NoError(t, c.SyncUnuploadedImages(context.Background()))
	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CloudID)

	cloud.deleteErr = errors.New("object store unreachable")
	err = c.DeleteImage(context.Background(), *got.CloudID)
	require.Error(t, err)

	// the catalog entry is already deactivated even though the object remains
	entry, gerr := catalog.GetByID(*got.CloudID)
	require.NoError(t, gerr)
	assert.False(t, entry.Active)
}

func TestDeleteImageToleratesAlreadyGoneObject(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	img := addLocal(t, local, store, 42, 7, "ghost.jpg", "object vanished first")
	require.NoError(t, c.SyncUnuploadedImages(context.Background()))
	got, err := local.GetByID(img.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CloudID)

	entry, err := catalog.GetByID(*got.CloudID)
	require.NoError(t, err)
	delete(cloud.objects, entry.ObjectKey)

	require.NoError(t, c.DeleteImage(context.Background(), *got.CloudID))
}

func TestStatusTransitionsThroughPass(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	assert.Equal(t, StatusDisconnected, c.Status())

	statusCh := c.SubscribeStatus()
	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	assert.Equal(t, StatusSyncing, <-statusCh)
	assert.Equal(t, StatusConnected, <-statusCh)
	assert.Equal(t, StatusConnected, c.Status())
}

func TestStatusConnectedAfterFailedPass(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	local.listErr = errors.New("database locked")
	err := c.SyncUnuploadedImages(context.Background())
	require.Error(t, err)

	// a pass that ran and failed still counts as a completed attempt
	assert.Equal(t, StatusConnected, c.Status())
}

func TestStopLeavesNoSyncingStatus(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	c.Start()
	c.Stop()
	assert.NotEqual(t, StatusSyncing, c.Status())

	// Stop is idempotent
	c.Stop()
}

func TestStatusEventsPublishedToSink(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	sink := &recordingSink{}
	c := NewCoordinator(local, catalog, cloud, store, testConfig(), sink)
	c.retryDelay = time.Millisecond

	addLocal(t, local, store, 42, 7, "observed.jpg", "watched upload")
	require.NoError(t, c.SyncUnuploadedImages(context.Background()))

	types := sink.types()
	assert.Contains(t, types, EventSyncStatus)
	assert.Contains(t, types, EventImageUploaded)
}

func TestRoundTripUploadThenPullIsStable(t *testing.T) {
	local, catalog, cloud, store := newFakeLocalRepo(), newFakeCatalog(), newFakeCloud(), newFakeStore()
	c := newTestCoordinator(local, catalog, cloud, store)

	addLocal(t, local, store, 42, 7, "stable.jpg", "round trip bytes")
	c.RunOnce(context.Background())

	images, err := local.ListByInstallation(42)
	require.NoError(t, err)
	require.Len(t, images, 1, "pull must not duplicate what push just uploaded")

	// a second full reconciliation moves nothing
	calls, downloads, _ := cloud.stats()
	c.RunOnce(context.Background())
	calls2, downloads2, _ := cloud.stats()
	assert.Equal(t, calls, calls2)
	assert.Equal(t, downloads, downloads2)
}
