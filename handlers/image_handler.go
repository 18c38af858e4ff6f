package handlers

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/facette/natsort"

	"github.com/helio-ops/solsyncbackend/config"
	"github.com/helio-ops/solsyncbackend/imagestore"
	"github.com/helio-ops/solsyncbackend/models"
	"github.com/helio-ops/solsyncbackend/repository"
	syncengine "github.com/helio-ops/solsyncbackend/sync"
	"github.com/helio-ops/solsyncbackend/workers"
)

// ImageHandler serves the evidence photo capture, listing, and delete flows.
// Capture is synchronous (validate, hash, store, record); the upload to the
// remote catalog happens on the sync timer unless the client asks for an
// immediate push.
type ImageHandler struct {
	LocalImages repository.LocalImageRepositoryInterface
	ImageTypes  repository.RequiredImageTypeRepositoryInterface
	Store       imagestore.Store
	Coordinator *syncengine.Coordinator
	ThumbGen    *workers.ThumbnailProcessor
	Cfg         config.Config
}

func nowUnix() int64 { return time.Now().Unix() }

// CaptureImage accepts a multipart upload with fields: file, type_id,
// uploader_id, display_name (optional), upload_now (optional).
func (h *ImageHandler) CaptureImage(w http.ResponseWriter, r *http.Request) {
	installationID, ok := parseUintParam(w, r, "installation_id")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.Cfg.MaxUploadSizeBytes + 1); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_form", "failed to parse multipart form")
		return
	}

	typeID, err := strconv.ParseUint(r.FormValue("type_id"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_type", "type_id must be numeric")
		return
	}
	if _, err := h.ImageTypes.GetByID(uint(typeID)); err != nil {
		WriteAPIError(w, http.StatusNotFound, "unknown_type", "required image type not found")
		return
	}

	uploaderID, err := strconv.ParseUint(r.FormValue("uploader_id"), 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_uploader", "uploader_id must be numeric")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_file", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	relPath, err := h.Store.SaveImage(installationID, uint(typeID), file, header.Filename)
	if err != nil {
		var vErr *imagestore.ValidationError
		if errors.As(err, &vErr) {
			WriteAPIError(w, http.StatusUnprocessableEntity, vErr.Reason, vErr.Error())
			return
		}
		log.Printf("handlers: failed to save image: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "save_failed", "failed to store image")
		return
	}

	fullPath, err := h.Store.GetFullPath(relPath)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "save_failed", "failed to resolve stored image")
		return
	}
	contentHash, err := imagestore.HashFile(fullPath)
	if err != nil {
		h.Store.Delete(relPath)
		log.Printf("handlers: failed to hash stored image: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "hash_failed", "failed to hash stored image")
		return
	}

	record := &models.LocalImage{
		InstallationID:      installationID,
		RequiredImageTypeID: uint(typeID),
		LocalPath:           relPath,
		AddedAt:             nowUnix(),
		UploaderUserID:      uint(uploaderID),
		ContentHash:         contentHash,
		IsUploaded:          false,
		IsActive:            true,
		TakenAt:             imagestore.TakenAt(fullPath),
	}
	if name := r.FormValue("display_name"); name != "" {
		record.DisplayName = &name
	}
	if err := h.LocalImages.Create(record); err != nil {
		h.Store.Delete(relPath)
		log.Printf("handlers: failed to record image: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "record_failed", "failed to record image")
		return
	}

	if h.ThumbGen != nil {
		h.ThumbGen.QueueJob(workers.ThumbnailJob{LocalImageID: record.ID, FullImagePath: fullPath})
	}

	// synchronous push on request; failure is reported but the capture stands
	uploadErr := ""
	if r.FormValue("upload_now") == "true" && h.Coordinator != nil {
		if err := h.Coordinator.UploadLocalImage(r.Context(), record.ID); err != nil {
			log.Printf("handlers: immediate upload of image %d failed: %v", record.ID, err)
			uploadErr = err.Error()
		} else if refreshed, err := h.LocalImages.GetByID(record.ID); err == nil {
			record = refreshed
		}
	}

	resp := map[string]interface{}{"image": record}
	if uploadErr != "" {
		resp["upload_error"] = uploadErr
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// ListImages returns an installation's local image records in natural
// filename order.
func (h *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	installationID, ok := parseUintParam(w, r, "installation_id")
	if !ok {
		return
	}

	var (
		images []models.LocalImage
		err    error
	)
	if r.URL.Query().Get("include_inactive") == "true" {
		images, err = h.LocalImages.ListByInstallation(installationID)
	} else {
		images, err = h.LocalImages.ListActiveByInstallation(installationID)
	}
	if err != nil {
		log.Printf("handlers: failed to list images: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list images")
		return
	}

	sort.SliceStable(images, func(i, j int) bool {
		ni, nj := images[i].LocalPath, images[j].LocalPath
		if images[i].DisplayName != nil {
			ni = *images[i].DisplayName
		}
		if images[j].DisplayName != nil {
			nj = *images[j].DisplayName
		}
		return natsort.Compare(ni, nj)
	})

	WriteJSON(w, http.StatusOK, images)
}

// UploadImage pushes a single local image to the cloud immediately.
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUintParam(w, r, "image_id")
	if !ok {
		return
	}
	if err := h.Coordinator.UploadLocalImage(r.Context(), id); err != nil {
		log.Printf("handlers: on-demand upload of image %d failed: %v", id, err)
		WriteAPIError(w, http.StatusBadGateway, "upload_failed", err.Error())
		return
	}
	image, err := h.LocalImages.GetByID(id)
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	WriteJSON(w, http.StatusOK, image)
}

// DeleteImage removes an image everywhere: catalog entry deactivated, local
// copy removed, remote object deleted.
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUintParam(w, r, "image_id")
	if !ok {
		return
	}
	image, err := h.LocalImages.GetByID(id)
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}

	if image.CloudID == nil {
		// never uploaded: purely local cleanup
		if err := h.Store.Delete(image.LocalPath); err != nil {
			log.Printf("handlers: failed to delete local file %s: %v", image.LocalPath, err)
		}
		if err := h.LocalImages.Deactivate(image.ID); err != nil {
			log.Printf("handlers: failed to deactivate image %d: %v", image.ID, err)
			WriteAPIError(w, http.StatusInternalServerError, "delete_failed", "failed to deactivate image")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.Coordinator.DeleteImage(r.Context(), *image.CloudID); err != nil {
		log.Printf("handlers: delete of image %d failed: %v", id, err)
		WriteAPIError(w, http.StatusBadGateway, "delete_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
