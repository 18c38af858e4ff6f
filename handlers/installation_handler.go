package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helio-ops/solsyncbackend/config"
	"github.com/helio-ops/solsyncbackend/database"
	"github.com/helio-ops/solsyncbackend/imagestore"
	"github.com/helio-ops/solsyncbackend/models"
	"github.com/helio-ops/solsyncbackend/repository"
	"github.com/helio-ops/solsyncbackend/utils"
)

// InstallationHandler serves installation CRUD, the evidence completeness
// report, and archive export.
type InstallationHandler struct {
	Installations repository.InstallationRepositoryInterface
	ImageTypes    repository.RequiredImageTypeRepositoryInterface
	LocalImages   repository.LocalImageRepositoryInterface
	Store         imagestore.Store
	SQLDB         *sql.DB
	Cfg           config.Config
}

type createInstallationRequest struct {
	Name              string `json:"name"`
	Region            string `json:"region"`
	Address           string `json:"address"`
	ResponsibleUserID uint   `json:"responsible_user_id"`
}

func (h *InstallationHandler) CreateInstallation(w http.ResponseWriter, r *http.Request) {
	var req createInstallationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_name", "installation name is required")
		return
	}

	installation := models.Installation{
		Name:              req.Name,
		Region:            req.Region,
		Address:           req.Address,
		ResponsibleUserID: req.ResponsibleUserID,
	}
	if err := h.Installations.Create(&installation); err != nil {
		log.Printf("handlers: failed to create installation: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create installation")
		return
	}
	WriteJSON(w, http.StatusCreated, installation)
}

func (h *InstallationHandler) ListInstallations(w http.ResponseWriter, r *http.Request) {
	installations, err := h.Installations.ListAll()
	if err != nil {
		log.Printf("handlers: failed to list installations: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list installations")
		return
	}
	WriteJSON(w, http.StatusOK, installations)
}

func (h *InstallationHandler) GetInstallation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUintParam(w, r, "installation_id")
	if !ok {
		return
	}
	installation, err := h.Installations.GetByID(id)
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "installation not found")
		return
	}
	WriteJSON(w, http.StatusOK, installation)
}

// GetCompletenessReport reports active/uploaded image counts per required
// type. Query params: installation_id, region, only_incomplete.
func (h *InstallationHandler) GetCompletenessReport(w http.ResponseWriter, r *http.Request) {
	filter := database.CompletenessFilter{
		Region:         r.URL.Query().Get("region"),
		OnlyIncomplete: r.URL.Query().Get("only_incomplete") == "true",
	}
	if raw := r.URL.Query().Get("installation_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_id", "installation_id must be numeric")
			return
		}
		filter.InstallationID = uint(id)
	}

	report, err := database.GetCompletenessReport(h.SQLDB, filter)
	if err != nil {
		log.Printf("handlers: completeness report failed: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "report_failed", "failed to build completeness report")
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// DownloadArchive streams a zip of the installation's active evidence photos.
func (h *InstallationHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUintParam(w, r, "installation_id")
	if !ok {
		return
	}
	if _, err := h.Installations.GetByID(id); err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "installation not found")
		return
	}

	images, err := h.LocalImages.ListActiveByInstallation(id)
	if err != nil {
		log.Printf("handlers: failed to list images for archive: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "archive_failed", "failed to list installation images")
		return
	}
	if len(images) == 0 {
		WriteAPIError(w, http.StatusNotFound, "no_images", "installation has no active images to archive")
		return
	}

	var paths []string
	for _, img := range images {
		fullPath, err := h.Store.GetFullPath(img.LocalPath)
		if err != nil {
			log.Printf("handlers: skipping unresolvable image path %s: %v", img.LocalPath, err)
			continue
		}
		paths = append(paths, fullPath)
	}

	zipPath, _, err := utils.CreateInstallationArchive(id, paths, h.Cfg.ArchivesPath)
	if err != nil {
		log.Printf("handlers: archive creation failed: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "archive_failed", "failed to create archive")
		return
	}
	defer os.Remove(zipPath)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\"installation-evidence.zip\"")
	http.ServeFile(w, r, zipPath)
}

// ImageTypeHandler serves required image type definitions.
type ImageTypeHandler struct {
	ImageTypes repository.RequiredImageTypeRepositoryInterface
}

type createImageTypeRequest struct {
	Name         string `json:"name"`
	MinimumCount int    `json:"minimum_count"`
	Description  string `json:"description"`
}

func (h *ImageTypeHandler) CreateImageType(w http.ResponseWriter, r *http.Request) {
	var req createImageTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Name == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_name", "image type name is required")
		return
	}
	if req.MinimumCount <= 0 {
		req.MinimumCount = 1
	}

	imageType := models.RequiredImageType{
		Name:         req.Name,
		MinimumCount: req.MinimumCount,
		Description:  req.Description,
	}
	if err := h.ImageTypes.Create(&imageType); err != nil {
		log.Printf("handlers: failed to create image type: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create image type")
		return
	}
	WriteJSON(w, http.StatusCreated, imageType)
}

func (h *ImageTypeHandler) ListImageTypes(w http.ResponseWriter, r *http.Request) {
	imageTypes, err := h.ImageTypes.ListAll()
	if err != nil {
		log.Printf("handlers: failed to list image types: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "failed to list image types")
		return
	}
	WriteJSON(w, http.StatusOK, imageTypes)
}

func parseUintParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", name+" must be numeric")
		return 0, false
	}
	return uint(id), true
}
