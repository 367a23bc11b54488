package saved

import (
	"context"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
	"github.com/dataviz-hub/refine-gateway/internal/storage"
)

// Service is the archive lifecycle manager: it exports live backend
// projects into durable archives and restores archives into live
// projects, keeping blob storage and the metadata store consistent from
// the caller's perspective.
type Service struct {
	store    Store
	blobs    storage.BlobStore
	client   *refine.Client
	registry registry.Store
	maxBytes int64
}

func NewService(store Store, blobs storage.BlobStore, client *refine.Client, reg registry.Store, maxBytes int64) *Service {
	return &Service{
		store:    store,
		blobs:    blobs,
		client:   client,
		registry: reg,
		maxBytes: maxBytes,
	}
}

type SaveRequest struct {
	Name            string `json:"name"`
	RefineProjectID string `json:"openrefineProjectId"`
	Thumbnail       string `json:"thumbnail"`
	SourceFilename  string `json:"sourceFilename"`
	RefineVersion   string `json:"openrefineVersion"`
}

// Save exports the live project and persists archive + metadata. If the
// metadata insert fails after the archive blob is stored, the blob is
// deleted before the error surfaces.
func (s *Service) Save(ctx context.Context, user auth.User, req SaveRequest, headers http.Header) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apierr.BadRequest("name is required")
	}
	if len(name) > 200 {
		return nil, apierr.BadRequest("name must be 200 characters or fewer")
	}
	liveID := strings.TrimSpace(req.RefineProjectID)
	if liveID == "" {
		return nil, apierr.BadRequest("openrefineProjectId is required")
	}
	if !regexp.MustCompile(`^\d+$`).MatchString(liveID) {
		return nil, apierr.BadRequest("openrefineProjectId must be numeric")
	}

	owns, err := s.registry.BelongsTo(ctx, liveID, user.ID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, apierr.Forbidden("Project does not belong to the authenticated user")
	}

	archive, err := s.client.ExportProject(ctx, headers, liveID, SanitizeFileComponent(name))
	if err != nil {
		return nil, err
	}
	if int64(len(archive)) > s.maxBytes {
		return nil, apierr.New(http.StatusRequestEntityTooLarge, "Exported archive exceeds MAX_UPLOAD_SIZE_MB")
	}

	savedID := uuid.NewString()
	archivePath := user.ID + "/" + savedID + "/project.tar.gz"
	var thumbnailPath *string
	if req.Thumbnail != "" {
		p := user.ID + "/" + savedID + "/thumbnail.png"
		thumbnailPath = &p
	}

	if err := s.blobs.Upload(ctx, archivePath, "application/gzip", archive); err != nil {
		return nil, err
	}

	project, err := s.finishSave(ctx, user, req, savedID, name, archivePath, thumbnailPath, int64(len(archive)))
	if err != nil {
		// Compensating deletes: the archive must not outlive a failed save.
		s.cleanupBlob(ctx, archivePath)
		if thumbnailPath != nil {
			s.cleanupBlob(ctx, *thumbnailPath)
		}
		return nil, err
	}
	return project, nil
}

func (s *Service) finishSave(ctx context.Context, user auth.User, req SaveRequest, savedID, name, archivePath string, thumbnailPath *string, sizeBytes int64) (*Project, error) {
	if thumbnailPath != nil {
		contentType, bytes, err := parseDataURI(req.Thumbnail)
		if err != nil {
			return nil, err
		}
		if err := s.blobs.Upload(ctx, *thumbnailPath, contentType, bytes); err != nil {
			return nil, err
		}
	}

	project := &Project{
		ID:             savedID,
		UserID:         user.ID,
		Name:           name,
		ArchivePath:    archivePath,
		ThumbnailPath:  thumbnailPath,
		RefineVersion:  optional(req.RefineVersion),
		SourceFilename: optional(req.SourceFilename),
		SizeBytes:      sizeBytes,
	}
	if err := s.store.Insert(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Service) List(ctx context.Context, user auth.User) ([]Project, error) {
	return s.store.List(ctx, user.ID)
}

func (s *Service) Get(ctx context.Context, user auth.User, id string) (*Project, error) {
	return s.store.Get(ctx, user.ID, id)
}

// Delete removes the metadata row first (ownership-checked), then
// best-effort deletes the blobs, collecting failures as warnings.
func (s *Service) Delete(ctx context.Context, user auth.User, id string) ([]string, error) {
	project, err := s.store.Get(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, user.ID, id); err != nil {
		return nil, err
	}

	var warnings []string
	if err := s.blobs.Delete(ctx, project.ArchivePath); err != nil {
		warnings = append(warnings, "failed to delete archive: "+err.Error())
	}
	if project.ThumbnailPath != nil {
		if err := s.blobs.Delete(ctx, *project.ThumbnailPath); err != nil {
			warnings = append(warnings, "failed to delete thumbnail: "+err.Error())
		}
	}
	return warnings, nil
}

// DownloadArchive fetches a saved project's archive bytes for download.
func (s *Service) DownloadArchive(ctx context.Context, user auth.User, id string) (*Project, []byte, error) {
	project, err := s.store.Get(ctx, user.ID, id)
	if err != nil {
		return nil, nil, err
	}
	archive, err := s.blobs.Download(ctx, project.ArchivePath)
	if err != nil {
		return nil, nil, err
	}
	return project, archive, nil
}

type RestoreResult struct {
	ProjectID    string `json:"projectId"`
	ProjectName  string `json:"projectName"`
	RestoredFrom string `json:"restoredFromSavedProjectId"`
	IDSource     string `json:"idSource"`
}

// Restore imports a saved archive into a new live backend project and
// registers the resulting id to the caller. The new id is resolved by
// the extraction fallback chain, then by a by-name metadata lookup; the
// restore fails when no method yields an id.
func (s *Service) Restore(ctx context.Context, user auth.User, id, explicitName string, headers http.Header) (*RestoreResult, error) {
	project, err := s.store.Get(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}

	projectName := strings.TrimSpace(explicitName)
	if projectName == "" {
		projectName = GenerateProjectName(user.ID)
	}

	archive, err := s.blobs.Download(ctx, project.ArchivePath)
	if err != nil {
		return nil, err
	}

	liveID, idSource, err := s.ImportArchive(ctx, user, projectName, archive, headers)
	if err != nil {
		return nil, err
	}

	return &RestoreResult{
		ProjectID:    liveID,
		ProjectName:  projectName,
		RestoredFrom: id,
		IDSource:     idSource,
	}, nil
}

// ImportArchive submits archive bytes to the backend's import command,
// resolves the new live project id, and registers it to the user. Shared
// by Restore and the cloud-sync reconciler.
func (s *Service) ImportArchive(ctx context.Context, user auth.User, projectName string, archive []byte, headers http.Header) (string, string, error) {
	resp, err := s.client.ImportProject(ctx, headers, projectName, archive)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	finalURL := resp.Request.URL.String()
	isRedirect := resp.StatusCode >= 300 && resp.StatusCode < 400
	if (resp.StatusCode < 200 || resp.StatusCode >= 300) && !isRedirect {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", apierr.Newf(resp.StatusCode, "import-project failed: %s", string(reason))
	}

	liveID := refine.ProjectIDFromLocation(location)
	idSource := "redirect"
	if liveID == "" {
		if fromFinal := refine.ProjectIDFromLocation(finalURL); fromFinal != "" {
			liveID = fromFinal
			idSource = "finalUrl"
		}
	}

	if liveID == "" {
		if byName := s.client.FindProjectIDByName(ctx, headers, projectName); byName != "" {
			liveID = byName
			idSource = "metadata"
		}
	}

	if liveID == "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		liveID, err = refine.ExtractProjectID(refine.ExtractInputs{
			Status:   resp.StatusCode,
			Location: location,
			FinalURL: finalURL,
			Body:     body,
		})
		if err != nil {
			return "", "", err
		}
		idSource = "body"
	}

	if err := s.registry.Register(ctx, liveID, user.ID, projectName); err != nil {
		if err == registry.ErrOwnershipConflict {
			return "", "", apierr.Forbidden("Project is registered to another user")
		}
		return "", "", err
	}
	return liveID, idSource, nil
}

func (s *Service) cleanupBlob(ctx context.Context, path string) {
	if err := s.blobs.Delete(ctx, path); err != nil {
		log.Printf("[warn] operation=cleanup_blob path=%s error=%v", path, err)
	}
}

var dataURIPattern = regexp.MustCompile(`^data:([^;]+);base64,(.+)$`)

func parseDataURI(dataURI string) (string, []byte, error) {
	m := dataURIPattern.FindStringSubmatch(dataURI)
	if m == nil {
		return "", nil, apierr.BadRequest("thumbnail must be a base64 Data URI")
	}
	decoded, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, apierr.BadRequest("thumbnail data is not valid base64")
	}
	return m[1], decoded, nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
