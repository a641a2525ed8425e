package server

import (
	"io"
	"net/http"
	"strings"

	"audioscribe/internal/app"
	"audioscribe/internal/ingest"
	"audioscribe/pkg/domain"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		var projects []domain.Project
		var err error
		if userID := r.URL.Query().Get("userId"); userID != "" {
			projects, err = s.app.ListProjectsByUser(userID)
		} else {
			projects, err = s.app.ListProjects()
		}
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		if !s.requireRole(w, r, user, opProjectsWrite) {
			return
		}
		var req createProjectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		project, err := s.app.CreateProject(user.ID, req.Name, req.LanguageID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	default:
		methodNotAllowed(w)
	}
}

// handleProjectByID serves /api/projects/{id} and its two subresources,
// /recalculate-stats and /folders.
func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch sub {
	case "":
	case "recalculate-stats":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.requireRole(w, r, user, opProjectsAdmin) {
			return
		}
		project, err := s.app.RecalculateStats(id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
		return
	case "folders":
		s.handleProjectFolders(w, r, user, id)
		return
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := s.app.GetProject(id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodPatch, http.MethodPut:
		if !s.requireRole(w, r, user, opProjectsWrite) {
			return
		}
		var req updateProjectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		project, err := s.app.UpdateProject(id, req.Name, req.LanguageID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodDelete:
		if !s.requireRole(w, r, user, opProjectsAdmin) {
			return
		}
		if err := s.app.DeleteProject(r.Context(), id); err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "project.delete", "success", "user_id", user.ID, "project_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProjectFolders(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	switch r.Method {
	case http.MethodGet:
		folders, err := s.app.ListFolders(projectID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
	case http.MethodPost:
		if !s.requireRole(w, r, user, opProjectsWrite) {
			return
		}
		var req createFolderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		folder, err := s.app.CreateFolder(projectID, req.Name, req.Description)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, folder)
	default:
		methodNotAllowed(w)
	}
}

// handleFolderByID serves /api/folders/{id} plus /reorder-segments and
// /segments.
func (s *Server) handleFolderByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/folders/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch sub {
	case "":
	case "reorder-segments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.requireRole(w, r, user, opProjectsAdmin) {
			return
		}
		var req reorderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		segs, err := s.app.ReorderSegments(id, req.SegmentIDs)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"segments": segs})
		return
	case "segments":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		segs, err := s.app.ListSegments(id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"segments": segs})
		return
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		if !s.requireRole(w, r, user, opProjectsWrite) {
			return
		}
		var req updateFolderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		folder, err := s.app.UpdateFolder(id, req.Name, req.Description)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, folder)
	case http.MethodDelete:
		if !s.requireRole(w, r, user, opProjectsAdmin) {
			return
		}
		if err := s.app.DeleteFolder(r.Context(), id); err != nil {
			s.writeAppError(w, err)
			return
		}
		s.audit(r, "folder.delete", "success", "user_id", user.ID, "folder_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// handleSegmentByID serves /api/segments/{id} and /audio.
func (s *Server) handleSegmentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/segments/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch sub {
	case "":
	case "audio":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		url, err := s.app.SegmentAudioURL(r.Context(), id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		seg, err := s.app.GetSegment(id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	case http.MethodPatch, http.MethodPut:
		if !s.requireRole(w, r, user, opSegmentsWrite) {
			return
		}
		var req updateSegmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		seg, err := s.app.UpdateSegment(id, user.ID, app.UpdateSegmentInput{
			Transcription: req.Transcription,
			Translation:   req.Translation,
			IsApproved:    req.IsApproved,
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	case http.MethodDelete:
		if !s.requireRole(w, r, user, opProjectsAdmin) {
			return
		}
		if err := s.app.DeleteSegment(id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// handleUploadBatch ingests a multipart batch of audio files.
func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files supplied")
		return
	}
	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		header := header
		files = append(files, ingest.File{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}

	projectName := r.FormValue("projectName")
	languageID := r.FormValue("languageId")
	result, err := s.app.UploadBatch(r.Context(), user.ID, projectName, languageID, files, nil)
	if err != nil {
		s.audit(r, "upload.batch", "fail", "user_id", user.ID)
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "upload.batch", "success", "user_id", user.ID, "project_id", result.ProjectID, "ok", len(result.Success), "failed", len(result.Failed))
	writeJSON(w, http.StatusOK, result)
}
