package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"audioscribe/internal/ingest"
	"audioscribe/internal/util"
	"audioscribe/pkg/domain"
	"audioscribe/pkg/store"
)

// CreateProject registers an empty project awaiting its first upload
// batch. It stays in processing until ingestion settles it.
func (a *App) CreateProject(userID, name, languageID string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, fmt.Errorf("project name required")
	}
	if _, ok, err := a.store.GetLanguage(languageID); err != nil {
		return domain.Project{}, fmt.Errorf("fetch language: %w", err)
	} else if !ok {
		return domain.Project{}, ErrLanguageNotFound
	}
	now := time.Now().UTC()
	project := domain.Project{
		ID:         util.NewID(),
		Name:       name,
		LanguageID: languageID,
		UserID:     userID,
		Status:     domain.StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateProject(project); err != nil {
		if errors.Is(err, store.ErrDuplicateProjectName) {
			return domain.Project{}, ErrProjectNameTaken
		}
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return project, nil
}

// GetProject returns one project.
func (a *App) GetProject(id string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}
	return project, nil
}

// ListProjects returns all projects.
func (a *App) ListProjects() ([]domain.Project, error) {
	return a.store.ListProjects()
}

// ListProjectsByUser returns the projects created by one user.
func (a *App) ListProjectsByUser(userID string) ([]domain.Project, error) {
	return a.store.ListProjectsByUser(userID)
}

// UpdateProject renames a project or moves it to another language.
func (a *App) UpdateProject(id string, name, languageID *string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}
	if name != nil {
		next := strings.TrimSpace(*name)
		if next != "" && next != project.Name {
			if _, taken, err := a.store.GetProjectByName(next); err != nil {
				return domain.Project{}, fmt.Errorf("check project name: %w", err)
			} else if taken {
				return domain.Project{}, ErrProjectNameTaken
			}
			project.Name = next
		}
	}
	if languageID != nil {
		if _, ok, err := a.store.GetLanguage(*languageID); err != nil {
			return domain.Project{}, fmt.Errorf("fetch language: %w", err)
		} else if !ok {
			return domain.Project{}, ErrLanguageNotFound
		}
		project.LanguageID = *languageID
	}
	project.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return project, nil
}

// DeleteProject removes the project, its folders, segments and audio.
func (a *App) DeleteProject(ctx context.Context, id string) error {
	if _, ok, err := a.store.GetProject(id); err != nil {
		return fmt.Errorf("fetch project: %w", err)
	} else if !ok {
		return ErrProjectNotFound
	}
	keys, err := a.store.DeleteProject(id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	a.deleteObjects(ctx, keys)
	return nil
}

// RecalculateStats recounts project stats from segment rows.
func (a *App) RecalculateStats(id string) (domain.Project, error) {
	if _, ok, err := a.store.GetProject(id); err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	} else if !ok {
		return domain.Project{}, ErrProjectNotFound
	}
	return a.lifecycle.RecalculateStats(id)
}

// CreateFolder adds a folder to a project.
func (a *App) CreateFolder(projectID, name, description string) (domain.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Folder{}, fmt.Errorf("folder name required")
	}
	if _, ok, err := a.store.GetProject(projectID); err != nil {
		return domain.Folder{}, fmt.Errorf("fetch project: %w", err)
	} else if !ok {
		return domain.Folder{}, ErrProjectNotFound
	}
	now := time.Now().UTC()
	folder := domain.Folder{
		ID:          util.NewID(),
		ProjectID:   projectID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveFolder(folder); err != nil {
		return domain.Folder{}, fmt.Errorf("save folder: %w", err)
	}
	return folder, nil
}

// ListFolders returns the folders of a project.
func (a *App) ListFolders(projectID string) ([]domain.Folder, error) {
	if _, ok, err := a.store.GetProject(projectID); err != nil {
		return nil, fmt.Errorf("fetch project: %w", err)
	} else if !ok {
		return nil, ErrProjectNotFound
	}
	return a.store.ListFoldersByProject(projectID)
}

// UpdateFolder renames a folder or changes its description.
func (a *App) UpdateFolder(id string, name, description *string) (domain.Folder, error) {
	folder, ok, err := a.store.GetFolder(id)
	if err != nil {
		return domain.Folder{}, fmt.Errorf("fetch folder: %w", err)
	}
	if !ok {
		return domain.Folder{}, ErrFolderNotFound
	}
	if name != nil && strings.TrimSpace(*name) != "" {
		folder.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		folder.Description = strings.TrimSpace(*description)
	}
	folder.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveFolder(folder); err != nil {
		return domain.Folder{}, fmt.Errorf("save folder: %w", err)
	}
	return folder, nil
}

// DeleteFolder removes a folder with its segments and audio, then
// refreshes the owning project's counters.
func (a *App) DeleteFolder(ctx context.Context, id string) error {
	folder, ok, err := a.store.GetFolder(id)
	if err != nil {
		return fmt.Errorf("fetch folder: %w", err)
	}
	if !ok {
		return ErrFolderNotFound
	}
	keys, err := a.store.DeleteFolder(id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	a.deleteObjects(ctx, keys)
	_, err = a.lifecycle.RecalculateStats(folder.ProjectID)
	return err
}

// ReorderSegments renumbers a folder's segments following orderedIDs.
func (a *App) ReorderSegments(folderID string, orderedIDs []string) ([]domain.Segment, error) {
	if _, ok, err := a.store.GetFolder(folderID); err != nil {
		return nil, fmt.Errorf("fetch folder: %w", err)
	} else if !ok {
		return nil, ErrFolderNotFound
	}
	if err := a.lifecycle.ReorderSegments(folderID, orderedIDs); err != nil {
		return nil, err
	}
	return a.store.ListSegmentsByFolder(folderID)
}

// ListSegments returns the segments of a folder in playback order.
func (a *App) ListSegments(folderID string) ([]domain.Segment, error) {
	if _, ok, err := a.store.GetFolder(folderID); err != nil {
		return nil, fmt.Errorf("fetch folder: %w", err)
	} else if !ok {
		return nil, ErrFolderNotFound
	}
	return a.store.ListSegmentsByFolder(folderID)
}

// GetSegment returns one segment.
func (a *App) GetSegment(id string) (domain.Segment, error) {
	seg, ok, err := a.store.GetSegment(id)
	if err != nil {
		return domain.Segment{}, fmt.Errorf("fetch segment: %w", err)
	}
	if !ok {
		return domain.Segment{}, ErrSegmentNotFound
	}
	return seg, nil
}

// UpdateSegmentInput carries optional segment changes.
type UpdateSegmentInput struct {
	Transcription *string
	Translation   *string
	IsApproved    *bool
}

// UpdateSegment applies transcription edits, stamping author and time,
// and refreshes the owning project's counters.
func (a *App) UpdateSegment(id string, editorID string, in UpdateSegmentInput) (domain.Segment, error) {
	seg, ok, err := a.store.GetSegment(id)
	if err != nil {
		return domain.Segment{}, fmt.Errorf("fetch segment: %w", err)
	}
	if !ok {
		return domain.Segment{}, ErrSegmentNotFound
	}
	now := time.Now().UTC()
	if in.Transcription != nil {
		seg.Transcription = *in.Transcription
		seg.IsTranscribed = seg.HasTranscription()
		if seg.IsTranscribed {
			seg.TranscribedBy = editorID
			seg.TranscribedAt = now
		} else {
			seg.TranscribedBy = ""
			seg.TranscribedAt = time.Time{}
		}
	}
	if in.Translation != nil {
		seg.Translation = *in.Translation
		seg.IsTranslated = len(seg.Translation) > 0
		if seg.IsTranslated {
			seg.TranslatedBy = editorID
			seg.TranslatedAt = now
		} else {
			seg.TranslatedBy = ""
			seg.TranslatedAt = time.Time{}
		}
	}
	if in.IsApproved != nil {
		seg.IsApproved = in.IsApproved
	}
	seg.UpdatedAt = now
	if err := a.store.SaveSegment(seg); err != nil {
		return domain.Segment{}, fmt.Errorf("save segment: %w", err)
	}
	if _, err := a.lifecycle.RecalculateStats(seg.ProjectID); err != nil {
		return domain.Segment{}, err
	}
	return seg, nil
}

// DeleteSegment removes one segment and refreshes the project's
// counters. The audio object stays because sibling segments of the same
// source file share it.
func (a *App) DeleteSegment(id string) error {
	seg, ok, err := a.store.GetSegment(id)
	if err != nil {
		return fmt.Errorf("fetch segment: %w", err)
	}
	if !ok {
		return ErrSegmentNotFound
	}
	if err := a.store.DeleteSegment(id); err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	_, err = a.lifecycle.RecalculateStats(seg.ProjectID)
	return err
}

// SegmentAudioURL returns a short-lived playback URL for the segment's
// source audio.
func (a *App) SegmentAudioURL(ctx context.Context, id string) (string, error) {
	seg, ok, err := a.store.GetSegment(id)
	if err != nil {
		return "", fmt.Errorf("fetch segment: %w", err)
	}
	if !ok {
		return "", ErrSegmentNotFound
	}
	if seg.StorageKey == "" {
		return "", fmt.Errorf("segment %s has no stored audio", id)
	}
	return a.objects.PresignGet(ctx, seg.StorageKey, a.audioURLTTL)
}

// UploadBatch runs the ingest pipeline for the supplied files. When no
// language is given the first active language is used.
func (a *App) UploadBatch(ctx context.Context, userID, projectName, languageID string, files []ingest.File, progress func([]ingest.FileProgress)) (ingest.Result, error) {
	languageID = strings.TrimSpace(languageID)
	if languageID == "" {
		langs, err := a.store.ListLanguages()
		if err != nil {
			return ingest.Result{}, fmt.Errorf("list languages: %w", err)
		}
		for _, l := range langs {
			if l.IsActive {
				languageID = l.ID
				break
			}
		}
		if languageID == "" {
			return ingest.Result{}, ErrLanguageNotFound
		}
	} else if _, ok, err := a.store.GetLanguage(languageID); err != nil {
		return ingest.Result{}, fmt.Errorf("fetch language: %w", err)
	} else if !ok {
		return ingest.Result{}, ErrLanguageNotFound
	}
	return a.pipeline.Run(ctx, userID, projectName, languageID, files, progress)
}

func (a *App) deleteObjects(ctx context.Context, keys []string) {
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		// Best effort; a leaked object is preferable to failing the
		// delete after the rows are gone.
		_ = a.objects.Delete(ctx, key)
	}
}
