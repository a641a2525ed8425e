// Package lifecycle owns project status transitions and the aggregate
// counters derived from segment rows.
package lifecycle

import (
	"errors"
	"fmt"

	"audioscribe/pkg/domain"
	"audioscribe/pkg/store"
)

// Event names a lifecycle trigger.
type Event string

const (
	EventIngestCompleted    Event = "ingest_completed"
	EventTranscriptionSaved Event = "transcription_saved"
	EventAllTranscribed     Event = "all_transcribed"
	EventProcessingFailed   Event = "processing_failed"
)

// ErrInvalidTransition reports an event that is not allowed in the
// project's current status.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// ErrInvalidOrder reports a reorder request whose segment IDs are not
// exactly the folder's current segments.
var ErrInvalidOrder = errors.New("lifecycle: invalid segment order")

// Next returns the status that follows the given event, rejecting events
// the current status does not accept.
func Next(status domain.ProjectStatus, ev Event) (domain.ProjectStatus, error) {
	switch ev {
	case EventIngestCompleted:
		if status == domain.StatusProcessing {
			return domain.StatusReadyForTranscription, nil
		}
	case EventProcessingFailed:
		if status == domain.StatusProcessing {
			return domain.StatusFailed, nil
		}
	case EventTranscriptionSaved:
		switch status {
		case domain.StatusReadyForTranscription, domain.StatusInTranscription:
			return domain.StatusInTranscription, nil
		}
	case EventAllTranscribed:
		if status == domain.StatusInTranscription {
			return domain.StatusCompleted, nil
		}
	}
	return status, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, status)
}

// Controller recomputes project counters and applies data-driven
// status transitions.
type Controller struct {
	store              store.Store
	requireTranslation bool
}

// NewController builds a Controller. When requireTranslation is set,
// completion additionally demands every segment be translated.
func NewController(st store.Store, requireTranslation bool) *Controller {
	return &Controller{store: st, requireTranslation: requireTranslation}
}

// RecalculateStats recounts duration and segment counters from segment
// rows and settles the project status from the data. Safe to run any
// number of times; each run converges on the same result for the same
// rows.
func (c *Controller) RecalculateStats(projectID string) (domain.Project, error) {
	project, ok, err := c.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, fmt.Errorf("project %s not found", projectID)
	}
	segs, err := c.store.ListSegmentsByProject(projectID)
	if err != nil {
		return domain.Project{}, err
	}

	var stats store.ProjectStats
	for _, seg := range segs {
		stats.TotalSegments++
		stats.Duration += seg.Duration
		if seg.IsTranscribed || seg.HasTranscription() {
			stats.TranscribedSegments++
		}
		if seg.IsTranslated || len(seg.Translation) > 0 {
			stats.TranslatedSegments++
		}
	}

	status := c.settle(project.Status, stats)
	if err := c.store.UpdateProjectStats(projectID, stats, status); err != nil {
		return domain.Project{}, err
	}

	project.Duration = stats.Duration
	project.TotalSegments = stats.TotalSegments
	project.TranscribedSegments = stats.TranscribedSegments
	project.TranslatedSegments = stats.TranslatedSegments
	project.Status = status
	return project, nil
}

// settle picks the status the counters imply. Ingest owns processing
// and failed, so those are left untouched.
func (c *Controller) settle(current domain.ProjectStatus, stats store.ProjectStats) domain.ProjectStatus {
	switch current {
	case domain.StatusProcessing, domain.StatusFailed:
		return current
	}
	done := stats.TotalSegments > 0 && stats.TranscribedSegments == stats.TotalSegments
	if done && c.requireTranslation {
		done = stats.TranslatedSegments == stats.TotalSegments
	}
	switch {
	case done:
		return domain.StatusCompleted
	case stats.TranscribedSegments > 0:
		return domain.StatusInTranscription
	default:
		return domain.StatusReadyForTranscription
	}
}

// ReorderSegments renumbers the folder's segments following orderedIDs.
// The IDs must be a permutation of the folder's current segments; on any
// mismatch nothing is written.
func (c *Controller) ReorderSegments(folderID string, orderedIDs []string) error {
	if _, ok, err := c.store.GetFolder(folderID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("folder %s not found", folderID)
	}
	if err := c.store.RenumberSegments(folderID, orderedIDs); err != nil {
		if errors.Is(err, store.ErrSegmentSetMismatch) {
			return ErrInvalidOrder
		}
		return err
	}
	return nil
}
