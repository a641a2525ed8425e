// Package ingest runs the batch upload pipeline that turns uploaded
// audio files into folders of segments under a project.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"audioscribe/internal/lifecycle"
	"audioscribe/internal/util"
	"audioscribe/pkg/domain"
	"audioscribe/pkg/segmenter"
	"audioscribe/pkg/storage"
	"audioscribe/pkg/store"
)

const (
	defaultMaxFiles     = 1000
	defaultBatchSize    = 5
	defaultMaxFileBytes = 500 << 20
)

// FailureCode classifies why a file was rejected or failed.
type FailureCode string

const (
	FailureTooLarge          FailureCode = "file_too_large"
	FailureUnsupportedFormat FailureCode = "unsupported_format"
	FailureProcessing        FailureCode = "processing_error"
)

// FileState is the terminal pipeline state of one file.
type FileState string

const (
	StatePending   FileState = "pending"
	StateCompleted FileState = "completed"
	StateError     FileState = "error"
)

// File is one uploaded audio file queued for ingestion.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileProgress is the pipeline status of one file as reported to the
// progress callback and in the final result.
type FileProgress struct {
	Filename string      `json:"filename"`
	State    FileState   `json:"state"`
	Code     FailureCode `json:"code,omitempty"`
	Error    string      `json:"error,omitempty"`
	FolderID string      `json:"folderId,omitempty"`
}

// Result summarizes a finished batch, split into the files that landed
// and the files that did not.
type Result struct {
	ProjectID string         `json:"projectId"`
	Success   []FileProgress `json:"success"`
	Failed    []FileProgress `json:"failed"`
}

// Config bounds the pipeline. Zero values fall back to defaults.
type Config struct {
	MaxFiles          int
	BatchSize         int
	MaxFileBytes      int64
	AllowedExtensions []string
	AllowedMIMETypes  []string
}

func (c Config) withDefaults() Config {
	if c.MaxFiles <= 0 {
		c.MaxFiles = defaultMaxFiles
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = defaultMaxFileBytes
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".wav", ".mp3", ".m4a"}
	}
	if len(c.AllowedMIMETypes) == 0 {
		c.AllowedMIMETypes = []string{
			"audio/wav", "audio/x-wav", "audio/wave",
			"audio/mpeg", "audio/mp3",
			"audio/mp4", "audio/m4a", "audio/x-m4a",
		}
	}
	return c
}

// Pipeline turns uploaded audio files into folders of segments under one
// project.
type Pipeline struct {
	store     store.Store
	objects   storage.ObjectStore
	segmenter segmenter.Segmenter
	lifecycle *lifecycle.Controller
	cfg       Config
}

// New builds a Pipeline.
func New(st store.Store, objects storage.ObjectStore, seg segmenter.Segmenter, lc *lifecycle.Controller, cfg Config) *Pipeline {
	return &Pipeline{
		store:     st,
		objects:   objects,
		segmenter: seg,
		lifecycle: lc,
		cfg:       cfg.withDefaults(),
	}
}

// Run ingests the files under the named project, creating it when absent.
// Per-file failures are recorded in the result and never abort the batch;
// only setup problems return an error. The optional progress callback
// receives a snapshot of all file states after each file settles.
func (p *Pipeline) Run(ctx context.Context, userID, projectName, languageID string, files []File, progress func([]FileProgress)) (Result, error) {
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no files supplied")
	}
	if len(files) > p.cfg.MaxFiles {
		return Result{}, fmt.Errorf("too many files: %d exceeds limit %d", len(files), p.cfg.MaxFiles)
	}

	project, err := p.resolveProject(userID, projectName, languageID, files[0].Name)
	if err != nil {
		return Result{}, err
	}

	tracker := &progressTracker{
		files:  make([]FileProgress, len(files)),
		notify: progress,
	}
	for i, f := range files {
		tracker.files[i] = FileProgress{Filename: f.Name, State: StatePending}
	}

	var scoreSum float64
	var scoreCount int
	var scoreMu sync.Mutex

	for start := 0; start < len(files); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			file := files[i]
			g.Go(func() error {
				folderID, fscore, err := p.processFile(gctx, project, file)
				if err != nil {
					var rej *rejection
					code := FailureProcessing
					if errors.As(err, &rej) {
						code = rej.code
					}
					tracker.set(i, FileProgress{Filename: file.Name, State: StateError, Code: code, Error: err.Error()})
					return nil
				}
				scoreMu.Lock()
				scoreSum += fscore
				scoreCount++
				scoreMu.Unlock()
				tracker.set(i, FileProgress{Filename: file.Name, State: StateCompleted, FolderID: folderID})
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	}

	result := Result{
		ProjectID: project.ID,
		Success:   []FileProgress{},
		Failed:    []FileProgress{},
	}
	for _, f := range tracker.snapshot() {
		if f.State == StateCompleted {
			result.Success = append(result.Success, f)
		} else {
			result.Failed = append(result.Failed, f)
		}
	}

	if err := p.finishProject(project, len(result.Success), scoreSum, scoreCount); err != nil {
		return Result{}, err
	}
	return result, nil
}

// resolveProject reuses the named project or creates it in processing
// state. A concurrent creator winning the unique name race is handled by
// re-reading after the conflict.
func (p *Pipeline) resolveProject(userID, projectName, languageID, firstFilename string) (domain.Project, error) {
	name := strings.TrimSpace(projectName)
	if name == "" {
		name = strings.TrimSuffix(firstFilename, filepath.Ext(firstFilename))
	}
	existing, ok, err := p.store.GetProjectByName(name)
	if err != nil {
		return domain.Project{}, err
	}
	if ok {
		existing.Status = domain.StatusProcessing
		existing.UpdatedAt = time.Now().UTC()
		if err := p.store.SaveProject(existing); err != nil {
			return domain.Project{}, err
		}
		return existing, nil
	}
	now := time.Now().UTC()
	project := domain.Project{
		ID:               util.NewID(),
		Name:             name,
		OriginalFilename: firstFilename,
		LanguageID:       languageID,
		UserID:           userID,
		Status:           domain.StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.store.CreateProject(project); err != nil {
		if errors.Is(err, store.ErrDuplicateProjectName) {
			won, ok, err := p.store.GetProjectByName(name)
			if err != nil {
				return domain.Project{}, err
			}
			if ok {
				return won, nil
			}
		}
		return domain.Project{}, err
	}
	return project, nil
}

type rejection struct {
	code FailureCode
	msg  string
}

func (r *rejection) Error() string { return r.msg }

func (p *Pipeline) validate(file File) error {
	if file.Size > p.cfg.MaxFileBytes {
		return &rejection{code: FailureTooLarge, msg: fmt.Sprintf("file exceeds %d byte limit", p.cfg.MaxFileBytes)}
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	for _, allowed := range p.cfg.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	mime := strings.ToLower(strings.TrimSpace(file.ContentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	for _, allowed := range p.cfg.AllowedMIMETypes {
		if mime == allowed {
			return nil
		}
	}
	return &rejection{code: FailureUnsupportedFormat, msg: fmt.Sprintf("unsupported audio format %q (%s)", ext, file.ContentType)}
}

// processFile stores the raw audio, runs boundary detection and persists
// the resulting folder plus its segments.
func (p *Pipeline) processFile(ctx context.Context, project domain.Project, file File) (string, float64, error) {
	if err := p.validate(file); err != nil {
		return "", 0, err
	}

	storageKey := uuid.NewString() + strings.ToLower(filepath.Ext(file.Name))
	r, err := file.Open()
	if err != nil {
		return "", 0, fmt.Errorf("open upload: %w", err)
	}
	err = p.objects.Put(ctx, storageKey, r, file.Size, storage.AudioContentType(file.Name))
	r.Close()
	if err != nil {
		return "", 0, fmt.Errorf("store audio: %w", err)
	}

	r, err = file.Open()
	if err != nil {
		return "", 0, fmt.Errorf("reopen upload: %w", err)
	}
	analysis, err := p.segmenter.Analyze(ctx, file.Name, r)
	r.Close()
	if err != nil {
		_ = p.objects.Delete(ctx, storageKey)
		return "", 0, err
	}

	boundaries := analysis.Boundaries
	if len(boundaries) == 0 {
		boundaries = []segmenter.Boundary{{Start: 0, End: analysis.Duration, Confidence: 1}}
	}
	if err := checkBoundaries(boundaries, analysis.Duration); err != nil {
		_ = p.objects.Delete(ctx, storageKey)
		return "", 0, err
	}

	now := time.Now().UTC()
	folder := domain.Folder{
		ID:        util.NewID(),
		ProjectID: project.ID,
		Name:      strings.TrimSuffix(file.Name, filepath.Ext(file.Name)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.SaveFolder(folder); err != nil {
		_ = p.objects.Delete(ctx, storageKey)
		return "", 0, fmt.Errorf("save folder: %w", err)
	}

	segs := make([]domain.Segment, 0, len(boundaries))
	for i, b := range boundaries {
		segs = append(segs, domain.Segment{
			ID:               util.NewID(),
			FolderID:         folder.ID,
			ProjectID:        project.ID,
			OriginalFilename: file.Name,
			StorageKey:       storageKey,
			Duration:         b.End - b.Start,
			SegmentNumber:    i + 1,
			StartTime:        b.Start,
			EndTime:          b.End,
			Confidence:       b.Confidence,
			ProcessingMethod: analysis.Method,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	if err := p.store.CreateSegments(segs); err != nil {
		_ = p.objects.Delete(ctx, storageKey)
		return "", 0, fmt.Errorf("save segments: %w", err)
	}
	return folder.ID, analysis.FScore, nil
}

// checkBoundaries rejects analysis results whose windows fall outside
// the source audio or run backwards, so broken segmenter output never
// reaches the database.
func checkBoundaries(boundaries []segmenter.Boundary, duration float64) error {
	for _, b := range boundaries {
		if b.Start < 0 || b.End <= b.Start || b.End > duration {
			return fmt.Errorf("segmenter returned invalid boundary [%g, %g] for %gs audio", b.Start, b.End, duration)
		}
	}
	return nil
}

// finishProject settles the project status once every batch has run and
// refreshes the counters from what actually landed.
func (p *Pipeline) finishProject(project domain.Project, success int, scoreSum float64, scoreCount int) error {
	ev := lifecycle.EventIngestCompleted
	if success == 0 {
		ev = lifecycle.EventProcessingFailed
	}
	status, err := lifecycle.Next(domain.StatusProcessing, ev)
	if err != nil {
		return err
	}
	current, ok, err := p.store.GetProject(project.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("project %s vanished during ingest", project.ID)
	}
	current.Status = status
	if scoreCount > 0 {
		current.BoundaryFScore = scoreSum / float64(scoreCount)
	}
	current.UpdatedAt = time.Now().UTC()
	if err := p.store.SaveProject(current); err != nil {
		return err
	}
	_, err = p.lifecycle.RecalculateStats(project.ID)
	return err
}

type progressTracker struct {
	mu     sync.Mutex
	files  []FileProgress
	notify func([]FileProgress)
}

func (t *progressTracker) set(i int, fp FileProgress) {
	t.mu.Lock()
	t.files[i] = fp
	snap := make([]FileProgress, len(t.files))
	copy(snap, t.files)
	t.mu.Unlock()
	if t.notify != nil {
		t.notify(snap)
	}
}

func (t *progressTracker) snapshot() []FileProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make([]FileProgress, len(t.files))
	copy(snap, t.files)
	return snap
}
