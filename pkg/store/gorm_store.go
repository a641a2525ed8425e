package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"audioscribe/pkg/domain"
)

const migrateLockID int64 = 48120481

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &LanguageModel{}, &ProjectModel{}, &FolderModel{}, &SegmentModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM folder_models f
				WHERE NOT EXISTS (SELECT 1 FROM project_models p WHERE p.id = f.project_id);
				DELETE FROM segment_models s
				WHERE NOT EXISTS (SELECT 1 FROM folder_models f WHERE f.id = s.folder_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'folder_models'
					AND constraint_name = 'folder_models_project_id_fkey'
				) THEN
					ALTER TABLE folder_models
					ADD CONSTRAINT folder_models_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES project_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'segment_models'
					AND constraint_name = 'segment_models_folder_id_fkey'
				) THEN
					ALTER TABLE segment_models
					ADD CONSTRAINT segment_models_folder_id_fkey
					FOREIGN KEY (folder_id) REFERENCES folder_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "password_hash", "role", "is_active", "last_login_at", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// DeleteUser removes a user.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Delete(&UserModel{}, "id = ?", id).Error
}

// SaveLanguage stores or updates a language.
func (s *GormStore) SaveLanguage(l domain.Language) error {
	model := languageToModel(l)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "name", "is_active"}),
	}).Create(&model).Error
}

// GetLanguage returns a language by ID.
func (s *GormStore) GetLanguage(id string) (domain.Language, bool, error) {
	var model LanguageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Language{}, false, nil
		}
		return domain.Language{}, false, err
	}
	return languageFromModel(model), true, nil
}

// GetLanguageByCode looks up a language by its code.
func (s *GormStore) GetLanguageByCode(code string) (domain.Language, bool, error) {
	var model LanguageModel
	if err := s.db.Where("code = ?", code).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Language{}, false, nil
		}
		return domain.Language{}, false, err
	}
	return languageFromModel(model), true, nil
}

// ListLanguages returns all languages ordered by code.
func (s *GormStore) ListLanguages() ([]domain.Language, error) {
	var models []LanguageModel
	if err := s.db.Order("code ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Language, 0, len(models))
	for _, m := range models {
		res = append(res, languageFromModel(m))
	}
	return res, nil
}

// DeleteLanguage removes a language.
func (s *GormStore) DeleteLanguage(id string) error {
	return s.db.Delete(&LanguageModel{}, "id = ?", id).Error
}

// CountProjectsForLanguage returns how many projects reference a language.
func (s *GormStore) CountProjectsForLanguage(languageID string) (int, error) {
	var count int64
	if err := s.db.Model(&ProjectModel{}).Where("language_id = ?", languageID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateProject inserts a new project. The project name is unique.
func (s *GormStore) CreateProject(p domain.Project) error {
	model := projectToModel(p)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateProjectName
		}
		return err
	}
	return nil
}

// SaveProject stores or updates a project.
func (s *GormStore) SaveProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "original_filename", "language_id", "duration", "total_segments", "transcribed_segments", "translated_segments", "status", "boundary_f_score", "updated_at"}),
	}).Create(&model).Error
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// GetProjectByName retrieves a project by its unique name.
func (s *GormStore) GetProjectByName(name string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.Where("name = ?", name).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjects returns all projects ordered by created_at.
func (s *GormStore) ListProjects() ([]domain.Project, error) {
	return s.listProjects("created_at ASC")
}

// ListProjectsByUser returns projects owned by a user.
func (s *GormStore) ListProjectsByUser(userID string) ([]domain.Project, error) {
	return s.listProjects("created_at ASC", "user_id = ?", userID)
}

func (s *GormStore) listProjects(order string, conds ...any) ([]domain.Project, error) {
	var models []ProjectModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// DeleteProject removes the project, its folders and segments.
func (s *GormStore) DeleteProject(id string) ([]string, error) {
	var keys []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&SegmentModel{}).Where("project_id = ?", id).Pluck("storage_key", &keys).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SegmentModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&FolderModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ProjectModel{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// SaveFolder stores or updates a folder.
func (s *GormStore) SaveFolder(f domain.Folder) error {
	model := folderToModel(f)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "updated_at"}),
	}).Create(&model).Error
}

// GetFolder retrieves a folder.
func (s *GormStore) GetFolder(id string) (domain.Folder, bool, error) {
	var model FolderModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Folder{}, false, nil
		}
		return domain.Folder{}, false, err
	}
	return folderFromModel(model), true, nil
}

// ListFoldersByProject returns folders of a project ordered by created_at.
func (s *GormStore) ListFoldersByProject(projectID string) ([]domain.Folder, error) {
	var models []FolderModel
	if err := s.db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Folder, 0, len(models))
	for _, m := range models {
		res = append(res, folderFromModel(m))
	}
	return res, nil
}

// DeleteFolder removes the folder and its segments.
func (s *GormStore) DeleteFolder(id string) ([]string, error) {
	var keys []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&SegmentModel{}).Where("folder_id = ?", id).Pluck("storage_key", &keys).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SegmentModel{}, "folder_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&FolderModel{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// CreateSegments inserts segments in bulk.
func (s *GormStore) CreateSegments(segs []domain.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	models := make([]SegmentModel, 0, len(segs))
	for _, seg := range segs {
		models = append(models, segmentToModel(seg))
	}
	return s.db.CreateInBatches(&models, 200).Error
}

// SaveSegment stores or updates a segment.
func (s *GormStore) SaveSegment(seg domain.Segment) error {
	model := segmentToModel(seg)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"segment_number", "transcription", "translation",
			"is_transcribed", "is_translated", "is_approved",
			"transcribed_by", "transcribed_at", "translated_by", "translated_at",
			"metadata", "updated_at",
		}),
	}).Create(&model).Error
}

// GetSegment retrieves a segment.
func (s *GormStore) GetSegment(id string) (domain.Segment, bool, error) {
	var model SegmentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Segment{}, false, nil
		}
		return domain.Segment{}, false, err
	}
	return segmentFromModel(model), true, nil
}

// ListSegmentsByFolder returns folder segments in playback order.
func (s *GormStore) ListSegmentsByFolder(folderID string) ([]domain.Segment, error) {
	return s.listSegments("folder_id = ?", folderID)
}

// ListSegmentsByProject returns all segments of a project in playback order.
func (s *GormStore) ListSegmentsByProject(projectID string) ([]domain.Segment, error) {
	return s.listSegments("project_id = ?", projectID)
}

func (s *GormStore) listSegments(cond string, arg any) ([]domain.Segment, error) {
	var models []SegmentModel
	if err := s.db.Where(cond, arg).Order("segment_number ASC").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Segment, 0, len(models))
	for _, m := range models {
		res = append(res, segmentFromModel(m))
	}
	return res, nil
}

// DeleteSegment removes a segment.
func (s *GormStore) DeleteSegment(id string) error {
	return s.db.Delete(&SegmentModel{}, "id = ?", id).Error
}

// UpdateProjectStats writes recomputed counters and status atomically.
func (s *GormStore) UpdateProjectStats(projectID string, stats ProjectStats, status domain.ProjectStatus) error {
	return s.db.Model(&ProjectModel{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"duration":             stats.Duration,
			"total_segments":       stats.TotalSegments,
			"transcribed_segments": stats.TranscribedSegments,
			"translated_segments":  stats.TranslatedSegments,
			"status":               string(status),
			"updated_at":           time.Now().UTC(),
		}).Error
}

// RenumberSegments reassigns folder segment positions following orderedIDs.
func (s *GormStore) RenumberSegments(folderID string, orderedIDs []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var current []string
		if err := tx.Model(&SegmentModel{}).Where("folder_id = ?", folderID).Pluck("id", &current).Error; err != nil {
			return err
		}
		if len(current) != len(orderedIDs) {
			return ErrSegmentSetMismatch
		}
		have := make(map[string]struct{}, len(current))
		for _, id := range current {
			have[id] = struct{}{}
		}
		for _, id := range orderedIDs {
			if _, ok := have[id]; !ok {
				return ErrSegmentSetMismatch
			}
			delete(have, id)
		}
		now := time.Now().UTC()
		for i, id := range orderedIDs {
			if err := tx.Model(&SegmentModel{}).Where("id = ?", id).
				Updates(map[string]any{"segment_number": i + 1, "updated_at": now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		IsActive:     m.IsActive,
		LastLoginAt:  m.LastLoginAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func languageToModel(l domain.Language) LanguageModel {
	return LanguageModel{
		ID:        l.ID,
		Code:      l.Code,
		Name:      l.Name,
		IsActive:  l.IsActive,
		CreatedAt: l.CreatedAt,
	}
}

func languageFromModel(m LanguageModel) domain.Language {
	return domain.Language{
		ID:        m.ID,
		Code:      m.Code,
		Name:      m.Name,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:                  p.ID,
		Name:                p.Name,
		OriginalFilename:    p.OriginalFilename,
		LanguageID:          p.LanguageID,
		UserID:              p.UserID,
		Duration:            p.Duration,
		TotalSegments:       p.TotalSegments,
		TranscribedSegments: p.TranscribedSegments,
		TranslatedSegments:  p.TranslatedSegments,
		Status:              string(p.Status),
		BoundaryFScore:      p.BoundaryFScore,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:                  m.ID,
		Name:                m.Name,
		OriginalFilename:    m.OriginalFilename,
		LanguageID:          m.LanguageID,
		UserID:              m.UserID,
		Duration:            m.Duration,
		TotalSegments:       m.TotalSegments,
		TranscribedSegments: m.TranscribedSegments,
		TranslatedSegments:  m.TranslatedSegments,
		Status:              domain.ProjectStatus(m.Status),
		BoundaryFScore:      m.BoundaryFScore,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func folderToModel(f domain.Folder) FolderModel {
	return FolderModel{
		ID:          f.ID,
		ProjectID:   f.ProjectID,
		Name:        f.Name,
		Description: f.Description,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func folderFromModel(m FolderModel) domain.Folder {
	return domain.Folder{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func segmentToModel(seg domain.Segment) SegmentModel {
	var metadata datatypes.JSON
	if len(seg.Metadata) > 0 {
		if raw, err := json.Marshal(seg.Metadata); err == nil {
			metadata = datatypes.JSON(raw)
		}
	}
	return SegmentModel{
		ID:               seg.ID,
		FolderID:         seg.FolderID,
		ProjectID:        seg.ProjectID,
		OriginalFilename: seg.OriginalFilename,
		StorageKey:       seg.StorageKey,
		Duration:         seg.Duration,
		SegmentNumber:    seg.SegmentNumber,
		StartTime:        seg.StartTime,
		EndTime:          seg.EndTime,
		Confidence:       seg.Confidence,
		ProcessingMethod: seg.ProcessingMethod,
		Metadata:         metadata,
		Transcription:    seg.Transcription,
		Translation:      seg.Translation,
		IsTranscribed:    seg.IsTranscribed,
		IsTranslated:     seg.IsTranslated,
		IsApproved:       seg.IsApproved,
		TranscribedBy:    seg.TranscribedBy,
		TranscribedAt:    seg.TranscribedAt,
		TranslatedBy:     seg.TranslatedBy,
		TranslatedAt:     seg.TranslatedAt,
		CreatedAt:        seg.CreatedAt,
		UpdatedAt:        seg.UpdatedAt,
	}
}

func segmentFromModel(m SegmentModel) domain.Segment {
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata)
	}
	return domain.Segment{
		ID:               m.ID,
		FolderID:         m.FolderID,
		ProjectID:        m.ProjectID,
		OriginalFilename: m.OriginalFilename,
		StorageKey:       m.StorageKey,
		Duration:         m.Duration,
		SegmentNumber:    m.SegmentNumber,
		StartTime:        m.StartTime,
		EndTime:          m.EndTime,
		Confidence:       m.Confidence,
		ProcessingMethod: m.ProcessingMethod,
		Metadata:         metadata,
		Transcription:    m.Transcription,
		Translation:      m.Translation,
		IsTranscribed:    m.IsTranscribed,
		IsTranslated:     m.IsTranslated,
		IsApproved:       m.IsApproved,
		TranscribedBy:    m.TranscribedBy,
		TranscribedAt:    m.TranscribedAt,
		TranslatedBy:     m.TranslatedBy,
		TranslatedAt:     m.TranslatedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
