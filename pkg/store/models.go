package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	LastLoginAt  time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type LanguageModel struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
}

type ProjectModel struct {
	ID                  string `gorm:"primaryKey"`
	Name                string `gorm:"uniqueIndex;not null"`
	OriginalFilename    string
	LanguageID          string `gorm:"not null;index"`
	UserID              string `gorm:"not null;index"`
	Duration            float64
	TotalSegments       int
	TranscribedSegments int
	TranslatedSegments  int
	Status              string `gorm:"not null"`
	BoundaryFScore      float64
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

type FolderModel struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type SegmentModel struct {
	ID               string `gorm:"primaryKey"`
	FolderID         string `gorm:"not null;index;index:idx_segment_folder_position,priority:1"`
	ProjectID        string `gorm:"not null;index"`
	OriginalFilename string
	StorageKey       string
	Duration         float64
	SegmentNumber    int `gorm:"not null;index:idx_segment_folder_position,priority:2"`
	StartTime        float64
	EndTime          float64
	Confidence       float64
	ProcessingMethod string
	Metadata         datatypes.JSON `gorm:"type:jsonb"`
	Transcription    string         `gorm:"type:text"`
	Translation      string         `gorm:"type:text"`
	IsTranscribed    bool           `gorm:"not null;default:false"`
	IsTranslated     bool           `gorm:"not null;default:false"`
	IsApproved       *bool
	TranscribedBy    string
	TranscribedAt    time.Time
	TranslatedBy     string
	TranslatedAt     time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time
}
