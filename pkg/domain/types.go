package domain

import "time"

type ProjectStatus string

const (
	StatusProcessing            ProjectStatus = "processing"
	StatusReadyForTranscription ProjectStatus = "ready_for_transcription"
	StatusInTranscription       ProjectStatus = "in_transcription"
	StatusCompleted             ProjectStatus = "completed"
	StatusFailed                ProjectStatus = "failed"
)

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleEditor  UserRole = "editor"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"isActive"`
	LastLoginAt  time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Language struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type Project struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	OriginalFilename    string        `json:"originalFilename"`
	LanguageID          string        `json:"languageId"`
	UserID              string        `json:"userId"`
	Duration            float64       `json:"duration"`
	TotalSegments       int           `json:"totalSegments"`
	TranscribedSegments int           `json:"transcribedSegments"`
	TranslatedSegments  int           `json:"translatedSegments"`
	Status              ProjectStatus `json:"status"`
	BoundaryFScore      float64       `json:"boundaryFScore,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

type Folder struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Segment struct {
	ID               string            `json:"id"`
	FolderID         string            `json:"folderId"`
	ProjectID        string            `json:"projectId"`
	OriginalFilename string            `json:"originalFilename"`
	StorageKey       string            `json:"-"`
	Duration         float64           `json:"duration"`
	SegmentNumber    int               `json:"segmentNumber"`
	StartTime        float64           `json:"startTime"`
	EndTime          float64           `json:"endTime"`
	Confidence       float64           `json:"confidence"`
	ProcessingMethod string            `json:"processingMethod"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Transcription    string            `json:"transcription,omitempty"`
	Translation      string            `json:"translation,omitempty"`
	IsTranscribed    bool              `json:"isTranscribed"`
	IsTranslated     bool              `json:"isTranslated"`
	IsApproved       *bool             `json:"isApproved,omitempty"`
	TranscribedBy    string            `json:"transcribedBy,omitempty"`
	TranscribedAt    time.Time         `json:"transcribedAt,omitempty"`
	TranslatedBy     string            `json:"translatedBy,omitempty"`
	TranslatedAt     time.Time         `json:"translatedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// HasTranscription reports whether the segment carries non-empty transcription
// text, which is the source of truth behind the IsTranscribed flag.
func (s Segment) HasTranscription() bool {
	return len(s.Transcription) > 0
}
