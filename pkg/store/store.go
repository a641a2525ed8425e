package store

import (
	"errors"

	"audioscribe/pkg/domain"
)

// ErrDuplicateProjectName is returned by CreateProject when another project
// already holds the requested name.
var ErrDuplicateProjectName = errors.New("store: duplicate project name")

// ErrSegmentSetMismatch is returned by RenumberSegments when the supplied
// segment IDs are not exactly the segments of the folder.
var ErrSegmentSetMismatch = errors.New("store: segment set mismatch")

// ProjectStats carries recomputed aggregate counters for a project.
type ProjectStats struct {
	Duration            float64
	TotalSegments       int
	TranscribedSegments int
	TranslatedSegments  int
}

// Store is the persistence boundary for users, languages, projects,
// folders and segments. Lookups report absence with a false second
// return rather than an error.
type Store interface {
	SaveUser(u domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	DeleteUser(id string) error

	SaveLanguage(l domain.Language) error
	GetLanguage(id string) (domain.Language, bool, error)
	GetLanguageByCode(code string) (domain.Language, bool, error)
	ListLanguages() ([]domain.Language, error)
	DeleteLanguage(id string) error
	CountProjectsForLanguage(languageID string) (int, error)

	// CreateProject fails with ErrDuplicateProjectName when the name is
	// taken; SaveProject upserts an existing project.
	CreateProject(p domain.Project) error
	SaveProject(p domain.Project) error
	GetProject(id string) (domain.Project, bool, error)
	GetProjectByName(name string) (domain.Project, bool, error)
	ListProjects() ([]domain.Project, error)
	ListProjectsByUser(userID string) ([]domain.Project, error)
	// DeleteProject removes the project with its folders and segments in
	// one transaction, returning the storage keys of removed segments so
	// object storage can be cleaned up.
	DeleteProject(id string) ([]string, error)

	SaveFolder(f domain.Folder) error
	GetFolder(id string) (domain.Folder, bool, error)
	ListFoldersByProject(projectID string) ([]domain.Folder, error)
	// DeleteFolder removes the folder and its segments transactionally and
	// returns the removed segments' storage keys.
	DeleteFolder(id string) ([]string, error)

	CreateSegments(segs []domain.Segment) error
	SaveSegment(s domain.Segment) error
	GetSegment(id string) (domain.Segment, bool, error)
	ListSegmentsByFolder(folderID string) ([]domain.Segment, error)
	ListSegmentsByProject(projectID string) ([]domain.Segment, error)
	DeleteSegment(id string) error

	// UpdateProjectStats writes the recomputed counters and the resulting
	// status in one transaction.
	UpdateProjectStats(projectID string, stats ProjectStats, status domain.ProjectStatus) error

	// RenumberSegments reassigns positions 1..N following orderedIDs. The
	// IDs must be exactly the folder's segments; the operation is applied
	// atomically or not at all.
	RenumberSegments(folderID string, orderedIDs []string) error
}
