package store

import (
	"sort"
	"sync"
	"time"

	"audioscribe/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	languages map[string]domain.Language
	projects  map[string]domain.Project
	folders   map[string]domain.Folder
	segments  map[string]domain.Segment
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		languages: make(map[string]domain.Language),
		projects:  make(map[string]domain.Project),
		folders:   make(map[string]domain.Folder),
		segments:  make(map[string]domain.Segment),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) SaveLanguage(l domain.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languages[l.ID] = l
	return nil
}

func (s *MemoryStore) GetLanguage(id string) (domain.Language, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.languages[id]
	return l, ok, nil
}

func (s *MemoryStore) GetLanguageByCode(code string) (domain.Language, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.languages {
		if l.Code == code {
			return l, true, nil
		}
	}
	return domain.Language{}, false, nil
}

func (s *MemoryStore) ListLanguages() ([]domain.Language, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Language, 0, len(s.languages))
	for _, l := range s.languages {
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (s *MemoryStore) DeleteLanguage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.languages, id)
	return nil
}

func (s *MemoryStore) CountProjectsForLanguage(languageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.projects {
		if p.LanguageID == languageID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateProject(p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.Name == p.Name {
			return ErrDuplicateProjectName
		}
	}
	s.projects[p.ID] = p
	return nil
}

func (s *MemoryStore) SaveProject(p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *MemoryStore) GetProjectByName(name string) (domain.Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.Name == name {
			return p, true, nil
		}
	}
	return domain.Project{}, false, nil
}

func (s *MemoryStore) ListProjects() ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		res = append(res, p)
	}
	sortProjects(res)
	return res, nil
}

func (s *MemoryStore) ListProjectsByUser(userID string) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	sortProjects(res)
	return res, nil
}

func sortProjects(res []domain.Project) {
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
}

func (s *MemoryStore) DeleteProject(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for segID, seg := range s.segments {
		if seg.ProjectID == id {
			keys = append(keys, seg.StorageKey)
			delete(s.segments, segID)
		}
	}
	for folderID, f := range s.folders {
		if f.ProjectID == id {
			delete(s.folders, folderID)
		}
	}
	delete(s.projects, id)
	return keys, nil
}

func (s *MemoryStore) SaveFolder(f domain.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[f.ID] = f
	return nil
}

func (s *MemoryStore) GetFolder(id string) (domain.Folder, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.folders[id]
	return f, ok, nil
}

func (s *MemoryStore) ListFoldersByProject(projectID string) ([]domain.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Folder
	for _, f := range s.folders {
		if f.ProjectID == projectID {
			res = append(res, f)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (s *MemoryStore) DeleteFolder(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for segID, seg := range s.segments {
		if seg.FolderID == id {
			keys = append(keys, seg.StorageKey)
			delete(s.segments, segID)
		}
	}
	delete(s.folders, id)
	return keys, nil
}

func (s *MemoryStore) CreateSegments(segs []domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range segs {
		s.segments[seg.ID] = seg
	}
	return nil
}

func (s *MemoryStore) SaveSegment(seg domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = seg
	return nil
}

func (s *MemoryStore) GetSegment(id string) (domain.Segment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	return seg, ok, nil
}

func (s *MemoryStore) ListSegmentsByFolder(folderID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Segment
	for _, seg := range s.segments {
		if seg.FolderID == folderID {
			res = append(res, seg)
		}
	}
	sortSegments(res)
	return res, nil
}

func (s *MemoryStore) ListSegmentsByProject(projectID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Segment
	for _, seg := range s.segments {
		if seg.ProjectID == projectID {
			res = append(res, seg)
		}
	}
	sortSegments(res)
	return res, nil
}

func sortSegments(res []domain.Segment) {
	sort.Slice(res, func(i, j int) bool {
		if res[i].SegmentNumber == res[j].SegmentNumber {
			return res[i].ID < res[j].ID
		}
		return res[i].SegmentNumber < res[j].SegmentNumber
	})
}

func (s *MemoryStore) DeleteSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.segments, id)
	return nil
}

func (s *MemoryStore) UpdateProjectStats(projectID string, stats ProjectStats, status domain.ProjectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil
	}
	p.Duration = stats.Duration
	p.TotalSegments = stats.TotalSegments
	p.TranscribedSegments = stats.TranscribedSegments
	p.TranslatedSegments = stats.TranslatedSegments
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	s.projects[projectID] = p
	return nil
}

func (s *MemoryStore) RenumberSegments(folderID string, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	have := make(map[string]struct{})
	for id, seg := range s.segments {
		if seg.FolderID == folderID {
			have[id] = struct{}{}
		}
	}
	if len(have) != len(orderedIDs) {
		return ErrSegmentSetMismatch
	}
	for _, id := range orderedIDs {
		if _, ok := have[id]; !ok {
			return ErrSegmentSetMismatch
		}
		delete(have, id)
	}
	now := time.Now().UTC()
	for i, id := range orderedIDs {
		seg := s.segments[id]
		seg.SegmentNumber = i + 1
		seg.UpdatedAt = now
		s.segments[id] = seg
	}
	return nil
}
