package store

import (
	"errors"
	"sort"
	"testing"

	"audioscribe/pkg/domain"
)

func seedProject(t *testing.T, st *MemoryStore) (domain.Project, domain.Folder, []domain.Segment) {
	t.Helper()
	project := domain.Project{ID: "p1", Name: "interviews", LanguageID: "l1", UserID: "u1", Status: domain.StatusReadyForTranscription}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	folder := domain.Folder{ID: "f1", ProjectID: project.ID, Name: "tape-01"}
	if err := st.SaveFolder(folder); err != nil {
		t.Fatalf("save folder: %v", err)
	}
	segs := []domain.Segment{
		{ID: "s1", FolderID: folder.ID, ProjectID: project.ID, SegmentNumber: 1, StorageKey: "k1.wav"},
		{ID: "s2", FolderID: folder.ID, ProjectID: project.ID, SegmentNumber: 2, StorageKey: "k1.wav"},
		{ID: "s3", FolderID: folder.ID, ProjectID: project.ID, SegmentNumber: 3, StorageKey: "k2.wav"},
	}
	if err := st.CreateSegments(segs); err != nil {
		t.Fatalf("create segments: %v", err)
	}
	return project, folder, segs
}

func TestCreateProjectDuplicateName(t *testing.T) {
	st := NewMemoryStore()
	if err := st.CreateProject(domain.Project{ID: "p1", Name: "interviews"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := st.CreateProject(domain.Project{ID: "p2", Name: "interviews"})
	if !errors.Is(err, ErrDuplicateProjectName) {
		t.Fatalf("expected ErrDuplicateProjectName, got %v", err)
	}
}

func TestDeleteProjectReturnsStorageKeys(t *testing.T) {
	st := NewMemoryStore()
	project, folder, _ := seedProject(t, st)

	keys, err := st.DeleteProject(project.ID)
	if err != nil {
		t.Fatalf("delete project: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 3 || keys[0] != "k1.wav" || keys[2] != "k2.wav" {
		t.Fatalf("keys = %v", keys)
	}
	if _, ok, _ := st.GetProject(project.ID); ok {
		t.Fatal("project should be gone")
	}
	if _, ok, _ := st.GetFolder(folder.ID); ok {
		t.Fatal("folder should be gone")
	}
	if segs, _ := st.ListSegmentsByFolder(folder.ID); len(segs) != 0 {
		t.Fatalf("segments left behind: %v", segs)
	}
}

func TestDeleteFolderReturnsStorageKeys(t *testing.T) {
	st := NewMemoryStore()
	project, folder, _ := seedProject(t, st)

	keys, err := st.DeleteFolder(folder.ID)
	if err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("keys = %v", keys)
	}
	if _, ok, _ := st.GetProject(project.ID); !ok {
		t.Fatal("project should survive a folder delete")
	}
}

func TestRenumberSegments(t *testing.T) {
	st := NewMemoryStore()
	_, folder, _ := seedProject(t, st)

	if err := st.RenumberSegments(folder.ID, []string{"s3", "s1", "s2"}); err != nil {
		t.Fatalf("renumber: %v", err)
	}
	segs, err := st.ListSegmentsByFolder(folder.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if segs[0].ID != "s3" || segs[1].ID != "s1" || segs[2].ID != "s2" {
		t.Fatalf("order = %v %v %v", segs[0].ID, segs[1].ID, segs[2].ID)
	}
	for i, seg := range segs {
		if seg.SegmentNumber != i+1 {
			t.Fatalf("segment %s number = %d", seg.ID, seg.SegmentNumber)
		}
	}
}

func TestRenumberSegmentsRejectsMismatch(t *testing.T) {
	st := NewMemoryStore()
	_, folder, _ := seedProject(t, st)

	for _, ids := range [][]string{
		{"s1", "s2"},
		{"s1", "s2", "s3", "s3"},
		{"s1", "s2", "nope"},
	} {
		if err := st.RenumberSegments(folder.ID, ids); !errors.Is(err, ErrSegmentSetMismatch) {
			t.Fatalf("ids %v: expected ErrSegmentSetMismatch, got %v", ids, err)
		}
	}
	segs, _ := st.ListSegmentsByFolder(folder.ID)
	if segs[0].ID != "s1" || segs[1].ID != "s2" || segs[2].ID != "s3" {
		t.Fatal("failed renumber must not reorder segments")
	}
}
