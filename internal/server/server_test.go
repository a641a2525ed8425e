package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"audioscribe/internal/app"
	"audioscribe/internal/ingest"
	"audioscribe/pkg/domain"
	"audioscribe/pkg/segmenter"
	"audioscribe/pkg/storage"
	"audioscribe/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type segmenterFunc func(ctx context.Context, filename string, r io.Reader) (segmenter.Analysis, error)

func (f segmenterFunc) Analyze(ctx context.Context, filename string, r io.Reader) (segmenter.Analysis, error) {
	return f(ctx, filename, r)
}

type testEnv struct {
	srv   *httptest.Server
	app   *app.App
	store *store.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	redis := miniredis.RunT(t)
	st := store.NewMemoryStore()
	seg := segmenterFunc(func(ctx context.Context, filename string, r io.Reader) (segmenter.Analysis, error) {
		return segmenter.Analysis{
			Duration:   8,
			Boundaries: []segmenter.Boundary{{Start: 0, End: 4, Confidence: 0.9}, {Start: 4, End: 8, Confidence: 0.85}},
			Method:     "ten",
			FScore:     0.8,
		}, nil
	})
	application, err := app.New(app.Config{
		JWTSecret: testSecret,
		Store:     st,
		Objects:   storage.NewMemoryObjectStore(),
		Segmenter: seg,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	s, err := New(Config{
		App:       application,
		RedisAddr: redis.Addr(),
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, app: application, store: st}
}

func (e *testEnv) createUser(t *testing.T, username string, role domain.UserRole) domain.User {
	t.Helper()
	user, err := e.app.CreateUser(app.CreateUserInput{Username: username, Password: "Sup3r$ecret!", Role: role})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	_, token, err := e.app.Login(username, "Sup3r$ecret!")
	if err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestLoginAndVerify(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ana", domain.RoleEditor)

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "ana", "password": "Sup3r$ecret!",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in login response")
	}

	resp = env.do(t, http.MethodGet, "/api/auth/verify", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginUniform401(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ana", domain.RoleEditor)

	for _, creds := range []map[string]string{
		{"username": "ana", "password": "Wr0ng$ecret!"},
		{"username": "ghost", "password": "Sup3r$ecret!"},
	} {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", resp.StatusCode)
		}
		body := decode[map[string]string](t, resp)
		if body["error"] != "Invalid credentials" {
			t.Fatalf("error = %q", body["error"])
		}
	}
}

func TestVerifyRejectsDeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ana", domain.RoleEditor)
	token := env.login(t, "ana")

	inactive := false
	if _, err := env.app.UpdateUser(user.ID, app.UpdateUserInput{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	resp := env.do(t, http.MethodGet, "/api/auth/verify", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("verify after deactivation = %d, want 401", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if body["error"] != "Account is deactivated" {
		t.Fatalf("deactivated error = %q, want a distinct reason", body["error"])
	}

	// A bad token stays a plain unauthorized; only a recognized but
	// deactivated account gets the specific reason.
	resp = env.do(t, http.MethodGet, "/api/auth/verify", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", resp.StatusCode)
	}
	body = decode[map[string]string](t, resp)
	if body["error"] != "unauthorized" {
		t.Fatalf("bad token error = %q", body["error"])
	}
}

func TestListProjectsFilteredByUser(t *testing.T) {
	env := newTestEnv(t)
	ana := env.createUser(t, "ana", domain.RoleEditor)
	env.createUser(t, "bo", domain.RoleEditor)
	anaToken := env.login(t, "ana")
	boToken := env.login(t, "bo")
	lang, err := env.app.CreateLanguage("sw", "Swahili")
	if err != nil {
		t.Fatalf("CreateLanguage: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/api/projects", anaToken, map[string]string{"name": "ana-tapes", "languageId": lang.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project = %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, "/api/projects", boToken, map[string]string{"name": "bo-tapes", "languageId": lang.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/projects?userId="+ana.ID, anaToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list = %d", resp.StatusCode)
	}
	body := decode[map[string][]domain.Project](t, resp)
	projects := body["projects"]
	if len(projects) != 1 || projects[0].Name != "ana-tapes" {
		t.Fatalf("filtered projects = %+v", projects)
	}
}

func TestUserAdminGate(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "root", domain.RoleAdmin)
	env.createUser(t, "mgr", domain.RoleManager)
	adminToken := env.login(t, "root")
	managerToken := env.login(t, "mgr")

	payload := map[string]string{"username": "newbie", "password": "Sup3r$ecret!", "role": "editor"}
	resp := env.do(t, http.MethodPost, "/api/users", managerToken, payload)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("manager create user = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/users", adminToken, payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin create user = %d, want 201", resp.StatusCode)
	}
	created := decode[domain.User](t, resp)
	if created.Role != domain.RoleEditor || created.PasswordHash != "" {
		t.Fatalf("unexpected user payload: %+v", created)
	}
}

func TestLanguageGate(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "mgr", domain.RoleManager)
	env.createUser(t, "ed", domain.RoleEditor)
	managerToken := env.login(t, "mgr")
	editorToken := env.login(t, "ed")

	resp := env.do(t, http.MethodPost, "/api/languages", editorToken, map[string]string{"code": "sw", "name": "Swahili"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("editor create language = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/languages", managerToken, map[string]string{"code": "sw", "name": "Swahili"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("manager create language = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// Editors can still read the list.
	resp = env.do(t, http.MethodGet, "/api/languages", editorToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("editor list languages = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ana", domain.RoleEditor)
	token := env.login(t, "ana")
	before, _, _ := env.store.GetUserByID(user.ID)

	resp := env.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"currentPassword": "Wr0ng$ecret!", "newPassword": "An0ther$ecret!",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	after, _, _ := env.store.GetUserByID(user.ID)
	if after.PasswordHash != before.PasswordHash {
		t.Fatal("hash changed on rejected attempt")
	}
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ana", domain.RoleEditor)

	var last int
	for i := 0; i < 11; i++ {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "ana", "password": "Wr0ng$ecret!",
		})
		last = resp.StatusCode
		resp.Body.Close()
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("11th login status = %d, want 429", last)
	}
}

func uploadBatch(t *testing.T, env *testEnv, token, project string, names []string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("projectName", project); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	for _, name := range names {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fmt.Fprint(part, "RIFFxxxxWAVEdata")
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/upload-batch", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestUploadBatch(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "mgr", domain.RoleManager)
	token := env.login(t, "mgr")
	if _, err := env.app.CreateLanguage("sw", "Swahili"); err != nil {
		t.Fatalf("CreateLanguage: %v", err)
	}

	resp := uploadBatch(t, env, token, "field-tapes", []string{"a.wav", "b.wav"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	result := decode[ingest.Result](t, resp)
	if len(result.Success) != 2 || len(result.Failed) != 0 {
		t.Fatalf("success/failed = %d/%d", len(result.Success), len(result.Failed))
	}
	if len(result.Success)+len(result.Failed) != 2 {
		t.Fatal("file accounting leak")
	}

	project, _, _ := env.store.GetProject(result.ProjectID)
	if project.Status != domain.StatusReadyForTranscription {
		t.Fatalf("project status = %s", project.Status)
	}
	if project.TotalSegments != 4 {
		t.Fatalf("TotalSegments = %d", project.TotalSegments)
	}
}

func TestReorderSegmentsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "mgr", domain.RoleManager)
	token := env.login(t, "mgr")
	if _, err := env.app.CreateLanguage("sw", "Swahili"); err != nil {
		t.Fatalf("CreateLanguage: %v", err)
	}
	resp := uploadBatch(t, env, token, "tapes", []string{"a.wav"})
	result := decode[ingest.Result](t, resp)
	folderID := result.Success[0].FolderID

	segs, err := env.store.ListSegmentsByFolder(folderID)
	if err != nil {
		t.Fatalf("ListSegmentsByFolder: %v", err)
	}
	reversed := []string{segs[1].ID, segs[0].ID}
	resp = env.do(t, http.MethodPost, "/api/folders/"+folderID+"/reorder-segments", token, map[string]any{"segmentIds": reversed})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/folders/"+folderID+"/reorder-segments", token, map[string]any{"segmentIds": []string{segs[0].ID}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad reorder status = %d, want 400", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if !strings.Contains(body["error"], "segment ids") {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestSegmentPatchAndAudio(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ed", domain.RoleEditor)
	token := env.login(t, "ed")
	if _, err := env.app.CreateLanguage("sw", "Swahili"); err != nil {
		t.Fatalf("CreateLanguage: %v", err)
	}
	resp := uploadBatch(t, env, token, "tapes", []string{"a.wav"})
	result := decode[ingest.Result](t, resp)

	segs, _ := env.store.ListSegmentsByFolder(result.Success[0].FolderID)
	resp = env.do(t, http.MethodPatch, "/api/segments/"+segs[0].ID, token, map[string]string{"transcription": "habari"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	patched := decode[domain.Segment](t, resp)
	if !patched.IsTranscribed || patched.TranscribedBy != user.ID {
		t.Fatalf("patch result: %+v", patched)
	}

	project, _, _ := env.store.GetProject(result.ProjectID)
	if project.Status != domain.StatusInTranscription {
		t.Fatalf("project status = %s, want in_transcription", project.Status)
	}

	resp = env.do(t, http.MethodGet, "/api/segments/"+segs[0].ID+"/audio", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", resp.StatusCode)
	}
	audio := decode[map[string]string](t, resp)
	if !strings.HasPrefix(audio["url"], "https://objects.test/") {
		t.Fatalf("url = %q", audio["url"])
	}

	// Editors may not delete segments.
	resp = env.do(t, http.MethodDelete, "/api/segments/"+segs[0].ID, token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("editor delete segment = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedRequests(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/projects", "/api/languages", "/api/users", "/api/upload-batch"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s = %d, want 401", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
