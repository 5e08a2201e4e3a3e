package fileserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	dir := t.TempDir()
	s := New(dir, 0, zerolog.Nop())
	if err := s.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestInit_CreatesDirAndSeedsWelcome(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "shared")
	s := New(dir, 0, zerolog.Nop())

	if err := s.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "welcome.txt")); err != nil {
		t.Errorf("welcome file not seeded: %v", err)
	}

	// Second Init must not error or clobber.
	if err := os.WriteFile(filepath.Join(dir, "welcome.txt"), []byte("edited"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "welcome.txt"))
	if string(data) != "edited" {
		t.Error("init must not overwrite an existing welcome file")
	}
}

func TestHandleFile_ServesExactBytes(t *testing.T) {
	s, ts := testServer(t)

	content := []byte("some binary-ish content \x00\x01\x02")
	if err := os.WriteFile(filepath.Join(s.SharedDir(), "data.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/file/data.bin")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !bytes.Equal(body, content) {
		t.Errorf("served bytes differ from file contents")
	}
}

func TestHandleFile_Absent(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/file/nope.txt")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleFile_DirectoryNotServed(t *testing.T) {
	s, ts := testServer(t)

	if err := os.Mkdir(filepath.Join(s.SharedDir(), "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/file/subdir")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status for directory: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleList_FilesOnly(t *testing.T) {
	s, ts := testServer(t)

	if err := os.WriteFile(filepath.Join(s.SharedDir(), "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(s.SharedDir(), "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/files")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		t.Fatalf("decoding list: %v", err)
	}

	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["a.txt"] || !found["welcome.txt"] {
		t.Errorf("list missing expected files: %v", names)
	}
	if found["subdir"] {
		t.Errorf("list must contain files only, got %v", names)
	}
}

func uploadFile(t *testing.T, url, fieldFile string, content []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fieldFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}

func TestUpload_ThenListThenFetch(t *testing.T) {
	_, ts := testServer(t)

	content := []byte("uploaded bytes B")
	resp := uploadFile(t, ts.URL, "x.txt", content)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status: got %d, want 200", resp.StatusCode)
	}

	listResp, err := http.Get(ts.URL + "/files")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var names []string
	json.NewDecoder(listResp.Body).Decode(&names)
	listResp.Body.Close()

	var seen bool
	for _, n := range names {
		if n == "x.txt" {
			seen = true
		}
	}
	if !seen {
		t.Fatalf("uploaded file missing from list: %v", names)
	}

	getResp, err := http.Get(ts.URL + "/file/x.txt")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer getResp.Body.Close()
	body, _ := io.ReadAll(getResp.Body)
	if !bytes.Equal(body, content) {
		t.Errorf("fetched bytes differ from uploaded bytes")
	}
}

func TestUpload_Overwrites(t *testing.T) {
	s, ts := testServer(t)

	uploadFile(t, ts.URL, "same.txt", []byte("first")).Body.Close()
	uploadFile(t, ts.URL, "same.txt", []byte("second")).Body.Close()

	data, err := os.ReadFile(filepath.Join(s.SharedDir(), "same.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("last write must win, got %q", data)
	}
}

func TestUpload_RejectsNonPost(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/upload")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestHealth_AlwaysOK(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("body: got %q, want OK", body)
	}
}
