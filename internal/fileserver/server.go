// Package fileserver exposes the shared directory over a small HTTP surface
// so any peer can list, pull and push files.
package fileserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const welcomeName = "welcome.txt"

const welcomeBody = "Welcome to landrop!\nFiles in this folder are visible to every peer on your network.\n"

// Server serves files from the shared directory. Each request is handled
// independently; the directory path itself never changes after Init.
type Server struct {
	sharedDir string
	port      int
	log       zerolog.Logger
	httpSrv   *http.Server
}

// New creates a file server rooted at sharedDir.
func New(sharedDir string, port int, log zerolog.Logger) *Server {
	return &Server{
		sharedDir: sharedDir,
		port:      port,
		log:       log,
	}
}

// SharedDir returns the directory this server reads from and writes to.
func (s *Server) SharedDir() string {
	return s.sharedDir
}

// Init ensures the shared directory exists and seeds the welcome file on
// first run so users have something to test a transfer with.
func (s *Server) Init() error {
	if err := os.MkdirAll(s.sharedDir, 0755); err != nil {
		return fmt.Errorf("creating shared directory %s: %w", s.sharedDir, err)
	}

	welcomePath := filepath.Join(s.sharedDir, welcomeName)
	if _, err := os.Stat(welcomePath); os.IsNotExist(err) {
		if err := os.WriteFile(welcomePath, []byte(welcomeBody), 0644); err != nil {
			s.log.Warn().Err(err).Msg("Failed to seed welcome file")
		} else {
			s.log.Info().Str("path", welcomePath).Msg("Seeded welcome file in shared folder")
		}
	}

	return nil
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/file/", s.handleFile)
	mux.HandleFunc("/files", s.handleList)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start runs the HTTP server in the background. Bind failure is fatal to
// this component only.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("binding file server port %d: %w", s.port, err)
	}

	s.log.Info().Int("port", s.port).Str("shared_dir", s.sharedDir).Msg("File server started")

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("File server error")
		}
	}()

	return nil
}

// Stop closes the HTTP server.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/file/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	path := filepath.Join(s.sharedDir, name)

	// Stat before opening: os.Open succeeds on a directory and the
	// failure would only surface mid-copy, after the 200 is committed.
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, fmt.Sprintf("File not found: %s", name), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to stat file: %v", err), http.StatusInternalServerError)
		return
	}
	if !info.Mode().IsRegular() {
		http.Error(w, fmt.Sprintf("File not found: %s", name), http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	s.log.Debug().Str("file", name).Str("remote", r.RemoteAddr).Msg("Serving file")

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		// Headers are gone at this point; all we can do is log.
		s.log.Warn().Err(err).Str("file", name).Msg("Failed streaming file")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.sharedDir)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read shared directory: %v", err), http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid multipart body: %v", err), http.StatusInternalServerError)
		return
	}

	var saved int
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed reading multipart body: %v", err), http.StatusInternalServerError)
			return
		}

		name := part.FileName()
		if name == "" {
			part.Close()
			continue
		}

		// The client-supplied name is used as-is, last write wins. The
		// server only ever runs inside a trusted LAN; names are not
		// sanitized against parent-directory segments.
		if err := s.savePart(part, name); err != nil {
			part.Close()
			http.Error(w, fmt.Sprintf("Failed saving %s: %v", name, err), http.StatusInternalServerError)
			return
		}
		part.Close()
		saved++

		s.log.Info().Str("file", name).Str("remote", r.RemoteAddr).Msg("File uploaded")
	}

	fmt.Fprintf(w, "Uploaded %d file(s)\n", saved)
}

func (s *Server) savePart(part io.Reader, name string) error {
	dst, err := os.Create(filepath.Join(s.sharedDir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, part); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
