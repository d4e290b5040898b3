// internal/server/server.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nfnt/resize"

	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/internal/storage"
)

const (
	previewWidth    = 320
	previewQuality  = 70
	previewInterval = 100 * time.Millisecond
	shareListLimit  = 50
)

// ShareStore is the read side of the community feed.
type ShareStore interface {
	ListShares(limit int) ([]*storage.Share, error)
	GetShare(id string) (*storage.Share, error)
}

type blob struct {
	contentType string
	data        []byte
}

// Server is the local preview server. It serves captured stills by locator,
// the community feed, and a websocket of downscaled live frames.
type Server struct {
	server         *http.Server
	ip             string
	port           string
	allowedOrigins []string
	shares         ShareStore

	mu        sync.Mutex
	isRunning bool

	upgrader        websocket.Upgrader
	wsConnections   map[*previewClient]bool
	wsConnectionsMu sync.RWMutex
	lastFrame       time.Time

	blobsMu sync.RWMutex
	blobs   map[string]blob
}

func New(ip, port string, allowedOrigins []string, shares ShareStore) *Server {
	return &Server{
		ip:             ip,
		port:           port,
		allowedOrigins: allowedOrigins,
		shares:         shares,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsConnections: make(map[*previewClient]bool),
		blobs:         make(map[string]blob),
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/artifacts/{id}", s.handleArtifact).Methods("GET")
	r.HandleFunc("/shares", s.handleShares).Methods("GET")
	r.HandleFunc("/shares/{id}/thumbnail", s.handleThumbnail).Methods("GET")
	r.HandleFunc("/ws/preview", s.handleWebSocketPreview)

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.allowedOrigins),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(r)
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		logging.Errorf("server: already running on port %s", s.port)
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.ip, s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.port, err)
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("server: HTTP server error: %v", err)
		}
	}(s.server)

	s.isRunning = true
	logging.Infof("server: running on %s", s.baseURL())
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		logging.Errorf("server: stop requested, but server is not running")
		return fmt.Errorf("server is not running")
	}

	logging.Infof("server: stopping")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.closeConnections()
	if err := s.server.Shutdown(ctx); err != nil {
		logging.Errorf("server: shutdown error: %v", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.isRunning = false
	logging.Infof("server: stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *Server) Port() string {
	return s.port
}

func (s *Server) SetPort(port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("cannot change port while server is running")
	}
	s.port = port
	return nil
}

func (s *Server) baseURL() string {
	host := s.ip
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, s.port)
}

// Register makes a still reachable at /artifacts/{id} until revoked.
func (s *Server) Register(id, contentType string, data []byte) string {
	s.blobsMu.Lock()
	s.blobs[id] = blob{contentType: contentType, data: data}
	s.blobsMu.Unlock()
	return s.baseURL() + "/artifacts/" + id
}

func (s *Server) Revoke(locator string) {
	if locator == "" {
		return
	}
	id := path.Base(locator)
	s.blobsMu.Lock()
	delete(s.blobs, id)
	s.blobsMu.Unlock()
}

// Present forwards a live frame to preview clients. Frames are dropped when
// nobody is watching or faster than the preview rate.
func (s *Server) Present(frame image.Image) {
	s.wsConnectionsMu.Lock()
	if len(s.wsConnections) == 0 || time.Since(s.lastFrame) < previewInterval {
		s.wsConnectionsMu.Unlock()
		return
	}
	s.lastFrame = time.Now()
	s.wsConnectionsMu.Unlock()

	small := resize.Resize(previewWidth, 0, frame, resize.Bilinear)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: previewQuality}); err != nil {
		logging.Warnf("server: failed to encode preview frame: %v", err)
		return
	}
	s.BroadcastFrame(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"preview_clients": s.Clients(),
	})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.blobsMu.RLock()
	b, ok := s.blobs[id]
	s.blobsMu.RUnlock()
	if !ok {
		respondError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", b.contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(b.data)
}

type shareResponse struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Source    string    `json:"source"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Thumbnail string    `json:"thumbnail"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	if s.shares == nil {
		respondJSON(w, http.StatusOK, []shareResponse{})
		return
	}
	shares, err := s.shares.ListShares(shareListLimit)
	if err != nil {
		logging.Errorf("server: failed to list shares: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list shares")
		return
	}
	out := make([]shareResponse, 0, len(shares))
	for _, sh := range shares {
		out = append(out, shareResponse{
			ID:        sh.ID,
			Author:    sh.AuthorName,
			Source:    sh.Source,
			Width:     sh.Width,
			Height:    sh.Height,
			Thumbnail: "/shares/" + sh.ID + "/thumbnail",
			CreatedAt: sh.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if s.shares == nil {
		respondError(w, http.StatusNotFound, "share not found")
		return
	}
	sh, err := s.shares.GetShare(mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "share not found")
		return
	}
	if err != nil {
		logging.Errorf("server: failed to load share: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load share")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, sh.ThumbPath)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
		"code":    status,
	})
}
