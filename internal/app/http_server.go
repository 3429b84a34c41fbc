package app

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/frudas24/raspacar/internal/calib"
	"github.com/frudas24/raspacar/internal/joystick"
	"github.com/frudas24/raspacar/internal/session"
	"github.com/frudas24/raspacar/internal/web"
	"github.com/hako/durafmt"
)

// RegisterRoutes wires API, websocket, video and static handlers onto the mux.
func (a *App) RegisterRoutes(mux *http.ServeMux, staticDir string) {
	if staticDir == "" {
		staticDir = filepath.Join("internal", "web", "static")
	}

	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/logout", a.handleLogout)
	mux.HandleFunc("/api/state", a.handleState)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/calib", a.handleCalib)
	mux.Handle("/ws", a.Control())
	if sig := a.Signaling(); sig != nil {
		mux.Handle("/ws/signal", sig)
	}
	mux.HandleFunc("/video_feed", a.handleVideoFeed)
	mux.HandleFunc("/favicon.ico", handleFavicon)

	mux.Handle("/", staticFileServer(staticDir))
}

type loginRequest struct {
	Password string `json:"password"`
}

type stateResponse struct {
	Authenticated   bool             `json:"authenticated"`
	PasswordMode    bool             `json:"passwordMode"`
	DriveEnabled    bool             `json:"driveEnabled"`
	DriverConnected bool             `json:"driverConnected"`
	VideoMode       string           `json:"videoMode"`
	LastCommand     joystick.Command `json:"lastCommand"`
	LastCommandAgo  string           `json:"lastCommandAgo,omitempty"`
	Uptime          string           `json:"uptime"`
	Video           videoStatus      `json:"video"`
}

type videoStatus struct {
	Frames  uint64 `json:"frames"`
	Sent    string `json:"sent"`
	Viewers int    `json:"viewers"`
	WebRTC  string `json:"webrtc,omitempty"`
}

type configRequest struct {
	VideoMode       *string `json:"videoMode,omitempty"`
	DriveEnabled    *bool   `json:"driveEnabled,omitempty"`
	MJPEGIntervalMs *int    `json:"mjpegIntervalMs,omitempty"`
	MJPEGQuality    *int    `json:"mjpegQuality,omitempty"`
	Reset           bool    `json:"reset,omitempty"`
}

type configResponse struct {
	Applied         bool    `json:"applied"`
	JoystickRadius  float64 `json:"joystickRadius"`
	VideoMode       string  `json:"videoMode"`
	DriveEnabled    bool    `json:"driveEnabled"`
	MJPEGIntervalMs int     `json:"mjpegIntervalMs"`
	MJPEGQuality    int     `json:"mjpegQuality"`
	Error           string  `json:"error,omitempty"`
}

// handleLogin authenticates the session.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !a.session.Authenticate(req.Password) {
		log.Printf("app: failed login from %s", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// handleLogout clears authentication state.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.session.Logout()
	writeJSON(w, map[string]bool{"ok": true})
}

// handleState returns the current session and video state.
func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	if !a.requireAuth(w) {
		return
	}
	snap := a.session.Snapshot()
	stats := a.previewStream.Stats()
	resp := stateResponse{
		Authenticated:   snap.Authenticated,
		PasswordMode:    snap.PasswordMode,
		DriveEnabled:    snap.DriveEnabled,
		DriverConnected: snap.DriverConnected,
		VideoMode:       snap.VideoMode,
		LastCommand:     snap.LastCommand,
		Uptime:          formatUptime(a.session.Uptime()),
		Video: videoStatus{
			Frames:  stats.Frames,
			Sent:    humanize.Bytes(stats.Bytes),
			Viewers: stats.Subscribers,
		},
	}
	if !snap.LastCommandAt.IsZero() {
		resp.LastCommandAgo = humanize.Time(snap.LastCommandAt)
	}
	if a.publisher != nil {
		resp.Video.WebRTC = a.publisher.Stats().Peer
	}
	writeJSON(w, resp)
}

// handleConfig reports page settings and applies runtime changes.
func (a *App) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuth(w) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, a.configSnapshot(false))
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if msg := validateConfigRequest(req); msg != "" {
		w.WriteHeader(http.StatusBadRequest)
		resp := a.configSnapshot(false)
		resp.Error = msg
		writeJSON(w, resp)
		return
	}

	a.mu.Lock()
	oldQuality := a.cfg.MJPEGQuality
	if req.Reset {
		a.cfg.MJPEGIntervalMs = a.defaultMJPEG.intervalMs
		a.cfg.MJPEGQuality = a.defaultMJPEG.quality
	}
	if req.MJPEGIntervalMs != nil {
		a.cfg.MJPEGIntervalMs = *req.MJPEGIntervalMs
	}
	if req.MJPEGQuality != nil {
		a.cfg.MJPEGQuality = *req.MJPEGQuality
	}
	interval := a.cfg.MJPEGIntervalMs
	qualityChanged := a.cfg.MJPEGQuality != oldQuality
	a.mu.Unlock()

	a.previewStream.SetMinInterval(mjpegInterval(interval))
	if req.DriveEnabled != nil {
		a.session.SetDriveEnabled(*req.DriveEnabled)
		if !*req.DriveEnabled {
			if err := a.motors.Stop(); err != nil {
				log.Printf("app: stop on drive disable: %v", err)
			}
		}
	}

	restart := qualityChanged && a.session.VideoMode() == session.VideoMJPEG
	if req.VideoMode != nil && *req.VideoMode != a.session.VideoMode() {
		a.session.SetVideoMode(*req.VideoMode)
		restart = true
	}
	if restart {
		if err := a.RestartVideo("config"); err != nil {
			log.Printf("app: video restart: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			resp := a.configSnapshot(false)
			resp.Error = err.Error()
			writeJSON(w, resp)
			return
		}
	}
	writeJSON(w, a.configSnapshot(true))
}

// configSnapshot builds the /api/config response.
func (a *App) configSnapshot(applied bool) configResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	return configResponse{
		Applied:         applied,
		JoystickRadius:  a.cfg.JoystickRadius,
		VideoMode:       a.session.VideoMode(),
		DriveEnabled:    a.session.DriveEnabled(),
		MJPEGIntervalMs: a.cfg.MJPEGIntervalMs,
		MJPEGQuality:    a.cfg.MJPEGQuality,
	}
}

// validateConfigRequest returns a message for the first invalid field.
func validateConfigRequest(req configRequest) string {
	if req.VideoMode != nil {
		switch *req.VideoMode {
		case session.VideoMJPEG, session.VideoWebRTC, session.VideoOff:
		default:
			return "videoMode must be mjpeg, webrtc or off"
		}
	}
	if req.MJPEGIntervalMs != nil && (*req.MJPEGIntervalMs < 10 || *req.MJPEGIntervalMs > 5000) {
		return "mjpegIntervalMs must be 10-5000"
	}
	if req.MJPEGQuality != nil && (*req.MJPEGQuality < 1 || *req.MJPEGQuality > 100) {
		return "mjpegQuality must be 1-100"
	}
	return ""
}

// handleCalib reads or updates the drive trim.
func (a *App) handleCalib(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuth(w) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, a.motors.Calib())
	case http.MethodPost:
		var c calib.Calib
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		c = calib.Normalize(c)
		if err := calib.Save(a.cfg.CalibPath, c); err != nil {
			log.Printf("app: save calib: %v", err)
			http.Error(w, "failed to save calibration", http.StatusInternalServerError)
			return
		}
		a.motors.SetCalib(c)
		writeJSON(w, c)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVideoFeed serves the MJPEG stream to authenticated viewers.
func (a *App) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if !a.requireAuth(w) {
		return
	}
	a.previewStream.Handler(w, r)
}

// requireAuth returns false and writes an error if the session is not authenticated.
func (a *App) requireAuth(w http.ResponseWriter) bool {
	if !a.session.IsAuthenticated() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// formatUptime renders whole seconds, largest two units.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d <= 0 {
		return "0 seconds"
	}
	return durafmt.Parse(d).LimitFirstN(2).String()
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// staticFileServer returns a handler for static assets, preferring disk then embed.
func staticFileServer(staticDir string) http.Handler {
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			return http.FileServer(http.Dir(staticDir))
		}
	}

	embedded, err := web.StaticFS()
	if err != nil {
		log.Printf("app: static assets unavailable: %v", err)
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(embedded))
}

// handleFavicon avoids noisy 404s for the default browser request.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
