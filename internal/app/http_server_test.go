package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/frudas24/raspacar/internal/calib"
	"github.com/frudas24/raspacar/internal/camera"
	"github.com/frudas24/raspacar/internal/config"
	"github.com/frudas24/raspacar/internal/drive"
	"github.com/frudas24/raspacar/internal/mjpeg"
	"github.com/frudas24/raspacar/internal/session"
)

// fakePreview records Start/Stop calls instead of launching ffmpeg.
type fakePreview struct {
	mu      sync.Mutex
	starts  []camera.Options
	stops   int
	failErr error
}

func (f *fakePreview) Start(opts camera.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, opts)
	return f.failErr
}

func (f *fakePreview) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakePreview) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

// TestHandleConfig_Unauthorized verifies /api/config requires authentication.
func TestHandleConfig_Unauthorized(t *testing.T) {
	sess := session.New("pw")
	app := newTestAppForConfig(t, sess, 120, 60)

	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	app.handleConfig(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// TestHandleConfig_Get reports the joystick radius and video mode for the page.
func TestHandleConfig_Get(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)

	rec := httptest.NewRecorder()
	app.handleConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp configResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Applied || resp.JoystickRadius != 50 || resp.VideoMode != session.VideoMJPEG || !resp.DriveEnabled {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// TestHandleConfig_UpdatesRuntimeSettings verifies updating MJPEG interval/quality updates runtime config.
func TestHandleConfig_UpdatesRuntimeSettings(t *testing.T) {
	sess := session.New("pw")
	if !sess.Authenticate("pw") {
		t.Fatalf("expected authenticate success")
	}
	sess.SetVideoMode(session.VideoWebRTC)
	app := newTestAppForConfig(t, sess, 120, 60)

	body := `{"mjpegIntervalMs":80,"mjpegQuality":90}`
	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	app.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp configResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.MJPEGIntervalMs != 80 || resp.MJPEGQuality != 90 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if app.cfg.MJPEGIntervalMs != 80 || app.cfg.MJPEGQuality != 90 {
		t.Fatalf("unexpected app cfg: interval=%d quality=%d", app.cfg.MJPEGIntervalMs, app.cfg.MJPEGQuality)
	}
}

// TestHandleConfig_QualityRestartsMJPEG verifies a quality change restarts the running preview.
func TestHandleConfig_QualityRestartsMJPEG(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)
	preview := app.preview.(*fakePreview)

	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"mjpegQuality":85}`))
	rec := httptest.NewRecorder()
	app.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if preview.startCount() != 1 {
		t.Fatalf("expected one preview start, got %d", preview.startCount())
	}
	if got := preview.starts[0].Quality; got != 85 {
		t.Fatalf("expected restart with quality 85, got %d", got)
	}
}

// TestHandleConfig_ResetRestoresDefaults verifies reset restores the defaults captured at startup.
func TestHandleConfig_ResetRestoresDefaults(t *testing.T) {
	sess := session.New("pw")
	if !sess.Authenticate("pw") {
		t.Fatalf("expected authenticate success")
	}
	sess.SetVideoMode(session.VideoWebRTC)
	app := newTestAppForConfig(t, sess, 120, 60)

	reqUpdate := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"mjpegIntervalMs":80,"mjpegQuality":90}`))
	recUpdate := httptest.NewRecorder()
	app.handleConfig(recUpdate, reqUpdate)
	if recUpdate.Code != http.StatusOK {
		t.Fatalf("expected update 200, got %d: %s", recUpdate.Code, recUpdate.Body.String())
	}

	reqReset := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"reset":true}`))
	recReset := httptest.NewRecorder()
	app.handleConfig(recReset, reqReset)

	if recReset.Code != http.StatusOK {
		t.Fatalf("expected reset 200, got %d: %s", recReset.Code, recReset.Body.String())
	}
	var resp configResponse
	if err := json.Unmarshal(recReset.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.MJPEGIntervalMs != 120 || resp.MJPEGQuality != 60 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// TestHandleConfig_ValidatesInput verifies the endpoint rejects invalid values.
func TestHandleConfig_ValidatesInput(t *testing.T) {
	sess := session.New("pw")
	if !sess.Authenticate("pw") {
		t.Fatalf("expected authenticate success")
	}
	sess.SetVideoMode(session.VideoWebRTC)
	app := newTestAppForConfig(t, sess, 120, 60)

	for _, body := range []string{
		`{"mjpegIntervalMs":1,"mjpegQuality":500}`,
		`{"videoMode":"vhs"}`,
		`not json`,
	} {
		rec := httptest.NewRecorder()
		app.handleConfig(rec, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", body, rec.Code, rec.Body.String())
		}
	}
	if app.cfg.MJPEGIntervalMs != 120 || app.cfg.MJPEGQuality != 60 {
		t.Fatalf("invalid request changed cfg: %+v", app.cfg)
	}
}

// TestHandleConfig_DisableDriveStopsMotors verifies disabling drive brings the car to rest.
func TestHandleConfig_DisableDriveStopsMotors(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)
	backend := drive.NewLogMotors(true)
	ctrl := drive.NewController(backend, false, nil)
	app.motors = ctrl
	if err := ctrl.Move(0, 1); err != nil {
		t.Fatalf("move: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(`{"driveEnabled":false}`))
	rec := httptest.NewRecorder()
	app.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sess.DriveEnabled() {
		t.Fatalf("expected drive disabled")
	}
	if got := backend.Throttle(drive.FrontLeft); got != 0 {
		t.Fatalf("expected motors stopped, front_left=%v", got)
	}
}

// TestHandleLogin checks password validation and method handling.
func TestHandleLogin(t *testing.T) {
	sess := session.New("pw")
	app := newTestAppForConfig(t, sess, 120, 60)

	rec := httptest.NewRecorder()
	app.handleLogin(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.handleLogin(rec, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"nope"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.handleLogin(rec, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"pw"}`)))
	if rec.Code != http.StatusOK || !sess.IsAuthenticated() {
		t.Fatalf("expected login success, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.handleLogout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	if rec.Code != http.StatusOK || sess.IsAuthenticated() {
		t.Fatalf("expected logout, got %d", rec.Code)
	}
}

// TestHandleState reports the last command and stream stats.
func TestHandleState(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)
	app.previewStream.Publish(mjpeg.Placeholder(16, 16, 60))

	rec := httptest.NewRecorder()
	app.handleState(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Authenticated || resp.PasswordMode || resp.VideoMode != session.VideoMJPEG {
		t.Fatalf("unexpected state: %+v", resp)
	}
	if resp.Video.Frames != 1 || resp.Video.Sent == "" || resp.Uptime == "" {
		t.Fatalf("unexpected video state: %+v", resp)
	}
	if resp.LastCommandAgo != "" {
		t.Fatalf("expected no last command, got %q", resp.LastCommandAgo)
	}
}

// TestHandleCalib saves, applies and reports drive trim.
func TestHandleCalib(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)

	req := httptest.NewRequest(http.MethodPost, "/api/calib", bytes.NewBufferString(`{"leftGain":0.5,"rightGain":3,"deadzone":0.1}`))
	rec := httptest.NewRecorder()
	app.handleCalib(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := calib.Normalize(calib.Calib{LeftGain: 0.5, RightGain: 3, Deadzone: 0.1})
	if got := app.motors.Calib(); got != want {
		t.Fatalf("unexpected motors calib: %+v", got)
	}
	loaded, err := calib.Load(app.cfg.CalibPath)
	if err != nil {
		t.Fatalf("load calib: %v", err)
	}
	if loaded != want {
		t.Fatalf("unexpected saved calib: %+v", loaded)
	}

	rec = httptest.NewRecorder()
	app.handleCalib(rec, httptest.NewRequest(http.MethodGet, "/api/calib", nil))
	var got calib.Calib
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode calib: %v", err)
	}
	if got != want {
		t.Fatalf("unexpected GET calib: %+v", got)
	}
}

// TestVideoFeed_RequiresAuth verifies the MJPEG endpoint is gated in password mode.
func TestVideoFeed_RequiresAuth(t *testing.T) {
	sess := session.New("pw")
	app := newTestAppForConfig(t, sess, 120, 60)

	rec := httptest.NewRecorder()
	app.handleVideoFeed(rec, httptest.NewRequest(http.MethodGet, "/video_feed", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// TestRestartVideo_FailurePublishesPlaceholder checks a failed preview leaves a frame for viewers.
func TestRestartVideo_FailurePublishesPlaceholder(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)
	app.preview.(*fakePreview).failErr = errors.New("no camera")

	if err := app.RestartVideo("test"); err == nil {
		t.Fatalf("expected restart error")
	}
	if !bytes.Equal(app.previewStream.Last(), app.placeholder) {
		t.Fatalf("expected placeholder frame")
	}
}

// TestSetVideoMode_Off stops the preview and shows the placeholder.
func TestSetVideoMode_Off(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)
	preview := app.preview.(*fakePreview)

	if err := app.SetVideoMode(session.VideoMJPEG); err != nil {
		t.Fatalf("mjpeg: %v", err)
	}
	if err := app.SetVideoMode(session.VideoOff); err != nil {
		t.Fatalf("off: %v", err)
	}
	if preview.startCount() != 1 || preview.stops != 2 {
		t.Fatalf("unexpected preview calls: starts=%d stops=%d", preview.startCount(), preview.stops)
	}
	if sess.VideoMode() != session.VideoOff {
		t.Fatalf("expected off, got %s", sess.VideoMode())
	}
	if !bytes.Equal(app.previewStream.Last(), app.placeholder) {
		t.Fatalf("expected placeholder frame")
	}
}

// TestSetVideoMode_WebRTCUnavailable reports a missing encoder.
func TestSetVideoMode_WebRTCUnavailable(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)

	if err := app.SetVideoMode(session.VideoWebRTC); err == nil {
		t.Fatalf("expected error without an encoder")
	}
}

// TestRegisterRoutes_Static serves the embedded page and an empty favicon.
func TestRegisterRoutes_Static(t *testing.T) {
	sess := session.New("")
	app := newTestAppForConfig(t, sess, 120, 60)
	mux := http.NewServeMux()
	app.RegisterRoutes(mux, filepath.Join(t.TempDir(), "missing"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("joystick")) {
		t.Fatalf("expected index page, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

// newTestAppForConfig returns an App with log-only motors and a fake preview.
func newTestAppForConfig(t *testing.T, sess *session.Session, intervalMs int, quality int) *App {
	t.Helper()
	cfg := config.Defaults()
	cfg.MJPEGIntervalMs = intervalMs
	cfg.MJPEGQuality = quality
	cfg.CameraWidth = 32
	cfg.CameraHeight = 24
	cfg.CalibPath = filepath.Join(t.TempDir(), "calib.json")

	motors := drive.NewController(drive.NewLogMotors(true), false, nil)
	app, err := New(cfg, Deps{
		Session: sess,
		Motors:  motors,
		Stream:  mjpeg.NewStream(time.Duration(intervalMs) * time.Millisecond),
		Preview: &fakePreview{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app
}
