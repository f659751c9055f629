package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"vessel-gcs/internal/config"
	"vessel-gcs/internal/models"
	"vessel-gcs/internal/relay"
	"vessel-gcs/internal/store"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Server maps HTTP verbs+paths onto the CSV store and the relay client and
// fans operator alerts out over the websocket hub. It is stateless apart
// from the hub's connection registry.
type Server struct {
	store  *store.Store
	relay  relay.Relay
	hub    *Hub
	router *mux.Router
	logger *slog.Logger

	mapKey     string
	wifiScript string
	staticDir  string
	corsOrigin string
}

// NewServer creates the API server over the given store and relay.
func NewServer(cfg *config.Config, st *store.Store, rl relay.Relay, logger *slog.Logger) *Server {
	s := &Server{
		store:      st,
		relay:      rl,
		router:     mux.NewRouter(),
		logger:     logger,
		mapKey:     cfg.Server.MapAPIKey,
		wifiScript: cfg.Wifi.Script,
		staticDir:  cfg.Server.StaticDir,
		corsOrigin: cfg.Server.CORSOrigin,
	}
	s.hub = NewHub(logger, s.relayKeypress)
	s.setupRoutes()
	return s
}

// commandRoutes maps the mission-control endpoints onto the relay
// vocabulary. The backend does not track mission state; every command is
// forwarded unconditionally and the autopilot decides what it means.
var commandRoutes = []struct {
	path string
	cmd  models.Command
}{
	{"/start_manual", models.Command{Type: models.CommandMission, Payload: models.ManualModeStart}},
	{"/stop_manual", models.Command{Type: models.CommandMission, Payload: models.ManualModeStop}},
	{"/start_mission", models.Command{Type: models.CommandMission, Payload: models.MissionStart}},
	{"/resume_mission", models.Command{Type: models.CommandMission, Payload: models.MissionResume}},
	{"/stop_mission", models.Command{Type: models.CommandMission, Payload: models.MissionStop}},
	{"/arm", models.Command{Type: models.CommandMission, Payload: models.MissionArm}},
	{"/disarm", models.Command{Type: models.CommandMission, Payload: models.MissionDisarm}},
	{"/rtl", models.Command{Type: models.CommandMission, Payload: models.MissionRTL}},
	{"/sailboat", models.Command{Type: models.CommandMission, Payload: models.MissionSail}},
	{"/motor_boat", models.Command{Type: models.CommandMission, Payload: models.MissionMotor}},
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/mapkey", s.handleMapKey).Methods("GET")
	s.router.HandleFunc("/api/connection_status", s.handleConnectionStatus).Methods("GET")

	s.router.HandleFunc("/points", s.handlePoints).Methods("GET")
	s.router.HandleFunc("/download_telemetry", s.handleDownloadTelemetry).Methods("GET")
	s.router.HandleFunc("/download_waypoints", s.handleDownloadWaypoints).Methods("GET")
	s.router.HandleFunc("/clear_telemetry_csv", s.handleClearTelemetry).Methods("POST")
	s.router.HandleFunc("/clear_waypoints_csv", s.handleClearWaypoints).Methods("POST")

	s.router.HandleFunc("/uploadWaypoints", s.handleUploadWaypoints).Methods("POST")
	s.router.HandleFunc("/sendWaypoints", s.handleSendWaypoints).Methods("POST")

	for _, route := range commandRoutes {
		s.router.HandleFunc(route.path, s.commandHandler(route.cmd)).Methods("POST")
	}

	s.router.HandleFunc("/alert", s.handleAlert).Methods("POST")
	s.router.HandleFunc("/changewifi", s.handleChangeWifi).Methods("POST")
	s.router.HandleFunc("/ws", s.hub.HandleWS)

	if s.staticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the full middleware-wrapped handler chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.corsOrigin != "" {
		h = handlers.CORS(
			handlers.AllowedOrigins([]string{s.corsOrigin}),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(h)
	}
	return h
}

// Hub exposes the connection registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleMapKey(w http.ResponseWriter, r *http.Request) {
	// Never fails; an unconfigured key comes back empty.
	respondJSON(w, http.StatusOK, map[string]string{"key": s.mapKey})
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.ReadStatus()
	if err != nil {
		// Failure folds into a disconnected payload so the UI has one
		// less branch.
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ReadTelemetry()
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "telemetry file not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, records)
	}
}

func (s *Server) handleDownloadTelemetry(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.RawTelemetry()
	s.serveDownload(w, data, err, "live_telem.csv")
}

func (s *Server) handleDownloadWaypoints(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.RawWaypoints()
	s.serveDownload(w, data, err, "waypoints.csv")
}

func (s *Server) serveDownload(w http.ResponseWriter, data []byte, err error, filename string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "File not found.", http.StatusNotFound)
	case err != nil:
		http.Error(w, "Error downloading the file.", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Write(data)
	}
}

func (s *Server) handleClearTelemetry(w http.ResponseWriter, r *http.Request) {
	s.serveClear(w, s.store.ClearTelemetry())
}

func (s *Server) handleClearWaypoints(w http.ResponseWriter, r *http.Request) {
	s.serveClear(w, s.store.ClearWaypoints())
}

func (s *Server) serveClear(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "File not found.", http.StatusNotFound)
	case err != nil:
		http.Error(w, "Error clearing the file.", http.StatusInternalServerError)
	default:
		w.Write([]byte("File cleared successfully."))
	}
}

type uploadWaypointsRequest struct {
	Waypoints []struct {
		Lat interface{} `json:"lat"`
		Lng interface{} `json:"lng"`
	} `json:"waypoints"`
}

func (s *Server) handleUploadWaypoints(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req uploadWaypointsRequest
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	candidates := make([]store.Candidate, 0, len(req.Waypoints))
	for _, wp := range req.Waypoints {
		candidates = append(candidates, store.Candidate{
			Lat: stringify(wp.Lat),
			Lng: stringify(wp.Lng),
		})
	}

	accepted, err := s.store.WriteWaypoints(candidates)
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "no valid waypoints provided")
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Info("waypoints written", "count", len(accepted), "file", s.store.WaypointsPath())
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "Waypoints uploaded successfully.",
			"file":    filepath.Base(s.store.WaypointsPath()),
		})
	}
}

// stringify normalizes a JSON scalar to the string form the store
// validates. Decoding uses json.Number so numeric coordinates keep their
// client-side text exactly.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func (s *Server) handleSendWaypoints(w http.ResponseWriter, r *http.Request) {
	s.sendCommand(w, r, models.Command{Type: models.CommandWaypoints},
		"Waypoint notification sent.")
}

func (s *Server) commandHandler(cmd models.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sendCommand(w, r, cmd, "Command sent: "+cmd.Payload)
	}
}

// sendCommand forwards one command and reports the delivery outcome. The
// relay error text is surfaced verbatim; retrying is the operator's call.
// The send is detached from the request lifetime: once a command is on its
// way there is no cancellation, and a browser disconnect must not abort a
// relay call in flight. The relay's own timeout is the only bound.
func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request, cmd models.Command, okMsg string) {
	if err := s.relay.Send(context.WithoutCancel(r.Context()), cmd); err != nil {
		s.logger.Error("relay send failed", "type", cmd.Type, "payload", cmd.Payload, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": okMsg,
	})
}

type alertRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.hub.Broadcast(EventAlert, req.Message)
	w.WriteHeader(http.StatusOK)
}

type changeWifiRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleChangeWifi(w http.ResponseWriter, r *http.Request) {
	var req changeWifiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SSID == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "ssid and password are required")
		return
	}

	// Reconfiguring Wi-Fi drops the operator's connection by nature, so
	// the script must keep running after the request context is canceled.
	out, err := exec.CommandContext(context.WithoutCancel(r.Context()), s.wifiScript, req.SSID, req.Password).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		s.logger.Error("wifi reconfiguration failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   msg,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"output":  strings.TrimSpace(string(out)),
	})
}

// relayKeypress forwards a movement token as a MAN command. Fire and
// forget: the socket carries no ack and failures are only logged. The
// send is detached from the socket's lifetime, so a command already in
// flight runs to completion even if the tab goes away.
func (s *Server) relayKeypress(token string) {
	cmd := models.Command{Type: models.CommandManual, Payload: token}
	go func() {
		if err := s.relay.Send(context.Background(), cmd); err != nil {
			s.logger.Error("keypress relay failed", "token", token, "error", err)
		}
	}()
}
