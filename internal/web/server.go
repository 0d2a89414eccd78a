package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rarefi/yve/internal/logger"
	"github.com/rarefi/yve/internal/state"
	"github.com/rarefi/yve/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// VaultReader is the read-only view a vault engine exposes to the API.
type VaultReader interface {
	VaultState() types.VaultState
	Position(account types.AccountID) (types.UserPosition, bool)
}

// WebServer handles HTTP requests for vault data
type WebServer struct {
	router *mux.Router
	port   string
	vaults map[uint64]VaultReader
}

// NewWebServer creates a new web server instance over the given vaults
func NewWebServer(port string, vaults map[uint64]VaultReader) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		vaults: vaults,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vaults", ws.handleGetVaults).Methods("GET")
	api.HandleFunc("/vault/{id}", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/vault/{id}/position/{account}", ws.handleGetPosition).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	// The checkpoint database is optional; only probe it when configured.
	dbHealthy := true
	if state.DB != nil {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "yve-yield-vault-engine",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"vaults_managed":   len(ws.vaults),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaults returns summaries for all managed vaults
func (ws *WebServer) handleGetVaults(w http.ResponseWriter, r *http.Request) {
	summaries := make([]types.VaultState, 0, len(ws.vaults))
	for _, vault := range ws.vaults {
		summaries = append(summaries, vault.VaultState())
	}

	response := map[string]interface{}{
		"vaults": summaries,
		"count":  len(summaries),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetVault returns a specific vault by ID
func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	vault, ok := ws.vaultFromRequest(w, r)
	if !ok {
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, vault.VaultState())
}

// handleGetPosition returns one account's position in a vault
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vault, ok := ws.vaultFromRequest(w, r)
	if !ok {
		return
	}

	account := types.AccountID(mux.Vars(r)["account"])
	position, ok := vault.Position(account)
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	response := map[string]interface{}{
		"account":  account,
		"position": position,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) vaultFromRequest(w http.ResponseWriter, r *http.Request) (VaultReader, bool) {
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault ID")
		return nil, false
	}

	vault, ok := ws.vaults[id]
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Vault not found")
		return nil, false
	}
	return vault, true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
