// Package web provides the HTTP status and control server for the holdclick
// daemon: a status page, device property reads and writes, and websocket
// touch input for remote devices.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sweeney/holdclick/internal/device"
	"github.com/sweeney/holdclick/internal/property"
	"github.com/sweeney/holdclick/internal/status"
)

// Server serves the status page and device API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	devices map[string]*device.Device
	remote  map[string]bool
	conns   map[*websocket.Conn]struct{}
	origins map[string]bool
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{
		tracker: tracker,
		devices: make(map[string]*device.Device),
		remote:  make(map[string]bool),
		conns:   make(map[*websocket.Conn]struct{}),
		origins: make(map[string]bool),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("GET /devices/{name}/properties", s.handleListProperties)
	mux.HandleFunc("GET /devices/{name}/properties/{prop}", s.handleGetProperty)
	mux.HandleFunc("PUT /devices/{name}/properties/{prop}", s.handlePutProperty)
	mux.HandleFunc("DELETE /devices/{name}/properties/{prop}", s.handleDeleteProperty)
	mux.HandleFunc("GET /devices/{name}/input", s.handleInput)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	s.httpServer.RegisterOnShutdown(s.closeConns)
	return s
}

// AddDevice exposes d through the API. Remote devices also accept
// websocket input.
func (s *Server) AddDevice(d *device.Device, remote bool) {
	s.mu.Lock()
	s.devices[d.Name] = d
	s.remote[d.Name] = remote
	s.mu.Unlock()
}

// AllowOrigins lets browser pages served from the given origins, such as
// "http://kiosk.local:3000", open websocket input. Same-host pages and
// clients that send no Origin header are always allowed.
func (s *Server) AllowOrigins(origins ...string) {
	s.mu.Lock()
	for _, o := range origins {
		s.origins[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	s.mu.Unlock()
}

// checkOrigin rejects cross-site websocket upgrades. It extends gorilla's
// same-host check with the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origins[strings.ToLower(origin)]
}

// Handler returns the server's request handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	out := make([]status.DeviceJSON, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		out = append(out, status.BuildDevice(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup resolves the {name} path segment, writing a 404 if it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	name := r.PathValue("name")
	s.mu.Lock()
	d, ok := s.devices[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown device %q", name))
	}
	return d, ok
}

// atom resolves the {prop} path segment without interning new names, so
// clients cannot grow the atom registry.
func atom(w http.ResponseWriter, r *http.Request) (property.Atom, bool) {
	name := r.PathValue("prop")
	a, ok := property.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", property.ErrUnknownProperty, name))
	}
	return a, ok
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	store := d.Properties()
	out := []PropertyJSON{}
	for _, a := range store.List() {
		v, err := store.Get(a)
		if err != nil {
			continue
		}
		pj, err := propertyJSON(a, v)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, pj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	a, ok := atom(w, r)
	if !ok {
		return
	}
	v, err := d.Properties().Get(a)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	pj, err := propertyJSON(a, v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pj)
}

// handlePutProperty writes a property. The name must already be
// registered. With ?check=1 the value is only validated.
func (s *Server) handlePutProperty(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	a, ok := atom(w, r)
	if !ok {
		return
	}
	name := property.Name(a)

	var req PropertyWrite
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	v, err := req.value()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	check := r.URL.Query().Get("check") == "1"
	if check {
		err = d.Properties().Check(a, v)
	} else {
		err = d.Properties().Change(a, v)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !check {
		log.Printf("web: device %s: property %q set to %v", d.Name, name, req.Items)
	}

	pj, err := propertyJSON(a, v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	pj.CheckOnly = check
	writeJSON(w, http.StatusOK, pj)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	a, ok := atom(w, r)
	if !ok {
		return
	}
	if err := d.Properties().Delete(a); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, property.ErrBadValue):
		return http.StatusBadRequest
	case errors.Is(err, property.ErrUnknownProperty):
		return http.StatusNotFound
	case errors.Is(err, property.ErrNotDeletable):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
