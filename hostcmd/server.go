// Package hostcmd serves the host command interface of the daemon: port
// introspection, the multi-function preference and exit requests over HTTP.
package hostcmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BertoldVdb/go-misc/httplog"

	"github.com/BertoldVdb/PDAltMode/altmode"
)

// Port is the task owning one port of the engine.
type Port interface {
	Snapshot(ctx context.Context) (altmode.PortStatus, error)
	RequestExit() error
}

// MFControl reads and sets the multi-function preference. Implementations
// must be safe for concurrent use.
type MFControl interface {
	MFAllow(port int) bool
	SetMFAllow(port int, allow bool) error
}

type PortSummary struct {
	Port      int    `json:"port"`
	Connected bool   `json:"connected"`
	Session   string `json:"session,omitempty"`
	DFPActive bool   `json:"dfpActive"`
}

type MFAllowState struct {
	MFAllow bool `json:"mfAllow"`
}

type Options struct {
	// APIKey enables HMAC basic auth on the write endpoints.
	APIKey string
	// LogOut receives one line per request. Nil disables request logging.
	LogOut func(format string, v ...interface{})
	// Timeout bounds the wait for a port task.
	Timeout time.Duration

	now func() time.Time
}

type Server struct {
	mux     http.ServeMux
	handler http.Handler

	ports []Port
	mf    MFControl
	opts  Options
}

const ctJSON string = "application/json"

func New(mf MFControl, ports []Port, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	s := &Server{
		ports: ports,
		mf:    mf,
		opts:  opts,
	}

	s.mux.HandleFunc("/ports", s.listHandler)
	s.mux.HandleFunc("/ports/", s.portHandler)

	handler := requireAuth(s.mux.ServeHTTP, opts.APIKey, opts.now)
	s.handler = handler

	if opts.LogOut != nil {
		logger := httplog.HTTPLog{
			LogOut:     opts.LogOut,
			ServerName: "PDAltMode",
		}
		s.handler = logger.GetHandler(handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctJSON)
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) snapshot(r *http.Request, port int) (altmode.PortStatus, error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()
	return s.ports[port].Snapshot(ctx)
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	list := make([]PortSummary, 0, len(s.ports))
	for i := range s.ports {
		st, err := s.snapshot(r, i)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		list = append(list, PortSummary{
			Port:      i,
			Connected: st.Connected,
			Session:   st.Session,
			DFPActive: st.DFPActive,
		})
	}

	sendJSON(w, http.StatusOK, list)
}

// portHandler serves /ports/{n} and its actions.
func (s *Server) portHandler(w http.ResponseWriter, r *http.Request) {
	numStr, action, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/ports/"), "/")

	port, err := strconv.Atoi(numStr)
	if err != nil || port < 0 || port >= len(s.ports) {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		s.statusHandler(w, r, port)
	case "mfallow":
		s.mfAllowHandler(w, r, port)
	case "exit":
		s.exitHandler(w, r, port)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request, port int) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.snapshot(r, port)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendJSON(w, http.StatusOK, st)
}

func (s *Server) mfAllowHandler(w http.ResponseWriter, r *http.Request, port int) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		input, err := io.ReadAll(io.LimitReader(r.Body, 64))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		allow, err := strconv.ParseBool(strings.TrimSpace(string(input)))
		if err != nil {
			http.Error(w, "Body must be true or false", http.StatusBadRequest)
			return
		}

		if err := s.mf.SetMFAllow(port, allow); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	sendJSON(w, http.StatusOK, MFAllowState{MFAllow: s.mf.MFAllow(port)})
}

func (s *Server) exitHandler(w http.ResponseWriter, r *http.Request, port int) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	if err := s.ports[port].RequestExit(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListenAndServe runs the server on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s,

		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
