// Package server exposes the local HTTP surface: the bridge websocket, a
// small JSON API over the download store and the player, and a reverse proxy
// to the chat site whose synthesis calls run through the interception queue.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/dgnsrekt/audiofetch/internal/bridge"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/page"
	"github.com/dgnsrekt/audiofetch/internal/playback"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

// Prefix is where the local endpoints live; every other path is proxied.
const Prefix = "/_audiofetch"

// Options configures a Server.
type Options struct {
	// Upstream is the chat site, e.g. https://chatgpt.com.
	Upstream string
	// Transport carries proxied requests. Usually an *intercept.Transport.
	Transport http.RoundTripper
	// Queue, when set, is reported by the queue endpoint.
	Queue *intercept.Transport

	Store   *store.Store
	Engine  *playback.Engine
	Hub     *bridge.Hub
	Page    *page.Session
	Library *library.Library
}

// Server routes local endpoints and proxies the rest.
type Server struct {
	router *mux.Router
	proxy  *httputil.ReverseProxy
	opts   Options
}

// New creates a server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}
	upstream, err := url.Parse(opts.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream %q must be absolute", opts.Upstream)
	}

	s := &Server{opts: opts}
	s.proxy = s.newProxy(upstream)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	local := r.PathPrefix(Prefix).Subrouter()
	if s.opts.Hub != nil {
		local.Handle("/ws", s.opts.Hub)
	}

	api := local.PathPrefix("/api").Subrouter()
	api.HandleFunc("/items", s.listItems).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", s.renameItem).Methods(http.MethodPatch)
	api.HandleFunc("/items/{id}", s.deleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/play", s.playItem).Methods(http.MethodPost)
	api.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.renameConversation).Methods(http.MethodPatch)
	api.HandleFunc("/conversations/{id}", s.deleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/move", s.moveItems).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/collapse", s.toggleCollapsed).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/download-all", s.downloadAll).Methods(http.MethodPost)
	api.HandleFunc("/player", s.playerState).Methods(http.MethodGet)
	api.HandleFunc("/player/rate", s.setRate).Methods(http.MethodPost)
	api.HandleFunc("/player/{command}", s.playerCommand).Methods(http.MethodPost)
	api.HandleFunc("/queue", s.queueStats).Methods(http.MethodGet)
	api.HandleFunc("/notes", s.listNotes).Methods(http.MethodGet)
	api.HandleFunc("/notes", s.addNote).Methods(http.MethodPost)
	api.HandleFunc("/fragments", s.addFragment).Methods(http.MethodPost)
	api.HandleFunc("/prompts", s.listPrompts).Methods(http.MethodGet)
	api.HandleFunc("/say", s.say).Methods(http.MethodPost)

	local.HandleFunc("/files/{id}", s.serveFile).Methods(http.MethodGet, http.MethodHead)

	r.PathPrefix("/").Handler(s.proxy)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Server starting", "addr", ln.Addr().String(), "upstream", s.opts.Upstream)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.opts.Hub != nil {
		_ = s.opts.Hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) newProxy(upstream *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(upstream)
			r.Out.Host = upstream.Host
			// Let the transport negotiate gzip itself so it decodes the
			// response and conversation payloads can be indexed.
			r.Out.Header.Del("Accept-Encoding")
			if s.opts.Page != nil && isNavigation(r.In) {
				s.opts.Page.VisitPath(r.In.URL.Path, r.In.URL.RawQuery)
			}
		},
		Transport: s.opts.Transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("Proxy request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			status := http.StatusBadGateway
			if errors.Is(err, intercept.ErrClosed) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
		},
	}
}

func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
