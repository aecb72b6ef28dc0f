package pagecontext

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// pageServer exposes a saved page's directory on a loopback port, so the
// page loads with its relative stylesheets and scripts.
type pageServer struct {
	listener net.Listener
	server   *http.Server
}

func servePageDir(dir string) (*pageServer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open page directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	srv := &pageServer{
		listener: listener,
		server: &http.Server{
			Handler:           http.FileServer(http.Dir(dir)),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	go func() { _ = srv.server.Serve(listener) }()

	return srv, nil
}

// url returns the address of name relative to the served directory.
func (s *pageServer) url(name string) string {
	u := url.URL{Scheme: "http", Host: s.listener.Addr().String(), Path: "/" + filepath.ToSlash(name)}
	return u.String()
}

func (s *pageServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
