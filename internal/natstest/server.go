// Package natstest runs a throwaway nats-server for integration tests.
package natstest

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// Available reports whether the nats-server binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("nats-server")
	return err == nil
}

// Server is a running nats-server process.
type Server struct {
	cmd  *exec.Cmd
	port int
	dir  string
}

// Start launches nats-server with JetStream enabled, skipping the test if the binary is missing.
// The process is killed when the test ends.
func Start(t *testing.T) *Server {
	t.Helper()

	if !Available() {
		t.Skip("nats-server not found in PATH")
	}

	dir := t.TempDir()
	port := freePort(t)

	cmd := exec.Command("nats-server",
		"-js",
		"-sd", dir,
		"-a", "127.0.0.1",
		"-p", fmt.Sprintf("%d", port),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("starting nats-server: %v", err)
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	s := &Server{cmd: cmd, port: port, dir: dir}
	s.waitReady(t)
	return s
}

// URL returns the client URL of the server.
func (s *Server) URL() string {
	return fmt.Sprintf("nats://127.0.0.1:%d", s.port)
}

// Connect opens a client connection that is closed when the test ends.
func (s *Server) Connect(t *testing.T) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(s.URL())
	if err != nil {
		t.Fatalf("connecting to nats-server: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func (s *Server) waitReady(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(s.URL())
		if err == nil {
			nc.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("nats-server on port %d did not become ready", s.port)
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
