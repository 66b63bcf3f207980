// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tunnel is the reference-counted SSH tunnel supervisor spec.md §5
// describes: the first session to need a tunneled local port brings it up,
// the last one to release it brings it down after a configurable
// close-delay window to absorb reconnects.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/docbridge/docbridge/internal/connurl"
	"github.com/docbridge/docbridge/internal/log"
	"github.com/docbridge/docbridge/internal/util"
)

// Config is the SSH leg of a connection URL (§6.1 ssh* options).
type Config struct {
	User                  string
	Host                  string
	RemoteHost            string
	RemotePort            string
	PrivateKeyFile        string
	PrivateKeyPassphrase  string
	StrictHostKeyChecking bool
	KnownHostsFile        string
	CloseDelay            time.Duration
}

// FromOptions builds a Config from parsed connection Options, returning
// ok=false when no SSH options were present at all.
func FromOptions(o *connurl.Options, closeDelay time.Duration) (Config, bool) {
	if o.SSHHost == "" {
		return Config{}, false
	}
	return Config{
		User:                  o.SSHUser,
		Host:                  o.SSHHost,
		RemoteHost:            o.Host,
		RemotePort:            o.Port,
		PrivateKeyFile:        o.SSHPrivateKeyFile,
		PrivateKeyPassphrase:  o.SSHPrivateKeyPassphrase,
		StrictHostKeyChecking: o.SSHStrictHostKeyChecking,
		KnownHostsFile:        o.SSHKnownHostsFile,
		CloseDelay:            closeDelay,
	}, true
}

// tunnel is one live forwarded local port.
type tunnel struct {
	cfg      Config
	listener net.Listener
	client   *ssh.Client
	refs     int
	closing  *time.Timer
	done     chan struct{}
}

// Supervisor tracks live tunnels keyed by their Config, reference-counting
// sessions that share the identical SSH target.
type Supervisor struct {
	mu      sync.Mutex
	tunnels map[Config]*tunnel
	logger  log.Logger
}

// NewSupervisor constructs an empty Supervisor.
func NewSupervisor(logger log.Logger) *Supervisor {
	return &Supervisor{tunnels: make(map[Config]*tunnel), logger: logger}
}

// Acquire brings up (or reuses) the tunnel described by cfg and returns the
// local address a caller should dial instead of cfg.RemoteHost:RemotePort.
// Release must be called exactly once when the caller is done with it.
func (s *Supervisor) Acquire(ctx context.Context, cfg Config) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tunnels[cfg]; ok {
		if t.closing != nil {
			t.closing.Stop()
			t.closing = nil
		}
		t.refs++
		return t.listener.Addr().String(), nil
	}

	t, err := dial(cfg)
	if err != nil {
		return "", util.NewKindError(util.KindConnection, "establishing SSH tunnel", err)
	}
	t.refs = 1
	s.tunnels[cfg] = t
	go s.forward(t)
	return t.listener.Addr().String(), nil
}

// Release decrements cfg's reference count, scheduling the tunnel to close
// after cfg.CloseDelay once it reaches zero.
func (s *Supervisor) Release(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tunnels[cfg]
	if !ok {
		return
	}
	t.refs--
	if t.refs > 0 {
		return
	}
	t.closing = time.AfterFunc(cfg.CloseDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.tunnels[cfg]; ok && cur.refs <= 0 {
			s.logger.DebugContext(context.Background(), "closing idle SSH tunnel", "host", cfg.Host)
			close(cur.done)
			cur.listener.Close()
			cur.client.Close()
			delete(s.tunnels, cfg)
		}
	})
}

func dial(cfg Config) (*tunnel, error) {
	key, err := os.ReadFile(cfg.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading SSH private key: %w", err)
	}
	var signer ssh.Signer
	if cfg.PrivateKeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.PrivateKeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing SSH private key: %w", err)
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	client, err := ssh.Dial("tcp", cfg.Host, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing SSH host %q: %w", cfg.Host, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening local tunnel port: %w", err)
	}

	return &tunnel{cfg: cfg, listener: listener, client: client, done: make(chan struct{})}, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts file: %w", err)
	}
	return cb, nil
}

// forward accepts local connections until t is closed and proxies each to
// the tunnel's remote endpoint.
func (s *Supervisor) forward(t *tunnel) {
	remote := net.JoinHostPort(t.cfg.RemoteHost, t.cfg.RemotePort)
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				s.logger.ErrorContext(context.Background(), "SSH tunnel listener error", "error", err)
				return
			}
		}
		go proxyOne(t.client, conn, remote)
	}
}

func proxyOne(client *ssh.Client, local net.Conn, remote string) {
	defer local.Close()
	upstream, err := client.Dial("tcp", remote)
	if err != nil {
		return
	}
	defer upstream.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(upstream, local) }()
	go func() { defer wg.Done(); io.Copy(local, upstream) }()
	wg.Wait()
}
