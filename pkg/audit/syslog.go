package audit

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

const (
	redialBackoffMin = 100 * time.Millisecond
	redialBackoffMax = 30 * time.Second
)

// SyslogConfig configures a SyslogEmitter. Zero fields take defaults.
type SyslogConfig struct {
	SocketPath string   // default "/dev/log"
	Hostname   string   // default os.Hostname()
	AppName    string   // default "termguard"
	Facility   Facility // default FacLocal0
}

// SyslogEmitter writes events as RFC 5424 messages to the local syslog
// socket. A failed write triggers one redial, rate limited by an
// exponential backoff so a dead daemon is not hammered.
type SyslogEmitter struct {
	cfg SyslogConfig

	mu       sync.Mutex
	conn     net.Conn
	backoff  time.Duration
	lastDial time.Time
	dialFunc func(path string) (net.Conn, error)
}

// NewSyslogEmitter connects to the syslog socket described by cfg.
func NewSyslogEmitter(cfg SyslogConfig) (*SyslogEmitter, error) {
	return newSyslogEmitter(cfg, dialSyslog)
}

func newSyslogEmitter(cfg SyslogConfig, dial func(string) (net.Conn, error)) (*SyslogEmitter, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/dev/log"
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		}
	}
	if cfg.AppName == "" {
		cfg.AppName = "termguard"
	}
	if cfg.Facility == 0 {
		cfg.Facility = FacLocal0
	}
	conn, err := dial(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("connect syslog %s: %w", cfg.SocketPath, err)
	}
	return &SyslogEmitter{cfg: cfg, conn: conn, dialFunc: dial}, nil
}

// Emit serializes ev and writes it. Nil receivers discard.
func (s *SyslogEmitter) Emit(ev Event) error {
	if s == nil {
		return nil
	}
	data := FormatMessage(eventMessage(ev, s.cfg.Facility, s.cfg.Hostname, s.cfg.AppName))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Write(data); err == nil {
		s.backoff = 0
		return nil
	} else if rerr := s.redialLocked(); rerr != nil {
		return fmt.Errorf("syslog write: %v; %w", err, rerr)
	}
	_, err := s.conn.Write(data)
	return err
}

func (s *SyslogEmitter) redialLocked() error {
	if s.backoff > 0 {
		if wait := s.backoff - time.Since(s.lastDial); wait > 0 {
			return fmt.Errorf("syslog redial suppressed for %v", wait)
		}
	}
	s.conn.Close()
	s.lastDial = time.Now()

	conn, err := s.dialFunc(s.cfg.SocketPath)
	if err != nil {
		s.backoff = min(max(2*s.backoff, redialBackoffMin), redialBackoffMax)
		return fmt.Errorf("syslog redial: %w", err)
	}
	s.conn = conn
	s.backoff = 0
	return nil
}

// Close releases the socket.
func (s *SyslogEmitter) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// dialSyslog prefers datagram sockets and falls back to stream sockets.
func dialSyslog(path string) (net.Conn, error) {
	if c, err := net.Dial("unixgram", path); err == nil {
		return c, nil
	}
	return net.Dial("unix", path)
}
