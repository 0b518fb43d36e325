// Package ipc publishes the current lyric line to display clients over a
// unix socket and mirrors it into a state file.
package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"lyricosd/pkg/fileutil"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning means another instance holds the lock file.
var ErrAlreadyRunning = errors.New("another lyricosd instance is already running")

// Server sends every broadcast line, newline terminated, to each connected
// client. A client receives the current line as soon as it connects.
type Server struct {
	socketPath   string
	stateFile    string
	lockFilePath string

	listener net.Listener
	lockFile *os.File

	clientConns     map[net.Conn]struct{}
	clientConnsLock sync.Mutex
	line            string
	lineLock        sync.Mutex
	wg              sync.WaitGroup
}

// NewServer returns a server for socketPath. stateFile may be empty to skip
// the state file.
func NewServer(socketPath, stateFile string) *Server {
	return &Server{
		socketPath:   socketPath,
		stateFile:    stateFile,
		lockFilePath: socketPath + ".lock",
		clientConns:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) checkAndCleanOldLock() {
	content, err := os.ReadFile(s.lockFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Warn().Str("component", "ipc").Err(err).Msg("Failed to read lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		log.Warn().Str("component", "ipc").Str("pid_str", pidStr).Msg("Invalid PID in lock file, removing it")
		os.Remove(s.lockFilePath)
		return
	}

	if !isProcessRunning(pid) {
		log.Info().Str("component", "ipc").Int("old_pid", pid).Msg("Process in lock file is not running, removing lock file")
		os.Remove(s.lockFilePath)
		return
	}
	log.Debug().Str("component", "ipc").Int("existing_pid", pid).Msg("Lock file owner is alive")
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func (s *Server) acquireLock() error {
	s.checkAndCleanOldLock()

	file, err := os.OpenFile(s.lockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	err = file.Truncate(0)
	if err == nil {
		_, err = fmt.Fprintf(file, "%d\n", os.Getpid())
	}
	if err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	s.lockFile = file
	log.Info().Str("component", "ipc").Str("lock_file", s.lockFilePath).Int("pid", os.Getpid()).Msg("Acquired process lock")
	return nil
}

func (s *Server) releaseLock() {
	if s.lockFile == nil {
		return
	}
	syscall.Flock(int(s.lockFile.Fd()), syscall.LOCK_UN)
	s.lockFile.Close()
	os.Remove(s.lockFilePath)
	log.Info().Str("component", "ipc").Str("lock_file", s.lockFilePath).Msg("Released process lock")
	s.lockFile = nil
}

// Start takes the process lock and begins accepting clients.
func (s *Server) Start() error {
	if err := s.acquireLock(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.releaseLock()
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releaseLock()
		return err
	}
	s.listener = listener

	log.Info().Str("component", "ipc").Str("socket_path", s.socketPath).Msg("IPC server listening")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			log.Error().Str("component", "ipc").Err(err).Msg("Failed to accept IPC connection")
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	s.lineLock.Lock()
	current := s.line
	s.lineLock.Unlock()

	s.clientConnsLock.Lock()
	s.clientConns[conn] = struct{}{}
	_, err := conn.Write(frame(current))
	s.clientConnsLock.Unlock()

	log.Debug().Str("component", "ipc").Msg("Client connected")
	if err != nil {
		log.Error().Str("component", "ipc").Err(err).Msg("Failed to send initial line")
	}

	// Clients never send anything; a read returns when they hang up.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	s.clientConnsLock.Lock()
	delete(s.clientConns, conn)
	s.clientConnsLock.Unlock()
	conn.Close()
	log.Debug().Str("component", "ipc").Msg("Client disconnected")
}

// Broadcast records line as current, sends it to every client and rewrites
// the state file.
func (s *Server) Broadcast(line string) {
	s.lineLock.Lock()
	s.line = line
	s.lineLock.Unlock()

	if s.stateFile != "" {
		if err := fileutil.WriteFileAtomic(s.stateFile, []byte(line+"\n"), 0644); err != nil {
			log.Error().Str("component", "ipc").Err(err).Msg("Failed to write state file")
		}
	}

	s.clientConnsLock.Lock()
	defer s.clientConnsLock.Unlock()

	payload := frame(line)
	for conn := range s.clientConns {
		if _, err := conn.Write(payload); err != nil {
			log.Error().Str("component", "ipc").Err(err).Msg("Failed to write to client, removing")
			conn.Close()
			delete(s.clientConns, conn)
		}
	}
}

// Current returns the last broadcast line.
func (s *Server) Current() string {
	s.lineLock.Lock()
	defer s.lineLock.Unlock()
	return s.line
}

// Close stops accepting, disconnects clients and releases the lock.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
		s.wg.Wait()
		os.Remove(s.socketPath)
	}

	s.clientConnsLock.Lock()
	for conn := range s.clientConns {
		conn.Close()
		delete(s.clientConns, conn)
	}
	s.clientConnsLock.Unlock()

	s.releaseLock()
}

// frame keeps one line per message. Embedded newlines would split it.
func frame(line string) []byte {
	return []byte(strings.ReplaceAll(line, "\n", " ") + "\n")
}
