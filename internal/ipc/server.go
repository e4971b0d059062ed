package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"unplug/internal/eject"
	"unplug/internal/logging"
	"unplug/internal/sampler"
)

// Description identifies the running daemon instance.
type Description struct {
	PID        int
	StartedAt  time.Time
	SocketPath string
	LockPath   string
}

// Controller is the daemon surface the IPC service exposes to clients.
type Controller interface {
	Scan(drive string) (uuid.UUID, error)
	ForceEject(drive string, pids []int32) (uuid.UUID, error)
	ManualDismount(drive string) (uuid.UUID, error)
	KillOne(drive string, pid int32) (uuid.UUID, error)

	EjectState() eject.State
	Snapshot() *sampler.Snapshot
	RemovableDrives() []sampler.Volume
	Describe() Description

	// RequestShutdown asks the daemon to exit. Must not block.
	RequestShutdown()
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, controller Controller, logger *slog.Logger) (*Server, error) {
	if controller == nil {
		return nil, errors.New("ipc server requires a controller")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Unplug", &service{controller: controller}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before the next start"))
	}
}

type service struct {
	controller Controller
}

func (s *service) Scan(req ScanRequest, resp *SubmitResponse) error {
	id, err := s.controller.Scan(req.Drive)
	if err != nil {
		return err
	}
	resp.RequestID = id.String()
	return nil
}

func (s *service) ForceEject(req ForceEjectRequest, resp *SubmitResponse) error {
	id, err := s.controller.ForceEject(req.Drive, req.PIDs)
	if err != nil {
		return err
	}
	resp.RequestID = id.String()
	return nil
}

func (s *service) Dismount(req DismountRequest, resp *SubmitResponse) error {
	id, err := s.controller.ManualDismount(req.Drive)
	if err != nil {
		return err
	}
	resp.RequestID = id.String()
	return nil
}

func (s *service) Kill(req KillRequest, resp *SubmitResponse) error {
	id, err := s.controller.KillOne(req.Drive, req.PID)
	if err != nil {
		return err
	}
	resp.RequestID = id.String()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	desc := s.controller.Describe()
	resp.PID = desc.PID
	resp.StartedAt = desc.StartedAt
	resp.SocketPath = desc.SocketPath
	resp.LockPath = desc.LockPath
	resp.State = s.controller.EjectState()
	return nil
}

func (s *service) Drives(req DrivesRequest, resp *DrivesResponse) error {
	snap := s.controller.Snapshot()
	resp.TakenAt = snap.TakenAt
	if req.RemovableOnly {
		resp.Volumes = s.controller.RemovableDrives()
		return nil
	}
	resp.Volumes = snap.Volumes
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.controller.RequestShutdown()
	resp.Stopping = true
	return nil
}
