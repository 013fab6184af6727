package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/pkg/rpc"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper buffers reports and ships them to fleetpulse-server via gRPC.
// Ship is non-blocking; when the buffer is full the oldest report is evicted.
// Run must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *types.Report
	dialFn dialFunc // injectable for tests

	pending atomic.Int32 // queued or in flight
}

// dialFunc opens a gRPC connection to the server.
type dialFunc func(endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *types.Report, size),
		dialFn: defaultDial,
	}
}

// Ship enqueues r. If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(r *types.Report) {
	for {
		select {
		case s.buf <- r:
			s.pending.Add(1)
			return
		default:
		}
		select {
		case old := <-s.buf:
			s.pending.Add(-1)
			slog.Warn("shipper: buffer full, evicted oldest report",
				"cycle", old.Cycle, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Emit adapts Ship to the refresh emitter interface. It never blocks on
// the network.
func (s *Shipper) Emit(_ context.Context, r *types.Report) error {
	s.Ship(r)
	return nil
}

// Pending returns the number of reports queued or in flight.
func (s *Shipper) Pending() int { return int(s.pending.Load()) }

// Run drains the buffer, sending reports to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		err = s.drain(ctx, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain sends buffered reports until a send fails transiently or ctx is
// cancelled. A successful send resets the backoff.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn, bo *backoff) error {
	client := rpc.NewReportServiceClient(conn)

	for {
		select {
		case <-ctx.Done():
			return nil

		case rep := <-s.buf:
			if err := s.send(ctx, client, rep); err != nil {
				return err
			}
			bo.reset()
		}
	}
}

// send delivers one report. Transient failures requeue the report and are
// returned; permanent ones discard it.
func (s *Shipper) send(ctx context.Context, client *rpc.ReportServiceClient, rep *types.Report) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if s.cfg.ServerAuth.Mode == "apikey" {
		sendCtx = metadata.AppendToOutgoingContext(sendCtx,
			s.cfg.ServerAuth.EffectiveHeader(), s.cfg.ServerAuth.Key())
	}

	resp, err := client.SendReport(sendCtx, rep)
	if err != nil {
		if isPermanentError(err) {
			s.pending.Add(-1)
			slog.Error("shipper: permanent send error, discarding report",
				"cycle", rep.Cycle, "err", err)
			return nil
		}
		// Requeue unless newer reports have filled the buffer.
		select {
		case s.buf <- rep:
		default:
			s.pending.Add(-1)
		}
		return fmt.Errorf("send: %w", err)
	}
	s.pending.Add(-1)

	if !resp.OK {
		slog.Warn("shipper: server rejected report",
			"cycle", rep.Cycle, "message", resp.Message)
	} else {
		slog.Debug("shipper: report delivered", "cycle", rep.Cycle, "id", rep.ID)
	}
	return nil
}

// Flush waits until every buffered report has been handed to the server or
// ctx expires. Run must be active for the buffer to drain.
func (s *Shipper) Flush(ctx context.Context) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		n := s.pending.Load()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("shipper: flush: %d reports undelivered: %w", n, ctx.Err())
		case <-tick.C:
		}
	}
}

// isPermanentError returns true for gRPC errors that indicate the report
// itself (or our credentials) is invalid and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// defaultDial creates a gRPC client for endpoint with auth configured from cfg.
// The connection is established lazily on the first RPC.
func defaultDial(endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(endpoint, opts...)
}

// dialOptions builds grpc.DialOption slice based on the server auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	switch cfg.ServerAuth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(cfg.ServerAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default: // "apikey" injects per call; "none" is for local dev
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration (±25% jitter) and advances.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
