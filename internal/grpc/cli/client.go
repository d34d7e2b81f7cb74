package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/resilience"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// ErrNotReady is returned by calls issued before Init completed
var ErrNotReady = errors.New("cli session not initialized")

// Client is the session with the CLI daemon. It owns one daemon instance
// created by Init; every call is scoped to that instance.
type Client struct {
	conn    *grpc.ClientConn
	addr    string
	breaker *resilience.Breaker
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	instance *Instance

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Client
type Option func(*options)

type options struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics
	dial    []grpc.DialOption
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records backend calls
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithDialOptions appends dial options, e.g. a custom dialer in tests
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dial = append(o.dial, opts...) }
}

// New creates a client for the daemon at addr. The connection is
// established lazily; call Init before issuing requests.
func New(addr string, opts ...Option) (*Client, error) {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(Codec{}),
			grpc.MaxCallRecvMsgSize(32*1024*1024),
			grpc.MaxCallSendMsgSize(10*1024*1024),
		),
	}
	dialOpts = append(dialOpts, o.dial...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial cli daemon: %w", err)
	}

	breaker := resilience.New("cli", resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return !unreachable(err)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			o.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		conn:    conn,
		addr:    addr,
		breaker: breaker,
		logger:  o.logger.Named("cli"),
		metrics: o.metrics,
		ready:   make(chan struct{}),
	}, nil
}

// unreachable reports whether err means the daemon itself is down, as
// opposed to a request it answered with an error
func unreachable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Addr returns the daemon address
func (c *Client) Addr() string {
	return c.addr
}

// Init creates the daemon instance and loads its indexes. It marks the
// session ready once the init stream completed.
func (c *Client) Init(ctx context.Context) error {
	var created CreateResponse
	if err := c.invoke(ctx, MethodCreate, &CreateRequest{}, &created); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	if created.Instance == nil {
		return fmt.Errorf("create instance: %w", ErrNotReady)
	}

	c.mu.Lock()
	c.instance = created.Instance
	c.mu.Unlock()

	if err := c.initInstance(ctx, created.Instance); err != nil {
		return err
	}

	c.readyOnce.Do(func() { close(c.ready) })
	c.logger.Info("CLI session ready", zap.String("addr", c.addr), zap.Int32("instance", created.Instance.ID))
	return nil
}

func (c *Client) initInstance(ctx context.Context, inst *Instance) error {
	stream, err := c.openStream(ctx, MethodInit, &InitRequest{Instance: inst})
	if err != nil {
		return fmt.Errorf("init instance: %w", err)
	}
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if isEOF(err) {
				return nil
			}
			return fmt.Errorf("init instance: %w", err)
		}
		if chunk.Message != "" {
			c.logger.Debug("Init", zap.String("message", chunk.Message))
		}
	}
}

// Rescan re-initializes the instance so the daemon re-reads installed
// packages from disk
func (c *Client) Rescan(ctx context.Context) error {
	inst, err := c.currentInstance()
	if err != nil {
		return err
	}
	return c.initInstance(ctx, inst)
}

// WaitReady blocks until Init completed or ctx is done
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether Init completed
func (c *Client) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *Client) currentInstance() (*Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.instance == nil {
		return nil, ErrNotReady
	}
	return c.instance, nil
}

// ListInstalled returns the installed packages of one kind
func (c *Client) ListInstalled(ctx context.Context, q types.ListQuery) ([]types.InstalledRecord, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}

	method := MethodLibraryList
	if q.Kind == types.KindPlatform {
		method = MethodPlatformList
	}

	var resp ListResponse
	err = c.invoke(ctx, method, &ListRequest{Instance: inst, FQBN: q.FQBN, Name: q.Name, All: q.All}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Installed, nil
}

// Search queries the remote index of one kind
func (c *Client) Search(ctx context.Context, kind types.Kind, query string) ([]types.RemoteRecord, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}

	method := MethodLibrarySearch
	if kind == types.KindPlatform {
		method = MethodPlatformSearch
	}

	var resp SearchResponse
	if err := c.invoke(ctx, method, &SearchRequest{Instance: inst, Query: query}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ResolveDependencies returns the dependency closure of a library version
func (c *Client) ResolveDependencies(ctx context.Context, name, version string) ([]types.Dependency, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}

	var resp ResolveDependenciesResponse
	req := &ResolveDependenciesRequest{Instance: inst, Name: name, Version: version}
	if err := c.invoke(ctx, MethodLibraryResolveDependencies, req, &resp); err != nil {
		return nil, err
	}
	return resp.Dependencies, nil
}

// Install opens an install stream
func (c *Client) Install(ctx context.Context, req types.InstallRequest) (types.ProgressStream, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}

	method := MethodLibraryInstall
	if req.Kind == types.KindPlatform {
		method = MethodPlatformInstall
	}
	return c.openStream(ctx, method, &InstallRequest{Instance: inst, InstallRequest: req})
}

// Uninstall opens an uninstall stream
func (c *Client) Uninstall(ctx context.Context, req types.UninstallRequest) (types.ProgressStream, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}

	method := MethodLibraryUninstall
	if req.Kind == types.KindPlatform {
		method = MethodPlatformUninstall
	}
	return c.openStream(ctx, method, &UninstallRequest{Instance: inst, UninstallRequest: req})
}

// InstallArchive opens a zip library install stream
func (c *Client) InstallArchive(ctx context.Context, req types.ArchiveRequest) (types.ProgressStream, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}
	return c.openStream(ctx, MethodZipLibraryInstall, &ZipInstallRequest{Instance: inst, ArchiveRequest: req})
}

// AdditionalURLs returns the extra board index URLs
func (c *Client) AdditionalURLs(ctx context.Context) ([]string, error) {
	var resp SettingsGetResponse
	if err := c.invoke(ctx, MethodSettingsGetValue, &SettingsGetRequest{Key: SettingAdditionalURLs}, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// SetAdditionalURLs replaces the extra board index URLs
func (c *Client) SetAdditionalURLs(ctx context.Context, urls []string) error {
	req := &SettingsSetRequest{Key: SettingAdditionalURLs, Values: urls}
	return c.invoke(ctx, MethodSettingsSetValue, req, &SettingsSetResponse{})
}

// WatchBoards opens the discovery event stream
func (c *Client) WatchBoards(ctx context.Context) (BoardStream, error) {
	inst, err := c.currentInstance()
	if err != nil {
		return nil, err
	}

	stream, err := c.newStream(ctx, MethodBoardListWatch, &BoardListWatchRequest{Instance: inst})
	if err != nil {
		return nil, err
	}
	return &boardStream{stream: stream}, nil
}

// invoke issues a unary call through the circuit breaker
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	err := c.breaker.Do(func() error {
		return c.conn.Invoke(ctx, method, req, resp)
	})
	c.record(method, err)

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return status.Error(codes.Unavailable, "cli daemon unavailable: circuit breaker open")
	}
	return err
}

func (c *Client) record(method string, err error) {
	if c.metrics == nil {
		return
	}
	code := status.Code(err).String()
	if errors.Is(err, resilience.ErrCircuitOpen) {
		code = "CircuitOpen"
	}
	c.metrics.RecordBackendCall(method, code)
}
