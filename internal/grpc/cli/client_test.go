package cli

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/clierr"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// fakeDaemon implements the daemon side of the package service
type fakeDaemon struct {
	mu         sync.Mutex
	lastList   ListRequest
	lastSearch SearchRequest
	lastMethod string
	installErr error
	listErr    error
	urls       []string
	inits      int
	boards     []BoardEvent
}

func unary[Req any](handle func(d *fakeDaemon, ctx context.Context, req *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		return handle(srv.(*fakeDaemon), ctx, req)
	}
}

func streaming[Req any](handle func(d *fakeDaemon, req *Req, stream grpc.ServerStream) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		req := new(Req)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		return handle(srv.(*fakeDaemon), req, stream)
	}
}

func (d *fakeDaemon) list(method string) grpc.MethodHandler {
	return unary(func(d *fakeDaemon, _ context.Context, req *ListRequest) (any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.lastList = *req
		d.lastMethod = method
		if d.listErr != nil {
			return nil, d.listErr
		}
		return &ListResponse{Installed: []types.InstalledRecord{
			{ID: "Servo", Release: &types.Release{Version: "1.2.0"}},
		}}, nil
	})
}

func (d *fakeDaemon) install(method string) grpc.StreamHandler {
	return streaming(func(d *fakeDaemon, req *InstallRequest, stream grpc.ServerStream) error {
		d.mu.Lock()
		d.lastMethod = method
		installErr := d.installErr
		d.mu.Unlock()

		if err := stream.SendMsg(&types.ProgressChunk{Message: "Downloading " + req.ID + "@" + req.Version}); err != nil {
			return err
		}
		if installErr != nil {
			return installErr
		}
		return stream.SendMsg(&types.ProgressChunk{Task: &types.TaskProgress{Name: "Installing " + req.ID, Completed: true}})
	})
}

func serviceDesc(d *fakeDaemon) *grpc.ServiceDesc {
	type packageServer interface{}
	return &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*packageServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Create", Handler: unary(func(*fakeDaemon, context.Context, *CreateRequest) (any, error) {
				return &CreateResponse{Instance: &Instance{ID: 7}}, nil
			})},
			{MethodName: "LibraryList", Handler: d.list("LibraryList")},
			{MethodName: "PlatformList", Handler: d.list("PlatformList")},
			{MethodName: "LibrarySearch", Handler: unary(func(d *fakeDaemon, _ context.Context, req *SearchRequest) (any, error) {
				d.mu.Lock()
				d.lastSearch = *req
				d.mu.Unlock()
				return &SearchResponse{Results: []types.RemoteRecord{
					{ID: "Servo", Latest: &types.Release{Version: "1.2.1"}, AvailableVersions: []string{"1.2.1", "1.2.0"}},
				}}, nil
			})},
			{MethodName: "LibraryResolveDependencies", Handler: unary(func(_ *fakeDaemon, _ context.Context, req *ResolveDependenciesRequest) (any, error) {
				return &ResolveDependenciesResponse{Dependencies: []types.Dependency{{Name: req.Name, RequiredVersion: req.Version}}}, nil
			})},
			{MethodName: "SettingsGetValue", Handler: unary(func(d *fakeDaemon, _ context.Context, _ *SettingsGetRequest) (any, error) {
				d.mu.Lock()
				defer d.mu.Unlock()
				return &SettingsGetResponse{Values: d.urls}, nil
			})},
			{MethodName: "SettingsSetValue", Handler: unary(func(d *fakeDaemon, _ context.Context, req *SettingsSetRequest) (any, error) {
				d.mu.Lock()
				defer d.mu.Unlock()
				d.urls = req.Values
				return &SettingsSetResponse{}, nil
			})},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: "Init", ServerStreams: true, Handler: streaming(func(d *fakeDaemon, _ *InitRequest, stream grpc.ServerStream) error {
				d.mu.Lock()
				d.inits++
				d.mu.Unlock()
				return stream.SendMsg(&types.ProgressChunk{Message: "Loading index"})
			})},
			{StreamName: "LibraryInstall", ServerStreams: true, Handler: d.install("LibraryInstall")},
			{StreamName: "PlatformInstall", ServerStreams: true, Handler: d.install("PlatformInstall")},
			{StreamName: "BoardListWatch", ServerStreams: true, Handler: streaming(func(d *fakeDaemon, _ *BoardListWatchRequest, stream grpc.ServerStream) error {
				d.mu.Lock()
				boards := append([]BoardEvent(nil), d.boards...)
				d.mu.Unlock()
				for i := range boards {
					if err := stream.SendMsg(&boards[i]); err != nil {
						return err
					}
				}
				<-stream.Context().Done()
				return nil
			})},
		},
	}
}

func startDaemon(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(Codec{}))
	srv.RegisterService(serviceDesc(d), d)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := New("passthrough:///bufnet",
		WithMetrics(monitoring.NewMetrics()),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func initClient(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()
	client := startDaemon(t, d)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Init(ctx))
	return client
}

func TestCallsBeforeInit(t *testing.T) {
	client := startDaemon(t, &fakeDaemon{})

	_, err := client.ListInstalled(context.Background(), types.ListQuery{Kind: types.KindLibrary})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, client.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.WaitReady(ctx), context.DeadlineExceeded)
}

func TestInitMarksReady(t *testing.T) {
	d := &fakeDaemon{}
	client := initClient(t, d)

	assert.True(t, client.Ready())
	require.NoError(t, client.WaitReady(context.Background()))

	require.NoError(t, client.Rescan(context.Background()))
	assert.Equal(t, 2, d.inits)
}

func TestListInstalledRoutesByKind(t *testing.T) {
	d := &fakeDaemon{}
	client := initClient(t, d)
	ctx := context.Background()

	got, err := client.ListInstalled(ctx, types.ListQuery{Kind: types.KindLibrary, FQBN: "arduino:avr:uno", All: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Servo", got[0].ID)
	assert.Equal(t, "LibraryList", d.lastMethod)
	assert.Equal(t, "arduino:avr:uno", d.lastList.FQBN)
	assert.True(t, d.lastList.All)
	assert.Equal(t, int32(7), d.lastList.Instance.ID)

	_, err = client.ListInstalled(ctx, types.ListQuery{Kind: types.KindPlatform})
	require.NoError(t, err)
	assert.Equal(t, "PlatformList", d.lastMethod)
}

func TestStatusMessagesSurvive(t *testing.T) {
	d := &fakeDaemon{listErr: status.Error(codes.FailedPrecondition,
		"missing platform release PTSolnsAVR:avr@1.0.0 referenced by board PTSolnsAVR:avr:nano")}
	client := initClient(t, d)

	_, err := client.ListInstalled(context.Background(), types.ListQuery{Kind: types.KindLibrary, FQBN: "PTSolnsAVR:avr:nano"})
	require.Error(t, err)
	assert.True(t, clierr.IsEmpty(err))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestSearchAndDependencies(t *testing.T) {
	d := &fakeDaemon{}
	client := initClient(t, d)
	ctx := context.Background()

	results, err := client.Search(ctx, types.KindLibrary, "servo")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1.2.1", results[0].Latest.Version)
	assert.Equal(t, "servo", d.lastSearch.Query)

	deps, err := client.ResolveDependencies(ctx, "Servo", "1.2.1")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "1.2.1", deps[0].RequiredVersion)
}

func drain(t *testing.T, stream types.ProgressStream) ([]*types.ProgressChunk, error) {
	t.Helper()
	var chunks []*types.ProgressChunk
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func TestInstallStream(t *testing.T) {
	d := &fakeDaemon{}
	client := initClient(t, d)

	stream, err := client.Install(context.Background(), types.InstallRequest{Kind: types.KindPlatform, ID: "arduino:avr", Version: "1.8.6"})
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Downloading arduino:avr@1.8.6", chunks[0].Message)
	assert.True(t, chunks[1].Task.Completed)
	assert.Equal(t, "PlatformInstall", d.lastMethod)
}

func TestInstallStreamFailure(t *testing.T) {
	d := &fakeDaemon{installErr: status.Error(codes.AlreadyExists, "Platform arduino:avr@1.8.6 already installed")}
	client := initClient(t, d)

	stream, err := client.Install(context.Background(), types.InstallRequest{Kind: types.KindPlatform, ID: "arduino:avr", Version: "1.8.6"})
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	require.Error(t, err)
	assert.Len(t, chunks, 1)
	assert.True(t, clierr.AlreadyInstalled(err, "arduino:avr", "1.8.6"))
}

func TestAdditionalURLs(t *testing.T) {
	d := &fakeDaemon{urls: []string{"https://example.com/index.json"}}
	client := initClient(t, d)
	ctx := context.Background()

	urls, err := client.AdditionalURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/index.json"}, urls)

	require.NoError(t, client.SetAdditionalURLs(ctx, append(urls, "https://ptsolns.github.io/PTSolnsCore/boards.json")))
	urls, err = client.AdditionalURLs(ctx)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

type boardRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *boardRecorder) NotifyBoardsChanged(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *boardRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestBoardWatcher(t *testing.T) {
	d := &fakeDaemon{boards: []BoardEvent{
		{EventType: "add", Address: "/dev/ttyUSB0", Boards: []string{"PTSolnsAVR:avr:nano"}},
		{EventType: "error", Error: "serial discovery crashed"},
	}}
	client := initClient(t, d)
	recorder := &boardRecorder{}
	watcher := NewBoardWatcher(client, recorder, nil)

	watcher.Start()
	watcher.Start()
	require.True(t, watcher.Running())

	require.Eventually(t, func() bool { return recorder.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "add /dev/ttyUSB0 (PTSolnsAVR:avr:nano)", recorder.messages[0])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, watcher.Stop(ctx))
	require.NoError(t, watcher.Stop(ctx))
	assert.False(t, watcher.Running())
}
