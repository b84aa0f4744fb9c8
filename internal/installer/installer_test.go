package installer

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/italolelis/mocap_installer/internal/archive"
	"github.com/italolelis/mocap_installer/internal/downloader"
	"github.com/italolelis/mocap_installer/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu      sync.Mutex
	calls   []string
	resolve func(ctx context.Context, art source.Artifact) downloader.Result
}

func (r *fakeResolver) Resolve(ctx context.Context, art source.Artifact) downloader.Result {
	r.mu.Lock()
	r.calls = append(r.calls, art.Name)
	r.mu.Unlock()

	return r.resolve(ctx, art)
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (s stepFunc) Name() string                  { return s.name }
func (s stepFunc) Run(ctx context.Context) error { return s.fn(ctx) }

type recordingNotifier struct {
	got []*BatchError
}

func (n *recordingNotifier) NotifyBatchFailure(_ context.Context, err *BatchError) error {
	n.got = append(n.got, err)

	return nil
}

type staticVersion struct {
	err error
}

func (v staticVersion) RequireVersion(context.Context, string) (string, error) {
	return "1.37.0", v.err
}

func job(name string) Job {
	return Job{Artifact: source.Artifact{Name: name, Destinations: []string{"/models/" + name}}}
}

func succeed(_ context.Context, art source.Artifact) downloader.Result {
	return downloader.Result{Path: art.Destinations[0], URL: "https://example.com/" + art.Name, Success: true, Attempts: 1}
}

func TestInstall_Success(t *testing.T) {
	resolver := &fakeResolver{resolve: succeed}
	var stepsRun []string

	steps := []Step{
		stepFunc{"clone", func(context.Context) error { stepsRun = append(stepsRun, "clone"); return nil }},
		stepFunc{"pip", func(context.Context) error { stepsRun = append(stepsRun, "pip"); return nil }},
	}

	gate := downloader.NewGate(2, nil)
	inst := New(resolver, gate, nil, WithMinimumDaemonVersion(staticVersion{}, "1.35.0"))

	report, err := inst.Install(context.Background(), Batch{
		Pipeline: "gvhmr",
		Steps:    steps,
		Jobs:     []Job{job("a"), job("b"), job("c"), job("d"), job("e")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"clone", "pip"}, stepsRun)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, resolver.Calls())
	assert.LessOrEqual(t, gate.Peak(), 2)

	for _, o := range report.Outcomes {
		assert.True(t, o.Started)
		assert.True(t, o.Result.Success)
	}
}

func TestInstall_StepFailureCancelsPendingResolutions(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once

	resolver := &fakeResolver{resolve: func(ctx context.Context, art source.Artifact) downloader.Result {
		once.Do(func() { close(started) })
		<-ctx.Done()

		return downloader.Result{Path: art.Destinations[0], URL: "https://example.com/" + art.Name}
	}}

	boom := errors.New("exit status 1")
	steps := []Step{stepFunc{"requirements", func(context.Context) error {
		<-started

		return boom
	}}}

	notifier := &recordingNotifier{}
	inst := New(resolver, downloader.NewGate(1, nil), nil, WithNotifier(notifier))

	report, err := inst.Install(context.Background(), Batch{
		Pipeline: "wilor",
		Steps:    steps,
		Jobs:     []Job{job("first"), job("second"), job("third")},
	})
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "requirements", stepErr.Step)
	require.ErrorIs(t, err, boom)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 3)
	assert.Equal(t, reasonFailed, batchErr.Failures[0].Reason)
	assert.Equal(t, "https://example.com/first", batchErr.Failures[0].URL)
	assert.Equal(t, reasonCancelled, batchErr.Failures[1].Reason)
	assert.Equal(t, reasonCancelled, batchErr.Failures[2].Reason)

	assert.Equal(t, []string{"first"}, resolver.Calls())
	assert.False(t, report.Outcomes[2].Started)
	assert.Len(t, notifier.got, 1)
}

func TestInstall_FailedArtifactDoesNotCancelOthers(t *testing.T) {
	resolver := &fakeResolver{resolve: func(ctx context.Context, art source.Artifact) downloader.Result {
		if art.Name == "broken" {
			return downloader.Result{Path: art.Destinations[0], URL: "https://example.com/broken", Attempts: 3}
		}

		return succeed(ctx, art)
	}}

	notifier := &recordingNotifier{}
	inst := New(resolver, downloader.NewGate(2, nil), nil, WithNotifier(notifier))

	report, err := inst.Install(context.Background(), Batch{
		Pipeline: "dynhamr",
		Jobs:     []Job{job("broken"), job("ok1"), job("ok2")},
	})

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, Failure{Artifact: "broken", URL: "https://example.com/broken", Path: "/models/broken", Reason: reasonFailed}, batchErr.Failures[0])
	assert.Contains(t, batchErr.Error(), "download them manually")

	var stepErr *StepError
	assert.False(t, errors.As(err, &stepErr))

	assert.True(t, report.Outcomes[1].Result.Success)
	assert.True(t, report.Outcomes[2].Result.Success)
	assert.Len(t, notifier.got, 1)
}

func TestInstall_ExtractsResolvedArchives(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "mano_v1_2.zip")

	f, err := os.Create(bundle)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("mano_v1_2/models/MANO_RIGHT.pkl")
	require.NoError(t, err)
	_, err = w.Write([]byte("right hand"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	resolver := &fakeResolver{resolve: func(context.Context, source.Artifact) downloader.Result {
		return downloader.Result{Path: bundle, Success: true}
	}}

	out := filepath.Join(dir, "_DATA", "data")
	j := Job{
		Artifact: source.Artifact{Name: "mano", Destinations: []string{bundle}},
		Extract:  &ExtractJob{Dir: out, Options: archive.Options{Glob: "*/models/*.pkl"}},
	}

	report, err := New(resolver, nil, archive.NewExtractor()).Install(context.Background(), Batch{Pipeline: "wilor", Jobs: []Job{j}})
	require.NoError(t, err)

	require.NotNil(t, report.Outcomes[0].Extracted)
	assert.FileExists(t, filepath.Join(out, "mano_v1_2", "models", "MANO_RIGHT.pkl"))
}

func TestInstall_ExtractFailureIsReported(t *testing.T) {
	notArchive := filepath.Join(t.TempDir(), "weights.bin")
	require.NoError(t, os.WriteFile(notArchive, []byte("plain weights"), 0o644))

	resolver := &fakeResolver{resolve: func(context.Context, source.Artifact) downloader.Result {
		return downloader.Result{Path: notArchive, URL: "https://example.com/weights.bin", Success: true}
	}}

	j := Job{
		Artifact: source.Artifact{Name: "weights", Destinations: []string{notArchive}},
		Extract:  &ExtractJob{Dir: t.TempDir()},
	}

	_, err := New(resolver, nil, nil).Install(context.Background(), Batch{Pipeline: "p", Jobs: []Job{j}})

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failures, 1)
	assert.Contains(t, batchErr.Failures[0].Reason, "extract to")
}

func TestInstall_RefusesOldDaemon(t *testing.T) {
	resolver := &fakeResolver{resolve: succeed}
	tooOld := errors.New("daemon too old")

	inst := New(resolver, nil, nil, WithMinimumDaemonVersion(staticVersion{err: tooOld}, "9.0.0"))

	_, err := inst.Install(context.Background(), Batch{Pipeline: "p", Jobs: []Job{job("a")}})
	require.ErrorIs(t, err, tooOld)
	assert.Empty(t, resolver.Calls())
}

func TestCommandStep_Run(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := filepath.Join(t.TempDir(), "work")

	ok := &CommandStep{Label: "touch", Command: []string{"sh", "-c", "echo building; echo warn >&2; touch marker"}, Dir: dir}
	require.NoError(t, ok.Run(context.Background()))
	assert.FileExists(t, filepath.Join(dir, "marker"))

	failing := &CommandStep{Command: []string{"sh", "-c", "exit 3"}}
	err := failing.Run(context.Background())

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Equal(t, "sh", failing.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, (&CommandStep{Command: []string{"sh", "-c", "sleep 5"}}).Run(ctx))
}
