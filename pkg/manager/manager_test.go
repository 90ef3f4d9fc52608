package manager

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/loader"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/utils"
)

var modBody = []byte("mod contents")

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// fakeAPI queues one mod and reports its loader once the batch finalizes,
// the way package installs do
type fakeAPI struct {
	url    string
	loader *model.LoaderRequirement
}

func (f *fakeAPI) Name() string { return "fake" }

func (f *fakeAPI) Install(ctx context.Context, detail *model.ModDetail, index int, target string, batch download.Batch) (*model.InstallPlan, error) {
	plan := &model.InstallPlan{Target: target, IsPackage: true}
	ref := model.FileRef{URL: f.url, FileName: "mod.jar", Size: int64(len(modBody)), Checksum: sha1Hex(modBody)}
	if _, err := batch.Enqueue(ref.URL, ref.Size, ref.Checksum, filepath.Join(target, "mods", "mod.jar"), "mod.jar"); err != nil {
		return nil, err
	}
	plan.Files = append(plan.Files, ref)
	batch.Defer(func(ctx context.Context) error {
		plan.Loader = f.loader
		return nil
	})
	return plan, nil
}

// fakeInstaller marks versions installed in memory
type fakeInstaller struct {
	mu        sync.Mutex
	installed map[string]bool
	calls     int
	err       error
}

func (f *fakeInstaller) Install(ctx context.Context, rec *loader.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.installed == nil {
		f.installed = map[string]bool{}
	}
	f.installed[rec.VersionString] = true
	return nil
}

func (f *fakeInstaller) Installed(rec *loader.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[rec.VersionString]
}

func fileServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mod.jar" {
			http.NotFound(w, r)
			return
		}
		w.Write(modBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, inst *fakeInstaller) *Manager {
	cfg := config.NewConfig()
	cfg.RetryDelay = 0
	cfg.MaxRetries = 0
	logger := utils.NewDiscardLogger()
	return NewManager(download.NewClient(logger, nil), map[string]loader.Installer{"forge": inst}, cfg, logger)
}

func forge43() *model.LoaderRequirement {
	return &model.LoaderRequirement{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0", GameVersion: "1.20.1", LoaderVersion: "43.1.0"}
}

func TestInstallModpackRecordsLoader(t *testing.T) {
	srv := fileServer(t)
	inst := &fakeInstaller{}
	m := newTestManager(t, inst)
	profile := t.TempDir()

	plan, err := m.InstallModpack(context.Background(), &fakeAPI{url: srv.URL + "/mod.jar", loader: forge43()}, &model.ModDetail{ID: "pack"}, 0, profile)
	require.NoError(t, err)
	require.NotNil(t, plan.Loader)
	assert.FileExists(t, filepath.Join(profile, "mods", "mod.jar"))

	rec, err := m.LoaderStatus(profile)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "forge", rec.LoaderType)
	assert.Equal(t, "1.20.1-forge-43.1.0", rec.VersionString)
	assert.False(t, loader.Playable(profile))
	assert.Equal(t, 0, inst.calls)

	require.NoError(t, m.InstallLoader(context.Background(), profile))
	rec, err = m.LoaderStatus(profile)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.True(t, loader.Playable(profile))
	assert.Equal(t, 1, inst.calls)
}

func TestInstallModpackSkipsInstalledLoader(t *testing.T) {
	srv := fileServer(t)
	inst := &fakeInstaller{installed: map[string]bool{"1.20.1-forge-43.1.0": true}}
	m := newTestManager(t, inst)
	profile := t.TempDir()

	_, err := m.InstallModpack(context.Background(), &fakeAPI{url: srv.URL + "/mod.jar", loader: forge43()}, &model.ModDetail{ID: "pack"}, 0, profile)
	require.NoError(t, err)
	assert.True(t, loader.Playable(profile))
}

func TestInstallModpackInstallsLoaderWhenConfigured(t *testing.T) {
	srv := fileServer(t)
	inst := &fakeInstaller{}
	m := newTestManager(t, inst)
	m.config.InstallLoaders = true
	profile := t.TempDir()

	_, err := m.InstallModpack(context.Background(), &fakeAPI{url: srv.URL + "/mod.jar", loader: forge43()}, &model.ModDetail{ID: "pack"}, 0, profile)
	require.NoError(t, err)
	assert.Equal(t, 1, inst.calls)
	assert.True(t, loader.Playable(profile))
}

func TestInstallLoaderFailureKeepsRecord(t *testing.T) {
	srv := fileServer(t)
	inst := &fakeInstaller{err: errors.New("java not found")}
	m := newTestManager(t, inst)
	profile := t.TempDir()

	_, err := m.InstallModpack(context.Background(), &fakeAPI{url: srv.URL + "/mod.jar", loader: forge43()}, &model.ModDetail{ID: "pack"}, 0, profile)
	require.NoError(t, err)

	require.Error(t, m.InstallLoader(context.Background(), profile))
	rec, err := m.LoaderStatus(profile)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Attempts)
	assert.Contains(t, rec.LastError, "java not found")
	assert.False(t, loader.Playable(profile))
}

func TestInstallModpackDownloadFailureLeavesNoRecord(t *testing.T) {
	srv := fileServer(t)
	m := newTestManager(t, &fakeInstaller{})
	profile := t.TempDir()

	_, err := m.InstallModpack(context.Background(), &fakeAPI{url: srv.URL + "/missing.jar", loader: forge43()}, &model.ModDetail{ID: "pack"}, 0, profile)
	require.Error(t, err)
	assert.True(t, loader.Playable(profile))
	assert.NoFileExists(t, filepath.Join(profile, "mods", "mod.jar"))
}

func TestInstallLoaderWithoutRecord(t *testing.T) {
	m := newTestManager(t, &fakeInstaller{})
	assert.NoError(t, m.InstallLoader(context.Background(), t.TempDir()))
}

func TestInstallVersion(t *testing.T) {
	srv := fileServer(t)
	m := newTestManager(t, &fakeInstaller{})
	root := t.TempDir()
	manifest := &config.Manifest{
		ID: "1.20.1",
		Files: []config.ManifestEntry{
			{URL: srv.URL + "/mod.jar", Size: int64(len(modBody)), Checksum: sha1Hex(modBody), Path: "libraries/a.jar"},
			{URL: srv.URL + "/mod.jar", Size: int64(len(modBody)), Checksum: sha1Hex(modBody), Path: "libraries/b.jar"},
		},
	}

	var last download.Progress
	var mu sync.Mutex
	m.SetObserver(func(p download.Progress) {
		mu.Lock()
		last = p
		mu.Unlock()
	})

	n, err := m.InstallVersion(context.Background(), manifest, root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(root, "libraries", "a.jar"))

	n, err = m.InstallVersion(context.Background(), manifest, root)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, last.TotalUnits, last.CompletedUnits)
}
