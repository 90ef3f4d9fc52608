package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

type fakeInstaller struct {
	mu        sync.Mutex
	err       error
	installed bool
	calls     int
	block     chan struct{}
}

func (f *fakeInstaller) Install(ctx context.Context, rec *Record) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeInstaller) Installed(rec *Record) bool { return f.installed }

func TestTransitionTable(t *testing.T) {
	next, err := Transition(StateNone, EventRequire)
	require.NoError(t, err)
	assert.Equal(t, StatePending, next)

	next, err = Transition(StatePending, EventTrigger)
	require.NoError(t, err)
	assert.Equal(t, StateInstalling, next)

	next, err = Transition(StateInstalling, EventFail)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, next)

	next, err = Transition(StateFailed, EventTrigger)
	require.NoError(t, err)
	assert.Equal(t, StateInstalling, next)

	next, err = Transition(StateInstalling, EventSucceed)
	require.NoError(t, err)
	assert.Equal(t, StateDone, next)

	_, err = Transition(StateNone, EventTrigger)
	assert.Error(t, err)
	_, err = Transition(StateInstalling, EventTrigger)
	assert.Error(t, err)
}

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := ReadRecord(dir)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.True(t, Playable(dir))

	require.NoError(t, WriteRecord(dir, &Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"}))
	assert.False(t, Playable(dir))

	got, err := ReadRecord(dir)
	require.NoError(t, err)
	assert.Equal(t, "forge", got.LoaderType)
	assert.Equal(t, "1.20.1-forge-43.1.0", got.VersionString)

	// reading twice changes nothing
	again, err := ReadRecord(dir)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	require.NoError(t, RemoveRecord(dir))
	require.NoError(t, RemoveRecord(dir))
	assert.True(t, Playable(dir))
}

func TestReadRecordRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RecordFileName), []byte("{"), 0644))
	_, err := ReadRecord(dir)
	assert.Equal(t, errdefs.KindParse, errdefs.KindOf(err))

	assert.Error(t, WriteRecord(dir, &Record{LoaderType: "quilt", VersionString: "x"}))
}

func TestParseVersionString(t *testing.T) {
	mc, ver, err := ParseVersionString("forge", "1.20.1-forge-43.1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", mc)
	assert.Equal(t, "43.1.0", ver)

	mc, ver, err = ParseVersionString("fabric", "fabric-loader-0.14.21-1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", mc)
	assert.Equal(t, "0.14.21", ver)

	_, _, err = ParseVersionString("forge", "1.20.1")
	assert.Error(t, err)
}

func TestMachineSuccessRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	inst := &fakeInstaller{}
	m := NewMachine(dir, map[string]Installer{"forge": inst}, utils.NewDiscardLogger())

	written, err := m.Require(&Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"})
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, StatePending, m.State())

	pending, err := m.Pending()
	require.NoError(t, err)
	require.NotNil(t, pending)

	require.NoError(t, m.Trigger(context.Background()))
	assert.Equal(t, StateDone, m.State())
	assert.True(t, Playable(dir))
	assert.NoFileExists(t, RecordPath(dir))
}

func TestMachineFailureKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	inst := &fakeInstaller{err: errors.New("java not found")}
	m := NewMachine(dir, map[string]Installer{"fabric": inst}, utils.NewDiscardLogger())

	_, err := m.Require(&Record{LoaderType: "fabric", VersionString: "fabric-loader-0.14.21-1.20.1"})
	require.NoError(t, err)

	err = m.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, m.State())

	rec, err := ReadRecord(dir)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "fabric-loader-0.14.21-1.20.1", rec.VersionString)
	assert.Equal(t, 1, rec.Attempts)
	assert.Contains(t, rec.LastError, "java not found")

	// retry succeeds without re-resolving anything
	inst.err = nil
	require.NoError(t, m.Trigger(context.Background()))
	assert.True(t, Playable(dir))
}

func TestMachineSkipsInstalledLoader(t *testing.T) {
	dir := t.TempDir()
	m := NewMachine(dir, map[string]Installer{"forge": &fakeInstaller{installed: true}}, utils.NewDiscardLogger())

	written, err := m.Require(&Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"})
	require.NoError(t, err)
	assert.False(t, written)
	assert.True(t, Playable(dir))
	assert.Equal(t, StateNone, m.State())
}

func TestMachineResumesFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteRecord(dir, &Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"}))

	inst := &fakeInstaller{}
	m := NewMachine(dir, map[string]Installer{"forge": inst}, utils.NewDiscardLogger())
	assert.Equal(t, StatePending, m.State())
	require.NoError(t, m.Trigger(context.Background()))
	assert.Equal(t, 1, inst.calls)
}

func TestConcurrentTriggerRejected(t *testing.T) {
	dir := t.TempDir()
	inst := &fakeInstaller{block: make(chan struct{})}
	m := NewMachine(dir, map[string]Installer{"forge": inst}, utils.NewDiscardLogger())
	_, err := m.Require(&Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"})
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- m.Trigger(context.Background()) }()

	require.Eventually(t, func() bool { return m.State() == StateInstalling }, testTimeout, testTick)
	assert.Error(t, m.Trigger(context.Background()))

	close(inst.block)
	require.NoError(t, <-done)
}

func TestTriggerWithoutRecord(t *testing.T) {
	m := NewMachine(t.TempDir(), nil, utils.NewDiscardLogger())
	assert.Error(t, m.Trigger(context.Background()))
}

const (
	testTimeout = 5 * time.Second
	testTick    = 10 * time.Millisecond
)
