package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-modpackinstaller/pkg/utils"
)

// Installer installs one loader type into the game directory
type Installer interface {
	Install(ctx context.Context, rec *Record) error
	// Installed reports whether the loader version is already present
	Installed(rec *Record) bool
}

// Machine drives the loader installation of one profile directory
type Machine struct {
	profileDir string
	installers map[string]Installer
	logger     *utils.Logger

	mu    sync.Mutex
	state State
}

// NewMachine creates a machine, resuming Pending when a record already exists
func NewMachine(profileDir string, installers map[string]Installer, logger *utils.Logger) *Machine {
	m := &Machine{
		profileDir: profileDir,
		installers: installers,
		logger:     logger,
		state:      StateNone,
	}
	if !Playable(profileDir) {
		m.state = StatePending
	}
	return m
}

// State returns the in-memory lifecycle position
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the persisted record, or nil. It has no side effects.
func (m *Machine) Pending() (*Record, error) {
	return ReadRecord(m.profileDir)
}

// Require records that rec must be installed before the profile is playable.
// It returns false without writing anything when the loader is already present.
func (m *Machine) Require(rec *Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if inst, ok := m.installers[rec.LoaderType]; ok && inst.Installed(rec) {
		m.logger.Info("Loader %s already installed", rec.VersionString)
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Transition(m.state, EventRequire)
	if err != nil {
		return false, err
	}

	out := *rec
	if existing, err := ReadRecord(m.profileDir); err == nil && existing != nil &&
		existing.LoaderType == rec.LoaderType && existing.VersionString == rec.VersionString {
		out.Attempts = existing.Attempts
		out.LastError = existing.LastError
	}
	out.UpdatedAt = time.Now().UTC()
	if err := WriteRecord(m.profileDir, &out); err != nil {
		return false, err
	}

	m.state = next
	m.logger.Info("⏳ Loader %s pending for %s", rec.VersionString, m.profileDir)
	return true, nil
}

// Trigger installs the pending loader. Success removes the record; failure
// keeps it with the attempt counted so the install can be retried.
func (m *Machine) Trigger(ctx context.Context) error {
	m.mu.Lock()
	rec, err := ReadRecord(m.profileDir)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if rec == nil {
		m.mu.Unlock()
		return fmt.Errorf("no pending loader installation in %s", m.profileDir)
	}
	if m.state == StateNone || m.state == StateDone {
		// record written by another process
		m.state = StatePending
	}
	next, err := Transition(m.state, EventTrigger)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = next
	m.mu.Unlock()

	m.logger.Info("🔧 Installing %s loader %s", rec.LoaderType, rec.VersionString)

	var installErr error
	if inst, ok := m.installers[rec.LoaderType]; ok {
		installErr = inst.Install(ctx, rec)
	} else {
		installErr = fmt.Errorf("no installer registered for loader type %q", rec.LoaderType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if installErr != nil {
		rec.Attempts++
		rec.LastError = installErr.Error()
		rec.UpdatedAt = time.Now().UTC()
		if err := WriteRecord(m.profileDir, rec); err != nil {
			m.logger.Error("Failed to update loader record: %v", err)
		}
		m.state, _ = Transition(m.state, EventFail)
		m.logger.Error("❌ Loader %s failed (attempt %d): %v", rec.VersionString, rec.Attempts, installErr)
		return fmt.Errorf("install %s: %w", rec.VersionString, installErr)
	}

	if err := RemoveRecord(m.profileDir); err != nil {
		m.state, _ = Transition(m.state, EventFail)
		return fmt.Errorf("loader installed but record could not be removed: %w", err)
	}
	m.state, _ = Transition(m.state, EventSucceed)
	m.logger.Info("✅ Loader %s installed", rec.VersionString)
	return nil
}
