package rewire

import (
	"slices"
	"sync"
)

// ProfileTest marks a process running under a test fixture
const ProfileTest = "test"

// Env holds the process arguments and active profiles of the current epoch
type Env struct {
	mu       sync.RWMutex
	args     []string
	profiles []string
}

// NewEnv creates an empty environment
func NewEnv() *Env {
	return &Env{}
}

// SetArgs records the process arguments
func (e *Env) SetArgs(args []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.args = slices.Clone(args)
}

// Args returns the process arguments
func (e *Env) Args() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.args)
}

// SetProfiles replaces the active profiles
func (e *Env) SetProfiles(profiles ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles = slices.Clone(profiles)
}

// Profiles returns the active profiles
func (e *Env) Profiles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.profiles)
}

// HasProfile reports whether profile is active
func (e *Env) HasProfile(profile string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Contains(e.profiles, profile)
}

// IsTest reports whether the test profile is active
func (e *Env) IsTest() bool {
	return e.HasProfile(ProfileTest)
}

// Reset clears arguments and profiles
func (e *Env) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.args = nil
	e.profiles = nil
}
