package rewire

import (
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs is the scheduled job collaborator. It is started at boot and replaced
// by an empty scheduler on restart, so jobs registered by the previous epoch
// stop firing.
type Jobs struct {
	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	logger  *zap.Logger
}

// NewJobs creates a stopped scheduler
func NewJobs(logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{cron: cron.New(), logger: logger.Named("jobs")}
}

// Initialize starts the scheduler once per epoch
func (j *Jobs) Initialize() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.cron.Start()
	j.started = true
}

// Schedule registers fn under a cron spec such as "@every 1m"
func (j *Jobs) Schedule(spec string, fn func()) (cron.EntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				j.logger.Error("Scheduled job panicked", zap.String("spec", spec), zap.Any("panic", r))
			}
		}()
		fn()
	})
}

// Len returns the number of scheduled jobs
func (j *Jobs) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cron.Entries())
}

// Started reports whether the scheduler is running
func (j *Jobs) Started() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

// Reset stops the scheduler without waiting for running jobs and installs an
// empty one.
func (j *Jobs) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		j.cron.Stop()
	}
	j.cron = cron.New()
	j.started = false
}
