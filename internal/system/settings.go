// Package system applies process wide runtime settings and profiling for
// the CLI.
package system

import (
	"runtime"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings holds runtime settings applied once at startup
type Settings struct {
	MaxProcs    int
	GCPercent   int
	MaxThreads  int
	MemoryLimit int // in MB, 0 leaves the runtime default
	logger      *logrus.Entry
}

// DefaultSettings returns the runtime defaults
func DefaultSettings() *Settings {
	return &Settings{
		MaxProcs:   runtime.NumCPU(),
		GCPercent:  100,
		MaxThreads: 10000,
		logger:     logrus.WithField("component", "system_settings"),
	}
}

// Apply configures the Go runtime
func (s *Settings) Apply() {
	runtime.GOMAXPROCS(s.MaxProcs)
	debug.SetGCPercent(s.GCPercent)
	debug.SetMaxThreads(s.MaxThreads)
	if s.MemoryLimit > 0 {
		debug.SetMemoryLimit(int64(s.MemoryLimit) * 1024 * 1024)
	}

	s.logger.WithFields(logrus.Fields{
		"gomaxprocs":   s.MaxProcs,
		"gc_percent":   s.GCPercent,
		"max_threads":  s.MaxThreads,
		"memory_limit": s.MemoryLimit,
	}).Debug("Applied system settings")
}

// LoadFromViper overrides the defaults with the positive system.* keys of v
func LoadFromViper(v *viper.Viper) *Settings {
	s := DefaultSettings()
	if n := v.GetInt("system.maxprocs"); n > 0 {
		s.MaxProcs = n
	}
	if n := v.GetInt("system.gcpercent"); n > 0 {
		s.GCPercent = n
	}
	if n := v.GetInt("system.maxthreads"); n > 0 {
		s.MaxThreads = n
	}
	if n := v.GetInt("system.memorylimit"); n > 0 {
		s.MemoryLimit = n
	}
	return s
}
