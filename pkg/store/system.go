package store

import (
	"context"
	"sync"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/rs/zerolog/log"
)

type SystemInfo struct {
	Distro         string `json:"distro"`
	DistroVersion  string `json:"distro_version"`
	PackageManager string `json:"package_manager"`
	Kernel         string `json:"kernel"`
	Hostname       string `json:"hostname"`
}

// PackageManagerSource tells the PHP store which package manager to ask the
// backend to use.
type PackageManagerSource interface {
	PackageManager() string
}

type System struct {
	opState

	client          backend.Invoker
	fallbackManager string

	mu   sync.RWMutex
	info *SystemInfo
}

var _ PackageManagerSource = (*System)(nil)

func NewSystem(client backend.Invoker, fallbackManager string) *System {
	if fallbackManager == "" {
		fallbackManager = "apt"
	}
	return &System{client: client, fallbackManager: fallbackManager}
}

// DetectSystem reads distro information from the backend. On failure the
// info is dropped and the error slot is set; nothing is returned.
func (s *System) DetectSystem(ctx context.Context) {
	defer s.begin()()

	var info SystemInfo
	err := s.client.Invoke(ctx, CmdDetectSystem, nil, &info)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("system detection failed")
		s.info = nil
		return
	}
	s.info = &info
}

func (s *System) Info() (SystemInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return SystemInfo{}, false
	}
	return *s.info, true
}

// PackageManager is the detected package manager, or the configured fallback
// when detection has not run, failed or found nothing usable.
func (s *System) PackageManager() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil || s.info.PackageManager == "" || s.info.PackageManager == "unknown" {
		return s.fallbackManager
	}
	return s.info.PackageManager
}
