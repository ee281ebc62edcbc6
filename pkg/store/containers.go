package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/go-go-golems/servermark/pkg/catalog"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ContainerRunning    = "running"
	ContainerStopped    = "stopped"
	ContainerPaused     = "paused"
	ContainerRestarting = "restarting"
	ContainerCreated    = "created"
)

type RuntimeInfo struct {
	Runtime    string `json:"runtime"`
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	Available  bool   `json:"available"`
}

func unavailableRuntime() RuntimeInfo {
	return RuntimeInfo{Runtime: "none"}
}

type Container struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Image   string                `json:"image"`
	Status  string                `json:"status"`
	Ports   []catalog.PortMapping `json:"ports"`
	Created string                `json:"created"`
}

// CreatedAt parses the runtime's free-form creation timestamp.
func (c Container) CreatedAt() (time.Time, error) {
	if c.Created == "" {
		return time.Time{}, errors.Errorf("container %s has no creation time", c.ID)
	}
	// docker appends the zone name after the offset ("+0000 UTC")
	s := strings.TrimSuffix(strings.TrimSpace(c.Created), " UTC")
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse creation time of %s", c.ID)
	}
	return t, nil
}

// ServiceID is the catalog id this container was created from, if its name
// carries the prefix.
func (c Container) ServiceID(prefix string) (string, bool) {
	p := prefix + "-"
	if !strings.HasPrefix(c.Name, p) {
		return "", false
	}
	return strings.TrimPrefix(c.Name, p), true
}

type CreateContainerParams struct {
	Image       string                  `json:"image"`
	Name        string                  `json:"name"`
	Ports       []catalog.PortMapping   `json:"ports"`
	Environment map[string]string       `json:"environment"`
	Volumes     []catalog.VolumeMapping `json:"volumes,omitempty"`
}

// Containers is the store for runtime containers created from the catalog.
type Containers struct {
	opState

	client backend.Invoker
	prefix string

	mu         sync.RWMutex
	runtime    RuntimeInfo
	containers []Container
}

func NewContainers(client backend.Invoker, prefix string) *Containers {
	if prefix == "" {
		prefix = "servermark"
	}
	return &Containers{client: client, prefix: prefix, runtime: unavailableRuntime()}
}

func (s *Containers) Prefix() string { return s.prefix }

func (s *Containers) Runtime() RuntimeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtime
}

func (s *Containers) IsAvailable() bool {
	return s.Runtime().Available
}

// Containers returns a copy of the cached collection.
func (s *Containers) Containers() []Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Container(nil), s.containers...)
}

func (s *Containers) Get(id string) (Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.containers {
		if c.ID == id || c.Name == id {
			return c, nil
		}
	}
	return Container{}, unknownContainer(id)
}

func (s *Containers) Running() []Container { return s.withStatus(ContainerRunning) }
func (s *Containers) Stopped() []Container { return s.withStatus(ContainerStopped) }

func (s *Containers) withStatus(status string) []Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []Container
	for _, c := range s.containers {
		if c.Status == status {
			ret = append(ret, c)
		}
	}
	return ret
}

func (s *Containers) Templates() []catalog.Template { return catalog.All() }

func (s *Containers) TemplatesByCategory() map[catalog.Category][]catalog.Template {
	return catalog.ByCategory()
}

func (s *Containers) Template(serviceID string) (catalog.Template, bool) {
	return catalog.Lookup(serviceID)
}

// DetectRuntime asks the backend which container runtime is usable. Failure
// is not returned: the runtime is marked unavailable instead.
func (s *Containers) DetectRuntime(ctx context.Context) {
	defer s.begin()()

	var info RuntimeInfo
	if err := s.client.Invoke(ctx, CmdDetectContainerRuntime, nil, &info); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("container runtime unavailable")
		info = unavailableRuntime()
	}

	s.mu.Lock()
	s.runtime = info
	s.mu.Unlock()
}

// ListContainers re-reads the container collection. It does nothing while no
// runtime is available. On failure the previous collection is kept.
func (s *Containers) ListContainers(ctx context.Context) {
	if !s.IsAvailable() {
		return
	}
	defer s.begin()()

	var list []Container
	if err := s.client.Invoke(ctx, CmdListContainers, nil, &list); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("list containers failed")
		return
	}

	s.mu.Lock()
	s.containers = dedupeContainers(list)
	s.mu.Unlock()
}

// CreateContainer creates a container for the catalog service serviceID.
// portOverrides maps container port to host port; ports without an override
// keep the template's host port. An empty tag selects the default tag.
func (s *Containers) CreateContainer(ctx context.Context, serviceID string, tag string, portOverrides map[int]int) error {
	tpl, ok := catalog.Lookup(serviceID)
	if !ok {
		return s.fail(unknownService(serviceID))
	}

	defer s.begin("creating")()

	params := s.createParams(tpl, tag, portOverrides)
	log.Info().Str("service", serviceID).Str("image", params.Image).Str("name", params.Name).Msg("creating container")
	if err := s.client.Invoke(ctx, CmdCreateContainer, map[string]any{"params": params}, nil); err != nil {
		return s.fail(errors.Wrapf(err, "create %s", serviceID))
	}
	s.ListContainers(ctx)
	return nil
}

func (s *Containers) createParams(tpl catalog.Template, tag string, portOverrides map[int]int) CreateContainerParams {
	ports := make([]catalog.PortMapping, 0, len(tpl.Ports))
	for _, p := range tpl.Ports {
		if host, ok := portOverrides[p.Container]; ok && host > 0 {
			p.Host = host
		}
		ports = append(ports, p)
	}

	var volumes []catalog.VolumeMapping
	for _, v := range tpl.Volumes {
		volumes = append(volumes, catalog.VolumeMapping{
			Name:        catalog.VolumeName(s.prefix, tpl.ID, v.Name),
			Container:   v.Container,
			Description: v.Description,
		})
	}

	return CreateContainerParams{
		Image:       tpl.ImageRef(tag),
		Name:        catalog.ContainerName(s.prefix, tpl.ID),
		Ports:       ports,
		Environment: tpl.Environment,
		Volumes:     volumes,
	}
}

func (s *Containers) StartContainer(ctx context.Context, id string) error {
	return s.mutate(ctx, CmdStartContainer, map[string]any{"id": id})
}

func (s *Containers) StopContainer(ctx context.Context, id string) error {
	return s.mutate(ctx, CmdStopContainer, map[string]any{"id": id})
}

func (s *Containers) RemoveContainer(ctx context.Context, id string, force bool) error {
	return s.mutate(ctx, CmdRemoveContainer, map[string]any{"id": id, "force": force})
}

// RestartContainer stops then starts id. If the start fails the container is
// left stopped.
func (s *Containers) RestartContainer(ctx context.Context, id string) error {
	if err := s.StopContainer(ctx, id); err != nil {
		return err
	}
	return s.StartContainer(ctx, id)
}

func (s *Containers) mutate(ctx context.Context, command string, args map[string]any) error {
	defer s.begin()()

	log.Debug().Str("command", command).Interface("args", args).Msg("container action")
	if err := s.client.Invoke(ctx, command, args, nil); err != nil {
		return s.fail(err)
	}
	s.ListContainers(ctx)
	return nil
}

// ContainerLogs returns the last lines of output of id. lines <= 0 lets the
// backend pick.
func (s *Containers) ContainerLogs(ctx context.Context, id string, lines int) (string, error) {
	defer s.begin()()

	args := map[string]any{"id": id}
	if lines > 0 {
		args["lines"] = lines
	}
	var out string
	if err := s.client.Invoke(ctx, CmdGetContainerLogs, args, &out); err != nil {
		return "", s.fail(err)
	}
	return out, nil
}

func dedupeContainers(list []Container) []Container {
	seen := make(map[string]bool, len(list))
	ret := make([]Container, 0, len(list))
	for _, c := range list {
		if seen[c.ID] {
			log.Debug().Str("container", c.ID).Msg("dropping duplicate container id")
			continue
		}
		seen[c.ID] = true
		ret = append(ret, c)
	}
	return ret
}
