package store

import (
	"context"
	"sync"

	"github.com/go-go-golems/servermark/pkg/backend"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Sites operation flags.
const (
	FlagCreatingProject = "creating-project"
	FlagCloning         = "cloning"
	FlagSecuring        = "securing"
)

type SiteType string

const (
	SiteLaravel   SiteType = "laravel"
	SiteSymfony   SiteType = "symfony"
	SiteWordPress SiteType = "wordpress"
	SiteStatic    SiteType = "static"
	SiteProxy     SiteType = "proxy"
)

// LaravelInfo is the Laravel-specific part of a site. SchedulerEnabled and
// QueueRunning are the only fields ever patched locally.
type LaravelInfo struct {
	Detected         bool   `json:"detected"`
	Version          string `json:"version,omitempty"`
	Constraint       string `json:"constraint,omitempty"`
	PHPVersion       string `json:"php_version,omitempty"`
	SchedulerEnabled bool   `json:"scheduler_enabled"`
	QueueRunning     bool   `json:"queue_running"`
}

type Site struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	Domain      string       `json:"domain"`
	PHPVersion  string       `json:"php_version"`
	Secured     bool         `json:"secured"`
	SiteType    SiteType     `json:"site_type"`
	ProxyTarget string       `json:"proxy_target,omitempty"`
	Laravel     *LaravelInfo `json:"laravel,omitempty"`
}

func (s Site) IsLaravel() bool {
	return s.SiteType == SiteLaravel || (s.Laravel != nil && s.Laravel.Detected)
}

func (s Site) clone() Site {
	c := s
	if s.Laravel != nil {
		l := *s.Laravel
		c.Laravel = &l
	}
	return c
}

type SitesConfig struct {
	TLD       string `json:"tld"`
	SitesPath string `json:"sites_path"`
}

type FrameworkTemplate struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Versions       []string `json:"versions"`
	DefaultVersion string   `json:"default_version"`
	CreateCommand  string   `json:"create_command"`
}

type AddSiteRequest struct {
	Path       string `json:"path"`
	Name       string `json:"name,omitempty"`
	PHPVersion string `json:"php_version,omitempty"`
}

type CreateProjectRequest struct {
	Name       string `json:"name"`
	Framework  string `json:"framework"`
	Version    string `json:"version,omitempty"`
	PHPVersion string `json:"php_version,omitempty"`
	Path       string `json:"path,omitempty"`
}

type CloneRepositoryRequest struct {
	RepoURL    string `json:"repo_url"`
	Name       string `json:"name,omitempty"`
	PHPVersion string `json:"php_version,omitempty"`
}

type Sites struct {
	opState

	client backend.Invoker
	// statusConcurrency bounds RefreshLaravelStatus fan-out.
	statusConcurrency int

	mu         sync.RWMutex
	sites      []Site
	config     *SitesConfig
	frameworks []FrameworkTemplate
}

func NewSites(client backend.Invoker) *Sites {
	return &Sites{client: client, statusConcurrency: 4}
}

func (s *Sites) Sites() []Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]Site, 0, len(s.sites))
	for _, site := range s.sites {
		ret = append(ret, site.clone())
	}
	return ret
}

func (s *Sites) Site(id string) (Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.ID == id {
			return site.clone(), true
		}
	}
	return Site{}, false
}

func (s *Sites) SiteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites)
}

// ActiveSites are the sites served over TLS.
func (s *Sites) ActiveSites() []Site {
	return s.filter(func(site Site) bool { return site.Secured })
}

func (s *Sites) LaravelSites() []Site {
	return s.filter(Site.IsLaravel)
}

func (s *Sites) filter(keep func(Site) bool) []Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []Site
	for _, site := range s.sites {
		if keep(site) {
			ret = append(ret, site.clone())
		}
	}
	return ret
}

func (s *Sites) Config() (SitesConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return SitesConfig{}, false
	}
	return *s.config, true
}

func (s *Sites) Frameworks() []FrameworkTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FrameworkTemplate(nil), s.frameworks...)
}

// FetchSites replaces the site list. On failure the old list is kept.
func (s *Sites) FetchSites(ctx context.Context) {
	defer s.begin()()

	var list []Site
	if err := s.client.Invoke(ctx, CmdListSites, nil, &list); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("list sites failed")
		return
	}
	seen := map[string]bool{}
	sites := make([]Site, 0, len(list))
	for _, site := range list {
		if seen[site.ID] {
			continue
		}
		seen[site.ID] = true
		sites = append(sites, site)
	}

	s.mu.Lock()
	s.sites = sites
	s.mu.Unlock()
}

func (s *Sites) FetchConfig(ctx context.Context) {
	defer s.begin()()

	var cfg SitesConfig
	if err := s.client.Invoke(ctx, CmdGetSitesConfig, nil, &cfg); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("get sites config failed")
		return
	}
	s.mu.Lock()
	s.config = &cfg
	s.mu.Unlock()
}

func (s *Sites) FetchFrameworks(ctx context.Context) {
	defer s.begin()()

	var list []FrameworkTemplate
	if err := s.client.Invoke(ctx, CmdGetFrameworkTemplates, nil, &list); err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("get framework templates failed")
		return
	}
	s.mu.Lock()
	s.frameworks = list
	s.mu.Unlock()
}

// AddSite links an existing directory as a site and returns what the backend
// created.
func (s *Sites) AddSite(ctx context.Context, req AddSiteRequest) (Site, error) {
	return s.createSite(ctx, CmdAddSite, req)
}

func (s *Sites) CreateProject(ctx context.Context, req CreateProjectRequest) (Site, error) {
	return s.createSite(ctx, CmdCreateProject, req, FlagCreatingProject)
}

func (s *Sites) CloneRepository(ctx context.Context, req CloneRepositoryRequest) (Site, error) {
	return s.createSite(ctx, CmdCloneRepository, req, FlagCloning)
}

func (s *Sites) createSite(ctx context.Context, command string, args any, flags ...string) (Site, error) {
	defer s.begin(flags...)()

	var site Site
	if err := s.client.Invoke(ctx, command, args, &site); err != nil {
		return Site{}, s.fail(err)
	}
	log.Info().Str("site", site.Name).Str("command", command).Msg("site created")
	s.FetchSites(ctx)
	return site, nil
}

func (s *Sites) RemoveSite(ctx context.Context, id string) error {
	return s.mutate(ctx, CmdRemoveSite, map[string]any{"id": id})
}

func (s *Sites) UpdateSitePHP(ctx context.Context, id string, phpVersion string) error {
	return s.mutate(ctx, CmdUpdateSitePHP, map[string]any{"id": id, "php_version": phpVersion})
}

func (s *Sites) SecureSite(ctx context.Context, id string) error {
	return s.mutate(ctx, CmdSecureSite, map[string]any{"id": id}, FlagSecuring)
}

func (s *Sites) UnsecureSite(ctx context.Context, id string) error {
	return s.mutate(ctx, CmdUnsecureSite, map[string]any{"id": id}, FlagSecuring)
}

func (s *Sites) mutate(ctx context.Context, command string, args map[string]any, flags ...string) error {
	defer s.begin(flags...)()

	if err := s.client.Invoke(ctx, command, args, nil); err != nil {
		return s.fail(err)
	}
	s.FetchSites(ctx)
	return nil
}

// laravelCommand runs a scheduler/queue command for the cached site id and,
// on success, lets patch update the site's Laravel record in place. No
// re-fetch happens.
func (s *Sites) laravelCommand(ctx context.Context, id string, command string, args func(Site) map[string]any, patch func(*LaravelInfo)) error {
	site, err := s.laravelSite(id)
	if err != nil {
		return err
	}

	defer s.begin()()

	if err := s.client.Invoke(ctx, command, args(site), nil); err != nil {
		return s.fail(err)
	}
	s.patchLaravel(id, patch)
	return nil
}

// laravelSite looks up a cached site that scheduler and queue commands may
// act on.
func (s *Sites) laravelSite(id string) (Site, error) {
	site, ok := s.Site(id)
	if !ok {
		return Site{}, s.fail(unknownSite(id))
	}
	if !site.IsLaravel() {
		return Site{}, s.fail(notLaravel(id))
	}
	return site, nil
}

func (s *Sites) patchLaravel(id string, patch func(*LaravelInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sites {
		if s.sites[i].ID != id {
			continue
		}
		if s.sites[i].Laravel == nil {
			s.sites[i].Laravel = &LaravelInfo{Detected: true}
		}
		patch(s.sites[i].Laravel)
		return
	}
}

func pathArgs(site Site) map[string]any {
	return map[string]any{"site_path": site.Path}
}

func (s *Sites) EnableScheduler(ctx context.Context, id string) error {
	return s.laravelCommand(ctx, id, CmdEnableScheduler,
		func(site Site) map[string]any {
			return map[string]any{"site_path": site.Path, "php_version": site.PHPVersion}
		},
		func(l *LaravelInfo) { l.SchedulerEnabled = true })
}

func (s *Sites) DisableScheduler(ctx context.Context, id string) error {
	return s.laravelCommand(ctx, id, CmdDisableScheduler, pathArgs,
		func(l *LaravelInfo) { l.SchedulerEnabled = false })
}

// ToggleScheduler flips the scheduler based on the cached flag, not on a
// fresh status read. Call RefreshLaravelStatus first if the cache may be
// stale.
func (s *Sites) ToggleScheduler(ctx context.Context, id string) error {
	site, err := s.laravelSite(id)
	if err != nil {
		return err
	}
	if site.Laravel != nil && site.Laravel.SchedulerEnabled {
		return s.DisableScheduler(ctx, id)
	}
	return s.EnableScheduler(ctx, id)
}

func (s *Sites) StartQueueWorker(ctx context.Context, id string) error {
	return s.laravelCommand(ctx, id, CmdStartQueueWorker,
		func(site Site) map[string]any {
			return map[string]any{"site_path": site.Path, "php_version": site.PHPVersion, "site_name": site.Name}
		},
		func(l *LaravelInfo) { l.QueueRunning = true })
}

func (s *Sites) StopQueueWorker(ctx context.Context, id string) error {
	return s.laravelCommand(ctx, id, CmdStopQueueWorker, pathArgs,
		func(l *LaravelInfo) { l.QueueRunning = false })
}

// ToggleQueueWorker has the same cached-flag semantics as ToggleScheduler.
func (s *Sites) ToggleQueueWorker(ctx context.Context, id string) error {
	site, err := s.laravelSite(id)
	if err != nil {
		return err
	}
	if site.Laravel != nil && site.Laravel.QueueRunning {
		return s.StopQueueWorker(ctx, id)
	}
	return s.StartQueueWorker(ctx, id)
}

type laravelStatus struct {
	id        string
	scheduler bool
	queue     bool
}

// RefreshLaravelStatus reads scheduler and queue status for every Laravel
// site concurrently and patches the results in. Failures are recorded, not
// returned; sites whose status could not be read keep their cached flags.
func (s *Sites) RefreshLaravelStatus(ctx context.Context) {
	sites := s.LaravelSites()
	if len(sites) == 0 {
		return
	}
	defer s.begin()()

	results := make([]*laravelStatus, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.statusConcurrency)
	for i, site := range sites {
		g.Go(func() error {
			st := &laravelStatus{id: site.ID}
			args := pathArgs(site)
			if err := s.client.Invoke(gctx, CmdGetSchedulerStatus, args, &st.scheduler); err != nil {
				return errors.Wrapf(err, "scheduler status of %s", site.Name)
			}
			if err := s.client.Invoke(gctx, CmdGetQueueStatus, args, &st.queue); err != nil {
				return errors.Wrapf(err, "queue status of %s", site.Name)
			}
			results[i] = st
			return nil
		})
	}
	err := g.Wait()

	for _, st := range results {
		if st == nil {
			continue
		}
		s.patchLaravel(st.id, func(l *LaravelInfo) {
			l.SchedulerEnabled = st.scheduler
			l.QueueRunning = st.queue
		})
	}
	if err != nil {
		_ = s.fail(err)
		log.Warn().Err(err).Msg("laravel status refresh failed")
	}
}

func (s *Sites) logArgs(id string, lines int) (map[string]any, error) {
	site, err := s.laravelSite(id)
	if err != nil {
		return nil, err
	}
	args := pathArgs(site)
	if lines > 0 {
		args["lines"] = lines
	}
	return args, nil
}

func (s *Sites) readLogs(ctx context.Context, command string, id string, lines int) (string, error) {
	args, err := s.logArgs(id, lines)
	if err != nil {
		return "", err
	}
	defer s.begin()()

	var out string
	if err := s.client.Invoke(ctx, command, args, &out); err != nil {
		return "", s.fail(err)
	}
	return out, nil
}

func (s *Sites) SchedulerLogs(ctx context.Context, id string, lines int) (string, error) {
	return s.readLogs(ctx, CmdGetSchedulerLogs, id, lines)
}

func (s *Sites) QueueLogs(ctx context.Context, id string, lines int) (string, error) {
	return s.readLogs(ctx, CmdGetQueueLogs, id, lines)
}

func (s *Sites) ClearSchedulerLogs(ctx context.Context, id string) error {
	args, err := s.logArgs(id, 0)
	if err != nil {
		return err
	}
	defer s.begin()()

	if err := s.client.Invoke(ctx, CmdClearSchedulerLogs, args, nil); err != nil {
		return s.fail(err)
	}
	return nil
}
