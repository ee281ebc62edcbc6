package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type ServiceStatus string

const (
	ServiceRunning  ServiceStatus = "running"
	ServiceStopped  ServiceStatus = "stopped"
	ServiceStarting ServiceStatus = "starting"
	ServiceStopping ServiceStatus = "stopping"
	ServiceError    ServiceStatus = "error"
)

type Service struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status ServiceStatus `json:"status"`
	Port   int           `json:"port"`
	PID    int           `json:"pid,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// StatusObserver is told about every status change of a service.
type StatusObserver func(id string, from, to ServiceStatus)

func DefaultServices() []Service {
	return []Service{
		{ID: "nginx", Name: "Nginx", Status: ServiceStopped, Port: 80},
		{ID: "mysql", Name: "MySQL", Status: ServiceStopped, Port: 3306},
		{ID: "postgresql", Name: "PostgreSQL", Status: ServiceStopped, Port: 5432},
		{ID: "redis", Name: "Redis", Status: ServiceStopped, Port: 6379},
		{ID: "mailpit", Name: "Mailpit", Status: ServiceStopped, Port: 8025},
		{ID: "minio", Name: "MinIO", Status: ServiceStopped, Port: 9000},
		{ID: "dnsmasq", Name: "DNSMasq", Status: ServiceStopped, Port: 53},
	}
}

// Services tracks host services. There is no backend command for them yet,
// so transitions happen locally: stopped -> starting -> running and
// running -> stopping -> stopped.
type Services struct {
	opState

	mu        sync.RWMutex
	services  []Service
	observers []StatusObserver
}

func NewServices(initial []Service) *Services {
	if initial == nil {
		initial = DefaultServices()
	}
	return &Services{services: append([]Service(nil), initial...)}
}

// Observe registers fn for status changes. Observers run synchronously, in
// registration order, without the store lock held.
func (s *Services) Observe(fn StatusObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Services) Services() []Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Service(nil), s.services...)
}

func (s *Services) Get(id string) (Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.ID == id {
			return svc, true
		}
	}
	return Service{}, false
}

func (s *Services) RunningCount() int { return s.count(ServiceRunning) }
func (s *Services) StoppedCount() int { return s.count(ServiceStopped) }

func (s *Services) count(status ServiceStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, svc := range s.services {
		if svc.Status == status {
			n++
		}
	}
	return n
}

// UpdateStatus sets the status of id. Unknown ids are ignored.
func (s *Services) UpdateStatus(id string, status ServiceStatus) {
	s.mu.Lock()
	var from ServiceStatus
	found := false
	for i := range s.services {
		if s.services[i].ID == id {
			from = s.services[i].Status
			s.services[i].Status = status
			found = true
			break
		}
	}
	observers := append([]StatusObserver(nil), s.observers...)
	s.mu.Unlock()

	if !found || from == status {
		return
	}
	log.Debug().Str("service", id).Str("from", string(from)).Str("to", string(status)).Msg("service status")
	for _, fn := range observers {
		fn(id, from, status)
	}
}

func (s *Services) StartService(ctx context.Context, id string) error {
	return s.transition(ctx, id, ServiceStarting, ServiceRunning)
}

func (s *Services) StopService(ctx context.Context, id string) error {
	return s.transition(ctx, id, ServiceStopping, ServiceStopped)
}

// RestartService stops then starts id.
func (s *Services) RestartService(ctx context.Context, id string) error {
	if err := s.StopService(ctx, id); err != nil {
		return err
	}
	return s.StartService(ctx, id)
}

func (s *Services) transition(ctx context.Context, id string, via, to ServiceStatus) error {
	if _, ok := s.Get(id); !ok {
		return s.fail(unknownService(id))
	}
	defer s.begin()()

	s.UpdateStatus(id, via)
	if err := ctx.Err(); err != nil {
		s.UpdateStatus(id, ServiceError)
		return s.fail(err)
	}
	s.UpdateStatus(id, to)
	return nil
}
