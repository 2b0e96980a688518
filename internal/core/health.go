package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every check concurrently under a shared deadline and
// answers 503 if any of them fails, panics or does not finish in time.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthChecks) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Each check owns one slot; a nil channel read means it never reported.
	results := make([]chan error, len(s.HealthChecks))
	var wg sync.WaitGroup
	for i, check := range s.HealthChecks {
		results[i] = make(chan error, 1)
		wg.Add(1)
		go func(p HealthCheck, out chan<- error) {
			defer wg.Done()
			defer func() {
				if rvr := recover(); rvr != nil {
					out <- fmt.Errorf("check panicked: %v", rvr)
				}
			}()
			out <- p.Check(ctx)
		}(check, results[i])
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthChecks))
	status := http.StatusOK
	for i, check := range s.HealthChecks {
		var c componentStatus
		select {
		case err := <-results[i]:
			if err != nil {
				c = componentStatus{Status: "unhealthy", Message: err.Error()}
			} else {
				c = componentStatus{Status: "healthy"}
			}
		default:
			c = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		}
		if c.Status != "healthy" {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
		}
		resp.Components[check.Name()] = c
	}

	JSON(w, r, status, resp)
}

// PingCheck adapts any Ping-capable store (pgxpool.Pool, the primary store)
// into a HealthCheck.
type PingCheck struct {
	Label  string
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func (p PingCheck) Name() string { return p.Label }

func (p PingCheck) Check(ctx context.Context) error {
	if p.Pinger == nil {
		return fmt.Errorf("%s is not configured", p.Label)
	}
	return p.Pinger.Ping(ctx)
}
