package application

import (
	"context"
	"sync"
	"time"

	"filetrack/internal/ports"
)

const DefaultPollInterval = 5 * time.Second

// Poller periodically runs the overdue sweep and then the notification diff.
type Poller struct {
	files    *FileService
	center   *NotificationCenter
	interval time.Duration
	logger   ports.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(files *FileService, center *NotificationCenter, interval time.Duration, logger ports.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{files: files, center: center, interval: interval, logger: logger}
}

// Start refreshes once right away and then on every tick until ctx is
// cancelled or Stop is called. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done

	ticker := time.NewTicker(p.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		p.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.refresh(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) refresh(ctx context.Context) {
	if _, err := p.files.Reconcile(ctx); err != nil {
		if ctx.Err() == nil {
			p.logger.Error(ctx, "overdue sweep failed", "error", err)
		}
		return
	}
	if p.center == nil {
		return
	}
	if err := p.center.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error(ctx, "notification refresh failed", "error", err)
	}
}
