package payment

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"eventsnow/internal/logger"
)

// Poller re-checks awaiting orders on a cron schedule, for payments whose
// webhook never arrived or that the organizer never confirmed.
type Poller struct {
	cron    *cron.Cron
	service *Service
	log     *logger.Logger
	baseCtx context.Context
}

func NewPoller(baseCtx context.Context, service *Service, log *logger.Logger) *Poller {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Poller{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		service: service,
		log:     log,
		baseCtx: baseCtx,
	}
}

// Schedule registers the sweep under a six-field cron spec.
func (p *Poller) Schedule(spec string) (cron.EntryID, error) {
	id, err := p.cron.AddFunc(spec, func() { p.RunOnce(p.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("schedule payment poll %q: %w", spec, err)
	}
	return id, nil
}

// RunOnce performs one sweep.
func (p *Poller) RunOnce(ctx context.Context) {
	paid, err := p.service.PollAwaiting(ctx)
	if err != nil {
		p.log.Error("PAYMENT", fmt.Sprintf("Payment poll failed: %v", err))
		return
	}
	if paid > 0 {
		p.log.Info("PAYMENT", fmt.Sprintf("Payment poll confirmed %d orders", paid))
	}
}

func (p *Poller) Start() {
	p.log.Info("PAYMENT", "Payment poller started")
	p.cron.Start()
}

// Stop waits for a running sweep to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.log.Info("PAYMENT", "Payment poller stopped")
}
