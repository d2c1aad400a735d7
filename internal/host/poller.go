package host

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Poller runs the host's polling pass on a cron schedule.
// Overlapping runs are skipped.
type Poller struct {
	cron     *cron.Cron
	schedule string
	logger   *log.Logger
}

// NewPoller parses schedule (standard five-field spec or a descriptor such as "@every 30s").
func NewPoller(schedule string, job func(), logger *log.Logger) (*Poller, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	if _, err := c.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}
	return &Poller{cron: c, schedule: schedule, logger: logger}, nil
}

// Start begins running the schedule in its own goroutine.
func (p *Poller) Start() {
	p.logger.Printf("HOST: poller started (%s)", p.schedule)
	p.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}
