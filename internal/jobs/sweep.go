package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/service"
)

// SweepJob periodically marks idle sessions as timed out. The sweep is a
// safety net: the timeout is also enforced lazily on session lookup, so a
// missed tick never changes observable behavior.
type SweepJob struct {
	sessions *service.SessionService
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(sessions *service.SessionService, interval time.Duration) *SweepJob {
	return &SweepJob{
		sessions: sessions,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("session sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.sessions.ExpireSweep(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep idle sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("marked idle sessions timed out")
	}
}
