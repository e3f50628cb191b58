package application

import (
	"context"
	"errors"
	"log"
	"time"

	commands "purifier-cloud/internal/commands/domain"
	"purifier-cloud/internal/observability/metrics"
	"purifier-cloud/internal/scheduling"
)

const retryExhaustedReason = "max retries reached"

// RetrySupervisor arms a deferred re-check for every sent command. On
// firing it re-reads the ledger and either republishes under the same
// tracking id, marks the command failed after the attempt budget, or does
// nothing when the record already reached a terminal state. The fixed
// delay is deliberate: devices answer within seconds when online, and a
// growing backoff only delays detection of offline ones.
type RetrySupervisor struct {
	ledger      Ledger
	dispatcher  *Dispatcher
	timers      *scheduling.TimerService
	delay       time.Duration
	maxAttempts int
	logger      *log.Logger
}

// NewRetrySupervisor constructs a supervisor.
func NewRetrySupervisor(ledger Ledger, dispatcher *Dispatcher, timers *scheduling.TimerService, cfg EngineConfig, logger *log.Logger) (*RetrySupervisor, error) {
	if ledger == nil {
		return nil, errors.New("retry supervisor: nil ledger")
	}
	if dispatcher == nil {
		return nil, errors.New("retry supervisor: nil dispatcher")
	}
	if timers == nil {
		return nil, errors.New("retry supervisor: nil timer service")
	}
	if logger == nil {
		logger = log.Default()
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = commands.DefaultMaxAttempts
	}
	return &RetrySupervisor{
		ledger:      ledger,
		dispatcher:  dispatcher,
		timers:      timers,
		delay:       delay,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// MaxAttempts returns the configured attempt budget.
func (s *RetrySupervisor) MaxAttempts() int {
	return s.maxAttempts
}

// Track arms the deferred re-check for a command id. Re-arming an already
// tracked id replaces the pending check.
func (s *RetrySupervisor) Track(commandID string) {
	if s == nil || commandID == "" {
		return
	}
	s.timers.Arm(retryKey(commandID), s.delay, func() {
		s.check(context.Background(), commandID)
	})
}

// CancelTracking stops the pending re-check for a command id. A check that
// already began firing is harmless: it re-reads the ledger and finds a
// terminal record.
func (s *RetrySupervisor) CancelTracking(commandID string) {
	if s == nil {
		return
	}
	s.timers.Cancel(retryKey(commandID))
}

func (s *RetrySupervisor) check(ctx context.Context, commandID string) {
	cmd, err := s.ledger.GetByID(ctx, commandID)
	if err != nil {
		if !errors.Is(err, commands.ErrNotFound) {
			s.logger.Printf("retry supervisor: read %s: %v", commandID, err)
		}
		return
	}
	if commands.Terminal(cmd.Status) {
		return
	}
	if cmd.Attempt < cmd.MaxAttempts {
		s.logger.Printf("retry supervisor: republishing %s, attempt %d", commandID, cmd.Attempt+1)
		metrics.IncCommandRetry()
		// Republish marks sent again (attempt increments) and re-arms the
		// next check through the dispatcher's publish step.
		s.dispatcher.Republish(ctx, cmd)
		return
	}
	applied, err := s.ledger.MarkFailed(ctx, commandID, retryExhaustedReason)
	if err != nil {
		s.logger.Printf("retry supervisor: mark failed %s: %v", commandID, err)
		return
	}
	if applied {
		metrics.IncCommandResult(commands.StatusFailed)
		s.logger.Printf("retry supervisor: command %s failed after %d attempts", commandID, cmd.Attempt)
	}
}

// RecoverIncomplete resumes supervision of commands left pending or sent
// by a previous process: timers do not survive a restart, the ledger does.
// Records with attempts remaining get a fresh re-check; exhausted ones are
// failed immediately.
func (s *RetrySupervisor) RecoverIncomplete(ctx context.Context) error {
	if s == nil {
		return errors.New("retry supervisor: nil")
	}
	incomplete, err := s.ledger.ListIncomplete(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	recovered := 0
	for i := range incomplete {
		cmd := &incomplete[i]
		if cmd.Attempt < cmd.MaxAttempts {
			s.Track(cmd.CommandID)
			recovered++
			continue
		}
		if applied, err := s.ledger.MarkFailed(ctx, cmd.CommandID, retryExhaustedReason); err != nil {
			s.logger.Printf("retry supervisor: recover mark failed %s: %v", cmd.CommandID, err)
		} else if applied {
			metrics.IncCommandResult(commands.StatusFailed)
		}
	}
	if recovered > 0 {
		s.logger.Printf("retry supervisor: recovered %d in-flight commands", recovered)
	}
	return nil
}

func retryKey(commandID string) string {
	return "retry." + commandID
}
