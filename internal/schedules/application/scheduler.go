package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	commandsapp "purifier-cloud/internal/commands/application"
	commands "purifier-cloud/internal/commands/domain"
	"purifier-cloud/internal/observability/metrics"
	schedules "purifier-cloud/internal/schedules/domain"
	"purifier-cloud/internal/scheduling"
)

// Store is the schedule persistence surface the window scheduler needs.
type Store interface {
	Create(ctx context.Context, sched *schedules.Schedule) error
	GetByID(ctx context.Context, id string) (*schedules.Schedule, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, deviceID string) ([]schedules.Schedule, error)
	ListActive(ctx context.Context) ([]schedules.Schedule, error)
}

// CommandDispatcher issues tracked device commands.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req commandsapp.DispatchRequest) (string, error)
}

// WindowScheduler owns the enter/exit window jobs of every schedule. A
// schedule is armed on creation, disarmed on deletion and re-armed from
// the store on process start; the timer handles re-check the store before
// firing, so a cancelled job that slips through fires as a no-op.
type WindowScheduler struct {
	store      Store
	dispatcher CommandDispatcher
	timers     *scheduling.TimerService
	logger     *log.Logger
	now        func() time.Time

	mu    sync.Mutex
	armed map[string]struct{}
}

// NewWindowScheduler constructs a scheduler.
func NewWindowScheduler(store Store, dispatcher CommandDispatcher, timers *scheduling.TimerService, logger *log.Logger) (*WindowScheduler, error) {
	if store == nil {
		return nil, errors.New("window scheduler: nil store")
	}
	if dispatcher == nil {
		return nil, errors.New("window scheduler: nil dispatcher")
	}
	if timers == nil {
		return nil, errors.New("window scheduler: nil timer service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WindowScheduler{
		store:      store,
		dispatcher: dispatcher,
		timers:     timers,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		armed:      make(map[string]struct{}),
	}, nil
}

// Create validates, persists and arms a new schedule.
func (s *WindowScheduler) Create(ctx context.Context, deviceID, day, startTime, endTime string, fanSpeed int) (*schedules.Schedule, error) {
	sched, err := schedules.New(deviceID, day, startTime, endTime, fanSpeed, s.now())
	if err != nil {
		return nil, err
	}
	sched.ScheduleID = uuid.NewString()
	if err := s.store.Create(ctx, sched); err != nil {
		return nil, err
	}
	s.Arm(sched)
	return sched, nil
}

// Delete removes a schedule and disarms its jobs.
func (s *WindowScheduler) Delete(ctx context.Context, scheduleID string) error {
	if err := s.store.Delete(ctx, scheduleID); err != nil {
		return err
	}
	s.Disarm(scheduleID)
	return nil
}

// List returns schedules, optionally filtered by device.
func (s *WindowScheduler) List(ctx context.Context, deviceID string) ([]schedules.Schedule, error) {
	return s.store.List(ctx, deviceID)
}

// Arm schedules both window fires. When start equals end the two fires
// land on the same instant; their relative order is undefined.
func (s *WindowScheduler) Arm(sched *schedules.Schedule) {
	if s == nil || sched == nil || sched.ScheduleID == "" {
		return
	}
	s.armFire(sched.ScheduleID, enterJob)
	s.armFire(sched.ScheduleID, exitJob)

	s.mu.Lock()
	s.armed[sched.ScheduleID] = struct{}{}
	metrics.SetSchedulesArmed(len(s.armed))
	s.mu.Unlock()
	s.logger.Printf("window scheduler: armed %s (%s %s-%s)", sched.ScheduleID, sched.Day, sched.StartTime, sched.EndTime)
}

// Disarm cancels both window jobs. Idempotent.
func (s *WindowScheduler) Disarm(scheduleID string) {
	if s == nil || scheduleID == "" {
		return
	}
	s.timers.Cancel(jobKey(scheduleID, enterJob))
	s.timers.Cancel(jobKey(scheduleID, exitJob))

	s.mu.Lock()
	if _, ok := s.armed[scheduleID]; ok {
		delete(s.armed, scheduleID)
		metrics.SetSchedulesArmed(len(s.armed))
		s.logger.Printf("window scheduler: disarmed %s", scheduleID)
	}
	s.mu.Unlock()
}

// Rearm arms every active schedule from the store. Called once at boot;
// the schedule definition is the only persisted job state.
func (s *WindowScheduler) Rearm(ctx context.Context) error {
	if s == nil {
		return errors.New("window scheduler: nil")
	}
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for i := range active {
		s.Arm(&active[i])
	}
	s.logger.Printf("window scheduler: re-armed %d schedules", len(active))
	return nil
}

const (
	enterJob = "enter"
	exitJob  = "exit"
)

func (s *WindowScheduler) armFire(scheduleID, job string) {
	sched, err := s.store.GetByID(context.Background(), scheduleID)
	if err != nil {
		if !errors.Is(err, schedules.ErrNotFound) {
			s.logger.Printf("window scheduler: read %s: %v", scheduleID, err)
		}
		return
	}
	clock := sched.StartTime
	if job == exitJob {
		clock = sched.EndTime
	}
	hour, minute, err := schedules.ParseClock(clock)
	if err != nil {
		s.logger.Printf("window scheduler: %s has invalid %s time: %v", scheduleID, job, err)
		return
	}

	now := s.now()
	fireAt := schedules.NextOccurrence(now, sched.Weekday(), hour, minute)
	s.timers.Arm(jobKey(scheduleID, job), fireAt.Sub(now), func() {
		s.fire(scheduleID, job)
	})
}

// fire runs one window job, then arms the next weekly occurrence. The
// schedule is re-read first: deletion between arming and firing makes
// this a no-op.
func (s *WindowScheduler) fire(scheduleID, job string) {
	ctx := context.Background()
	sched, err := s.store.GetByID(ctx, scheduleID)
	if err != nil {
		if !errors.Is(err, schedules.ErrNotFound) {
			s.logger.Printf("window scheduler: fire read %s: %v", scheduleID, err)
		}
		return
	}
	if !sched.Active {
		return
	}

	req := commandsapp.DispatchRequest{
		DeviceID:  sched.DeviceID,
		Kind:      commands.KindPowerOff,
		Origin:    commands.OriginScheduled,
		OriginRef: sched.ScheduleID,
	}
	if job == enterJob {
		req.Kind = commands.KindSetFanSpeed
		req.FanSpeed = sched.FanSpeed
	}
	commandID, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		s.logger.Printf("window scheduler: %s fire for %s: %v", job, scheduleID, err)
	} else {
		s.logger.Printf("window scheduler: %s fire for %s issued %s", job, scheduleID, commandID)
	}

	s.armFire(scheduleID, job)
}

func jobKey(scheduleID, job string) string {
	return "schedule." + scheduleID + "." + job
}
