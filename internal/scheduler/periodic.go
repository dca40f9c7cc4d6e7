package scheduler

import (
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/AbdouB/memoryd/internal/models"
)

// periodicEntry pairs a PeriodicTask with the running goroutine that fires
// it, plus a counter used to keep fired-task ids unique.
type periodicEntry struct {
	task  *models.PeriodicTask
	stop  chan struct{}
	fired atomic.Int64
}

// RegisterPeriodic implements §4.1's `register_periodic(name, handler,
// interval, priority)`. When p.CronSpec is set, fire times follow a
// standard 5-field cron expression (robfig/cron); otherwise p.Interval
// drives a fixed-period ticker. Either way, next-fire on registration is
// `now + interval` (or the cron schedule's next slot).
func (s *Scheduler) RegisterPeriodic(p *models.PeriodicTask) {
	entry := &periodicEntry{task: p, stop: make(chan struct{})}

	s.mu.Lock()
	s.periodic = append(s.periodic, entry)
	s.mu.Unlock()

	go s.runPeriodic(entry)
}

func (s *Scheduler) runPeriodic(entry *periodicEntry) {
	p := entry.task

	if p.CronSpec != "" {
		parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)
		schedule, err := parser.Parse(p.CronSpec)
		if err != nil {
			return
		}
		for {
			next := schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-entry.stop:
				timer.Stop()
				return
			case <-s.stopCh:
				timer.Stop()
				return
			case <-timer.C:
				s.firePeriodic(entry)
			}
		}
	}

	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-entry.stop:
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.firePeriodic(entry)
		}
	}
}

func (s *Scheduler) firePeriodic(entry *periodicEntry) {
	p := entry.task
	n := entry.fired.Add(1)
	id := p.Name + "#" + time.Now().UTC().Format("20060102T150405") + "-" + itoa(n)
	t := models.NewTask(id, p.Name, p.Handler, p.Priority)
	s.Submit(t)
}

// CancelPeriodic stops a registered periodic entry by name; no-op if not
// found.
func (s *Scheduler) CancelPeriodic(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.periodic {
		if e.task.Name == name {
			close(e.stop)
		}
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// adaptLoop implements §4.1's adaptive concurrency: every 30s, shrink the
// pool under sustained high load, grow it under sustained low load, always
// staying within [1, max_workers] (§8 property 7).
func (s *Scheduler) adaptLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			cpuPct, memPct, err := s.resources.Sample()
			if err != nil {
				continue
			}
			if cpuPct > 90 || memPct > 90 {
				s.shrinkWorker()
			} else if cpuPct < 50 && memPct < 70 {
				s.growWorker()
			}
		}
	}
}

// shrinkWorker cancels the last-added worker; it exits at its next idle
// tick, never interrupting a running task (§4.1, §5).
func (s *Scheduler) shrinkWorker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workers) <= 1 {
		return
	}
	lastID := -1
	for id := range s.workers {
		if id > lastID {
			lastID = id
		}
	}
	close(s.workers[lastID])
	delete(s.workers, lastID)
}

func (s *Scheduler) growWorker() {
	s.mu.Lock()
	atCap := len(s.workers) >= s.maxWorkers
	s.mu.Unlock()
	if atCap {
		return
	}
	s.spawnWorker()
}
