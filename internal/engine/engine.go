package engine

import (
	"log"
	"strconv"
	"time"

	"github.com/hollowpine/presage/internal/config"
	"github.com/hollowpine/presage/internal/store"
)

// Engine is the pattern-learning and reminder-decision core. It owns the
// learning paths fed by IngestEvent and the background workers that turn
// matured predictions into decisions.
type Engine struct {
	DB       *store.DB
	Learning config.LearningConfig
	Workers  config.WorkersConfig
	stopCh   chan struct{}
}

// New creates an Engine over an open store.
func New(db *store.DB, cfg config.Config) *Engine {
	return &Engine{
		DB:       db,
		Learning: cfg.Learning,
		Workers:  cfg.Workers,
		stopCh:   make(chan struct{}),
	}
}

// StartWorkers launches the four background loops: candidate scheduler,
// daily transition decay, stale-window sweep, and event retention purge.
// Each loop runs one unit of work per tick and isolates its own failures;
// no loop blocks waiting on another.
func (e *Engine) StartWorkers() {
	// Decay and retention also run at startup so a long-stopped instance
	// catches up immediately; decayTick itself skips when it already ran
	// within the past day.
	e.decayTick()
	e.retentionTick()

	go e.loop(time.Duration(e.Workers.PollIntervalSeconds)*time.Second, e.schedulerTick)
	go e.loop(24*time.Hour, e.decayTick)
	go e.loop(time.Duration(e.Workers.WindowSweepMinutes)*time.Minute, e.windowSweepTick)
	go e.loop(24*time.Hour, e.retentionTick)
}

// Stop shuts down the engine's background goroutines. Cancellation is
// cooperative: each loop checks the stop channel at its tick boundary and
// never interrupts a unit of work midway.
func (e *Engine) Stop() {
	close(e.stopCh)
}

func (e *Engine) loop(interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) schedulerTick() {
	e.RunSchedulerTick(time.Now())
}

// metaLastDecay records when decay last ran. The multiplicative step is
// cumulative, so a same-day restart must not apply it a second time.
const metaLastDecay = "last_decay_at"

// minDecayInterval sits just under a day so the 24h ticker's own fire is
// never skipped.
const minDecayInterval = 23 * time.Hour

func (e *Engine) decayTick() {
	now := time.Now()
	raw, err := e.DB.GetMeta(metaLastDecay)
	if err != nil {
		log.Printf("decay error: %v", err)
		return
	}
	if raw != "" {
		if last, err := strconv.ParseInt(raw, 10, 64); err == nil &&
			now.Sub(time.UnixMilli(last)) < minDecayInterval {
			return
		}
	}

	updated, err := e.DB.DecayTransitions(e.Learning.DecayRate)
	if err != nil {
		log.Printf("decay error: %v", err)
		return
	}
	if updated > 0 {
		log.Printf("decay: updated %d transitions", updated)
	}
	if err := e.DB.SetMeta(metaLastDecay, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		log.Printf("decay: record last run: %v", err)
	}
}

// windowSweepTick closes routines whose window end has passed but are still
// marked open. Learning eligibility is independently time-gated, so this
// only keeps persisted state from appearing stuck open.
func (e *Engine) windowSweepTick() {
	now := time.Now().UnixMilli()
	expired, err := e.DB.ExpiredOpenRoutines(now)
	if err != nil {
		log.Printf("window sweep error: %v", err)
		return
	}
	for _, r := range expired {
		if err := e.DB.CloseRoutineWindow(r.ID); err != nil {
			log.Printf("window sweep: close routine %d: %v", r.ID, err)
		}
	}
	if len(expired) > 0 {
		log.Printf("window sweep: closed %d stale windows", len(expired))
	}
}

func (e *Engine) retentionTick() {
	cutoff := time.Now().AddDate(0, 0, -e.Workers.RetentionDays).UnixMilli()
	purged, err := e.DB.PurgeEventsBefore(cutoff)
	if err != nil {
		log.Printf("retention error: %v", err)
	} else if purged > 0 {
		log.Printf("retention: purged %d events", purged)
	}
}
