package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbus/pkg/bus"
	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// Progress reports the last time the processor made forward progress, for
// the Supervisor's health watchdog to compare against HandlerTimeout.
type Progress interface {
	LastProgress() time.Time
}

// AgentRuntime is the per-agent loop: poller, processor and heartbeat tasks
// cooperating through a MessageStore and a few atomic flags. No task
// communicates with another directly.
type AgentRuntime struct {
	agent   string
	store   *store.Store
	bus     BusClient
	handler Handler
	cfg     *config.RuntimeConfig
	kill    KillSwitch
	logger  *slog.Logger

	pause pauseState

	mu           sync.RWMutex
	lastProgress time.Time

	heartbeatFailures int32
	hbMu              sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs an AgentRuntime. kill may be nil, in which case the kill
// switch is treated as permanently inactive (useful standalone or in tests).
func New(agent string, st *store.Store, busClient BusClient, handler Handler, cfg *config.RuntimeConfig, kill KillSwitch) *AgentRuntime {
	if cfg == nil {
		cfg = config.DefaultRuntimeConfig()
	}
	if kill == nil {
		kill = alwaysOff{}
	}
	return &AgentRuntime{
		agent:        agent,
		store:        st,
		bus:          busClient,
		handler:      handler,
		cfg:          cfg,
		kill:         kill,
		logger:       slog.With("agent", agent, "component", "runtime"),
		lastProgress: time.Now(),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the three cooperating tasks in their own goroutines. It
// does not block.
func (r *AgentRuntime) Start(ctx context.Context) {
	if _, err := r.store.RecoverStale(ctx, r.cfg.StaleClaimMaxAge); err != nil {
		r.logger.Warn("recover stale claims failed", "error", err)
	}

	r.wg.Add(3)
	go r.runPoller(ctx)
	go r.runProcessor(ctx)
	go r.runHeartbeat(ctx)
}

// Stop signals all three tasks to exit and waits for them to finish. Safe to
// call multiple times.
func (r *AgentRuntime) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// LastProgress reports when the processor last completed a trigger.
func (r *AgentRuntime) LastProgress() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastProgress
}

// PauseStatus reports the current PauseState for status surfaces.
func (r *AgentRuntime) PauseStatus() (paused bool, until time.Time) {
	return r.pause.snapshot()
}

// Pause enters PauseState indefinitely. Supervisor.PauseAll does not call
// it; PauseAll works through the kill switch instead.
func (r *AgentRuntime) Pause() { r.pause.pauseIndefinite() }

// Resume clears PauseState immediately.
func (r *AgentRuntime) Resume() { r.pause.resume() }

func (r *AgentRuntime) touchProgress() {
	r.mu.Lock()
	r.lastProgress = time.Now()
	r.mu.Unlock()
}

func (r *AgentRuntime) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}

// runPoller never processes — its only job is to enqueue every inbound
// message with a latency bounded by one bus round-trip, regardless of how
// busy the processor is.
func (r *AgentRuntime) runPoller(ctx context.Context) {
	defer r.wg.Done()
	log := r.logger.With("task", "poller")
	log.Info("poller started")

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if r.kill.Active() || r.pause.blocked() {
			r.sleep(r.cfg.PausedPollInterval)
			continue
		}

		msgs, err := r.bus.Receive(ctx, 0)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			log.Warn("receive failed", "error", err)
			r.sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			id := m.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := r.store.Enqueue(ctx, id, r.agent, m.Sender, m.Content); err != nil {
				log.Warn("enqueue failed", "error", err, "message_id", id)
			}
		}
	}
}

// runProcessor claims one trigger at a time, drains Peek-only batch
// context, applies commands, invokes the handler and replies.
func (r *AgentRuntime) runProcessor(ctx context.Context) {
	defer r.wg.Done()
	log := r.logger.With("task", "processor")
	log.Info("processor started")

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if r.kill.Active() || r.pause.blocked() {
			r.sleep(r.cfg.PausedPollInterval)
			continue
		}

		if err := r.processOnce(ctx); err != nil {
			if errors.Is(err, errNoWork) {
				r.sleep(r.cfg.IdlePollInterval)
				continue
			}
			log.Error("process cycle failed", "error", err)
			r.sleep(time.Second)
		}
	}
}

var errNoWork = errors.New("runtime: no pending messages")

func (r *AgentRuntime) processOnce(ctx context.Context) error {
	trigger, err := r.store.Claim(ctx, r.agent)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if trigger == nil {
		return errNoWork
	}

	log := r.logger.With("trigger_id", trigger.ID)

	batchSize := r.cfg.BatchSize - 1
	batch, err := r.store.PeekBatch(ctx, r.agent, batchSize)
	if err != nil {
		log.Warn("peek batch failed", "error", err)
	}

	cmds := parseCommands(trigger.Content)
	r.applyCommands(cmds)

	history, err := r.store.History(ctx, r.agent, r.cfg.HistorySize)
	if err != nil {
		log.Warn("history fetch failed", "error", err)
	}

	response, ok := r.handler.Handle(*trigger, batch, history)
	if ok {
		response = r.prepareResponse(response, trigger, cmds)
		if response != "" {
			if sendErr := r.sendWithRetry(ctx, response, trigger.ID); sendErr != nil {
				var se *bus.SendError
				if errors.As(sendErr, &se) && se.Kind == bus.Transient {
					if err := r.store.Fail(ctx, trigger.ID, r.agent, true); err != nil {
						log.Error("requeue after transient send failure failed", "error", err)
					}
					return fmt.Errorf("send transient: %w", sendErr)
				}
				if err := r.store.Fail(ctx, trigger.ID, r.agent, false); err != nil {
					log.Error("mark failed after fatal send failure failed", "error", err)
				}
				log.Error("fatal send failure", "error", sendErr)
			}
		}
	}

	if err := r.store.Complete(ctx, trigger.ID, r.agent); err != nil {
		log.Error("complete trigger failed", "error", err)
	}
	for _, m := range batch {
		if err := r.store.Complete(ctx, m.ID, r.agent); err != nil {
			log.Warn("complete batch context failed", "error", err, "message_id", m.ID)
		}
	}

	if cmds.done {
		if n, err := r.store.Purge(ctx, r.agent); err != nil {
			log.Error("purge pending after done failed", "error", err)
		} else if n > 0 {
			log.Info("purged remaining pending messages after done", "count", n)
		}
	}

	r.touchProgress()
	return nil
}

// applyCommands transitions PauseState before the handler runs, per the
// kernel's "apply commands before invoking the handler" rule. The #done
// purge itself happens in processOnce, after the trigger and batch context
// have been completed, so it never races the batch-completion loop over the
// same rows.
func (r *AgentRuntime) applyCommands(cmds commands) {
	switch {
	case cmds.done:
		r.pause.pauseFor(r.cfg.DonePauseDuration)
	case cmds.pause, cmds.stop:
		r.pause.pauseIndefinite()
	}
}

// prepareResponse applies self-reference prevention and, for #done, strips
// @mentions so the pause doesn't provoke further traffic.
func (r *AgentRuntime) prepareResponse(response string, trigger *store.Message, cmds commands) string {
	if trigger.Sender == r.agent {
		response = stripSelfMention(response, r.agent)
	}
	if cmds.done {
		response = stripMentions(response)
	}
	return response
}

// sendWithRetry threads content under parentID. BusClient.Send already
// retries transient failures internally (pkg/bus's backoff policy); this
// call surfaces only the terminal outcome to the caller's requeue/fail
// decision. parentID is always the trigger's own id, which BusClient never
// reassigns to the reply it creates, satisfying the "never its own parent"
// symmetry check structurally.
func (r *AgentRuntime) sendWithRetry(ctx context.Context, content, parentID string) error {
	_, err := r.bus.Send(ctx, content, parentID)
	return err
}

// runHeartbeat pings the bus on an interval to keep the connection alive
// through upstream idle timeouts and to detect dead connections during
// quiet periods. It never touches messages.
func (r *AgentRuntime) runHeartbeat(ctx context.Context) {
	defer r.wg.Done()
	if r.cfg.HeartbeatInterval <= 0 {
		return
	}
	log := r.logger.With("task", "heartbeat")

	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.bus.Ping(ctx); err != nil {
				r.hbMu.Lock()
				r.heartbeatFailures++
				failures := r.heartbeatFailures
				r.hbMu.Unlock()
				log.Warn("ping failed", "error", err, "consecutive_failures", failures)
				if int(failures) >= r.cfg.HeartbeatFailureThreshold {
					log.Error("heartbeat threshold exceeded, reconnecting bus client")
					if rerr := r.bus.Reconnect(ctx); rerr != nil {
						log.Error("bus reconnect failed", "error", rerr)
					} else {
						r.hbMu.Lock()
						r.heartbeatFailures = 0
						r.hbMu.Unlock()
					}
				}
				continue
			}
			r.hbMu.Lock()
			r.heartbeatFailures = 0
			r.hbMu.Unlock()
		}
	}
}
