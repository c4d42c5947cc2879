package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cdst-optimize/cdst-optimize/opt"
)

// Status is the scenario lifecycle state. Transitions are append-only:
// pending→running→{completed,failed,cancelled}, plus pending→cancelled for
// scenarios cancelled before dispatch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage is the coarse phase within a running scenario, for progress frames.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageInitializing Stage = "initializing"
	StageEvolving     Stage = "evolving"
	StageFinalizing   Stage = "finalizing"
)

var (
	// ErrRateLimitExceeded rejects a submission when the pending queue is
	// full.
	ErrRateLimitExceeded = errors.New("scenario queue is full")
	// ErrNotFound is returned for unknown scenario IDs.
	ErrNotFound = errors.New("scenario not found")
	// ErrNotReady is returned by Result before the scenario reaches a
	// terminal status.
	ErrNotReady = errors.New("scenario has not finished")
	// ErrClosed rejects submissions after Close.
	ErrClosed = errors.New("scheduler is closed")
)

// Transition is one recorded lifecycle change.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Config tunes admission and progress cadence. Zero values take the defaults.
type Config struct {
	// GlobalSlots is the number of scenarios that run concurrently. Default 4.
	GlobalSlots int
	// PerUserActive caps a single user's running scenarios; submissions over
	// the cap stay pending. Default 3.
	PerUserActive int
	// QueueCapacity bounds the pending queue across all users. Default 64.
	QueueCapacity int
	// Timeout bounds one scenario's wall clock. Default 15m.
	Timeout time.Duration
	// FrameInterval is the heartbeat cadence for progress frames when
	// generations run long. Default 2s.
	FrameInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.GlobalSlots <= 0 {
		c.GlobalSlots = 4
	}
	if c.PerUserActive <= 0 {
		c.PerUserActive = 3
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Minute
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 2 * time.Second
	}
	return c
}

// SubmitRequest describes one scenario. Resume restarts a previously
// checkpointed scenario under the same ID; the submission fails (as a failed
// scenario, not a Submit error) when no usable checkpoint exists.
type SubmitRequest struct {
	UserID     string
	Problem    *opt.Problem
	Parameters opt.Parameters
	Resume     bool
	ScenarioID string
}

// ScenarioView is a point-in-time snapshot for status queries.
type ScenarioView struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Status      Status       `json:"status"`
	Stage       Stage        `json:"stage"`
	Transitions []Transition `json:"transitions"`
	Error       string       `json:"error,omitempty"`
}

type scenario struct {
	id     string
	userID string
	prob   *opt.Problem
	params opt.Parameters
	resume bool
	seq    uint64

	mu          sync.Mutex
	status      Status
	stage       Stage
	transitions []Transition
	result      *opt.Result
	err         error
	cancelled   bool
	lastFrame   Frame
	started     time.Time

	cancel context.CancelFunc
	bc     *broadcaster
	done   chan struct{}
}

func (sc *scenario) transition(to Status, reason string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.transitions = append(sc.transitions, Transition{
		From:   sc.status,
		To:     to,
		At:     time.Now(),
		Reason: reason,
	})
	sc.status = to
}

func (sc *scenario) view() ScenarioView {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	v := ScenarioView{
		ID:          sc.id,
		UserID:      sc.userID,
		Status:      sc.status,
		Stage:       sc.stage,
		Transitions: append([]Transition(nil), sc.transitions...),
	}
	if sc.err != nil {
		v.Error = sc.err.Error()
	}
	return v
}

// Scheduler admits, runs, and tracks optimization scenarios.
type Scheduler struct {
	cfg   Config
	store Store
	log   *logrus.Entry

	mu        sync.Mutex
	scenarios map[string]*scenario
	pending   []*scenario
	byUser    map[string]int // running count per user
	running   int
	seq       uint64
	closed    bool
	wg        sync.WaitGroup
}

// New builds a scheduler. store may be nil, which disables checkpointing and
// resume.
func New(cfg Config, store Store) *Scheduler {
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		store:     store,
		log:       logrus.WithField("component", "scheduler"),
		scenarios: make(map[string]*scenario),
		byUser:    make(map[string]int),
	}
}

// Submit admits a scenario, queueing it when all slots are busy. Returns the
// scenario ID.
func (s *Scheduler) Submit(req SubmitRequest) (string, error) {
	if req.Problem == nil {
		return "", fmt.Errorf("submit: problem is nil")
	}
	if err := req.Parameters.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if len(s.pending) >= s.cfg.QueueCapacity {
		return "", fmt.Errorf("%w: %d scenarios pending", ErrRateLimitExceeded, len(s.pending))
	}

	id := req.ScenarioID
	if id == "" {
		id = uuid.NewString()
	}
	if _, dup := s.scenarios[id]; dup {
		return "", fmt.Errorf("scenario %q already exists", id)
	}

	s.seq++
	sc := &scenario{
		id:     id,
		userID: req.UserID,
		prob:   req.Problem,
		params: req.Parameters,
		resume: req.Resume,
		seq:    s.seq,
		status: StatusPending,
		stage:  StageQueued,
		bc:     newBroadcaster(),
		done:   make(chan struct{}),
	}
	sc.transitions = append(sc.transitions, Transition{To: StatusPending, At: time.Now()})
	s.scenarios[id] = sc
	s.pending = append(s.pending, sc)

	s.log.WithFields(logrus.Fields{
		"scenario": id,
		"user":     req.UserID,
		"resume":   req.Resume,
	}).Info("scenario submitted")

	s.dispatchLocked()
	return id, nil
}

// dispatchLocked starts queued scenarios while slots remain, preferring the
// user with the fewest running scenarios and FIFO within a user. Scenarios
// whose user is at the running cap wait in the queue.
func (s *Scheduler) dispatchLocked() {
	for s.running < s.cfg.GlobalSlots {
		best := -1
		for i, cand := range s.pending {
			if s.byUser[cand.userID] >= s.cfg.PerUserActive {
				continue
			}
			if best < 0 {
				best = i
				continue
			}
			cur := s.pending[best]
			if s.byUser[cand.userID] < s.byUser[cur.userID] ||
				(s.byUser[cand.userID] == s.byUser[cur.userID] && cand.seq < cur.seq) {
				best = i
			}
		}
		if best < 0 {
			return
		}
		sc := s.pending[best]
		s.pending = append(s.pending[:best], s.pending[best+1:]...)

		s.running++
		s.byUser[sc.userID]++
		sc.transition(StatusRunning, "")

		s.wg.Add(1)
		go s.run(sc)
	}
}

// Cancel requests termination. Idempotent: cancelling a terminal or unknown-
// but-cancelled scenario is a no-op; only an unknown ID errors.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	sc, ok := s.scenarios[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// Pending scenarios cancel synchronously.
	for i, p := range s.pending {
		if p.id != id {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.mu.Unlock()

		sc.transition(StatusCancelled, "cancelled before start")
		sc.mu.Lock()
		sc.stage = StageFinalizing
		sc.mu.Unlock()
		sc.bc.publish(Frame{
			ScenarioID: id,
			Status:     StatusCancelled,
			Stage:      StageFinalizing,
			Terminal:   true,
			At:         time.Now(),
		})
		close(sc.done)
		return nil
	}
	s.mu.Unlock()

	sc.mu.Lock()
	if sc.status.Terminal() {
		sc.mu.Unlock()
		return nil
	}
	sc.cancelled = true
	cancel := sc.cancel
	sc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Status returns a snapshot of the scenario.
func (s *Scheduler) Status(id string) (ScenarioView, error) {
	s.mu.Lock()
	sc, ok := s.scenarios[id]
	s.mu.Unlock()
	if !ok {
		return ScenarioView{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sc.view(), nil
}

// Result returns the scenario's result. Timed-out and cancelled scenarios
// return their best-so-far result; ErrNotReady is returned before a terminal
// status.
func (s *Scheduler) Result(id string) (*opt.Result, error) {
	s.mu.Lock()
	sc, ok := s.scenarios[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, sc.status)
	}
	if sc.result != nil {
		return sc.result, nil
	}
	if sc.err != nil {
		return nil, sc.err
	}
	return nil, fmt.Errorf("scenario %s finished without a result", id)
}

// Subscribe returns a coalescing progress channel. The latest frame is
// delivered immediately; the channel closes after the terminal frame.
func (s *Scheduler) Subscribe(id string) (<-chan Frame, func(), error) {
	s.mu.Lock()
	sc, ok := s.scenarios[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ch, cancel := sc.bc.subscribe()
	return ch, cancel, nil
}

// Wait blocks until the scenario reaches a terminal status.
func (s *Scheduler) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	sc, ok := s.scenarios[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	select {
	case <-sc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops admission, cancels running scenarios, and waits for them.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = nil
	var cancels []context.CancelFunc
	for _, sc := range s.scenarios {
		sc.mu.Lock()
		if sc.cancel != nil && !sc.status.Terminal() {
			sc.cancelled = true
			cancels = append(cancels, sc.cancel)
		}
		sc.mu.Unlock()
	}
	s.mu.Unlock()

	for _, sc := range pending {
		sc.transition(StatusCancelled, "scheduler shutdown")
		sc.bc.publish(Frame{
			ScenarioID: sc.id,
			Status:     StatusCancelled,
			Stage:      StageFinalizing,
			Terminal:   true,
			At:         time.Now(),
		})
		close(sc.done)
	}
	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}

// run executes one scenario to a terminal status.
func (s *Scheduler) run(sc *scenario) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running--
		s.byUser[sc.userID]--
		if s.byUser[sc.userID] == 0 {
			delete(s.byUser, sc.userID)
		}
		if !s.closed {
			s.dispatchLocked()
		}
		s.mu.Unlock()
		close(sc.done)
	}()

	started := time.Now()
	sc.mu.Lock()
	sc.started = started
	sc.mu.Unlock()
	timeout := sc.params.TimeBudget
	if timeout <= 0 || timeout > s.cfg.Timeout {
		timeout = s.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sc.mu.Lock()
	sc.cancel = cancel
	alreadyCancelled := sc.cancelled
	sc.mu.Unlock()
	if alreadyCancelled {
		cancel()
	}

	log := s.log.WithFields(logrus.Fields{"scenario": sc.id, "user": sc.userID})

	sc.setStage(StageInitializing)
	s.publishFrame(sc, opt.GenerationStats{}, false, "")

	strategy, err := s.prepare(ctx, sc)
	if err != nil {
		s.finish(ctx, sc, nil, nil, started, err)
		return
	}

	stopBeat := s.startHeartbeat(sc)
	defer stopBeat()

	sc.setStage(StageEvolving)
	var last opt.GenerationStats
	var runErr error
	for strategy.Generation() < sc.params.MaxGenerations {
		stats, err := strategy.EvolveOneGeneration(ctx)
		if err != nil {
			runErr = err
			break
		}
		last = stats
		s.publishFrame(sc, stats, false, "")

		if s.store != nil && sc.params.CheckpointInterval > 0 &&
			stats.Generation%sc.params.CheckpointInterval == 0 {
			s.checkpoint(ctx, sc, strategy, log)
		}
		if stats.Converged {
			log.WithField("generation", stats.Generation).Info("converged")
			break
		}
	}

	s.finish(ctx, sc, strategy, &last, started, runErr)
}

// prepare builds the solver, restoring from a checkpoint when resuming. A
// missing or unreadable checkpoint fails the scenario.
func (s *Scheduler) prepare(ctx context.Context, sc *scenario) (opt.Strategy, error) {
	if !sc.resume {
		strategy := opt.NewNSGA2(sc.prob, sc.params)
		if err := strategy.Initialize(ctx); err != nil {
			return nil, err
		}
		return strategy, nil
	}

	if s.store == nil {
		return nil, fmt.Errorf("resume requested but no checkpoint store is configured")
	}
	blob, err := s.store.Load(ctx, sc.id)
	if err != nil {
		return nil, fmt.Errorf("resuming scenario %s: %w", sc.id, err)
	}
	cp, err := DecodeCheckpoint(blob)
	if err != nil {
		return nil, fmt.Errorf("resuming scenario %s: %w", sc.id, err)
	}
	pop, err := restorePopulation(sc.prob, cp)
	if err != nil {
		return nil, fmt.Errorf("resuming scenario %s: %w", sc.id, err)
	}

	// Resume under the checkpointed seed so the RNG partition layout matches.
	params := sc.params
	params.Seed = cp.Seed
	params.Seeded = true
	strategy := opt.NewNSGA2(sc.prob, params)
	strategy.Restore(cp.Generation, pop)
	return strategy, nil
}

func (s *Scheduler) checkpoint(ctx context.Context, sc *scenario, strategy opt.Strategy, log *logrus.Entry) {
	cp := &Checkpoint{
		ScenarioID: sc.id,
		Generation: strategy.Generation(),
		Seed:       strategy.Seed(),
		Areas:      sc.prob.NAreas,
		Labs:       sc.prob.NLabs,
		Tests:      sc.prob.NTests,
		Population: snapshotPopulation(strategy.Population()),
	}
	blob, err := EncodeCheckpoint(cp)
	if err == nil {
		err = s.store.Save(ctx, sc.id, blob)
	}
	if err != nil {
		// A failed checkpoint never fails the run.
		log.WithError(err).Warn("checkpoint save failed")
		return
	}
	log.WithFields(logrus.Fields{
		"generation": cp.Generation,
		"bytes":      len(blob),
	}).Debug("checkpoint saved")
}

// finish classifies the outcome, extracts whatever result exists, and emits
// the terminal frame.
func (s *Scheduler) finish(ctx context.Context, sc *scenario, strategy opt.Strategy, last *opt.GenerationStats, started time.Time, runErr error) {
	sc.setStage(StageFinalizing)

	var res *opt.Result
	if strategy != nil {
		if front := strategy.ExtractFront(); len(front) > 0 {
			res = opt.ExtractResult(sc.prob, sc.params, front)
			res.Generations = strategy.Generation()
			res.Elapsed = time.Since(started)
			res.Seed = strategy.Seed()
			if last != nil {
				res.Hypervolume = last.Hypervolume
				res.Converged = last.Converged
			}
		}
	}

	status := StatusCompleted
	reason := ""
	var failure error
	switch {
	case runErr == nil:
		if s.store != nil {
			// Best effort; a stale checkpoint is harmless.
			_ = s.store.Delete(context.Background(), sc.id)
		}
	case errors.Is(runErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = StatusFailed
		reason = "timeout"
		failure = fmt.Errorf("scenario %s timed out: %w", sc.id, context.DeadlineExceeded)
	case errors.Is(runErr, context.Canceled) && sc.isCancelled():
		status = StatusCancelled
		reason = "cancelled by user"
	default:
		status = StatusFailed
		reason = runErr.Error()
		failure = runErr
	}

	sc.mu.Lock()
	sc.result = res
	sc.err = failure
	sc.mu.Unlock()
	sc.transition(status, reason)

	fields := logrus.Fields{"scenario": sc.id, "status": status, "elapsed": time.Since(started)}
	if last != nil {
		fields["generations"] = last.Generation
	}
	if failure != nil {
		s.log.WithFields(fields).WithError(failure).Warn("scenario finished")
	} else {
		s.log.WithFields(fields).Info("scenario finished")
	}

	errText := ""
	if failure != nil {
		errText = failure.Error()
	}
	var stats opt.GenerationStats
	if last != nil {
		stats = *last
	}
	s.publishFrame(sc, stats, true, errText)
}

func (sc *scenario) setStage(st Stage) {
	sc.mu.Lock()
	sc.stage = st
	sc.mu.Unlock()
}

func (sc *scenario) isCancelled() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.cancelled
}

func (s *Scheduler) publishFrame(sc *scenario, stats opt.GenerationStats, terminal bool, errText string) {
	sc.mu.Lock()
	var elapsed, eta float64
	if !sc.started.IsZero() {
		elapsed = time.Since(sc.started).Seconds()
		// Linear extrapolation over the remaining generations.
		if !terminal && stats.Generation > 0 && stats.Generation < sc.params.MaxGenerations {
			perGen := elapsed / float64(stats.Generation)
			eta = perGen * float64(sc.params.MaxGenerations-stats.Generation)
		}
	}
	f := Frame{
		ScenarioID:     sc.id,
		Status:         sc.status,
		Stage:          sc.stage,
		Generation:     stats.Generation,
		MaxGenerations: sc.params.MaxGenerations,
		BestComposite:  stats.BestComposite,
		Hypervolume:    stats.Hypervolume,
		Diversity:      stats.Diversity,
		ElapsedSeconds: elapsed,
		ETASeconds:     eta,
		Error:          errText,
		Terminal:       terminal,
		At:             time.Now(),
	}
	sc.lastFrame = f
	sc.mu.Unlock()
	sc.bc.publish(f)
}

// startHeartbeat re-emits the latest frame on the configured interval so
// subscribers hear from long generations. Stops on the returned func.
func (s *Scheduler) startHeartbeat(sc *scenario) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.cfg.FrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sc.mu.Lock()
				f := sc.lastFrame
				sc.mu.Unlock()
				if f.ScenarioID == "" || f.Terminal {
					continue
				}
				f.At = time.Now()
				sc.bc.publish(f)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
