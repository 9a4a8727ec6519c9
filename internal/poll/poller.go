// Package poll implements the background refresh cycle used to keep
// conversation and notification snapshots current while the app is in
// the foreground. A Poller owns one feed: it fetches on start, then on
// a fixed interval, and alerts subscribers only when genuinely new
// items appear.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventy_poll_cycles_total",
		Help: "Total number of completed poll fetches per feed.",
	}, []string{"feed", "result"})

	skipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventy_poll_skips_total",
		Help: "Ticks skipped because the previous fetch was still in flight.",
	}, []string{"feed"})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventy_poll_alerts_total",
		Help: "User-visible new-item alerts fired per feed.",
	}, []string{"feed", "suppressed"})
)

// Signal is the comparable digest of one fetched snapshot. Unseen is
// the number of items the user has not read yet; ItemID identifies the
// most relevant unseen item so alerts can be suppressed while the user
// is already looking at it.
type Signal struct {
	Unseen int
	ItemID string
}

// Poller runs the fetch loop for a single feed of snapshots of type S.
// At most one fetch is outstanding at any instant: ticks that land
// while a fetch is in flight are skipped, never queued.
type Poller[S any] struct {
	feed     string
	interval time.Duration
	fetch    func(ctx context.Context) (S, error)
	digest   func(S) Signal
	onNew    func(snapshot S, sig Signal)
	focused  func(itemID string) bool
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight bool
	stopped  bool
	started  bool
	baseline bool
	last     Signal
	snapshot S
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Poller.
type Option[S any] func(*Poller[S])

// WithFocus registers the predicate deciding whether the user is
// currently viewing a given item. While it reports true for the item
// that produced a signal, the alert for that signal is swallowed.
func WithFocus[S any](fn func(itemID string) bool) Option[S] {
	return func(p *Poller[S]) { p.focused = fn }
}

// New builds a Poller for one feed. fetch retrieves the current
// snapshot, digest reduces it to a Signal, and onNew is invoked with
// the fresh snapshot whenever the unseen count strictly exceeds the
// previous observation.
func New[S any](
	feed string,
	interval time.Duration,
	fetch func(ctx context.Context) (S, error),
	digest func(S) Signal,
	onNew func(snapshot S, sig Signal),
	logger *slog.Logger,
	opts ...Option[S],
) *Poller[S] {
	p := &Poller[S]{
		feed:     feed,
		interval: interval,
		fetch:    fetch,
		digest:   digest,
		onNew:    onNew,
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the loop: one immediate fetch, then one attempt per
// interval until Stop is called or ctx is cancelled. Calling Start
// more than once is a no-op.
func (p *Poller[S]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.loop(ctx)
}

func (p *Poller[S]) loop(ctx context.Context) {
	defer close(p.done)

	p.attempt(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.attempt(ctx)
		}
	}
}

// attempt launches one fetch unless one is already outstanding. The
// fetch runs on its own goroutine so a slow backend causes subsequent
// ticks to be skipped rather than piling up behind it.
func (p *Poller[S]) attempt(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight || p.stopped {
		p.mu.Unlock()
		skipsTotal.WithLabelValues(p.feed).Inc()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	go func() {
		snapshot, err := p.fetch(ctx)
		p.apply(ctx, snapshot, err)
	}()
}

func (p *Poller[S]) apply(ctx context.Context, snapshot S, err error) {
	p.mu.Lock()
	p.inFlight = false
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		cyclesTotal.WithLabelValues(p.feed, "discarded").Inc()
		return
	}
	if err != nil {
		p.mu.Unlock()
		cyclesTotal.WithLabelValues(p.feed, "error").Inc()
		p.logger.Warn("poll fetch failed, keeping previous snapshot",
			slog.String("feed", p.feed),
			slog.String("error", err.Error()))
		return
	}

	sig := p.digest(snapshot)
	fire := p.baseline && sig.Unseen > p.last.Unseen
	p.last = sig
	p.snapshot = snapshot
	p.baseline = true
	onNew := p.onNew
	focused := p.focused
	p.mu.Unlock()

	cyclesTotal.WithLabelValues(p.feed, "ok").Inc()
	if !fire {
		return
	}
	if focused != nil && focused(sig.ItemID) {
		alertsTotal.WithLabelValues(p.feed, "true").Inc()
		p.logger.Debug("alert suppressed, item in focus",
			slog.String("feed", p.feed),
			slog.String("item_id", sig.ItemID))
		return
	}
	alertsTotal.WithLabelValues(p.feed, "false").Inc()
	if onNew != nil {
		onNew(snapshot, sig)
	}
}

// Stop halts the loop and discards any fetch still in flight. It is
// safe to call multiple times and safe to call before Start.
func (p *Poller[S]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-p.done
	}
}

// Snapshot returns the most recently applied snapshot. ok is false
// until the first successful fetch completes.
func (p *Poller[S]) Snapshot() (snapshot S, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.baseline
}
