package filetail

import (
	"context"
	"os"
	"time"

	"github.com/obsrouter/routercore/internal/filetail/pathsprovider"
	"github.com/obsrouter/routercore/internal/logging"
)

// DefaultPollInterval is how often the tailer re-scans its paths provider
// and polls every live watcher for new bytes.
const DefaultPollInterval = 250 * time.Millisecond

// TailerConfig wires a paths provider, watcher behavior, and checkpointing
// into one running tailer.
type TailerConfig struct {
	Provider     pathsprovider.Provider
	ReadFrom     ReadFrom
	Watcher      WatcherConfig
	PollInterval time.Duration
	Checkpointer *Checkpointer
	Logger       logging.Logger
}

func (c TailerConfig) withDefaults() TailerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = logging.Discard
	}
	return c
}

// Tailer follows every path its Provider reports, emitting framed Lines
// and persisting checkpoints, per spec.md §4.3.
type Tailer struct {
	cfg      TailerConfig
	watchers map[string]*Watcher
	entries  map[string]CheckpointEntry
	out      chan Line
}

// NewTailer constructs a Tailer; call Run to start it.
func NewTailer(cfg TailerConfig) *Tailer {
	return &Tailer{
		cfg:      cfg.withDefaults(),
		watchers: make(map[string]*Watcher),
		out:      make(chan Line, 256),
	}
}

// Lines returns the channel on which framed lines are delivered. Callers
// must drain it; Run blocks sending to it under backpressure.
func (t *Tailer) Lines() <-chan Line { return t.out }

// Run polls the paths provider and every live watcher until ctx is done,
// then closes the Lines channel and returns ctx.Err().
func (t *Tailer) Run(ctx context.Context) error {
	var err error
	if t.cfg.Checkpointer != nil {
		t.entries, err = t.cfg.Checkpointer.Load()
		if err != nil {
			t.cfg.Logger.Warnf("%sload checkpoint: %v", logging.NSTail, err)
			t.entries = map[string]CheckpointEntry{}
		}
	} else {
		t.entries = map[string]CheckpointEntry{}
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	defer close(t.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.cycle(ctx)
		}
	}
}

func (t *Tailer) cycle(ctx context.Context) {
	paths, err := t.cfg.Provider.Paths()
	if err != nil {
		t.cfg.Logger.Warnf("%spaths provider: %v", logging.NSTail, err)
		return
	}
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
		if _, ok := t.watchers[p]; !ok {
			t.startWatcher(p)
		}
	}

	now := time.Now()
	for path, w := range t.watchers {
		if _, ok := seen[path]; !ok {
			w.MarkNotFindable(now)
		}
		t.pollOne(ctx, path, w, now)
	}
}

func (t *Tailer) startWatcher(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		// Permission denied or a race with the path disappearing right
		// after the provider listed it: leave it for the next cycle,
		// per spec.md §4.3's not-findable/retry semantics.
		return
	}
	identity, err := identityOf(fi)
	if err != nil {
		t.cfg.Logger.Warnf("%s%s: %v", logging.NSTail, path, err)
		return
	}

	position := t.startPosition(path, identity, fi.Size())
	t.watchers[path] = NewWatcher(path, identity, position, t.cfg.Watcher, t.cfg.Logger)
}

func (t *Tailer) startPosition(path string, identity InodeIdentity, size int64) int64 {
	if entry, ok := t.entries[path]; ok && entry.Identity == identity {
		return entry.Position
	}
	switch t.cfg.ReadFrom {
	case End:
		return size
	default:
		return 0
	}
}

func (t *Tailer) pollOne(ctx context.Context, path string, w *Watcher, now time.Time) {
	kind, newIdentity, err := w.CheckRotation()
	if err != nil {
		t.cfg.Logger.Warnf("%s%s: check rotation: %v", logging.NSTail, path, err)
	}

	switch kind {
	case RotationRemoved:
		if w.GracePeriodExpired(now) {
			t.retire(ctx, path, w)
			return
		}
	case RotationRotated:
		t.retire(ctx, path, w)
		fi, statErr := os.Stat(path)
		if statErr == nil {
			t.watchers[path] = NewWatcher(path, newIdentity, t.startPosition(path, newIdentity, fi.Size()), t.cfg.Watcher, t.cfg.Logger)
		}
		return
	case RotationTruncated:
		if err := w.Reset(); err != nil {
			t.cfg.Logger.Warnf("%s%s: reset after truncation: %v", logging.NSTail, path, err)
			return
		}
	case RotationNone:
		w.MarkFindable()
	}

	lines, err := w.Poll()
	if err != nil {
		t.cfg.Logger.Warnf("%s%s: poll: %v", logging.NSTail, path, err)
	}
	t.emit(ctx, lines)
	t.checkpoint(w)
}

func (t *Tailer) retire(ctx context.Context, path string, w *Watcher) {
	lines := w.MarkDead()
	t.emit(ctx, lines)
	delete(t.watchers, path)
	delete(t.entries, path)
	if t.cfg.Checkpointer != nil {
		t.cfg.Checkpointer.Forget(path)
	}
}

func (t *Tailer) checkpoint(w *Watcher) {
	if t.cfg.Checkpointer == nil {
		return
	}
	entry := CheckpointEntry{
		Path:        w.Path(),
		Identity:    w.Identity(),
		Fingerprint: w.Fingerprint(),
		Position:    w.Position(),
		Modified:    time.Now(),
	}
	t.entries[w.Path()] = entry
	t.cfg.Checkpointer.Update(entry)
}

func (t *Tailer) emit(ctx context.Context, lines []Line) {
	for _, l := range lines {
		select {
		case t.out <- l:
		case <-ctx.Done():
			return
		}
	}
}
