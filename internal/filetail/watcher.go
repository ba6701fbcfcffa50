package filetail

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/obsrouter/routercore/internal/checksum"
	"github.com/obsrouter/routercore/internal/logging"
)

// ReadFrom selects where a newly discovered file starts being tailed from.
type ReadFrom uint8

const (
	Beginning ReadFrom = iota
	End
	FromCheckpoint
)

// DefaultMaxLineBytes bounds a single line's buffered length before it is
// truncated and reported, per spec.md §4.3.
const DefaultMaxLineBytes = 1 << 20 // 1 MiB

// DefaultDelimiter is the line terminator used when none is configured.
const DefaultDelimiter = '\n'

// RotationKind is what CheckRotation observed relative to a Watcher's last
// known state.
type RotationKind uint8

const (
	RotationNone RotationKind = iota
	RotationRemoved
	RotationRotated
	RotationTruncated
)

// Line is one complete (or forcibly truncated) record read from a watched
// file.
type Line struct {
	Path      string
	Data      []byte
	Offset    int64
	Truncated bool
}

// WatcherConfig configures line framing and dead-file detection for every
// Watcher a Tailer creates.
type WatcherConfig struct {
	Delimiter       byte
	MaxLineBytes    int
	DeadGracePeriod time.Duration
}

func (c WatcherConfig) withDefaults() WatcherConfig {
	if c.Delimiter == 0 {
		c.Delimiter = DefaultDelimiter
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.DeadGracePeriod <= 0 {
		c.DeadGracePeriod = 10 * time.Second
	}
	return c
}

// Watcher tracks one file's tailing state: inode identity, read position,
// idle/dead bookkeeping, and a per-file partial-line buffer, per the state
// table in spec.md §4.3.
type Watcher struct {
	path     string
	identity InodeIdentity
	cfg      WatcherConfig
	logger   logging.Logger

	position     int64
	lastRead     time.Time
	findable     bool
	notFindSince time.Time
	dead         bool
	reachedEOF   bool

	partial []byte

	file       *os.File
	reader     io.Reader // file, or a gzip-decompressing wrapper over it
	isGzip     bool
	fingerprint uint64
}

// NewWatcher constructs a Watcher for path/identity, starting at
// startPosition (already resolved by the caller from ReadFrom/checkpoint).
func NewWatcher(path string, identity InodeIdentity, startPosition int64, cfg WatcherConfig, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Discard
	}
	return &Watcher{
		path:     path,
		identity: identity,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		position: startPosition,
		lastRead: time.Now(),
		findable: true,
	}
}

// Path returns the watched path.
func (w *Watcher) Path() string { return w.path }

// Identity returns the watcher's (device, inode) pair.
func (w *Watcher) Identity() InodeIdentity { return w.identity }

// Position returns the next byte offset to be read (for non-gzip files) or
// the count of decompressed bytes consumed so far (for gzip files).
func (w *Watcher) Position() int64 { return w.position }

// Fingerprint returns the content fingerprint computed when the file was
// first opened, or 0 if it hasn't been opened yet.
func (w *Watcher) Fingerprint() uint64 { return w.fingerprint }

// Dead reports whether this watcher has released its resources and should
// be discarded by the caller.
func (w *Watcher) Dead() bool { return w.dead }

// open lazily opens the underlying file, sniffing for gzip and seeking to
// w.position for a plain file. Gzip files cannot be seeked into: if
// w.position is non-zero for one, the position is dropped and reading
// restarts at the beginning of the decompressed stream, with a warning.
func (w *Watcher) open() error {
	if w.file != nil {
		return nil
	}
	f, err := os.Open(w.path)
	if err != nil {
		return err
	}

	head := make([]byte, checksum.FingerprintBytes)
	n, _ := io.ReadFull(f, head)
	w.fingerprint = checksum.Fingerprint(head[:n])
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return err
	}

	reader, isGzip, err := openDecompressed(f)
	if err != nil {
		_ = f.Close()
		return err
	}

	w.file = f
	w.isGzip = isGzip
	if isGzip {
		if w.position != 0 {
			w.logger.Warnf("%s%s is gzip-compressed; cannot resume at byte %d, restarting from the beginning", logging.NSTail, w.path, w.position)
			w.position = 0
		}
		w.reader = reader
		return nil
	}

	if w.position > 0 {
		if _, err := f.Seek(w.position, io.SeekStart); err != nil {
			_ = f.Close()
			w.file = nil
			return err
		}
	}
	w.reader = reader
	return nil
}

// CheckRotation re-stats the watched path and reports what, if anything,
// changed since the watcher was created or last reset: the path no longer
// resolving, the (device, inode) pair changing (rotation), or the file
// having shrunk below the watcher's position (truncation).
func (w *Watcher) CheckRotation() (RotationKind, InodeIdentity, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RotationRemoved, InodeIdentity{}, nil
		}
		return RotationNone, InodeIdentity{}, err
	}
	id, err := identityOf(fi)
	if err != nil {
		return RotationNone, InodeIdentity{}, err
	}
	if id != w.identity {
		return RotationRotated, id, nil
	}
	if fi.Size() < w.position {
		return RotationTruncated, id, nil
	}
	return RotationNone, id, nil
}

// MarkNotFindable records that the path didn't resolve this cycle. Once
// the elapsed time since the first such observation exceeds
// cfg.DeadGracePeriod, the caller should call MarkDead.
func (w *Watcher) MarkNotFindable(now time.Time) {
	if w.findable {
		w.findable = false
		w.notFindSince = now
	}
}

// MarkFindable clears a prior not-findable observation once the path
// resolves again (e.g. a brief removal that wasn't actually permanent).
func (w *Watcher) MarkFindable() {
	w.findable = true
}

// GracePeriodExpired reports whether a not-findable watcher has exceeded
// its dead grace period as of now.
func (w *Watcher) GracePeriodExpired(now time.Time) bool {
	return !w.findable && now.Sub(w.notFindSince) >= w.cfg.DeadGracePeriod
}

// Reset reopens the file from byte 0, for the truncation case.
func (w *Watcher) Reset() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
		w.reader = nil
	}
	w.position = 0
	w.partial = nil
	return w.open()
}

// MarkDead releases the watcher's file handle and returns the buffered
// partial line as a final, truncated Line if one was pending — per
// spec.md §4.3, a dead watcher drains any buffered partial line rather
// than discarding it silently.
func (w *Watcher) MarkDead() []Line {
	w.dead = true
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	if len(w.partial) == 0 {
		return nil
	}
	line := Line{Path: w.path, Data: w.partial, Offset: w.position - int64(len(w.partial)), Truncated: true}
	w.partial = nil
	return []Line{line}
}

// Poll reads whatever new bytes are available and returns zero or more
// complete lines. It clears reachedEOF when new bytes were found and sets
// it when a read returns no new bytes, per the watcher state table.
func (w *Watcher) Poll() ([]Line, error) {
	if w.dead {
		return nil, fmt.Errorf("filetail: poll on dead watcher for %s", w.path)
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	buf := make([]byte, 64<<10)
	var lines []Line
	readAny := false
	for {
		n, err := w.reader.Read(buf)
		if n > 0 {
			readAny = true
			w.position += int64(n)
			w.lastRead = time.Now()
			w.partial = append(w.partial, buf[:n]...)
			lines = append(lines, w.frameLines()...)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return lines, err
		}
		if n == 0 {
			break
		}
	}
	w.reachedEOF = !readAny
	return lines, nil
}

// frameLines extracts every complete, delimiter-terminated line currently
// sitting in w.partial, leaving any trailing partial line buffered.
func (w *Watcher) frameLines() []Line {
	var out []Line
	for {
		idx := bytes.IndexByte(w.partial, w.cfg.Delimiter)
		if idx < 0 {
			if len(w.partial) > w.cfg.MaxLineBytes {
				// No delimiter yet but already past the limit: emit a
				// truncated line now so unbounded lines don't grow the
				// buffer forever, and keep discarding until the delimiter.
				out = append(out, Line{
					Path:      w.path,
					Data:      append([]byte(nil), w.partial[:w.cfg.MaxLineBytes]...),
					Offset:    w.position - int64(len(w.partial)),
					Truncated: true,
				})
				w.partial = w.partial[w.cfg.MaxLineBytes:]
				continue
			}
			return out
		}
		raw := w.partial[:idx]
		truncated := false
		data := raw
		if len(raw) > w.cfg.MaxLineBytes {
			data = append([]byte(nil), raw[:w.cfg.MaxLineBytes]...)
			truncated = true
		} else {
			data = append([]byte(nil), raw...)
		}
		out = append(out, Line{
			Path:      w.path,
			Data:      data,
			Offset:    w.position - int64(len(w.partial)),
			Truncated: truncated,
		})
		w.partial = w.partial[idx+1:]
	}
}
