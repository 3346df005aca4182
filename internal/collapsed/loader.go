package collapsed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/internal/resolver"
	"github.com/callpath-core/pkg/cct"
	apperrors "github.com/callpath-core/pkg/errors"
	"github.com/callpath-core/pkg/utils"
)

// DefaultModule is the load module of frames that name none.
const DefaultModule = "[unknown module]"

const maxLineSize = 4 << 20

// Options holds configuration options for the loader.
type Options struct {
	// IncludeSwapper charges swapper (idle) samples to the idle placeholder
	// instead of dropping them.
	IncludeSwapper bool

	// StrictMode fails on the first malformed line.
	StrictMode bool

	// Unit names the unit of line counts.
	Unit string
}

// DefaultOptions returns default loader options.
func DefaultOptions() *Options {
	return &Options{Unit: "samples"}
}

// Stats counts what a loader has read.
type Stats struct {
	Lines   int64 `json:"lines"`
	Samples int64 `json:"samples"` // sum of line counts replayed
	Idle    int64 `json:"idle"`    // swapper counts
	Skipped int64 `json:"skipped"` // malformed or corrupt lines
	Threads int   `json:"threads"`
}

// Loader replays collapsed stacks into one ThreadProfile per thread. It
// stands in for an unwinder: function names are interned into a symbol
// table which then classifies frames like real addresses. A Loader is not
// safe for concurrent use.
type Loader struct {
	opts    *Options
	symbols *resolver.SymbolTable
	logger  utils.Logger

	threads map[string]*profile.ThreadProfile
	order   []string
	frames  []cct.Frame
	stats   Stats
	sealed  bool
}

// NewLoader creates a loader. A nil symbol table gets a fresh one.
func NewLoader(opts *Options, symbols *resolver.SymbolTable, logger utils.Logger) *Loader {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Unit == "" {
		opts.Unit = "samples"
	}
	if symbols == nil {
		symbols = resolver.NewSymbolTable()
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Loader{
		opts:    opts,
		symbols: symbols,
		logger:  logger,
		threads: make(map[string]*profile.ThreadProfile),
	}
}

// Symbols returns the table frames were interned into.
func (l *Loader) Symbols() *resolver.SymbolTable { return l.symbols }

// Stats returns what has been read so far.
func (l *Loader) Stats() Stats {
	s := l.stats
	s.Threads = len(l.order)
	return s
}

// LoadFile reads one collapsed file.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	l.logger.Debug("Loading collapsed stacks from %s", path)
	return l.Load(ctx, f)
}

// Load reads collapsed lines from r.
func (l *Loader) Load(ctx context.Context, r io.Reader) error {
	if l.sealed {
		return apperrors.ErrClosed
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.stats.Lines++

		if err := l.replay(line); err != nil {
			if l.opts.StrictMode {
				return apperrors.Wrap(apperrors.CodeParseError, fmt.Sprintf("line %d", lineNum), err)
			}
			l.stats.Skipped++
			l.logger.Debug("Skipping line %d: %v", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeParseError, "failed to read input", err)
	}
	return nil
}

// replay charges one line to its thread.
func (l *Loader) replay(line string) error {
	lastSpace := strings.LastIndexAny(line, " \t")
	if lastSpace == -1 {
		return fmt.Errorf("missing sample count")
	}
	count, err := strconv.ParseInt(strings.TrimSpace(line[lastSpace+1:]), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid count value: %w", err)
	}
	if count < 0 {
		return fmt.Errorf("negative count %d", count)
	}

	stack := strings.TrimSpace(line[:lastSpace])
	threadField, _, _ := strings.Cut(stack, ";")
	if IsInvalidData(threadField) {
		return fmt.Errorf("corrupt record %q", threadField)
	}

	info, frames := ParseCallStack(stack)
	if IsSwapperThread(threadField) {
		l.stats.Idle += count
		if l.opts.IncludeSwapper {
			l.thread(info).SamplePlaceholder(resolver.Idle, profile.SlotValue, float64(count))
			l.stats.Samples += count
		}
		return nil
	}

	p := l.thread(info)

	if len(frames) == 0 {
		p.SamplePlaceholder(resolver.Unknown, profile.SlotValue, float64(count))
		l.stats.Samples += count
		return nil
	}

	l.frames = l.frames[:0]
	for _, f := range frames {
		l.frames = append(l.frames, l.frame(f))
	}
	p.Sample(l.frames, profile.SlotValue, float64(count))
	l.stats.Samples += count
	return nil
}

// frame interns f and returns it as an unwound frame.
func (l *Loader) frame(f StackFrame) cct.Frame {
	if IsUnknownFrame(f) {
		return resolver.Unknown.Frame()
	}
	module := f.Module
	if module == "" {
		module = DefaultModule
	}
	sym := l.symbols.Intern(l.symbols.AddModule(module), f.Function)
	return cct.Frame{IP: sym.Start, Name: f.Function, File: sym.File}
}

func (l *Loader) thread(info ThreadInfo) *profile.ThreadProfile {
	key := info.Key()
	if p, ok := l.threads[key]; ok {
		return p
	}
	p := profile.NewThreadProfile(key, profile.NewThreadLayout(l.opts.Unit), l.symbols)
	l.threads[key] = p
	l.order = append(l.order, key)
	return p
}

// Sources seals every thread profile and returns them in order of first
// appearance. The loader accepts no input afterwards.
func (l *Loader) Sources() []profile.Source {
	l.sealed = true
	sources := make([]profile.Source, 0, len(l.order))
	for _, key := range l.order {
		sources = append(sources, l.threads[key].Seal())
	}
	l.logger.Info("Loaded %d lines into %d threads (%d samples, %d skipped)",
		l.stats.Lines, len(l.order), l.stats.Samples, l.stats.Skipped)
	return sources
}
