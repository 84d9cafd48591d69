// Package plandir watches a directory of .dsl plan files and
// recompiles whichever one changes, so a running supervisor can pick up
// edited plans without a restart.
package plandir

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/compiler"
	"github.com/flowtitan/flowtitan/internal/dsl"
	"github.com/flowtitan/flowtitan/internal/logging"
)

// CompileResult is delivered to a Watcher's OnChange callback after a
// plan file is (re)compiled.
type CompileResult struct {
	Path string
	CFG  *cfg.CFG
	Hash string
	Err  error
}

// Watcher recompiles every .dsl file under a directory on write/create
// and reports the result through OnChange.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	OnChange func(CompileResult)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	log *logging.Logger
}

// New creates a Watcher rooted at dir. Call Start to begin watching.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		fsw:  fsw,
		dir:  dir,
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  logging.Get(logging.CategoryCore),
	}, nil
}

// Start launches the watch loop in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop closes the underlying fsnotify watcher and waits for the loop to
// exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Watcher) run() {
	defer close(w.done)
	defer w.fsw.Close()
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".dsl") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.recompile(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("plan directory watch error: %v", err)
		}
	}
}

func (w *Watcher) recompile(path string) {
	result := CompileResult{Path: path}
	defer func() {
		if w.OnChange != nil {
			w.OnChange(result)
		}
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		result.Err = err
		return
	}
	root, err := dsl.Parse(string(raw))
	if err != nil {
		result.Err = err
		return
	}
	if vr := dsl.Validate(root); !vr.OK() {
		result.Err = validationError{issues: vr.Errors}
		return
	}
	g, err := compiler.Compile(root)
	if err != nil {
		result.Err = err
		return
	}
	hash, err := g.CanonicalHash()
	if err != nil {
		result.Err = err
		return
	}
	result.CFG = g
	result.Hash = hash
	w.log.Info("recompiled %s (hash=%s)", filepath.Base(path), hash[:12])
}

type validationError struct{ issues []dsl.ValidationIssue }

func (e validationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return e.issues[0].Message
}
