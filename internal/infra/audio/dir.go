package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"voice-todo/internal/domain"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".mp4":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".opus": true,
}

// DirSource hands out audio files dropped into a directory. A file is taken
// once it has stopped changing for the settle period; it is then renamed
// with a .processed suffix. Files whose content was already seen are skipped.
type DirSource struct {
	dir    string
	settle time.Duration
	logger *slog.Logger

	clips    chan domain.AudioInput
	ready    chan string
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu   sync.Mutex
	seen map[string]bool
}

func NewDirSource(dir string, settle time.Duration, logger *slog.Logger) *DirSource {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &DirSource{
		dir:    dir,
		settle: settle,
		logger: logger,
		clips:  make(chan domain.AudioInput, 8),
		ready:  make(chan string),
		stopCh: make(chan struct{}),
		seen:   make(map[string]bool),
	}
}

func (d *DirSource) Name() string {
	return "dir"
}

func (d *DirSource) Start(_ context.Context) error {
	if d.dir == "" {
		return fmt.Errorf("watch directory is empty")
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("creating watch dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(d.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %s: %w", d.dir, err)
	}
	d.fsw = fsw

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		fsw.Close()
		return fmt.Errorf("reading dir: %w", err)
	}
	var existing []string
	for _, entry := range entries {
		if !entry.IsDir() && isAudio(entry.Name()) {
			existing = append(existing, filepath.Join(d.dir, entry.Name()))
		}
	}

	d.logger.Info("watching directory for voice notes", "dir", d.dir, "existing", len(existing))

	d.wg.Add(1)
	go d.loop(existing)
	return nil
}

func (d *DirSource) Stop() error {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		if d.fsw != nil {
			d.fsw.Close()
		}
	})
	d.wg.Wait()
	return nil
}

// NextClip blocks until a file is ready. It returns io.EOF after Stop.
func (d *DirSource) NextClip(ctx context.Context) (domain.AudioInput, error) {
	select {
	case <-ctx.Done():
		return domain.AudioInput{}, ctx.Err()
	case clip, ok := <-d.clips:
		if !ok {
			return domain.AudioInput{}, io.EOF
		}
		return clip, nil
	}
}

// loop debounces events per file; a file is ready once it has been quiet
// for the settle period.
func (d *DirSource) loop(existing []string) {
	defer d.wg.Done()
	defer close(d.clips)

	pending := make(map[string]func(func()))
	touch := func(path string) {
		deb, ok := pending[path]
		if !ok {
			deb = debounce.New(d.settle)
			pending[path] = deb
		}
		deb(func() {
			select {
			case d.ready <- path:
			case <-d.stopCh:
			}
		})
	}
	for _, path := range existing {
		touch(path)
	}

	for {
		select {
		case <-d.stopCh:
			return

		case event, ok := <-d.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isAudio(event.Name) {
				continue
			}
			touch(event.Name)

		case err, ok := <-d.fsw.Errors:
			if !ok {
				return
			}
			d.logger.Error("watcher error", "error", err)

		case path := <-d.ready:
			delete(pending, path)

			clip, ok := d.take(path)
			if !ok {
				continue
			}
			select {
			case d.clips <- clip:
			case <-d.stopCh:
				return
			}
		}
	}
}

func (d *DirSource) take(path string) (domain.AudioInput, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Error("reading voice note", "file", path, "error", err)
		}
		return domain.AudioInput{}, false
	}

	name := filepath.Base(path)
	clip, err := domain.NewAudioInput(name, mime.TypeByExtension(strings.ToLower(filepath.Ext(name))), data)
	if err != nil {
		d.logger.Warn("skipping voice note", "file", name, "error", err)
		return domain.AudioInput{}, false
	}

	if err := os.Rename(path, path+".processed"); err != nil {
		d.logger.Warn("marking voice note processed", "file", name, "error", err)
	}

	d.mu.Lock()
	dup := d.seen[clip.Fingerprint]
	d.seen[clip.Fingerprint] = true
	d.mu.Unlock()
	if dup {
		d.logger.Info("skipping duplicate voice note", "file", name, "fingerprint", clip.Fingerprint)
		return domain.AudioInput{}, false
	}

	return clip, true
}

func isAudio(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}
