package memory

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Factory constructs an AdapterInfo for one subdirectory name found
// under the plugin directory. Real adapter packages register their
// factory here at package init, replacing the source's dynamic module
// import with a compile-time lookup (Design Note §9).
type Factory func() *AdapterInfo

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory is called from an adapter package's init() to make
// itself discoverable by directory name, without importing the
// registry at import time (keeps the dependency direction the same as
// the source's self-registering modules).
func RegisterFactory(dirName string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[dirName] = f
}

// Discovery scans a configured plugin directory once at startup; each
// subdirectory matching a registered factory name registers its
// adapter. Discovery is one-shot and cached, then kept current by an
// fsnotify watch on the directory (spec §4.A "discovery is one-shot and
// cached", supplemented with live re-scan).
type Discovery struct {
	dir      string
	registry *Registry
	log      *logrus.Logger
	fsw      *fsnotify.Watcher
	done     chan struct{}
	scanned  bool
	mu       sync.Mutex
}

func NewDiscovery(dir string, registry *Registry, log *logrus.Logger) *Discovery {
	if log == nil {
		log = logrus.New()
	}
	return &Discovery{dir: dir, registry: registry, log: log, done: make(chan struct{})}
}

// Scan performs the one-shot startup discovery. Safe to call more than
// once; subsequent calls are no-ops. Later rescans happen only through
// Watch, on directory Create events.
func (d *Discovery) Scan() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scanned {
		return nil
	}
	d.scanned = true
	return d.rescanLocked()
}

func (d *Discovery) rescanLocked() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		f, ok := factories[e.Name()]
		if !ok {
			continue
		}
		info := f()
		d.registry.Register(info)
		d.log.WithField("adapter", info.Name).Info("discovered adapter")
	}
	return nil
}

// Watch starts an fsnotify watch on the plugin directory so adapter
// subdirectories added after startup are picked up without a restart.
func (d *Discovery) Watch() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(d.dir); err != nil {
		fsw.Close()
		return err
	}
	d.fsw = fsw
	go d.loop()
	return nil
}

func (d *Discovery) loop() {
	for {
		select {
		case ev, ok := <-d.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			d.mu.Lock()
			if err := d.rescanLocked(); err != nil {
				d.log.WithError(err).Warn("adapter rescan failed")
			}
			d.mu.Unlock()
		case err, ok := <-d.fsw.Errors:
			if !ok {
				return
			}
			d.log.WithError(err).Warn("discovery watcher error")
		case <-d.done:
			return
		}
	}
}

func (d *Discovery) Stop() {
	if d.fsw != nil {
		close(d.done)
		d.fsw.Close()
	}
}

// PluginSubdir joins root and name into an adapter's plugin
// subdirectory path; it does not check name against any naming pattern.
func PluginSubdir(root, name string) string {
	return filepath.Join(root, name)
}
