package config

import (
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Overrides holds generation parameters passed verbatim to the model service
// with every request (temperature, max tokens and whatever else the service
// understands). Loaded from a YAML file and hot-reloaded on change.
type Overrides struct {
	mu     sync.RWMutex
	path   string
	values map[string]interface{}
}

// LoadOverrides reads the overrides file at path. A missing or empty path
// yields an empty override set, not an error.
func LoadOverrides(path string) (*Overrides, error) {
	o := &Overrides{path: path, values: map[string]interface{}{}}
	if path == "" {
		return o, nil
	}
	if err := o.reload(); err != nil {
		return nil, err
	}
	return o, nil
}

// Values returns a copy of the current override map.
func (o *Overrides) Values() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]interface{}, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

func (o *Overrides) reload() error {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return err
	}

	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return err
	}

	o.mu.Lock()
	o.values = values
	o.mu.Unlock()
	return nil
}

// Watch reloads the overrides file whenever it changes. Blocks until the
// watcher fails; run it in a goroutine.
func (o *Overrides) Watch() {
	if o.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  [CONFIG] Overrides watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(o.path); err != nil {
		log.Printf("⚠️  [CONFIG] Cannot watch overrides file %s: %v", o.path, err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := o.reload(); err != nil {
					log.Printf("⚠️  [CONFIG] Overrides reload failed: %v", err)
					continue
				}
				log.Printf("✅ [CONFIG] Overrides reloaded from %s", o.path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  [CONFIG] Overrides watcher error: %v", err)
		}
	}
}
