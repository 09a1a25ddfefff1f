package commands

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wabot/pkg/logger"
)

// cacheTTL is how long a load result stays fresh before Resolve
// triggers a rebuild.
const cacheTTL = 5 * time.Minute

// Registry holds the loaded command set. Loads are cached; a forced
// reload rebuilds from the registered sources.
type Registry struct {
	log *logger.Logger

	mu       sync.RWMutex
	sources  []Source
	byName   map[string]*Descriptor
	aliases  map[string]string
	loadedAt time.Time
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:     log,
		byName:  make(map[string]*Descriptor),
		aliases: make(map[string]string),
		now:     time.Now,
	}
}

// AddSource registers a descriptor source. Sources load in registration
// order, which decides who wins name collisions.
func (r *Registry) AddSource(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
	r.loadedAt = time.Time{}
}

// Load builds the command set from all sources. Within the cache window
// it is a no-op unless force is set. A failing source is logged and
// skipped; its commands simply go missing until the next reload.
func (r *Registry) Load(force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) < cacheTTL {
		return nil
	}

	byName := make(map[string]*Descriptor)
	aliases := make(map[string]string)

	for _, src := range r.sources {
		descriptors, err := loadSource(src)
		if err != nil {
			r.log.Error("Command source failed to load",
				zap.String("source", src.Name),
				zap.Error(err))
			continue
		}

		for _, d := range descriptors {
			if err := normalize(d); err != nil {
				r.log.Warn("Skipping invalid command",
					zap.String("source", src.Name),
					zap.String("command", d.Name),
					zap.Error(err))
				continue
			}

			if prev, exists := byName[d.Name]; exists {
				r.log.Warn("Duplicate command name, keeping first",
					zap.String("command", d.Name),
					zap.String("kept", prev.Name),
					zap.String("source", src.Name))
				continue
			}
			byName[d.Name] = d

			for _, alias := range d.Aliases {
				alias = strings.ToLower(alias)
				if alias == "" || alias == d.Name {
					continue
				}
				if _, taken := byName[alias]; taken {
					r.log.Warn("Alias shadows a command name, skipping",
						zap.String("alias", alias),
						zap.String("command", d.Name))
					continue
				}
				if owner, taken := aliases[alias]; taken {
					r.log.Warn("Duplicate alias, keeping first",
						zap.String("alias", alias),
						zap.String("kept", owner),
						zap.String("skipped", d.Name))
					continue
				}
				aliases[alias] = d.Name
			}
		}
	}

	// Late alias registrations can still collide with a command name
	// loaded from a later source.
	for alias, target := range aliases {
		if _, taken := byName[alias]; taken {
			delete(aliases, alias)
			r.log.Warn("Alias shadows a command name, dropping",
				zap.String("alias", alias),
				zap.String("command", target))
		}
	}

	r.byName = byName
	r.aliases = aliases
	r.loadedAt = r.now()

	r.log.Info("Commands loaded",
		zap.Int("commands", len(byName)),
		zap.Int("aliases", len(aliases)))
	return nil
}

// loadSource runs a source with panic isolation; a panicking source is
// just another load failure.
func loadSource(src Source) (descriptors []*Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			descriptors = nil
			err = fmt.Errorf("source panicked: %v", r)
		}
	}()
	return src.Load()
}

// normalize lowercases names and fills descriptor defaults in place.
func normalize(d *Descriptor) error {
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))
	if d.Name == "" {
		return fmt.Errorf("command has no name")
	}
	if d.Handler == nil {
		return fmt.Errorf("command has no handler")
	}
	if d.Category == "" {
		d.Category = CategoryGeneral
	}
	if d.Cooldown < 0 {
		d.Cooldown = 0
	}
	if d.MinArgs == 0 {
		for _, a := range d.Args {
			if a.Required {
				d.MinArgs++
			}
		}
	}
	if d.Usage == "" && len(d.Args) > 0 {
		parts := make([]string, 0, len(d.Args))
		for _, a := range d.Args {
			if a.Required {
				parts = append(parts, "<"+a.Name+">")
			} else {
				parts = append(parts, "["+a.Name+"]")
			}
		}
		d.Usage = strings.Join(parts, " ")
	}
	return nil
}

// Resolve looks up a command by name or alias, reloading first if the
// cache has gone stale.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	name = strings.ToLower(name)

	r.mu.RLock()
	stale := r.loadedAt.IsZero() || r.now().Sub(r.loadedAt) >= cacheTTL
	r.mu.RUnlock()
	if stale {
		if err := r.Load(false); err != nil {
			return nil, false
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byName[name]; ok {
		return d, true
	}
	if canonical, ok := r.aliases[name]; ok {
		if d, ok := r.byName[canonical]; ok {
			return d, true
		}
	}
	return nil, false
}

// SetCooldown overrides a command's cooldown at runtime. The override
// survives until the next reload.
func (r *Registry) SetCooldown(name string, cooldown time.Duration) error {
	if cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}

	d, ok := r.Resolve(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	d.Cooldown = cooldown
	return nil
}

// All returns every loaded descriptor sorted by name.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Visible returns the non-hidden descriptors sorted by category, then
// name. The menu renders straight from this.
func (r *Registry) Visible() []*Descriptor {
	all := r.All()
	out := all[:0]
	for _, d := range all {
		if !d.Hidden {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Count returns how many commands are loaded.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
