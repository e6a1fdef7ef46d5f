package task

import (
	"fmt"
	"sort"
	"time"
)

// CooldownTable maps coarse time-of-day windows to the sleep applied
// between consumer iterations. The night window covers the hours where
// shared infrastructure is quietest and workers may run hotter.
type CooldownTable struct {
	Default time.Duration
	Night   time.Duration
}

// KindDef declares one kind of work a worker accepts: how batches of it
// are chunked, whether dispatch is delayed, which ordering lane its
// chunks share, and how the consumer throttles between chunks.
// Definitions are immutable after catalog construction.
type KindDef struct {
	// Worker is the consumer identity that owns this kind.
	Worker string

	// Kind names the category of work.
	Kind string

	// ChunkSize is the maximum number of items per dispatched chunk.
	ChunkSize int

	// FixedDelay postpones dispatch of every chunk by this duration
	// when set. A publish-time override takes precedence.
	FixedDelay time.Duration

	// OrderingGroupTag, when set, serializes all chunks of this kind
	// for one store onto a single ordered lane ("{storeID}-{tag}").
	OrderingGroupTag string

	// Cooldown is the consumer's per-iteration throttle table.
	Cooldown CooldownTable
}

// CooldownAt returns the cooldown for the time-of-day bucket t falls in.
// Night runs from 23:00 through 07:59.
func (d KindDef) CooldownAt(t time.Time) time.Duration {
	hour := t.Hour()
	if hour >= 23 || hour <= 7 {
		return d.Cooldown.Night
	}
	return d.Cooldown.Default
}

// Catalog is the immutable registry of every worker/kind the system
// dispatches. It is constructed once at startup and shared by reference
// between publishers and consumers; concurrent reads are safe because
// it is never mutated after construction.
type Catalog struct {
	kinds map[string]map[string]KindDef
}

// NewCatalog builds a catalog from the given definitions. It rejects
// non-positive chunk sizes, empty names, and duplicate worker/kind pairs.
func NewCatalog(defs ...KindDef) (*Catalog, error) {
	kinds := make(map[string]map[string]KindDef)
	for _, def := range defs {
		if def.Worker == "" || def.Kind == "" {
			return nil, fmt.Errorf("kind definition missing worker or kind name: %+v", def)
		}
		if def.ChunkSize <= 0 {
			return nil, fmt.Errorf("kind %s/%s has non-positive chunk size %d",
				def.Worker, def.Kind, def.ChunkSize)
		}

		byKind, ok := kinds[def.Worker]
		if !ok {
			byKind = make(map[string]KindDef)
			kinds[def.Worker] = byKind
		}
		if _, exists := byKind[def.Kind]; exists {
			return nil, fmt.Errorf("duplicate kind definition %s/%s", def.Worker, def.Kind)
		}
		byKind[def.Kind] = def
	}

	return &Catalog{kinds: kinds}, nil
}

// Lookup returns the definition for the given worker/kind pair, or an
// error wrapping ErrUnknownKind if it is not declared.
func (c *Catalog) Lookup(worker, kind string) (KindDef, error) {
	if byKind, ok := c.kinds[worker]; ok {
		if def, ok := byKind[kind]; ok {
			return def, nil
		}
	}
	return KindDef{}, fmt.Errorf("%w: %s/%s", ErrUnknownKind, worker, kind)
}

// HasWorker reports whether any kind is declared for the given worker.
func (c *Catalog) HasWorker(worker string) bool {
	return len(c.kinds[worker]) > 0
}

// WorkerKinds returns the definitions declared for a worker, sorted by
// kind name for stable iteration.
func (c *Catalog) WorkerKinds(worker string) []KindDef {
	byKind := c.kinds[worker]
	defs := make([]KindDef, 0, len(byKind))
	for _, def := range byKind {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Kind < defs[j].Kind })
	return defs
}
