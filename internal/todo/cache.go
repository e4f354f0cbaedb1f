package todo

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"go-todo-app/internal/model"
)

// PageCache is the read cache for the todo façade, keyed by page
// parameters. Mutations snapshot the cache before dispatching to the
// remote and restore the snapshot verbatim if the remote call fails.
//
// Entries are deep-copied on the way in and out so callers never alias
// cached slices. A bounded LRU keeps memory flat when clients walk many
// page/limit combinations.
type PageCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, model.TodoPage]
}

func NewPageCache(size int) (*PageCache, error) {
	entries, err := lru.New[string, model.TodoPage](size)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	return &PageCache{entries: entries}, nil
}

func cacheKey(page int, limit int) string {
	return fmt.Sprintf("page=%d&limit=%d", page, limit)
}

func (c *PageCache) Get(page int, limit int) (model.TodoPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(cacheKey(page, limit))
	if !ok {
		return model.TodoPage{}, false
	}
	return copyPage(entry), true
}

func (c *PageCache) Put(p model.TodoPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(cacheKey(p.Page, p.Limit), copyPage(p))
}

// Find scans cached entries for an item by id. Provisional items only
// exist here, never at the remote.
func (c *PageCache) Find(id int) (model.Todo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		for _, t := range entry.Data {
			if t.ID == id {
				return t, true
			}
		}
	}
	return model.Todo{}, false
}

// Snapshot deep-copies every cached entry.
func (c *PageCache) Snapshot() map[string]model.TodoPage {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := make(map[string]model.TodoPage, c.entries.Len())
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok {
			snap[key] = copyPage(entry)
		}
	}
	return snap
}

// Restore replaces the cache contents with a previously taken snapshot.
func (c *PageCache) Restore(snap map[string]model.TodoPage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Purge()
	for key, entry := range snap {
		c.entries.Add(key, copyPage(entry))
	}
}

// ApplyCreate prepends the new item to every cached first page and bumps
// every entry's total, mirroring what a refetch would report.
func (c *PageCache) ApplyCreate(t model.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		entry = copyPage(entry)
		entry.Total++
		if entry.Page == 1 {
			entry.Data = append([]model.Todo{t}, entry.Data...)
			if len(entry.Data) > entry.Limit {
				entry.Data = entry.Data[:entry.Limit]
			}
		}
		c.entries.Add(key, entry)
	}
}

// ApplyUpdate replaces the item wherever it appears.
func (c *PageCache) ApplyUpdate(t model.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		changed := false
		entry = copyPage(entry)
		for i := range entry.Data {
			if entry.Data[i].ID == t.ID {
				entry.Data[i] = t
				changed = true
			}
		}
		if changed {
			c.entries.Add(key, entry)
		}
	}
}

// ReplaceID swaps a provisional item for the remote-confirmed value.
func (c *PageCache) ReplaceID(oldID int, confirmed model.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		changed := false
		entry = copyPage(entry)
		for i := range entry.Data {
			if entry.Data[i].ID == oldID {
				entry.Data[i] = confirmed
				changed = true
			}
		}
		if changed {
			c.entries.Add(key, entry)
		}
	}
}

// ApplyDelete removes the item wherever it appears and decrements
// totals. An id absent from every entry leaves the cache untouched, so
// repeated deletes of the same id cannot drift totals below reality.
func (c *PageCache) ApplyDelete(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	present := false
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		for _, t := range entry.Data {
			if t.ID == id {
				present = true
			}
		}
	}
	if !present {
		return
	}

	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		entry = copyPage(entry)
		entry.Total--
		filtered := entry.Data[:0:0]
		for _, t := range entry.Data {
			if t.ID != id {
				filtered = append(filtered, t)
			}
		}
		entry.Data = filtered
		c.entries.Add(key, entry)
	}
}

func (c *PageCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Purge()
}

func copyPage(p model.TodoPage) model.TodoPage {
	data := make([]model.Todo, len(p.Data))
	copy(data, p.Data)
	p.Data = data
	return p
}
