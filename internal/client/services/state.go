package services

import "github.com/dmitrijs2005/silosync/internal/client/models"

// collection is the in-memory list of one kind: insertion ordered, indexed by id.
type collection struct {
	items []models.Record
	index map[string]int
}

func newCollection(recs []models.Record) *collection {
	c := &collection{items: make([]models.Record, 0, len(recs)), index: make(map[string]int, len(recs))}
	for _, r := range recs {
		c.upsert(r)
	}
	return c
}

func (c *collection) get(id string) (models.Record, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.items[i], true
}

func (c *collection) upsert(r models.Record) {
	id := r.ID()
	if i, ok := c.index[id]; ok {
		c.items[i] = r
		return
	}
	c.index[id] = len(c.items)
	c.items = append(c.items, r)
}

func (c *collection) remove(id string) {
	i, ok := c.index[id]
	if !ok {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ID()] = j
	}
}

// replaceID swaps the record under oldID for r in place, keeping its position.
func (c *collection) replaceID(oldID string, r models.Record) {
	i, ok := c.index[oldID]
	if !ok {
		c.upsert(r)
		return
	}
	delete(c.index, oldID)
	if j, dup := c.index[r.ID()]; dup {
		// the real id is already present (refreshed meanwhile); drop the temp row
		c.items[j] = r
		c.items = append(c.items[:i], c.items[i+1:]...)
		for k := range c.index {
			delete(c.index, k)
		}
		for k, item := range c.items {
			c.index[item.ID()] = k
		}
		return
	}
	c.items[i] = r
	c.index[r.ID()] = i
}

func (c *collection) snapshot() []models.Record {
	out := make([]models.Record, len(c.items))
	for i, r := range c.items {
		out[i] = r.Clone()
	}
	return out
}

// rewriteRef points every record referring to from at to and reports
// whether any record changed.
func (c *collection) rewriteRef(from, to string) bool {
	changed := false
	for i, r := range c.items {
		if out, ok := models.RewriteRef(r, from, to); ok {
			c.items[i] = out
			changed = true
		}
	}
	return changed
}
