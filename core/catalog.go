package core

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/cxconsole/internal/persist"
	"pkt.systems/cxconsole/schema"
)

// modelCatalog is process-wide; session restarts do not touch it.
type modelCatalog struct {
	entries    []schema.ModelEntry
	cachedAt   time.Time
	stale      bool
	loading    bool
	lastError  string
	staleAfter time.Duration
	// requestSeq numbers refreshes; appliedSeq is the newest one whose result landed.
	requestSeq uint64
	appliedSeq uint64
}

func (c *modelCatalog) snapshot(now time.Time) schema.CatalogSnapshot {
	stale := c.stale
	if !stale && !c.cachedAt.IsZero() && c.staleAfter > 0 && now.Sub(c.cachedAt) > c.staleAfter {
		stale = true
	}
	return schema.CatalogSnapshot{
		Entries:   schema.CloneModelEntries(c.entries),
		CachedAt:  c.cachedAt,
		Stale:     stale,
		Loading:   c.loading,
		LastError: c.lastError,
	}
}

// label resolves a model id to a display label. The default sentinel resolves to the
// entry flagged default; anything not in the catalog is shown verbatim.
func (c *modelCatalog) label(id schema.ModelID) string {
	if id == "" || id == schema.DefaultModelID {
		for _, entry := range c.entries {
			if entry.IsDefault {
				return entry.Label()
			}
		}
		return string(schema.DefaultModelID)
	}
	for _, entry := range c.entries {
		if entry.ID == id {
			return entry.Label()
		}
	}
	return string(id)
}

// CurrentModelLabel returns the display label for a model id without blocking on the backend.
func (e *Engine) CurrentModelLabel(id schema.ModelID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.label(id)
}

// Catalog returns the current catalog view.
func (e *Engine) Catalog() schema.CatalogSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.snapshot(e.now())
}

// RefreshModels fetches the model list. It never fails: on any error the previous
// entries are returned and marked stale when there are any. Concurrent refreshes
// share one backend call.
func (e *Engine) RefreshModels(ctx context.Context, notifyOnError bool) []schema.ModelEntry {
	e.mu.Lock()
	var out outbox
	if !e.session.info().Connected() {
		if len(e.catalog.entries) > 0 {
			e.catalog.stale = true
		}
		e.catalog.lastError = schema.ErrNotConnected.Error()
		if notifyOnError {
			e.appendMessageLocked(&out, schema.MessageSystem, "model list unavailable: "+schema.ErrNotConnected.Error())
		}
		out.catalog(e.catalog.snapshot(e.now()))
		entries := schema.CloneModelEntries(e.catalog.entries)
		e.mu.Unlock()
		out.flush(e.sink)
		return entries
	}
	e.catalog.loading = true
	e.catalog.lastError = ""
	e.catalog.requestSeq++
	seq := e.catalog.requestSeq
	out.catalog(e.catalog.snapshot(e.now()))
	e.mu.Unlock()
	out.flush(e.sink)

	value, err, _ := e.refreshes.Do("models", func() (any, error) {
		callCtx, cancel := e.requestContext(context.WithoutCancel(ctx))
		defer cancel()
		return e.bridge.ModelsList(callCtx)
	})

	e.mu.Lock()
	if seq > e.catalog.appliedSeq {
		e.catalog.appliedSeq = seq
		if seq == e.catalog.requestSeq {
			e.catalog.loading = false
		}
		if err != nil {
			e.catalog.stale = len(e.catalog.entries) > 0
			e.catalog.lastError = err.Error()
			if notifyOnError {
				e.appendMessageLocked(&out, schema.MessageSystem, fmt.Sprintf("model list refresh failed: %v", err))
			}
			e.logger.Warn("engine catalog refresh failed", "err", err, "cached", len(e.catalog.entries))
		} else {
			models, _ := value.([]schema.ModelEntry)
			e.catalog.entries = schema.CloneModelEntries(models)
			e.catalog.cachedAt = e.now()
			e.catalog.stale = false
			e.catalog.lastError = ""
			e.saveCatalogLocked()
			e.logger.Debug("engine catalog refresh ok", "models", len(models))
		}
		out.catalog(e.catalog.snapshot(e.now()))
	}
	entries := schema.CloneModelEntries(e.catalog.entries)
	e.mu.Unlock()
	out.flush(e.sink)
	return entries
}

func (e *Engine) saveCatalogLocked() {
	if e.store == nil {
		return
	}
	snapshot := persist.CatalogSnapshot{Entries: schema.CloneModelEntries(e.catalog.entries), CachedAt: e.catalog.cachedAt}
	if err := e.store.SaveCatalog(snapshot); err != nil {
		e.logger.Warn("engine catalog save failed", "err", err)
	}
}
