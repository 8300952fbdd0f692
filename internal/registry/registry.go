package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lecture-rag/internal/domain"
)

const (
	// lockRetryInterval is the pause between lockfile acquisition
	// attempts while another writer holds it.
	lockRetryInterval = 10 * time.Millisecond
	// lockWaitMax bounds how long a writer waits for the lockfile
	// before reporting a conflict.
	lockWaitMax = 5 * time.Second
	// lockStaleAfter is the age past which an abandoned lockfile from
	// a dead process is broken.
	lockStaleAfter = 30 * time.Second
)

// table is the persisted registry file. Version increments on every
// successful write.
type table struct {
	Version int                           `json:"version"`
	Stores  map[string]domain.StoreRecord `json:"stores"`
}

// Registry is the persistent mapping from (institute, course) to a
// remote document-store identifier. It is an owned object with an
// Open lifecycle; there is no package-level shared state. Writers in
// independent processes are serialized by an exclusive lockfile held
// across the whole read-modify-write, so no update is ever lost.
type Registry struct {
	path string

	mu  sync.Mutex
	tbl table
}

// Open loads the registry table at path. A missing file yields an
// empty registry; the file is created on first write.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}
	tbl, err := r.read()
	if err != nil {
		return nil, err
	}
	r.tbl = tbl
	return r, nil
}

// Key normalizes an (institute, course) pair into the registry key.
// Case and surrounding whitespace are not significant.
func Key(institute, course string) string {
	return strings.ToLower(strings.TrimSpace(institute)) + ":" + strings.ToLower(strings.TrimSpace(course))
}

// Lookup returns the record for an (institute, course) pair, or
// ErrNotFound. It re-reads the table so registrations made by other
// processes are visible.
func (r *Registry) Lookup(institute, course string) (domain.StoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tbl, err := r.read()
	if err != nil {
		return domain.StoreRecord{}, err
	}
	r.tbl = tbl
	rec, ok := tbl.Stores[Key(institute, course)]
	if !ok {
		return domain.StoreRecord{}, fmt.Errorf("%w: no store registered for %s:%s", domain.ErrNotFound, institute, course)
	}
	return rec, nil
}

// Register writes a record for the pair, preserving the original
// created_at when the pair was already registered.
func (r *Registry) Register(institute, course, storeID string) (domain.StoreRecord, error) {
	var out domain.StoreRecord
	err := r.mutate(func(tbl *table) error {
		key := Key(institute, course)
		createdAt := time.Now().UTC()
		if prev, ok := tbl.Stores[key]; ok && !prev.CreatedAt.IsZero() {
			createdAt = prev.CreatedAt
		}
		out = domain.StoreRecord{
			Institute: strings.TrimSpace(institute),
			Course:    strings.TrimSpace(course),
			StoreID:   storeID,
			CreatedAt: createdAt,
		}
		tbl.Stores[key] = out
		return nil
	})
	return out, err
}

// GetOrCreate returns the pair's store record, invoking create only
// when no record exists. Repeated calls after the first successful
// creation return the identical store id without calling create again;
// a concurrent creator's record wins over ours.
func (r *Registry) GetOrCreate(institute, course string, create func() (string, error)) (domain.StoreRecord, error) {
	if rec, err := r.Lookup(institute, course); err == nil {
		return rec, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.StoreRecord{}, err
	}
	storeID, err := create()
	if err != nil {
		return domain.StoreRecord{}, err
	}
	var out domain.StoreRecord
	err = r.mutate(func(tbl *table) error {
		key := Key(institute, course)
		if existing, ok := tbl.Stores[key]; ok {
			out = existing
			return nil
		}
		out = domain.StoreRecord{
			Institute: strings.TrimSpace(institute),
			Course:    strings.TrimSpace(course),
			StoreID:   storeID,
			CreatedAt: time.Now().UTC(),
		}
		tbl.Stores[key] = out
		return nil
	})
	return out, err
}

// List returns all records sorted by key.
func (r *Registry) List() ([]domain.StoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tbl, err := r.read()
	if err != nil {
		return nil, err
	}
	r.tbl = tbl
	keys := make([]string, 0, len(tbl.Stores))
	for k := range tbl.Stores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	records := make([]domain.StoreRecord, 0, len(keys))
	for _, k := range keys {
		records = append(records, tbl.Stores[k])
	}
	return records, nil
}

// Remove deletes the record for a pair. Returns false when the pair
// was not registered.
func (r *Registry) Remove(institute, course string) (bool, error) {
	removed := false
	err := r.mutate(func(tbl *table) error {
		key := Key(institute, course)
		if _, ok := tbl.Stores[key]; ok {
			delete(tbl.Stores, key)
			removed = true
		}
		return nil
	})
	return removed, err
}

// RemoveByStoreID deletes every record pointing at storeID and returns
// how many were removed.
func (r *Registry) RemoveByStoreID(storeID string) (int, error) {
	removed := 0
	err := r.mutate(func(tbl *table) error {
		for key, rec := range tbl.Stores {
			if rec.StoreID == storeID {
				delete(tbl.Stores, key)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// Clear removes every record.
func (r *Registry) Clear() error {
	return r.mutate(func(tbl *table) error {
		tbl.Stores = map[string]domain.StoreRecord{}
		return nil
	})
}

// mutate runs one read-modify-write cycle under the exclusive
// lockfile: re-read the table, apply fn, write atomically, release.
// Holding the lock across the whole cycle is what makes concurrent
// processes safe; a version check alone would leave a window between
// check and rename where a racing writer's update vanishes.
func (r *Registry) mutate(fn func(tbl *table) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()
	snapshot, err := r.read()
	if err != nil {
		return err
	}
	next := table{Version: snapshot.Version + 1, Stores: cloneStores(snapshot.Stores)}
	if err := fn(&next); err != nil {
		return err
	}
	if err := r.write(next); err != nil {
		return err
	}
	r.tbl = next
	return nil
}

// lock acquires the registry's sidecar lockfile via O_CREATE|O_EXCL,
// which is atomic on every platform the engine targets. An abandoned
// lock older than lockStaleAfter is broken; waiting longer than
// lockWaitMax reports ErrRegistryConflict.
func (r *Registry) lock() (func(), error) {
	lockPath := r.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(lockWaitMax)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: lock %s not released within %s", domain.ErrRegistryConflict, lockPath, lockWaitMax)
		}
		time.Sleep(lockRetryInterval)
	}
}

func (r *Registry) read() (table, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return table{Stores: map[string]domain.StoreRecord{}}, nil
		}
		return table{}, err
	}
	var tbl table
	if err := json.Unmarshal(data, &tbl); err != nil {
		return table{}, fmt.Errorf("corrupt registry file %s: %w", r.path, err)
	}
	if tbl.Stores == nil {
		tbl.Stores = map[string]domain.StoreRecord{}
	}
	return tbl, nil
}

func (r *Registry) write(tbl table) error {
	data, err := json.MarshalIndent(tbl, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, r.path)
}

func cloneStores(in map[string]domain.StoreRecord) map[string]domain.StoreRecord {
	out := make(map[string]domain.StoreRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
