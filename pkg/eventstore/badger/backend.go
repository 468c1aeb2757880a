// Package badger is the embedded event store of the engine, a badger
// database holding each event as JSON under a monotonic serial with prefix
// indexes pointing at it.
package badger

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/dgraph-io/badger/v4"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

var _ eventstore.Store = (*Backend)(nil)

// DefaultMaxLimit caps a query without a limit.
const DefaultMaxLimit = 5000

// DefaultCapacities is the ladder of block cache sizes in megabytes tried
// when opening the store.
var DefaultCapacities = []int64{256, 64, 16}

const (
	mb          = 1 << 20
	minMemTable = 8
	maxMemTable = 64
)

type Backend struct {
	Path string
	// MaxLimit is the number of events returned by a query without a limit.
	MaxLimit int
	// DB is the badger db interface
	*badger.DB
	// seq is the monotonic collision free index for raw event storage.
	seq *badger.Sequence
	// writeMx serializes the read-check-write sequences of save and delete.
	writeMx sync.Mutex
}

// OpenResult records how the store was opened.
type OpenResult struct {
	// Capacity is the block cache size in megabytes of the configuration
	// that opened.
	Capacity int64 `json:"capacity"`
	// Attempts counts every open tried, including the one after a recreate.
	Attempts int `json:"attempts"`
	// Recreated is true when the directory was wiped before the final open.
	Recreated bool `json:"recreated"`
}

var (
	// openMx keeps two opens, and so two recreates of a directory, from
	// running at the same time.
	openMx sync.Mutex
	openDB = badger.Open
)

func options(path string, capacity int64) badger.Options {
	mem := min(max(capacity/4, minMemTable), maxMemTable)
	return badger.DefaultOptions(path).
		WithLogger(logger{Label: path}).
		WithBlockCacheSize(capacity * mb).
		WithIndexCacheSize(capacity * mb / 4).
		WithMemTableSize(mem * mb).
		WithNumMemtables(2).
		WithValueLogFileSize(64 * mb).
		WithNumVersionsToKeep(1)
}

// locked reports whether badger refused to open because another handle,
// in this process or another one, holds the directory lock.
func locked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "Another process is using this Badger database")
}

// Open opens the store at path trying each capacity in descending order
// until one succeeds. When every capacity fails, or the files on disk are
// truncated, the directory is removed and opened once more with the smallest
// capacity; if that fails too the error wraps errs.StoreCorruption. A store
// that is in use elsewhere is never removed: the error wraps
// errs.NotInitialized.
func Open(path string, capacities ...int64) (b *Backend, res OpenResult, err error) {
	openMx.Lock()
	defer openMx.Unlock()
	caps := slices.Clone(capacities)
	if len(caps) == 0 {
		caps = slices.Clone(DefaultCapacities)
	}
	slices.SortFunc(caps, func(a, b int64) int { return cmp.Compare(b, a) })
	caps = slices.Compact(caps)
	var db *badger.DB
	if err = checkFiles(path); err == nil {
		for _, c := range caps {
			res.Attempts++
			log.D.F("opening event store at %s with %dMB cache", path, c)
			if db, err = openDB(options(path, c)); err == nil {
				res.Capacity = c
				break
			}
			if locked(err) {
				log.E.F("event store at %s is in use: %v", path, err)
				return nil, res, fmt.Errorf("event store at %s is in use: %v: %w",
					path, err, errs.NotInitialized)
			}
			log.W.F("opening event store with %dMB cache failed: %v", c, err)
		}
	}
	if db == nil {
		log.E.F("event store at %s is unusable, recreating it: %v", path, err)
		if err = os.RemoveAll(path); chk.E(err) {
			return nil, res, fmt.Errorf("removing %s: %v: %w", path, err, errs.StoreCorruption)
		}
		res.Recreated = true
		res.Attempts++
		smallest := caps[len(caps)-1]
		if db, err = openDB(options(path, smallest)); chk.E(err) {
			return nil, res, fmt.Errorf("opening recreated store: %v: %w", err, errs.StoreCorruption)
		}
		res.Capacity = smallest
	}
	b = &Backend{Path: path, MaxLimit: DefaultMaxLimit, DB: db}
	if b.seq, err = db.GetSequence([]byte("events"), 1000); chk.E(err) {
		_ = db.Close()
		return nil, res, err
	}
	if err = b.runMigrations(); chk.E(err) {
		_ = b.Close()
		return nil, res, log.E.Err("error running migrations: %w; %s", err, path)
	}
	log.I.F("event store open at %s (%dMB cache, %d attempts, recreated %v)",
		path, res.Capacity, res.Attempts, res.Recreated)
	return
}

// checkFiles reports an error when the manifest or a value log file exists
// but is empty or cannot be read.
func checkFiles(path string) (err error) {
	var entries []os.DirEntry
	if entries, err = os.ReadDir(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name != "MANIFEST" && !strings.HasSuffix(name, ".vlog") {
			continue
		}
		var fi os.FileInfo
		if fi, err = e.Info(); err != nil {
			return
		}
		if fi.Size() == 0 {
			return fmt.Errorf("%s is empty", name)
		}
		var f *os.File
		if f, err = os.Open(filepath.Join(path, name)); err != nil {
			return
		}
		_ = f.Close()
	}
	return nil
}

func (b *Backend) Close() (err error) {
	if b.seq != nil {
		chk.E(b.seq.Release())
	}
	return b.DB.Close()
}

// Serial returns a new serial value for an event record, a monotonic,
// atomic, ascending counter.
func (b *Backend) Serial() (ser uint64, err error) {
	ser, err = b.seq.Next()
	chk.E(err)
	return
}
