package granite

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/minisql/minisql/server/merrors"
)

// walManager owns the single shared append-only WAL file, the LSN counter,
// and the group-commit condition variable: exactly one goroutine per commit
// epoch performs the fsync; the rest wait on durableLSN and return once
// their own LSN is covered.
type walManager struct {
	mu   sync.Mutex // append-mutex: serializes buffer appends and the fsync race
	cond *sync.Cond

	f   *os.File
	lsn uint64 // highest LSN ever assigned

	durableLSN   uint64 // highest LSN known fsynced
	pendingLSN   uint64 // highest LSN appended to the file but not yet necessarily synced
	fsyncPending bool   // true while one goroutine owns the in-flight fsync

	checkpointPath string
}

func newWALManager(walPath, checkpointPath string) (*walManager, error) {
	f, err := os.OpenFile(walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageIO, err, "opening WAL file %s", walPath)
	}
	m := &walManager{f: f, checkpointPath: checkpointPath}
	m.cond = sync.NewCond(&m.mu)
	m.lsn = readCheckpointLSN(checkpointPath)
	return m, nil
}

func readCheckpointLSN(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil || len(data) < 8 {
		return 0
	}
	var lsn uint64
	for i := 0; i < 8; i++ {
		lsn |= uint64(data[i]) << (8 * uint(i))
	}
	return lsn
}

func (m *walManager) writeCheckpointMarker(lsn uint64) error {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(lsn >> (8 * uint(i)))
	}
	tmp := m.checkpointPath + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return merrors.Wrap(merrors.KindStorageIO, err, "writing checkpoint marker")
	}
	return os.Rename(tmp, m.checkpointPath)
}

// nextLSN allocates a fresh, strictly-increasing LSN.
func (m *walManager) nextLSN() uint64 {
	return atomic.AddUint64(&m.lsn, 1)
}

// appendAndSync appends the already-encoded record bytes for a transaction
// (buffered mutation records followed by a COMMIT record) and participates
// in group commit: it blocks until durableLSN >= lsn, performing the fsync
// itself if no other goroutine currently owns the in-flight batch. A
// goroutine that wakes from a wait and finds its LSN still not durable
// re-attempts ownership itself rather than assuming some other commit will
// eventually carry it past the line.
func (m *walManager) appendAndSync(encoded []byte, lsn uint64) error {
	m.mu.Lock()
	if _, err := m.f.Write(encoded); err != nil {
		m.mu.Unlock()
		return merrors.Wrap(merrors.KindWalCorrupt, err, "appending WAL record")
	}
	if lsn > m.pendingLSN {
		m.pendingLSN = lsn
	}

	for m.durableLSN < lsn {
		if m.fsyncPending {
			m.cond.Wait()
			continue
		}

		m.fsyncPending = true
		target := m.pendingLSN
		m.mu.Unlock()

		err := m.f.Sync()

		m.mu.Lock()
		m.fsyncPending = false
		if err != nil {
			m.cond.Broadcast()
			m.mu.Unlock()
			return merrors.Wrap(merrors.KindWalCorrupt, err, "fsyncing WAL")
		}
		if target > m.durableLSN {
			m.durableLSN = target
		}
		m.cond.Broadcast()
	}

	m.mu.Unlock()
	return nil
}

// truncate discards and recreates the WAL file (VACUUM's "rewrite the WAL
// as empty").
func (m *walManager) truncate(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.f.Close(); err != nil {
		return merrors.Wrap(merrors.KindStorageIO, err, "closing WAL before truncate")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageIO, err, "recreating WAL file")
	}
	m.f = f
	return nil
}

func (m *walManager) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.f.Close()
}
