package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/raydb/raydb/internal/rayerr"
)

// Store is the in-process handle over one vector collection's manifest
// and fragments, independent of the graph's own snapshot generation
// cycle (spec §4.10 is "core-adjacent": its persistence cadence is its
// own, not tied to a graph compaction pass).
type Store struct {
	mu  sync.RWMutex
	dir string

	manifest Manifest
	open     map[uint32]*Fragment // currently-loaded fragments, keyed by id
}

func manifestPath(dir string) string   { return filepath.Join(dir, "vectors", "manifest.vec") }
func fragmentPath(dir string, id uint32) string {
	return filepath.Join(dir, "vectors", fmt.Sprintf("frag-%08d.vfrg", id))
}

// Open loads an existing vector store from dir, or returns an empty one
// if no manifest exists yet (the caller supplies dims/rowGroupSize for
// first use via Init).
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, open: make(map[uint32]*Fragment)}
	b, err := os.ReadFile(manifestPath(dir))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "read vector manifest", err)
	}
	m, err := DecodeManifest(b)
	if err != nil {
		return nil, err
	}
	s.manifest = m
	return s, nil
}

// Init sets the store's configuration. Only valid before the first
// Insert; a no-op if a manifest was already loaded.
func (s *Store) Init(dimensions, rowGroupSize, fragmentTargetSize uint32, metric Metric, normalize bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest.Dimensions != 0 {
		return
	}
	s.manifest = NewManifest(dimensions, rowGroupSize, fragmentTargetSize, metric, normalize)
}

// Dimensions reports the configured vector width, or 0 if Init has not
// run yet (no manifest loaded and nothing inserted).
func (s *Store) Dimensions() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Dimensions
}

// ValidateVector checks vec against the store's current manifest without
// mutating anything, so callers can reject a bad vector before staging a
// durable write for it.
func (s *Store) ValidateVector(vec []float32) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ValidateVector(s.manifest, vec)
}

func (s *Store) activeFragment() *Fragment {
	if len(s.manifest.Fragments) == 0 {
		return nil
	}
	last := s.manifest.Fragments[len(s.manifest.Fragments)-1]
	if last.State != FragmentActive {
		return nil
	}
	return s.open[last.ID]
}

// Insert appends vec for node, opening a new active fragment when the
// current one is full or absent (spec §4.10 insertion/seal rules).
func (s *Store) Insert(node uint64, vec []float32) (vectorID uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ValidateVector(s.manifest, vec); err != nil {
		return 0, err
	}
	cp := append([]float32(nil), vec...)
	if s.manifest.Normalize && s.manifest.Metric == MetricCosine {
		Normalize(cp)
	}

	f := s.activeFragment()
	if f == nil {
		id := s.manifest.NextFragmentID
		s.manifest.NextFragmentID++
		f = NewFragment(id, s.manifest.Dimensions, s.manifest.RowGroupSize)
		s.open[id] = f
		s.manifest.Fragments = append(s.manifest.Fragments, FragmentMeta{ID: id, State: FragmentActive})
	}

	localIdx, err := f.Append(cp)
	if err != nil {
		return 0, err
	}
	s.syncFragmentMeta(f)

	if f.Full(s.manifest.FragmentTargetSize) {
		f.Seal()
		s.syncFragmentMeta(f)
	}

	vectorID = VectorID(f.ID, localIdx)
	if s.manifest.NodeToVector == nil {
		s.manifest.NodeToVector = make(map[uint64]uint64)
	}
	s.manifest.NodeToVector[node] = vectorID
	return vectorID, nil
}

func (s *Store) syncFragmentMeta(f *Fragment) {
	for i := range s.manifest.Fragments {
		if s.manifest.Fragments[i].ID == f.ID {
			s.manifest.Fragments[i].State = f.State
			s.manifest.Fragments[i].RowCount = f.rowCount
			return
		}
	}
}

// Get resolves node's current vector, loading its fragment from disk on
// demand if it is not already open.
func (s *Store) Get(node uint64) ([]float32, bool, error) {
	s.mu.RLock()
	vecID, ok := s.manifest.NodeToVector[node]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	fragID, localIdx := splitVectorID(vecID)

	f, err := s.fragment(fragID)
	if err != nil {
		return nil, false, err
	}
	vec, ok := f.Get(localIdx)
	return vec, ok, nil
}

// Delete tombstones node's vector (spec §4.10: "deletion sets the bitmap
// bit; live-count is maintained incrementally").
func (s *Store) Delete(node uint64) (bool, error) {
	s.mu.Lock()
	vecID, ok := s.manifest.NodeToVector[node]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.manifest.NodeToVector, node)
	s.mu.Unlock()

	fragID, localIdx := splitVectorID(vecID)
	f, err := s.fragment(fragID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.Delete(localIdx), nil
}

func (s *Store) fragment(id uint32) (*Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.open[id]; ok {
		return f, nil
	}
	b, err := os.ReadFile(fragmentPath(s.dir, id))
	if err != nil {
		return nil, rayerr.Wrap(rayerr.KindIO, "read vector fragment", err)
	}
	f, err := Decode(b)
	if err != nil {
		return nil, err
	}
	s.open[id] = f
	return f, nil
}

// Flush persists the manifest and every currently-open fragment to disk
// via temp-file-then-rename, matching internal/snapshot.Write's
// durability contract.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vecDir := filepath.Join(s.dir, "vectors")
	if err := os.MkdirAll(vecDir, 0o755); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "mkdir vector dir", err)
	}

	for id, f := range s.open {
		if err := writeDurable(fragmentPath(s.dir, id), Encode(f)); err != nil {
			return err
		}
	}
	return writeDurable(manifestPath(s.dir), EncodeManifest(s.manifest))
}

func writeDurable(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "write temp vector file", err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "reopen temp vector file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return rayerr.Wrap(rayerr.KindIO, "fsync temp vector file", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "rename vector file into place", err)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "open vector dir for fsync", err)
	}
	defer dir.Close()
	return dir.Sync()
}
