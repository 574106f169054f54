package vectorstore

import (
	"math"

	"github.com/raydb/raydb/internal/rayerr"
)

// NewManifest builds the manifest for a freshly created store.
func NewManifest(dimensions, rowGroupSize, fragmentTargetSize uint32, metric Metric, normalize bool) Manifest {
	return Manifest{
		Dimensions:         dimensions,
		Metric:             metric,
		RowGroupSize:       rowGroupSize,
		FragmentTargetSize: fragmentTargetSize,
		Normalize:          normalize,
		NodeToVector:       make(map[uint64]uint64),
	}
}

// ValidateVector rejects dimension mismatches and NaN/Infinity components
// (spec §4.10: "random NaN/Infinity vectors are rejected at validation").
func ValidateVector(m Manifest, vec []float32) error {
	if uint32(len(vec)) != m.Dimensions {
		return rayerr.New(rayerr.KindInvalidArgument, "vectorstore: dimension mismatch")
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return rayerr.New(rayerr.KindInvalidArgument, "vectorstore: NaN/Infinity component")
		}
	}
	return nil
}

// Normalize rescales vec to unit L2 length in place, used when
// m.Normalize is set and the metric is cosine (spec §4.10).
func Normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

// VectorID packs a (fragmentID, localIndex) pair into the single u64
// identifier the graph property layer stores (graphtypes.Value.VecRef).
func VectorID(fragmentID, localIndex uint32) uint64 {
	return uint64(fragmentID)<<32 | uint64(localIndex)
}

func splitVectorID(id uint64) (fragmentID, localIndex uint32) {
	return uint32(id >> 32), uint32(id)
}
