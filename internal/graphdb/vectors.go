package graphdb

import (
	"github.com/raydb/raydb/internal/config"
	"github.com/raydb/raydb/internal/vectorstore"
)

// vectorMetric maps the config's string metric name onto vectorstore's
// enum, defaulting to cosine for anything unrecognized (Validate already
// rejects unrecognized names when VectorDimensions is set, so this
// fallback only matters for a store initialized lazily from replay/first
// insert with an unvalidated zero-value Options).
func vectorMetric(name string) vectorstore.Metric {
	switch name {
	case "l2":
		return vectorstore.MetricL2
	case "dot":
		return vectorstore.MetricDot
	default:
		return vectorstore.MetricCosine
	}
}

func vectorRowGroupSize(opts config.Options) uint32 {
	if opts.VectorRowGroupSize > 0 {
		return opts.VectorRowGroupSize
	}
	return 1024
}

func vectorFragmentTargetSize(opts config.Options) uint32 {
	if opts.VectorFragmentTargetSize > 0 {
		return opts.VectorFragmentTargetSize
	}
	return 64 << 10
}

// ensureVectorInit lazily fixes vs's dimensionality from dims the first
// time a vector is seen, whether that happens via a live SetNodeVector
// call or via WAL replay at Open. Store.Init is itself idempotent (a
// no-op once a manifest is loaded), so this is safe to call on every
// mutation.
func ensureVectorInit(vs *vectorstore.Store, opts config.Options, dims uint32) {
	if vs.Dimensions() != 0 {
		return
	}
	d := opts.VectorDimensions
	if d == 0 {
		d = dims
	}
	vs.Init(d, vectorRowGroupSize(opts), vectorFragmentTargetSize(opts), vectorMetric(opts.VectorMetric), opts.VectorNormalize)
}
