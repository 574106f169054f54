package graphdb

import (
	"github.com/raydb/raydb/internal/config"
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/graphtypes"
	"github.com/raydb/raydb/internal/rayerr"
	"github.com/raydb/raydb/internal/vectorstore"
	"github.com/raydb/raydb/internal/wal"
)

// replayTransaction applies one committed WAL transaction's records to
// overlay and the schema registries, in the order they were logged
// (spec §4.4 "on reopen, replay every committed transaction's records
// against the overlay in log order"). maxNodeID tracks the highest node
// id observed so Open can resume node-id allocation correctly. Vector
// records are dispatched into vs instead of overlay, since node->vector
// state lives entirely in internal/vectorstore's own manifest.
func replayTransaction(tx wal.Transaction, overlay *delta.Overlay, labels, etypes, propkeys *schemaRegistry, vs *vectorstore.Store, opts config.Options, maxNodeID *uint64) error {
	for _, rec := range tx.Records {
		if err := applyRecord(rec, overlay, labels, etypes, propkeys, vs, opts, maxNodeID); err != nil {
			return err
		}
	}
	return nil
}

func applyRecord(rec wal.Record, overlay *delta.Overlay, labels, etypes, propkeys *schemaRegistry, vs *vectorstore.Store, opts config.Options, maxNodeID *uint64) error {
	switch rec.Type {
	case wal.TypeDefineLabel:
		p, err := wal.DecodeDefine(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		labels.seed(p.Name)
		overlay.DefineLabel(p.ID, p.Name)

	case wal.TypeDefineEType:
		p, err := wal.DecodeDefine(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		etypes.seed(p.Name)
		overlay.DefineEType(p.ID, p.Name)

	case wal.TypeDefinePropKey:
		p, err := wal.DecodeDefine(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		propkeys.seed(p.Name)
		overlay.DefinePropKey(p.ID, p.Name)

	case wal.TypeCreateNode:
		p, err := wal.DecodeCreateNode(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.CreateNode(p.NodeID, p.Key)
		bumpMax(maxNodeID, p.NodeID)

	case wal.TypeDeleteNode:
		id, err := wal.DecodeNodeID(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.DeleteNode(id)

	case wal.TypeSetNodeKey:
		// reserved: node re-keying is not exposed by the current
		// transaction API (spec §4.6 has no "rekey" operation), so this
		// record type is never produced by Write paths today.

	case wal.TypeSetNodeProp:
		p, err := wal.DecodeNodeProp(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.SetNodeProp(p.NodeID, p.Prop, p.Value)
		bumpMax(maxNodeID, p.NodeID)

	case wal.TypeDelNodeProp:
		p, err := wal.DecodeDelNodeProp(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.DelNodeProp(p.NodeID, p.Prop)

	case wal.TypeAddEdge:
		p, err := wal.DecodeEdge(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.AddEdge(p.Src, p.EType, p.Dst)
		bumpMax(maxNodeID, p.Src)
		bumpMax(maxNodeID, p.Dst)

	case wal.TypeDelEdge:
		p, err := wal.DecodeEdge(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.DelEdge(p.Src, p.EType, p.Dst)

	case wal.TypeSetEdgeProp:
		p, err := wal.DecodeEdgeProp(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.SetEdgeProp(p.Src, p.EType, p.Dst, p.Prop, p.Value)

	case wal.TypeDelEdgeProp:
		p, err := wal.DecodeDelEdgeProp(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		overlay.DelEdgeProp(p.Src, p.EType, p.Dst, p.Prop)

	case wal.TypeSetNodeVector:
		p, err := wal.DecodeSetNodeVector(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		ensureVectorInit(vs, opts, uint32(len(p.Vector)))
		if _, err := vs.Insert(uint64(p.NodeID), p.Vector); err != nil {
			return err
		}
		bumpMax(maxNodeID, p.NodeID)

	case wal.TypeDelNodeVector:
		id, err := wal.DecodeNodeID(rec.Payload)
		if err != nil {
			return corrupt(err)
		}
		if _, err := vs.Delete(uint64(id)); err != nil {
			return err
		}

	case wal.TypeCheckpoint:
		// marker only; carries no state to apply.

	case wal.TypeBegin, wal.TypeCommit, wal.TypeAbort:
		// transaction framing, already consumed by wal.Replay.

	default:
		return rayerr.New(rayerr.KindCorruptWALTail, "unknown WAL record type during replay")
	}
	return nil
}

func bumpMax(maxNodeID *uint64, id graphtypes.NodeID) {
	if uint64(id) > *maxNodeID {
		*maxNodeID = uint64(id)
	}
}

func corrupt(err error) error {
	return rayerr.Wrap(rayerr.KindCorruptWALTail, "decode WAL payload", err)
}
