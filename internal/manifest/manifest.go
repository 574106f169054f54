// Package manifest implements the small, versioned, CRC-protected file
// that points at the active snapshot generation (spec §4.8).
package manifest

import (
	"os"
	"path/filepath"

	"github.com/raydb/raydb/internal/codec"
	"github.com/raydb/raydb/internal/rayerr"
)

// Magic is the manifest file's leading identifier (spec §6 "GDMF").
var Magic = [4]byte{'G', 'D', 'M', 'F'}

// FormatVersion is bumped whenever the manifest layout changes.
const FormatVersion uint32 = 1

// Manifest is the durable pointer to the engine's active generation and
// its open-time options.
type Manifest struct {
	FormatVersion uint64
	SnapshotGen   uint64
	WALMinTxID    uint64 // oldest tx_id still required for replay
	OptionsBlob   []byte // serialized config.Options, opaque here
}

func encode(m Manifest) []byte {
	w := codec.NewWriter(4 + 8 + 8 + 8 + 4 + len(m.OptionsBlob))
	w.PutBytes(Magic[:])
	w.PutU64(m.FormatVersion)
	w.PutU64(m.SnapshotGen)
	w.PutU64(m.WALMinTxID)
	w.PutBytesLP(m.OptionsBlob)
	body := w.Bytes()
	crc := codec.Checksum32C(body)
	out := codec.NewWriter(len(body) + 4)
	out.PutBytes(body)
	out.PutU32(crc)
	return out.Bytes()
}

func decode(buf []byte) (Manifest, error) {
	if len(buf) < 4+4 {
		return Manifest{}, rayerr.New(rayerr.KindCorruptManifest, "truncated manifest")
	}
	body, crcBytes := buf[:len(buf)-4], buf[len(buf)-4:]
	r := codec.NewReader(crcBytes)
	wantCRC, _ := r.U32()
	if !codec.VerifyChecksum32C(body, wantCRC) {
		return Manifest{}, rayerr.New(rayerr.KindCorruptManifest, "manifest CRC mismatch")
	}

	br := codec.NewReader(body)
	magic, err := br.Bytes(4)
	if err != nil || magic[0] != Magic[0] || magic[1] != Magic[1] || magic[2] != Magic[2] || magic[3] != Magic[3] {
		return Manifest{}, rayerr.New(rayerr.KindCorruptManifest, "bad magic")
	}
	var m Manifest
	var derr error
	u64 := func() uint64 {
		v, err := br.U64()
		if err != nil {
			derr = err
		}
		return v
	}
	m.FormatVersion = u64()
	m.SnapshotGen = u64()
	m.WALMinTxID = u64()
	m.OptionsBlob, err = br.BytesLP()
	if err != nil {
		derr = err
	}
	if derr != nil {
		return Manifest{}, rayerr.Wrap(rayerr.KindCorruptManifest, "truncated manifest body", derr)
	}
	if m.FormatVersion != uint64(FormatVersion) {
		return Manifest{}, rayerr.New(rayerr.KindCorruptManifest, "unsupported manifest format version")
	}
	return m, nil
}

// Path returns the canonical manifest path within a data directory.
func Path(dir string) string { return filepath.Join(dir, "manifest.gdm") }

func backupPath(dir string) string { return Path(dir) + ".bak" }

// Write persists m atomically: the previous manifest (if any) is copied
// to a .bak sidecar before the new one is swapped in, so a reader can
// fall back to it on corruption (spec §4.8 "implementations may either
// keep a .bak or refuse to open").
func Write(dir string, m Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "mkdir manifest dir", err)
	}
	path := Path(dir)
	if cur, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(backupPath(dir), cur, 0o644)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encode(m), 0o644); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "write temp manifest", err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "reopen temp manifest", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return rayerr.Wrap(rayerr.KindIO, "fsync temp manifest", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		return rayerr.Wrap(rayerr.KindIO, "rename manifest into place", err)
	}
	d, err := os.Open(dir)
	if err != nil {
		return rayerr.Wrap(rayerr.KindIO, "open manifest dir for fsync", err)
	}
	defer d.Close()
	return d.Sync()
}

// Read loads the manifest, falling back to the .bak sidecar if the
// primary is missing or fails its CRC (spec §4.8).
func Read(dir string) (Manifest, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err == nil {
		if m, derr := decode(data); derr == nil {
			return m, nil
		}
	}
	backup, berr := os.ReadFile(backupPath(dir))
	if berr != nil {
		if err == nil {
			err = berr
		}
		return Manifest{}, rayerr.Wrap(rayerr.KindCorruptManifest, "manifest missing or corrupt, no backup", err)
	}
	return decode(backup)
}
