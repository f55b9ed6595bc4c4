package crdt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Wire format: everything is big-endian, strings are uint16-length-
// prefixed UTF-8, NodeIDs are (site string, seq uint64). This is the
// opaque byte string the store and the cache treat as an unexamined blob
// — only this package and its tests look inside.

func putString(buf *bytes.Buffer, s string) {
	b := []byte(s)
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(b)))
	buf.Write(lb[:])
	buf.Write(b)
}

func getString(r *bytes.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	n := binary.BigEndian.Uint16(lb[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("read string body: %w", err)
		}
	}
	return string(b), nil
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func getUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func putNodeID(buf *bytes.Buffer, id NodeID) {
	putString(buf, id.Site)
	putUint64(buf, id.Seq)
}

func getNodeID(r *bytes.Reader) (NodeID, error) {
	site, err := getString(r)
	if err != nil {
		return NodeID{}, err
	}
	seq, err := getUint64(r)
	if err != nil {
		return NodeID{}, err
	}
	return NodeID{Site: site, Seq: seq}, nil
}

// EncodeOps serializes a sequence of operations into the hub's update
// wire format (the payload of an UPDATE or SYNC_STEP_2 frame, and the
// format persisted as crdt_state).
func EncodeOps(ops []Op) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(ops)))
	buf.Write(countBuf[:])

	for _, op := range ops {
		buf.WriteByte(byte(op.Kind))
		putNodeID(&buf, op.ID)
		switch op.Kind {
		case OpInsert:
			putNodeID(&buf, op.After)
			var rb [4]byte
			binary.BigEndian.PutUint32(rb[:], uint32(op.Char))
			buf.Write(rb[:])
		case OpDelete:
			putNodeID(&buf, op.Target)
		}
	}
	return buf.Bytes()
}

// DecodeOps parses bytes produced by EncodeOps. A malformed payload
// (truncated, impossible length) is reported rather than silently
// accepted, so the caller can close the connection with a
// protocol-error code.
func DecodeOps(data []byte) ([]Op, error) {
	r := bytes.NewReader(data)
	if r.Len() < 4 {
		return nil, fmt.Errorf("crdt: truncated op batch header")
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	ops := make([]Op, 0, count)
	for i := uint32(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("crdt: truncated op %d: %w", i, err)
		}
		kind := OpKind(kindByte)
		if kind != OpInsert && kind != OpDelete {
			return nil, fmt.Errorf("crdt: unknown op kind %d at %d", kindByte, i)
		}
		id, err := getNodeID(r)
		if err != nil {
			return nil, fmt.Errorf("crdt: op %d id: %w", i, err)
		}
		op := Op{Kind: kind, ID: id}
		switch kind {
		case OpInsert:
			after, err := getNodeID(r)
			if err != nil {
				return nil, fmt.Errorf("crdt: op %d after: %w", i, err)
			}
			var rb [4]byte
			if _, err := io.ReadFull(r, rb[:]); err != nil {
				return nil, fmt.Errorf("crdt: op %d char: %w", i, err)
			}
			op.After = after
			op.Char = rune(binary.BigEndian.Uint32(rb[:]))
		case OpDelete:
			target, err := getNodeID(r)
			if err != nil {
				return nil, fmt.Errorf("crdt: op %d target: %w", i, err)
			}
			op.Target = target
		}
		ops = append(ops, op)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("crdt: %d trailing bytes after %d ops", r.Len(), count)
	}
	return ops, nil
}

// EncodeStateVector serializes a state vector for the SYNC_STEP_1 frame.
func EncodeStateVector(sv map[string]uint64) []byte {
	var buf bytes.Buffer
	sites := sortedSites(sv)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(sites)))
	buf.Write(countBuf[:])
	for _, site := range sites {
		putString(&buf, site)
		putUint64(&buf, sv[site])
	}
	return buf.Bytes()
}

// DecodeStateVector parses bytes produced by EncodeStateVector.
func DecodeStateVector(data []byte) (map[string]uint64, error) {
	r := bytes.NewReader(data)
	if r.Len() < 4 {
		return nil, fmt.Errorf("crdt: truncated state vector header")
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBuf[:])
	sv := make(map[string]uint64, count)
	for i := uint32(0); i < count; i++ {
		site, err := getString(r)
		if err != nil {
			return nil, fmt.Errorf("crdt: state vector entry %d site: %w", i, err)
		}
		seq, err := getUint64(r)
		if err != nil {
			return nil, fmt.Errorf("crdt: state vector entry %d seq: %w", i, err)
		}
		sv[site] = seq
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("crdt: %d trailing bytes after state vector", r.Len())
	}
	return sv, nil
}

// Snapshot returns a full, self-contained encoding of the replica's
// entire operation history — a full snapshot, not an incremental delta.
func (r *RGA) Snapshot() []byte {
	return EncodeOps(r.AllOps())
}

// LoadSnapshot replays a snapshot produced by Snapshot (or any prefix of
// an op log) into this replica.
func (r *RGA) LoadSnapshot(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ops, err := DecodeOps(data)
	if err != nil {
		return err
	}
	r.ApplyBatch(ops)
	return nil
}
