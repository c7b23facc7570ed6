package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jward/tagscan/internal/model"
)

// refRecord is the stored form of one reference. Records are CBOR arrays
// so a blob holds no field names.
type refRecord struct {
	_      struct{} `cbor:",toarray"`
	Offset uint64
	Kind   uint8
	Wide   bool
	Value  uint64
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding keeps blobs byte-identical across saves.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("store: cbor encoder: %v", err))
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 24}).DecMode(); err != nil {
		panic(fmt.Sprintf("store: cbor decoder: %v", err))
	}
}

func encodeRefs(refs []model.Reference) ([]byte, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	recs := make([]refRecord, len(refs))
	for i, r := range refs {
		recs[i] = refRecord{Offset: r.Offset, Kind: uint8(r.Kind), Wide: r.Wide, Value: r.Value}
	}
	b, err := encMode.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("encode references: %w", err)
	}
	return b, nil
}

func decodeRefs(b []byte) ([]model.Reference, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var recs []refRecord
	if err := decMode.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	refs := make([]model.Reference, len(recs))
	for i, r := range recs {
		if r.Kind > uint8(model.TargetUnresolved) {
			return nil, fmt.Errorf("decode references: unknown target kind %d", r.Kind)
		}
		refs[i] = model.Reference{Offset: r.Offset, Kind: model.TargetKind(r.Kind), Wide: r.Wide, Value: r.Value}
	}
	return refs, nil
}

func encodeSources(ids []model.TagID) ([]byte, error) {
	vs := make([]uint32, len(ids))
	for i, id := range ids {
		vs[i] = uint32(id)
	}
	b, err := encMode.Marshal(vs)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}
	return b, nil
}

func decodeSources(b []byte) ([]model.TagID, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var vs []uint32
	if err := decMode.Unmarshal(b, &vs); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	ids := make([]model.TagID, len(vs))
	for i, v := range vs {
		ids[i] = model.TagID(v)
	}
	return ids, nil
}
