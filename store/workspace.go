package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/TrevorS/mdevents"
)

// ErrNotFound is returned by Load for an id with no saved workspace.
var ErrNotFound = errors.New("store: workspace not found")

const formatVersion = 2

type meta struct {
	Version        int                  `json:"version"`
	Generation     uint64               `json:"generation"`
	Dimensions     []mdevents.Dimension `json:"dimensions"`
	SplitInto      uint32               `json:"split_into"`
	SplitThreshold uint64               `json:"split_threshold"`
	MaxDepth       uint32               `json:"max_depth"`
	NextID         uint64               `json:"next_id"`
	Locked         bool                 `json:"locked"`
	RejectedEvents uint64               `json:"rejected_events"`
	NumBoxes       int                  `json:"num_boxes"`
}

func workspacePrefix(id uuid.UUID) []byte { return []byte("ws/" + id.String() + "/") }
func metaKey(id uuid.UUID) []byte         { return append(workspacePrefix(id), "meta"...) }
func boxPrefix(id uuid.UUID) []byte       { return append(workspacePrefix(id), "box/"...) }

func generationPrefix(id uuid.UUID, gen uint64) []byte {
	return binary.BigEndian.AppendUint64(boxPrefix(id), gen)
}

func boxKey(id uuid.UUID, gen uint64, seq int) []byte {
	return binary.BigEndian.AppendUint64(generationPrefix(id, gen), uint64(seq))
}

func getMeta(txn *badger.Txn, id uuid.UUID) (meta, error) {
	var m meta
	item, err := txn.Get(metaKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return m, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return m, err
	}
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
		return m, fmt.Errorf("store: decode metadata: %w", err)
	}
	return m, nil
}

// Save writes ws under its id, replacing any earlier save of the same
// workspace. Save is a structural pass on ws and must not overlap ingestion.
//
// Boxes are written under a new generation and the metadata is switched to
// it in a single transaction, so a save that fails or is interrupted leaves
// the previous save loadable.
func Save[E mdevents.Event](db *badger.DB, ws *mdevents.Workspace[E], codec Codec[E]) error {
	snap, err := ws.Snapshot()
	if err != nil {
		return err
	}

	var prev meta
	found := true
	err = db.View(func(txn *badger.Txn) error {
		prev, err = getMeta(txn, snap.ID)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		found = false
	case err != nil:
		return err
	}
	if found && prev.Version != formatVersion {
		// Older layouts cannot be loaded anyway.
		if err := db.DropPrefix(boxPrefix(snap.ID)); err != nil {
			return fmt.Errorf("store: clear old format save of %s: %w", snap.ID, err)
		}
		found = false
	}

	gen := uint64(1)
	if found {
		gen = prev.Generation + 1
	}
	m := meta{
		Version:        formatVersion,
		Generation:     gen,
		Dimensions:     snap.Dimensions,
		SplitInto:      snap.SplitInto,
		SplitThreshold: snap.SplitThreshold,
		MaxDepth:       snap.MaxDepth,
		NextID:         snap.NextID,
		Locked:         snap.Locked,
		RejectedEvents: snap.RejectedEvents,
		NumBoxes:       len(snap.Boxes),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}

	// Leftovers of an interrupted save may sit under the new generation.
	if err := db.DropPrefix(generationPrefix(snap.ID, gen)); err != nil {
		return fmt.Errorf("store: clear generation %d of %s: %w", gen, snap.ID, err)
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for i, rec := range snap.Boxes {
		if err := wb.Set(boxKey(snap.ID, gen, i), encodeBox(rec, codec)); err != nil {
			return fmt.Errorf("store: write box %d: %w", rec.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: flush workspace %s: %w", snap.ID, err)
	}

	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(snap.ID), data)
	}); err != nil {
		return fmt.Errorf("store: write metadata: %w", err)
	}

	if found {
		if err := db.DropPrefix(generationPrefix(snap.ID, prev.Generation)); err != nil {
			return fmt.Errorf("store: saved %s but could not drop generation %d: %w", snap.ID, prev.Generation, err)
		}
	}
	return nil
}

// Load reads the workspace saved under id and rebuilds it. cfg supplies the
// ambient settings; the split policy comes from the save.
func Load[E mdevents.Event](db *badger.DB, id uuid.UUID, codec Codec[E], cfg mdevents.Config) (*mdevents.Workspace[E], error) {
	var m meta
	var boxes []mdevents.BoxRecord[E]

	err := db.View(func(txn *badger.Txn) error {
		var err error
		if m, err = getMeta(txn, id); err != nil {
			return err
		}
		if m.Version != formatVersion {
			return fmt.Errorf("store: unsupported format version %d", m.Version)
		}

		dims := len(m.Dimensions)
		boxes = make([]mdevents.BoxRecord[E], 0, m.NumBoxes)
		prefix := generationPrefix(id, m.Generation)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				rec, err := decodeBox(v, dims, codec)
				if err != nil {
					return err
				}
				boxes = append(boxes, rec)
				return nil
			})
			if err != nil {
				return fmt.Errorf("store: decode box %d: %w", len(boxes), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(boxes) != m.NumBoxes {
		return nil, fmt.Errorf("store: workspace %s has %d boxes, metadata says %d", id, len(boxes), m.NumBoxes)
	}

	snap := &mdevents.Snapshot[E]{
		ID:             id,
		Dimensions:     m.Dimensions,
		SplitInto:      m.SplitInto,
		SplitThreshold: m.SplitThreshold,
		MaxDepth:       m.MaxDepth,
		NextID:         m.NextID,
		Locked:         m.Locked,
		RejectedEvents: m.RejectedEvents,
		Boxes:          boxes,
	}
	return mdevents.Restore(snap, cfg)
}

// List returns the ids of all saved workspaces.
func List(db *badger.DB) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte("ws/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if len(key) != len(prefix)+36+len("/meta") || !bytes.HasSuffix(key, []byte("/meta")) {
				continue
			}
			id, err := uuid.ParseBytes(key[len(prefix) : len(key)-len("/meta")])
			if err != nil {
				return fmt.Errorf("store: bad workspace key %q: %w", key, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// Delete removes the workspace saved under id. Deleting a missing id is not
// an error.
func Delete(db *badger.DB, id uuid.UUID) error {
	return db.DropPrefix(workspacePrefix(id))
}

func encodeBox[E mdevents.Event](rec mdevents.BoxRecord[E], codec Codec[E]) []byte {
	buf := make([]byte, 0, 24+len(rec.Extents)*16)
	buf = binary.LittleEndian.AppendUint64(buf, rec.ID)
	buf = binary.LittleEndian.AppendUint32(buf, rec.Depth)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rec.NumChildren))
	for _, ext := range rec.Extents {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ext.Min))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ext.Max))
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(rec.Events)))
	for _, e := range rec.Events {
		buf = codec.Encode(buf, e)
	}
	return buf
}

func decodeBox[E mdevents.Event](src []byte, dims int, codec Codec[E]) (mdevents.BoxRecord[E], error) {
	var rec mdevents.BoxRecord[E]
	if len(src) < 16+dims*16+8 {
		return rec, errShortRecord
	}
	rec.ID = binary.LittleEndian.Uint64(src)
	rec.Depth = binary.LittleEndian.Uint32(src[8:])
	rec.NumChildren = int(binary.LittleEndian.Uint32(src[12:]))
	src = src[16:]

	rec.Extents = make([]mdevents.Extent, dims)
	for d := range rec.Extents {
		rec.Extents[d] = mdevents.Extent{
			Min: math.Float64frombits(binary.LittleEndian.Uint64(src)),
			Max: math.Float64frombits(binary.LittleEndian.Uint64(src[8:])),
		}
		src = src[16:]
	}

	n := binary.LittleEndian.Uint64(src)
	src = src[8:]
	if n == 0 {
		return rec, nil
	}
	if n > uint64(len(src)) {
		return rec, errShortRecord
	}
	rec.Events = make([]E, 0, n)
	for i := uint64(0); i < n; i++ {
		e, rest, err := codec.Decode(src, dims)
		if err != nil {
			return rec, err
		}
		rec.Events = append(rec.Events, e)
		src = rest
	}
	return rec, nil
}
