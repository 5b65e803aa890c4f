package kafka

// CommitMarker is an opaque "processed up to and including here" checkpoint.
// Consumers hand one out with every record and accept it back in CommitSync.
type CommitMarker interface {
	// Offsets materializes the positions the marker commits.
	Offsets() Offsets
}

// Offsets maps partitions to the next offset to consume.
type Offsets map[TopicPartition]Offset

var _ CommitMarker = Offsets(nil)

func (o Offsets) Offsets() Offsets {
	return o
}

func (o Offsets) Clone() Offsets {
	out := make(Offsets, len(o))
	for tp, off := range o {
		out[tp] = off
	}
	return out
}

// Advance records r as processed, keeping the highest position per partition.
func (o Offsets) Advance(r Record) {
	tp := r.TopicPartition()
	next := Offset{Offset: r.Offset + 1, LeaderEpoch: r.LeaderEpoch}
	if cur, ok := o[tp]; !ok || next.Offset > cur.Offset {
		o[tp] = next
	}
}

// OffsetsOf returns the positions of marker, or nil for a nil marker.
func OffsetsOf(marker CommitMarker) Offsets {
	if marker == nil {
		return nil
	}
	return marker.Offsets()
}

// batchMarker commits base plus the first n records of a batch. All markers of
// a batch share base and records, so attaching them costs O(1) per record.
type batchMarker struct {
	base    Offsets
	records []Record
	n       int
}

func (m *batchMarker) Offsets() Offsets {
	out := m.base.Clone()
	for i := 0; i < m.n; i++ {
		out.Advance(m.records[i])
	}
	return out
}

// AttachMarkers sets the Marker of every record in batch. base holds positions
// consumed before the batch that are not yet committed; it must not be mutated
// afterwards.
func AttachMarkers(base Offsets, batch RecordBatch) {
	if base == nil {
		base = Offsets{}
	}

	for i := range batch {
		batch[i].Marker = &batchMarker{base: base, records: batch, n: i + 1}
	}
}
