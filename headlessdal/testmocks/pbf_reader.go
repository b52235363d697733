package testmocks

import (
	"github.com/paulmach/osm"
)

// ObjectListReader replays a fixed list of OSM objects, as if they were read from a PBF file.
// When ScanErr is set, scanning stops after the objects and Err returns it.
type ObjectListReader struct {
	Objects []osm.Object
	ScanErr error
	Closed  bool

	position int
}

func NewObjectListReader(objects ...osm.Object) *ObjectListReader {
	return &ObjectListReader{Objects: objects}
}

func (r *ObjectListReader) Scan() bool {
	if r.Closed || r.position >= len(r.Objects) {
		return false
	}
	r.position++
	return true
}

func (r *ObjectListReader) Object() osm.Object {
	if r.position == 0 {
		return nil
	}
	return r.Objects[r.position-1]
}

func (r *ObjectListReader) Err() error {
	if r.position < len(r.Objects) {
		return nil
	}
	return r.ScanErr
}

func (r *ObjectListReader) Close() error {
	r.Closed = true
	return nil
}
