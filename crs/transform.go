package crs

import (
	"math"

	"github.com/go-spatial/proj"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// mercator projections are undefined at the poles
const maxMercatorLatitude = 85.0511287798066

// Transformer converts coordinates from a source CRS to a destination CRS, going through WGS 84
type Transformer struct {
	src *CRS
	dst *CRS
}

func NewTransformer(src, dst *CRS) (*Transformer, errorsx.Error) {
	if src == nil || dst == nil {
		return nil, errorsx.Wrap(ErrUnsupportedCRS, "reason", "nil CRS")
	}

	return &Transformer{src, dst}, nil
}

func (t *Transformer) IsIdentity() bool {
	return t.src.Equal(t.dst)
}

// TransformFlat transforms a flat list of x,y pairs. The input slice is not modified.
func (t *Transformer) TransformFlat(xys []float64) ([]float64, errorsx.Error) {
	if len(xys)%2 != 0 {
		return nil, errorsx.Errorf("expected an even number of coordinates, got %d", len(xys))
	}

	if t.IsIdentity() {
		out := make([]float64, len(xys))
		copy(out, xys)
		return out, nil
	}

	lonLats, err := toLonLat(t.src, xys)
	if err != nil {
		return nil, errorsx.Wrap(err, "src", t.src.AuthID())
	}

	out, err := fromLonLat(t.dst, lonLats)
	if err != nil {
		return nil, errorsx.Wrap(err, "dst", t.dst.AuthID())
	}

	return out, nil
}

func (t *Transformer) Point(p orb.Point) (orb.Point, errorsx.Error) {
	out, err := t.TransformFlat([]float64{p[0], p[1]})
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{out[0], out[1]}, nil
}

// Geometry returns a transformed copy of g
func (t *Transformer) Geometry(g orb.Geometry) (orb.Geometry, errorsx.Error) {
	if g == nil {
		return nil, nil
	}

	cloned := orb.Clone(g)
	if t.IsIdentity() {
		return cloned, nil
	}

	var firstErr errorsx.Error
	projected := project.Geometry(cloned, func(p orb.Point) orb.Point {
		if firstErr != nil {
			return p
		}
		out, err := t.Point(p)
		if err != nil {
			firstErr = err
			return p
		}
		return out
	})
	if firstErr != nil {
		return nil, firstErr
	}

	return projected, nil
}

const extentDensifyPoints = 21

// Bound transforms a rectangle, densifying its edges so that curved edges are covered
func (t *Transformer) Bound(b orb.Bound) (orb.Bound, errorsx.Error) {
	if t.IsIdentity() {
		return b, nil
	}

	var xys []float64
	for i := 0; i < extentDensifyPoints; i++ {
		frac := float64(i) / float64(extentDensifyPoints-1)
		x := b.Min[0] + frac*(b.Max[0]-b.Min[0])
		y := b.Min[1] + frac*(b.Max[1]-b.Min[1])
		xys = append(xys,
			x, b.Min[1],
			x, b.Max[1],
			b.Min[0], y,
			b.Max[0], y,
		)
	}

	out, err := t.TransformFlat(xys)
	if err != nil {
		return orb.Bound{}, err
	}

	bound := orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
	for i := 0; i < len(out); i += 2 {
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) || math.IsNaN(out[i+1]) || math.IsInf(out[i+1], 0) {
			continue
		}
		bound = bound.Extend(orb.Point{out[i], out[i+1]})
	}

	return bound, nil
}

func toLonLat(c *CRS, xys []float64) ([]float64, error) {
	if c.IsGeographic() {
		out := make([]float64, len(xys))
		copy(out, xys)
		return out, nil
	}

	return proj.Inverse(c.def.projCode, xys)
}

func fromLonLat(c *CRS, lonLats []float64) ([]float64, error) {
	if c.IsGeographic() {
		return lonLats, nil
	}

	if c.def.projCode == proj.EPSG3857 || c.def.projCode == proj.EPSG3395 {
		for i := 1; i < len(lonLats); i += 2 {
			lonLats[i] = math.Max(-maxMercatorLatitude, math.Min(maxMercatorLatitude, lonLats[i]))
		}
	}

	return proj.Convert(c.def.projCode, lonLats)
}
