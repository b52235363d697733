package headless

import "math"

// Intersects is true when the extents share at least one point. Touching edges count.
func (e Extent) Intersects(other Extent) bool {
	return e.MinX <= other.MaxX && other.MinX <= e.MaxX &&
		e.MinY <= other.MaxY && other.MinY <= e.MaxY
}

func (e Extent) Union(other Extent) Extent {
	return Extent{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// Buffer grows the extent by distance on every side
func (e Extent) Buffer(distance float64) Extent {
	return Extent{e.MinX - distance, e.MinY - distance, e.MaxX + distance, e.MaxY + distance}
}
