package headlessrenderer

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func polygonsOf(geometry orb.Geometry) []orb.Polygon {
	switch g := geometry.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	case orb.Bound:
		return []orb.Polygon{g.ToPolygon()}
	case orb.Collection:
		var polygons []orb.Polygon
		for _, child := range g {
			polygons = append(polygons, polygonsOf(child)...)
		}
		return polygons
	}
	return nil
}

func ringsOf(polygons []orb.Polygon) []orb.LineString {
	var lines []orb.LineString
	for _, polygon := range polygons {
		for _, ring := range polygon {
			lines = append(lines, orb.LineString(ring))
		}
	}
	return lines
}

// linesOf returns the lines of line geometries, and the rings of polygons
func linesOf(geometry orb.Geometry) []orb.LineString {
	switch g := geometry.(type) {
	case orb.LineString:
		return []orb.LineString{g}
	case orb.MultiLineString:
		return g
	case orb.Ring:
		return []orb.LineString{orb.LineString(g)}
	case orb.Collection:
		var lines []orb.LineString
		for _, child := range g {
			lines = append(lines, linesOf(child)...)
		}
		return lines
	}
	return ringsOf(polygonsOf(geometry))
}

// pointsOf returns the points of point geometries, and the centroid of anything else
func pointsOf(geometry orb.Geometry) []orb.Point {
	switch g := geometry.(type) {
	case orb.Point:
		return []orb.Point{g}
	case orb.MultiPoint:
		return g
	case orb.Collection:
		var points []orb.Point
		for _, child := range g {
			points = append(points, pointsOf(child)...)
		}
		return points
	}

	centroid, _ := planar.CentroidArea(geometry)
	return []orb.Point{centroid}
}

// lineMidpoint is the point half way along the line
func lineMidpoint(line orb.LineString) orb.Point {
	if len(line) == 0 {
		return orb.Point{}
	}

	half := planar.Length(line) / 2
	travelled := 0.0
	for i := 1; i < len(line); i++ {
		segment := planar.Distance(line[i-1], line[i])
		if travelled+segment >= half && segment > 0 {
			t := (half - travelled) / segment
			return orb.Point{
				line[i-1][0] + t*(line[i][0]-line[i-1][0]),
				line[i-1][1] + t*(line[i][1]-line[i-1][1]),
			}
		}
		travelled += segment
	}
	return line[0]
}

func longestLine(lines orb.MultiLineString) orb.LineString {
	var longest orb.LineString
	longestLength := -1.0
	for _, line := range lines {
		length := planar.Length(line)
		if length > longestLength {
			longest = line
			longestLength = length
		}
	}
	return longest
}
