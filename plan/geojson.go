package plan

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PointsToLineString converts plan points to an orb LineString.
// Coordinates stay in plan display units (x, y).
func PointsToLineString(points []Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = p.Orb()
	}
	return ls
}

// PointsToPolygon converts an outline to a single-ring polygon, closing the
// ring if the last point does not repeat the first.
func PointsToPolygon(points []Point) orb.Polygon {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, p.Orb())
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}

// FloorPlanToFeatureCollection exports every primitive of a floor plan as a
// GeoJSON feature. Each feature carries kind, role, z and stroke properties;
// dimensions also carry their label and length in meters.
func FloorPlanToFeatureCollection(fp *FloorPlan) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if fp == nil {
		return fc
	}

	for _, prim := range fp.Primitives {
		var f *geojson.Feature
		switch p := prim.(type) {
		case LineSegment:
			f = geojson.NewFeature(PointsToLineString([]Point{p.From, p.To}))
			f.Properties["role"] = string(p.Role)
			f.Properties["stroke"] = p.Stroke.Hex()
			f.Properties["width"] = p.Width
		case Arc:
			f = geojson.NewFeature(PointsToLineString(p.Points(arcSegments)))
			f.Properties["role"] = string(p.Role)
			f.Properties["stroke"] = p.Stroke.Hex()
			f.Properties["width"] = p.Width
			f.Properties["dashed"] = p.Dashed()
		case DimensionAnnotation:
			f = geojson.NewFeature(PointsToLineString([]Point{p.From, p.To}))
			f.Properties["role"] = string(RoleDimension)
			f.Properties["stroke"] = p.Stroke.Hex()
			f.Properties["label"] = p.Label
			f.Properties["lengthMeters"] = p.LengthMeters
			f.Properties["offset"] = string(p.Offset)
		case Label:
			f = geojson.NewFeature(p.Position.Orb())
			f.Properties["role"] = string(p.Role)
			f.Properties["stroke"] = p.Color.Hex()
			f.Properties["text"] = p.Text
			f.Properties["align"] = string(p.Align)
		case Polygon:
			f = geojson.NewFeature(PointsToPolygon(p.Points))
			f.Properties["role"] = string(p.Role)
			f.Properties["stroke"] = p.Stroke.Hex()
			f.Properties["fill"] = p.Fill.Hex()
		default:
			continue
		}
		f.Properties["kind"] = string(prim.Kind())
		f.Properties["z"] = prim.Z()
		fc.Append(f)
	}

	if fp.Name != "" {
		fc.ExtraMembers = geojson.Properties{"name": fp.Name}
	}
	return fc
}
