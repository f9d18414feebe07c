package plan

import "math"

// Apply maps p through m.
func (m AffineMatrix) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// ApplyAll maps every point through m into a new slice.
func (m AffineMatrix) ApplyAll(points []Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = m.Apply(p)
	}
	return out
}

// Then returns the transform that applies m first and n second.
func (m AffineMatrix) Then(n AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  n.A*m.A + n.B*m.C,
		B:  n.A*m.B + n.B*m.D,
		Tx: n.A*m.Tx + n.B*m.Ty + n.Tx,
		C:  n.C*m.A + n.D*m.C,
		D:  n.C*m.B + n.D*m.D,
		Ty: n.C*m.Tx + n.D*m.Ty + n.Ty,
	}
}

// Translation moves by (tx, ty).
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, D: 1, Tx: tx, Ty: ty}
}

// Rotation turns counter-clockwise by angle radians about the origin.
func Rotation(angle float64) AffineMatrix {
	sin, cos := math.Sincos(angle)
	return AffineMatrix{A: cos, B: -sin, C: sin, D: cos}
}

// RotateAround rotates p by angle radians (counter-clockwise) about pivot.
func RotateAround(p, pivot Point, angle float64) Point {
	return Translation(-pivot.X, -pivot.Y).
		Then(Rotation(angle)).
		Then(Translation(pivot.X, pivot.Y)).
		Apply(p)
}

// Distance is the Euclidean distance between two plan points.
func Distance(p, q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Pose2D is a floor-plan pose: a rotation about the origin followed by a
// translation, both in display units.
type Pose2D struct {
	Position Point   `json:"position"`
	Rotation float64 `json:"rotation"` // radians, counter-clockwise
}

// ReducePose projects a 3D pose onto the floor plane. The X translation is
// negated and Z becomes the plan's Y; height is dropped. The rotation is
// the difference of the Y and Z Euler components, not a general yaw
// decomposition; walls only line up with the capture when it is computed
// this way.
func ReducePose(p Pose, scalingFactor float64) Pose2D {
	pos := p.Position()
	euler := p.EulerAngles()
	return Pose2D{
		Position: Point{X: -pos[0] * scalingFactor, Y: pos[2] * scalingFactor},
		Rotation: -(euler[2] - euler[1]),
	}
}

// Matrix returns the affine form of the pose.
func (p Pose2D) Matrix() AffineMatrix {
	return Rotation(p.Rotation).Then(Translation(p.Position.X, p.Position.Y))
}

// Apply maps a point from surface-local to plan coordinates.
func (p Pose2D) Apply(local Point) Point {
	return p.Matrix().Apply(local)
}
