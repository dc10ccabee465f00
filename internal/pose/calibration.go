package pose

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CameraGeometry maps one camera's image coordinates into shared rig
// coordinates using a fixed affine transform supplied at startup.
type CameraGeometry struct {
	transform *mat.Dense // 2x3: [xx xy xt; yx yy yt]
}

// NewCameraGeometry builds a geometry from six affine coefficients in
// row-major order: xx, xy, xt, yx, yy, yt.
func NewCameraGeometry(coeffs []float64) (*CameraGeometry, error) {
	if len(coeffs) != 6 {
		return nil, fmt.Errorf("camera geometry requires 6 affine coefficients, got %d", len(coeffs))
	}
	return &CameraGeometry{transform: mat.NewDense(2, 3, append([]float64(nil), coeffs...))}, nil
}

// IdentityGeometry returns a geometry that passes image coordinates through.
func IdentityGeometry() *CameraGeometry {
	g, _ := NewCameraGeometry([]float64{1, 0, 0, 0, 1, 0})
	return g
}

// Project maps an image-space keypoint into rig coordinates.
func (g *CameraGeometry) Project(kp Keypoint) Point {
	in := mat.NewVecDense(3, []float64{kp.X, kp.Y, 1})
	var out mat.VecDense
	out.MulVec(g.transform, in)
	return Point{X: out.AtVec(0), Y: out.AtVec(1)}
}

// Combine merges two projected observations of the same joint into one
// stabilized position, weighting each view by its confidence. Weights are
// normalized, so the result is independent of confidence scale.
func Combine(a Point, confA float64, b Point, confB float64) Point {
	total := confA + confB
	if total <= 0 {
		return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	}
	va := mat.NewVecDense(2, []float64{a.X, a.Y})
	vb := mat.NewVecDense(2, []float64{b.X, b.Y})
	var out mat.VecDense
	out.ScaleVec(confA/total, va)
	out.AddScaledVec(&out, confB/total, vb)
	return Point{X: out.AtVec(0), Y: out.AtVec(1)}
}
