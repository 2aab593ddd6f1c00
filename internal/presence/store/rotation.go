package store

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/dkeye/Presence/internal/domain"
)

// eulerToQuat converts XYZ-order euler angles (radians) to a unit quaternion.
func eulerToQuat(e domain.Vec3) mgl64.Quat {
	c1, s1 := math.Cos(e[0]/2), math.Sin(e[0]/2)
	c2, s2 := math.Cos(e[1]/2), math.Sin(e[1]/2)
	c3, s3 := math.Cos(e[2]/2), math.Sin(e[2]/2)
	return mgl64.Quat{
		W: c1*c2*c3 - s1*s2*s3,
		V: mgl64.Vec3{
			s1*c2*c3 + c1*s2*s3,
			c1*s2*c3 - s1*c2*s3,
			c1*c2*s3 + s1*s2*c3,
		},
	}
}

// quatToEuler is the inverse of eulerToQuat.
func quatToEuler(q mgl64.Quat) domain.Vec3 {
	q = q.Normalize()
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	m11 := 1 - 2*(y*y+z*z)
	m12 := 2 * (x*y - w*z)
	m13 := 2 * (x*z + w*y)
	m22 := 1 - 2*(x*x+z*z)
	m23 := 2 * (y*z - w*x)
	m32 := 2 * (y*z + w*x)
	m33 := 1 - 2*(x*x+y*y)

	ey := math.Asin(mgl64.Clamp(m13, -1, 1))
	if math.Abs(m13) < 0.9999999 {
		return domain.Vec3{math.Atan2(-m23, m33), ey, math.Atan2(-m12, m11)}
	}
	return domain.Vec3{math.Atan2(m32, m22), ey, 0}
}

// slerp takes the short way round.
func slerp(from, to mgl64.Quat, t float64) mgl64.Quat {
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, t)
}

func lerp(from, to domain.Vec3, t float64) domain.Vec3 {
	return from.Add(to.Sub(from).Mul(t))
}

func clamp01(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
