package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

// Orbit and lens of the scene camera.
const (
	eyeHeight    float32 = 7.5
	eyeRadius    float32 = 13.2
	eyeSpeed     float32 = 0.0258
	targetHeight float32 = 63.3
	targetRadius float32 = 91.6
	fieldOfView  float32 = 82.699
	fovFudge     float32 = 1
	nearPlane    float32 = 1
	farPlane     float32 = 25000
)

/**
 * @brief The camera circling the tank while looking across it. The view is
 * rebuilt only after the orbit or the aspect ratio changed.
 */
type Camera struct {
	/** @brief Angle along the orbit, in radians. */
	clock  float32
	aspect float32

	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3

	projection  mgl32.Mat4
	view        mgl32.Mat4
	viewInverse mgl32.Mat4
	isDirty     bool
}

func NewCamera(width, height uint32) *Camera {
	c := &Camera{Up: mgl32.Vec3{0, 1, 0}}
	c.SetViewport(width, height)
	c.place()
	return c
}

func (c *Camera) SetViewport(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	aspect := float32(width) / float32(height)
	if aspect != c.aspect {
		c.aspect = aspect
		c.isDirty = true
	}
}

// Advance moves the eye along its orbit by elapsed seconds.
func (c *Camera) Advance(elapsed float32) {
	if elapsed == 0 {
		return
	}
	c.clock += elapsed * eyeSpeed
	c.place()
}

func (c *Camera) place() {
	c.Eye = mgl32.Vec3{math32.Sin(c.clock) * eyeRadius, eyeHeight, math32.Cos(c.clock) * eyeRadius}
	c.Target = mgl32.Vec3{
		math32.Sin(c.clock+math32.Pi) * targetRadius,
		targetHeight,
		math32.Cos(c.clock+math32.Pi) * targetRadius,
	}
	c.isDirty = true
}

func (c *Camera) rebuild() {
	if !c.isDirty {
		return
	}
	top := math32.Tan(mgl32.DegToRad(fieldOfView*fovFudge)*0.5) * nearPlane
	bottom := -top
	c.projection = mgl32.Frustum(c.aspect*bottom, c.aspect*top, bottom, top, nearPlane, farPlane)
	c.view = mgl32.LookAtV(c.Eye, c.Target, c.Up)
	c.viewInverse = c.view.Inv()
	c.isDirty = false
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	c.rebuild()
	return c.projection.Mul4(c.view)
}

// LightWorldPosition is the light constant block for the current view. The
// light sits up and to the right of the eye.
func (c *Camera) LightWorldPosition() uniforms.LightWorldPosition {
	c.rebuild()
	right := c.viewInverse.Col(0).Vec3().Mul(20)
	up := c.viewInverse.Col(1).Vec3().Mul(30)
	return uniforms.LightWorldPosition{
		LightWorldPos:  c.Eye.Add(right).Add(up),
		ViewProjection: c.ViewProjection(),
		ViewInverse:    c.viewInverse,
	}
}

// WorldUniforms derives the transforms of one placement.
func (c *Camera) WorldUniforms(world mgl32.Mat4) uniforms.World {
	return uniforms.World{
		World:                 world,
		WorldInverseTranspose: world.Inv().Transpose(),
		WorldViewProjection:   c.ViewProjection().Mul4(world),
	}
}
