package hal

// Viewport is a viewport transform.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is an integer rectangle, used for scissors and render areas.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Origin3D is a texel offset inside an image subresource.
type Origin3D struct {
	X, Y, Z uint32
}
