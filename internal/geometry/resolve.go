package geometry

import (
	"fmt"
	"image"
	"math"
)

// Geometry is a resolved rendition size and, for fill mode, the region of the
// source to resample into it.
type Geometry struct {
	Width  int
	Height int

	// Box is the source crop region in source pixel coordinates. It is empty
	// unless the rendition was resolved in fill mode.
	Box image.Rectangle
}

// Cropped reports whether the rendition uses a crop box.
func (g Geometry) Cropped() bool {
	return !g.Box.Empty()
}

// Resolve computes the rendition geometry for a source of the given size.
//
// Returns ErrInvalidConstraint when the base size is not positive, c was not
// built by NewConstraints, or the constraints resolve to a size that does not
// fit in an int32. Returns ErrInvalidMode for an unknown mode.
func Resolve(baseWidth, baseHeight int, c Constraints) (Geometry, error) {
	if baseWidth <= 0 || baseHeight <= 0 {
		return Geometry{}, fmt.Errorf("%w: base size %dx%d", ErrInvalidConstraint, baseWidth, baseHeight)
	}
	if c.outputScale <= 0 {
		return Geometry{}, fmt.Errorf("%w: output scale %g", ErrInvalidConstraint, c.outputScale)
	}

	bw, bh := float64(baseWidth), float64(baseHeight)

	switch c.mode {
	case ModeFit:
		w, h := c.apply(bw, bh, true)
		if err := checkExtent(w, h); err != nil {
			return Geometry{}, err
		}
		return Geometry{
			Width:  min(round(w), baseWidth),
			Height: min(round(h), baseHeight),
		}, nil

	case ModeFill:
		w, h := c.apply(bw, bh, false)
		if err := checkExtent(w, h); err != nil {
			return Geometry{}, err
		}

		// Shrink back inside the base size, keeping the output aspect.
		if w > bw {
			h = h * bw / w
			w = bw
		}
		if h > bh {
			w = w * bh / h
			h = bh
		}

		// A very thin output makes one box term overflow; the base bounds it.
		boxW := round(math.Min(w*bh/h, bw))
		boxH := round(math.Min(h*bw/w, bh))
		boxX := roundHalfUp(float64(baseWidth-boxW) * c.fillCropX)
		boxY := roundHalfUp(float64(baseHeight-boxH) * c.fillCropY)

		return Geometry{
			Width:  round(w),
			Height: round(h),
			Box:    image.Rect(boxX, boxY, boxX+boxW, boxY+boxH),
		}, nil

	case ModeStretch:
		w, h := c.apply(bw, bh, false)
		if err := checkExtent(w, h); err != nil {
			return Geometry{}, err
		}
		return Geometry{Width: round(w), Height: round(h)}, nil

	default:
		return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidMode, c.mode)
	}
}

// maxExtent bounds a resolved pixel extent before it is rounded to an int.
const maxExtent = math.MaxInt32

// checkExtent rejects extents that cannot be rounded to a pixel count.
func checkExtent(w, h float64) error {
	for _, v := range [...]float64{w, h} {
		if !(v > 0) || v > maxExtent {
			return fmt.Errorf("%w: resolved size %gx%g out of range", ErrInvalidConstraint, w, h)
		}
	}
	return nil
}

// apply runs the shared constraint pipeline up to and including the output
// scale. With proportional set, raising or clamping one axis rescales the
// other by the same factor.
func (c Constraints) apply(w, h float64, proportional bool) (float64, float64) {
	if c.scale > 0 {
		w /= c.scale
		h /= c.scale
	}

	if c.scaleMinWidth > 0 && w < c.scaleMinWidth {
		w, h = setWidth(w, h, c.scaleMinWidth, proportional)
	}
	if c.scaleMinHeight > 0 && h < c.scaleMinHeight {
		w, h = setHeight(w, h, c.scaleMinHeight, proportional)
	}

	for _, limit := range [...][2]float64{
		{c.width, c.height},
		{c.maxWidth, c.maxHeight},
	} {
		if limit[0] > 0 && w > limit[0] {
			w, h = setWidth(w, h, limit[0], proportional)
		}
		if limit[1] > 0 && h > limit[1] {
			w, h = setHeight(w, h, limit[1], proportional)
		}
	}

	return w * c.outputScale, h * c.outputScale
}

func setWidth(w, h, target float64, proportional bool) (float64, float64) {
	if proportional {
		h = h * target / w
	}
	return target, h
}

func setHeight(w, h, target float64, proportional bool) (float64, float64) {
	if proportional {
		w = w * target / h
	}
	return w, target
}

// round rounds a pixel extent half-up, never returning less than one pixel.
func round(v float64) int {
	return max(1, roundHalfUp(v))
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
