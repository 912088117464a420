package geometry

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidMode is returned for a resize mode other than fit, fill or stretch.
	ErrInvalidMode = errors.New("invalid resize mode")

	// ErrInvalidConstraint is returned for a non-positive or non-finite
	// constraint, a crop offset outside [0,1], or a non-positive base size.
	ErrInvalidConstraint = errors.New("invalid constraint")
)

// Mode selects how the output rectangle is derived from the source.
type Mode string

const (
	ModeFit     Mode = "fit"
	ModeFill    Mode = "fill"
	ModeStretch Mode = "stretch"
)

// ParseMode converts a mode name into a Mode. An empty name selects ModeFit.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return ModeFit, nil
	case ModeFit, ModeFill, ModeStretch:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, name)
	}
}

// Constraints is an immutable set of sizing constraints.
//
// Build one with NewConstraints; the zero value is not valid. Unset numeric
// constraints are stored as zero and skipped during resolution, and defaults
// (fit mode, centred fill crop, output scale 1) are applied once by
// NewConstraints.
type Constraints struct {
	mode Mode

	scale          float64
	scaleMinWidth  float64
	scaleMinHeight float64
	width          float64
	height         float64
	maxWidth       float64
	maxHeight      float64

	fillCropX   float64
	fillCropY   float64
	outputScale float64
}

// Option sets one constraint. Options reject invalid values instead of
// treating them as unset.
type Option func(*Constraints) error

// NewConstraints builds a Constraints value from the given options.
func NewConstraints(opts ...Option) (Constraints, error) {
	c := Constraints{
		mode:        ModeFit,
		fillCropX:   0.5,
		fillCropY:   0.5,
		outputScale: 1,
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return Constraints{}, err
		}
	}
	return c, nil
}

// WithMode sets the resize mode.
func WithMode(m Mode) Option {
	return func(c *Constraints) error {
		switch m {
		case ModeFit, ModeFill, ModeStretch:
			c.mode = m
			return nil
		}
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
}

// WithScale sets the downsample divisor applied to the base size.
func WithScale(v float64) Option {
	return positive("scale", v, func(c *Constraints) { c.scale = v })
}

// WithScaleMinWidth sets the minimum width after downsampling.
func WithScaleMinWidth(v float64) Option {
	return positive("scale_min_width", v, func(c *Constraints) { c.scaleMinWidth = v })
}

// WithScaleMinHeight sets the minimum height after downsampling.
func WithScaleMinHeight(v float64) Option {
	return positive("scale_min_height", v, func(c *Constraints) { c.scaleMinHeight = v })
}

// WithWidth sets the target width.
func WithWidth(v float64) Option {
	return positive("width", v, func(c *Constraints) { c.width = v })
}

// WithHeight sets the target height.
func WithHeight(v float64) Option {
	return positive("height", v, func(c *Constraints) { c.height = v })
}

// WithMaxWidth sets the hard width limit.
func WithMaxWidth(v float64) Option {
	return positive("max_width", v, func(c *Constraints) { c.maxWidth = v })
}

// WithMaxHeight sets the hard height limit.
func WithMaxHeight(v float64) Option {
	return positive("max_height", v, func(c *Constraints) { c.maxHeight = v })
}

// WithFillCrop sets the fractional position of the crop box within the unused
// margin for fill mode: 0 is left/top, 1 is right/bottom.
func WithFillCrop(x, y float64) Option {
	return func(c *Constraints) error {
		if !inUnit(x) || !inUnit(y) {
			return fmt.Errorf("%w: fill crop (%g, %g) outside [0,1]", ErrInvalidConstraint, x, y)
		}
		c.fillCropX, c.fillCropY = x, y
		return nil
	}
}

// WithOutputScale sets the upsample multiplier applied after all other
// constraints.
func WithOutputScale(v float64) Option {
	return positive("output_scale", v, func(c *Constraints) { c.outputScale = v })
}

// Mode returns the resize mode.
func (c Constraints) Mode() Mode { return c.mode }

// OutputScale returns the upsample multiplier.
func (c Constraints) OutputScale() float64 { return c.outputScale }

// AtScale returns a copy of c with a different output scale. It is used to
// derive the 1x/2x members of a srcset from one constraint set.
func (c Constraints) AtScale(v float64) (Constraints, error) {
	if err := WithOutputScale(v)(&c); err != nil {
		return Constraints{}, err
	}
	return c, nil
}

func positive(name string, v float64, set func(*Constraints)) Option {
	return func(c *Constraints) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidConstraint, name, v)
		}
		set(c)
		return nil
	}
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
