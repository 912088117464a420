// Package geometry resolves the output size and source crop box of an image
// rendition from a declarative set of sizing constraints.
//
// Resolution is a pure function of the base (source) size and a Constraints
// value. Nothing in this package performs I/O, and every function is safe for
// concurrent use.
//
// # Resize Modes
//
//   - fit: scale proportionally so every constraint is met. The result never
//     exceeds the base size, even when an output scale would enlarge it.
//   - fill: each axis is constrained independently and the source is cropped
//     so that the cropped region exactly covers the output aspect ratio.
//   - stretch: each axis is constrained independently and the whole source is
//     resampled to the result, changing its aspect ratio if necessary.
//
// # Constraint Order
//
// Constraints are applied in a fixed order, one axis at a time:
//
//  1. scale divides both axes
//  2. scale_min_width / scale_min_height raise an axis to a minimum
//  3. width / height clamp an axis down to a target
//  4. max_width / max_height clamp an axis down to a hard limit
//  5. output_scale multiplies both axes
//  6. the mode-specific final step rounds (and for fit and fill, limits the
//     result to the base size)
//
// In fit mode steps 2 to 4 rescale the other axis too, preserving the aspect
// ratio. In fill and stretch mode they touch only the named axis.
//
// # Rounding
//
// All intermediate arithmetic is float64. Final values are rounded half-up
// (floor(x+0.5)), never with Go's round-half-even, so pixel counts match
// previously generated renditions exactly.
package geometry
