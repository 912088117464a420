// Package imaging provides the file-level image operations behind renditions.
//
// It has two halves:
//   - Index locates source images on a search path and records their content
//     hash, pixel dimensions and format, re-reading a file only when its
//     modification time changes.
//   - Codec implements rendition.Codec: it decodes a source, crops it to the
//     resolved box, resamples it with a Lanczos filter, flattens transparency
//     onto a background when asked to, and encodes the result.
//
// # Coordinate System
//
// Crop boxes use source pixel coordinates with (0,0) at the top-left corner,
// X increasing rightward and Y increasing downward. Min is inclusive and Max
// is exclusive, as in image.Rectangle.
//
// # Formats
//
// Sources may be PNG, JPEG, GIF, BMP, TIFF or WebP. Renditions can be written
// as JPEG (with a quality setting), PNG, GIF, TIFF or BMP. A WebP source with
// no requested format is written as PNG.
//
// # Thread Safety
//
// Index is safe for concurrent use. Codec holds no state, and Resample,
// Flatten and Encoder never modify their inputs.
package imaging
