// Package rendition names and produces image renditions.
//
// A rendition is a resized, cropped or re-encoded copy of a source image. Its
// location is derived entirely from the source's content hash, the resolved
// geometry and the output parameters, so the location doubles as a cache key:
// if a file exists at the computed path, the rendition has already been made.
//
// # Naming
//
// KeyBuilder produces paths of the form
//
//	<output dir>/<hash[0:2]>/<hash[2:6]>/<slug>_<hash suffix>[_WxH][_x0-y0-x1-y1][_b<bg>][_q<quality>].<ext>
//
// The size token is present only when the rendition differs in size from the
// source, the crop token only for fill renditions, the background token only
// when an opaque format was requested with a background, and the quality
// token only for JPEG output with an explicit quality. The scheme is a durable
// contract: changing it orphans every rendition already on disk.
//
// # Rendering
//
// Renderer is the caller side of the cache. It resolves geometry, builds the
// key, and on a miss invokes a Codec under per-key mutual exclusion, writing
// to a temporary file that is renamed into place once complete. Concurrent
// identical requests share one codec invocation. Stale renditions are never
// invalidated; a changed source has a new hash and therefore new paths.
package rendition
