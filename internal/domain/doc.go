// Package domain models the entities, viewports and error taxonomy of the
// stencil tile pipeline.
//
// # Data Source
//
// Entities are rows of FM contour data prepared upstream from FCC records.
// Area rows carry up to 360 sample columns named "0" through "359", one per
// degree of azimuth, each holding a "lat,lon" string for the contour vertex
// in that direction. Point rows carry a single center coordinate. Both may
// carry an orientation angle in degrees.
//
// # Lenient Parsing
//
// Sample points:
//
//	A sample is used only if it contains a comma and both halves parse as
//	finite floats. Anything else ("", "NaN", "40.1", "1,2,3") is dropped
//	without an error. A row whose samples are all malformed still resolves;
//	its bounding box keeps the seed extents (see [ResolveArea]).
//
// Angles:
//
//	"-90" -> 270, "725.4" -> 5, "" -> 0, "north" -> 0.
//	Values are reduced modulo 360 and rounded half to even.
//
// Identifiers:
//
//	Numeric ids lose any fractional part: "123.0" -> "123", "7.9" -> "7".
//	The float artifact comes from tabular readers that type id columns as
//	float. Non-numeric ids (city names in sweep mode) are kept as written.
//	The normalized id is the output file name, so this coercion is part of
//	the output contract (see [NormalizeID]).
//
// # Imagery Provider Conventions
//
// The provider takes bounding boxes as minLat,minLon,maxLat,maxLon (latitude
// first) and rotates the camera with a "dir" parameter in whole degrees.
// Returned tiles carry an attribution band along the bottom edge, which the
// raster normalizer crops away.
package domain
