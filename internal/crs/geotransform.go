package crs

import "github.com/DavideDeMarchi/geolayer/pkg/geoerr"

// GeoTransform is the GDAL-style affine transform from pixel space to the
// raster's CRS: x = gt[0] + col*gt[1] + row*gt[2], y = gt[3] + col*gt[4] + row*gt[5].
type GeoTransform [6]float64

// NewNorthUp builds the common axis-aligned transform with the origin at the
// top-left corner and a negative y resolution.
func NewNorthUp(originX, originY, resX, resY float64) GeoTransform {
	if resY > 0 {
		resY = -resY
	}
	return GeoTransform{originX, resX, 0, originY, 0, resY}
}

// Apply maps a (row, col) pixel address to CRS coordinates of the pixel's
// top-left corner.
func (gt GeoTransform) Apply(row, col float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return
}

// Invert maps CRS coordinates back to fractional (row, col).
func (gt GeoTransform) Invert(x, y float64) (row, col float64, err error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, geoerr.Config("geotransform is singular")
	}
	dx := x - gt[0]
	dy := y - gt[3]
	col = (dx*gt[5] - dy*gt[2]) / det
	row = (dy*gt[1] - dx*gt[4]) / det
	return row, col, nil
}
