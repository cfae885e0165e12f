package recognizer

import "github.com/kozaktomas/rollcall/internal/attendance"

// regionFromBBox converts a pixel bounding box [x1, y1, x2, y2] to a relative
// [x, y, w, h] region. Without image dimensions the raw pixels are kept and
// the region is flagged as such.
func regionFromBBox(bbox []float64, width, height int) attendance.Region {
	if len(bbox) != 4 {
		return attendance.Region{}
	}
	if width <= 0 || height <= 0 {
		return attendance.Region{
			X:     bbox[0],
			Y:     bbox[1],
			W:     bbox[2] - bbox[0],
			H:     bbox[3] - bbox[1],
			Pixel: true,
		}
	}

	x1 := clamp01(bbox[0] / float64(width))
	y1 := clamp01(bbox[1] / float64(height))
	x2 := clamp01(bbox[2] / float64(width))
	y2 := clamp01(bbox[3] / float64(height))

	return attendance.Region{X: x1, Y: y1, W: max(x2-x1, 0), H: max(y2-y1, 0)}
}

// Detectors may report boxes slightly outside the frame.
func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
