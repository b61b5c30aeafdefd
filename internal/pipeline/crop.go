package pipeline

import (
	"image"

	"golang.org/x/image/draw"
)

// cropSize is the square edge every face crop is scaled to before template
// extraction, matching the input size the face model was trained on.
const cropSize = 112

// BBoxRect converts a detector bounding box [x1, y1, x2, y2] to a rectangle
// clamped to the frame bounds.
func BBoxRect(bbox []float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) < 4 {
		return image.Rectangle{}
	}
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3]))
	return r.Intersect(bounds)
}

// CropFace extracts the face region from the frame. The returned image has
// its origin at (0, 0).
func CropFace(frame image.Image, rect image.Rectangle) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), frame, rect.Min, draw.Src)
	return out
}

// ScaleCrop resizes a face crop to the model input size.
func ScaleCrop(crop image.Image) image.Image {
	bounds := crop.Bounds()
	if bounds.Dx() == cropSize && bounds.Dy() == cropSize {
		return crop
	}
	out := image.NewRGBA(image.Rect(0, 0, cropSize, cropSize))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), crop, bounds, draw.Src, nil)
	return out
}
