package types

import "image"

// CoordinateScale is the integer range the model reports box coordinates in
const CoordinateScale = 1000.0

// ImagePart is the image payload sent to a vision model
type ImagePart struct {
	Data     []byte
	MIMEType string
}

// RawBox holds model coordinates in (ymin, xmin, ymax, xmax) order, nominally in [0,1000]
type RawBox [4]float64

// RawDetection is one labelled instance exactly as parsed from the model reply
type RawDetection struct {
	Label string `json:"label"`
	Box   RawBox `json:"box"`
}

// Box represents a normalized bounding box by its top-left and bottom-right corners in [0,1] range
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Detection is a labelled instance with a normalized box
type Detection struct {
	Label string `json:"label"`
	Box   Box    `json:"box"`
}

// ObjectCount is the number of detected instances of one object name
type ObjectCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RenderedBox describes a rectangle drawn on the output image
type RenderedBox struct {
	Label string          `json:"label"`
	Color string          `json:"color"`
	Rect  image.Rectangle `json:"rect"`
}

// CountMap converts ordered counts into a name -> count map
func CountMap(counts []ObjectCount) map[string]int {
	m := make(map[string]int, len(counts))
	for _, c := range counts {
		m[c.Name] += c.Count
	}
	return m
}
