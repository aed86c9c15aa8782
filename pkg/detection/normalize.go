package detection

import (
	"regexp"
	"strings"

	"github.com/menta2k/object-counter/pkg/types"
)

var reInstanceSuffix = regexp.MustCompile(`_\d+$`)

// Normalize scales model coordinates from 0-1000 into 0-1 and reorders
// (ymin, xmin, ymax, xmax) into corner form. Values are not clamped.
func Normalize(raw []types.RawDetection) []types.Detection {
	out := make([]types.Detection, 0, len(raw))
	for _, r := range raw {
		out = append(out, types.Detection{
			Label: r.Label,
			Box: types.Box{
				X1: r.Box[1] / types.CoordinateScale,
				Y1: r.Box[0] / types.CoordinateScale,
				X2: r.Box[3] / types.CoordinateScale,
				Y2: r.Box[2] / types.CoordinateScale,
			},
		})
	}
	return out
}

// BaseName strips the trailing _<index> from an instance label
func BaseName(label string) string {
	return strings.TrimSpace(reInstanceSuffix.ReplaceAllString(label, ""))
}

// CountObjects tallies detections per object name in order of first appearance
func CountObjects(dets []types.Detection) []types.ObjectCount {
	counts := []types.ObjectCount{}
	index := map[string]int{}
	for _, d := range dets {
		name := BaseName(d.Label)
		if i, ok := index[name]; ok {
			counts[i].Count++
			continue
		}
		index[name] = len(counts)
		counts = append(counts, types.ObjectCount{Name: name, Count: 1})
	}
	return counts
}
