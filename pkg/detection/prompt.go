package detection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/object-counter/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

const promptTemplate = `Return bounding boxes for each object: %s.

Return JSON only, in exactly this format:
{"%s_0": [ymin, xmin, ymax, xmax], ...}

RULES
- Coordinates are integers normalized to 0-1000 relative to the image height (y) and width (x).
- If there is more than one instance of an object, add them as "object_0", "object_1", etc.
- Omit objects that are not visible.
- Output only valid JSON. No markdown, no code fences, no comments, no other information.`

// ParseObjectList splits comma-separated user input into an object query
func ParseObjectList(input string) []string {
	return CleanObjects(strings.Split(input, ","))
}

// CleanObjects trims names and drops empty entries, keeping order and duplicates
func CleanObjects(objects []string) []string {
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// BuildPrompt creates the instruction asking the model for labelled boxes of the given objects
func BuildPrompt(objects []string) (string, error) {
	if len(objects) == 0 {
		return "", types.NewError(types.KindInvalidInput, "detection.BuildPrompt", errors.New("object list is empty"))
	}
	return fmt.Sprintf(promptTemplate, strings.Join(objects, ", "), objects[0]), nil
}
