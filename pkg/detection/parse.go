package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/menta2k/object-counter/pkg/types"
)

const fence = "```"

var (
	languageTags = []string{"python", "json"}
	reTrailing   = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseResponse extracts labelled boxes from the model's reply.
// The reply is repaired on a best-effort basis; detections keep the order the model listed them in.
// When braces in prose ahead of a fenced block spoil the whole reply, the block alone is parsed.
func ParseResponse(text string) ([]types.RawDetection, error) {
	out, err := parseObject(sanitizeModelJSON(text))
	if err == nil || !errors.Is(err, types.ErrParse) {
		return out, err
	}
	if block, ok := fencedBlock(strings.TrimSpace(text)); ok {
		if raw := sanitizeModelJSON(block); raw != "" {
			return parseObject(raw)
		}
	}
	return nil, err
}

func parseObject(raw string) ([]types.RawDetection, error) {
	const op = "detection.ParseResponse"

	if raw == "" {
		return nil, types.NewError(types.KindParse, op, errors.New("no JSON object found"))
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, types.NewError(types.KindParse, op, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, types.NewError(types.KindParse, op, fmt.Errorf("expected JSON object, got %v", tok))
	}

	var out []types.RawDetection
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, types.NewError(types.KindParse, op, err)
		}
		label, ok := tok.(string)
		if !ok {
			return nil, types.NewError(types.KindParse, op, fmt.Errorf("unexpected token %v", tok))
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, types.NewError(types.KindParse, op, err)
		}
		box, err := decodeBox(value)
		if err != nil {
			return nil, types.NewError(types.KindMalformedDetection, op, fmt.Errorf("%q: %w", label, err))
		}

		if i, seen := index[label]; seen {
			out[i].Box = box
			continue
		}
		index[label] = len(out)
		out = append(out, types.RawDetection{Label: label, Box: box})
	}

	if _, err := dec.Token(); err != nil {
		return nil, types.NewError(types.KindParse, op, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, types.NewError(types.KindParse, op, errors.New("unexpected data after JSON object"))
	}

	return out, nil
}

func decodeBox(value json.RawMessage) (types.RawBox, error) {
	var nums []float64
	if err := json.Unmarshal(value, &nums); err != nil {
		return types.RawBox{}, fmt.Errorf("box must be an array of numbers: %s", string(value))
	}
	if len(nums) != 4 {
		return types.RawBox{}, fmt.Errorf("box must have 4 coordinates, got %d", len(nums))
	}
	return types.RawBox{nums[0], nums[1], nums[2], nums[3]}, nil
}

// sanitizeModelJSON removes code fences, language tags, single quotes, newlines and trailing commas
func sanitizeModelJSON(raw string) string {
	raw = stripFences(strings.TrimSpace(raw))
	raw = trimLanguageTag(strings.TrimSpace(raw))

	raw = strings.ReplaceAll(raw, "'", `"`)
	raw = strings.ReplaceAll(raw, "\r", "")
	raw = strings.ReplaceAll(raw, "\n", "")

	// Remove trailing commas before } or ]
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// stripFences cuts the reply down to the fenced JSON block.
// A fence after the object has started is a closing fence followed by commentary.
func stripFences(raw string) string {
	i := strings.Index(raw, fence)
	if i < 0 {
		return raw
	}
	if strings.Contains(raw[:i], "{") {
		return raw[:i]
	}
	block, _ := fencedBlock(raw)
	return block
}

// fencedBlock returns the contents of the first fenced block, language tag removed
func fencedBlock(raw string) (string, bool) {
	i := strings.Index(raw, fence)
	if i < 0 {
		return "", false
	}
	rest := trimLanguageTag(strings.TrimLeft(raw[i:], "`"))
	if j := strings.Index(rest, fence); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}

func trimLanguageTag(s string) string {
	for _, tag := range languageTags {
		if len(s) >= len(tag) && strings.EqualFold(s[:len(tag)], tag) {
			return s[len(tag):]
		}
	}
	return s
}
