package objectcounter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/object-counter/pkg/detection"
	"github.com/menta2k/object-counter/pkg/types"
)

type fakeClient struct {
	reply string
	err   error
	img    types.ImagePart
	prompt string
	calls  int
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) SimpleQuery(_ context.Context, _, prompt string, img types.ImagePart) (string, error) {
	f.calls++
	f.img = img
	f.prompt = prompt
	return f.reply, f.err
}

// createTestPNG creates a white PNG of the given size
func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyze(t *testing.T) {
	fc := &fakeClient{reply: `{"dog_0": [100, 200, 300, 400]}`}
	counter := New(fc, Options{Model: "test-model"})

	result, err := counter.Analyze(context.Background(), createTestPNG(t, 1000, 1000), []string{" dog "})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if fc.img.MIMEType != "image/png" {
		t.Errorf("Expected png to be sent as image/png, got %q", fc.img.MIMEType)
	}

	if len(result.Boxes) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(result.Boxes))
	}
	want := image.Rect(200, 100, 400, 300)
	if result.Boxes[0].Rect != want {
		t.Errorf("Expected rect %v, got %v", want, result.Boxes[0].Rect)
	}
	if result.Boxes[0].Color != "red" {
		t.Errorf("Expected first box to be red, got %s", result.Boxes[0].Color)
	}

	red := color.NRGBA{R: 255, A: 255}
	for _, pt := range []image.Point{{200, 200}, {400, 200}, {300, 100}, {300, 300}} {
		if got := result.Image.NRGBAAt(pt.X, pt.Y); got != red {
			t.Errorf("Expected red at %v, got %v", pt, got)
		}
	}
	if got := result.Image.NRGBAAt(300, 200); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("Expected box interior untouched, got %v", got)
	}

	counts := result.CountMap()
	if len(counts) != 1 || counts["dog"] != 1 {
		t.Errorf("Expected {dog:1}, got %v", counts)
	}

	if result.Info.Width != 1000 || result.Info.Format != "png" {
		t.Errorf("Unexpected image info %+v", result.Info)
	}
}

func TestAnalyzeCountsInstances(t *testing.T) {
	fc := &fakeClient{reply: "```json\n{'car_0': [0,0,100,100], 'person_0': [10,10,50,50], 'car_1': [500,500,600,600],}\n```"}
	counter := New(fc, Options{})

	result, err := counter.Analyze(context.Background(), createTestPNG(t, 64, 64), []string{"car", "person"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(result.Counts) != 2 {
		t.Fatalf("Expected 2 counts, got %v", result.Counts)
	}
	if result.Counts[0] != (types.ObjectCount{Name: "car", Count: 2}) {
		t.Errorf("Expected car:2 first, got %v", result.Counts[0])
	}
	if result.Counts[1] != (types.ObjectCount{Name: "person", Count: 1}) {
		t.Errorf("Expected person:1 second, got %v", result.Counts[1])
	}

	colors := []string{"red", "green", "blue"}
	for i, b := range result.Boxes {
		if b.Color != colors[i] {
			t.Errorf("Box %d: expected %s, got %s", i, colors[i], b.Color)
		}
	}
}

func TestAnalyzeEmptyObjects(t *testing.T) {
	fc := &fakeClient{reply: `{}`}
	counter := New(fc, Options{})

	for _, objects := range [][]string{nil, {}, {" ", ""}} {
		result, err := counter.Analyze(context.Background(), createTestPNG(t, 32, 32), objects)
		if !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("Expected InvalidInput for %q, got %v", objects, err)
		}
		if result != nil {
			t.Error("Expected nil result")
		}
	}

	if fc.calls != 0 {
		t.Errorf("Expected no model calls, got %d", fc.calls)
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		client *fakeClient
		want   error
	}{
		{
			name:   "undecodable image",
			data:   []byte("not an image"),
			client: &fakeClient{reply: `{}`},
			want:   types.ErrInvalidInput,
		},
		{
			name:   "network",
			client: &fakeClient{err: types.NewNetworkError("fake.SimpleQuery", errors.New("connection refused"), true)},
			want:   types.ErrNetwork,
		},
		{
			name:   "unparseable reply",
			client: &fakeClient{reply: "I cannot see any dogs."},
			want:   types.ErrParse,
		},
		{
			name:   "malformed detection",
			client: &fakeClient{reply: `{"dog_0": [1, 2, 3]}`},
			want:   types.ErrMalformedDetection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = createTestPNG(t, 32, 32)
			}
			counter := New(tt.client, Options{})

			result, err := counter.Analyze(context.Background(), data, []string{"dog"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if result != nil {
				t.Error("Expected nil result on failure")
			}
		})
	}
}

func TestAnalyzeNetworkErrorIsRetryable(t *testing.T) {
	fc := &fakeClient{err: types.NewNetworkError("fake.SimpleQuery", errors.New("503"), true)}
	counter := New(fc, Options{})

	_, err := counter.Analyze(context.Background(), createTestPNG(t, 32, 32), []string{"dog"})
	if !types.IsRetryable(err) {
		t.Errorf("Expected retryable error, got %v", err)
	}
}

func TestAnalyzeDownscalesForModel(t *testing.T) {
	fc := &fakeClient{reply: `{"dog_0": [0, 0, 500, 500]}`}
	counter := New(fc, Options{MaxSendSize: 100})

	result, err := counter.Analyze(context.Background(), createTestPNG(t, 400, 200), []string{"dog"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	sent, err := png.Decode(bytes.NewReader(fc.img.Data))
	if err != nil {
		t.Fatalf("Expected png payload: %v", err)
	}
	if sent.Bounds().Dx() != 100 || sent.Bounds().Dy() != 50 {
		t.Errorf("Expected 100x50 payload, got %v", sent.Bounds())
	}

	// boxes are drawn on the full-size image
	if result.Boxes[0].Rect != image.Rect(0, 0, 200, 100) {
		t.Errorf("Unexpected rect %v", result.Boxes[0].Rect)
	}
}

func TestAnalyzeSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dog.png")
	if err := os.WriteFile(path, createTestPNG(t, 100, 100), 0644); err != nil {
		t.Fatal(err)
	}

	fc := &fakeClient{reply: `{"dog_0": [0, 0, 1000, 1000], "dog_1": [10, 10, 20, 20]}`}
	counter := New(fc, Options{})

	result, err := counter.AnalyzeSource(context.Background(), path, []string{"dog"})
	if err != nil {
		t.Fatalf("AnalyzeSource failed: %v", err)
	}
	if result.CountMap()["dog"] != 2 {
		t.Errorf("Expected 2 dogs, got %v", result.Counts)
	}

	_, err = counter.AnalyzeSource(context.Background(), filepath.Join(t.TempDir(), "missing.png"), []string{"dog"})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected InvalidInput for missing file, got %v", err)
	}
}

func TestTestVision(t *testing.T) {
	fc := &fakeClient{reply: "A white square."}
	counter := New(fc, Options{Model: "test-model"})

	reply, err := counter.TestVision(context.Background(), createTestPNG(t, 64, 64))
	if err != nil {
		t.Fatalf("TestVision failed: %v", err)
	}
	if reply != "A white square." {
		t.Errorf("Unexpected reply %q", reply)
	}
	if fc.prompt != detection.SimpleTestPrompt {
		t.Errorf("Expected the describe prompt, got %q", fc.prompt)
	}
	if fc.img.MIMEType != "image/png" {
		t.Errorf("Expected png payload, got %s", fc.img.MIMEType)
	}

	fc = &fakeClient{reply: "ignored"}
	counter = New(fc, Options{})
	if _, err := counter.TestVision(context.Background(), []byte("not an image")); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected InvalidInput, got %v", err)
	}
	if fc.calls != 0 {
		t.Errorf("Expected no model call for a bad image, got %d", fc.calls)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}
