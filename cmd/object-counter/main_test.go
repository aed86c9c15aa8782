package main

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	objectcounter "github.com/menta2k/object-counter"
	"github.com/menta2k/object-counter/pkg/types"
)

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.PNG", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectInputs(dir)
	if err != nil {
		t.Fatalf("collectInputs failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 image files, got %v", files)
	}

	single, err := collectInputs("https://example.com/cat.jpg")
	if err != nil || len(single) != 1 {
		t.Errorf("Expected the URL to pass through, got %v, %v", single, err)
	}

	if _, err := collectInputs(t.TempDir()); err == nil {
		t.Error("Expected error for a directory without images")
	}
}

func TestDescribeOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "white.png")
	if err := os.WriteFile(path, testPNG(t), 0o644); err != nil {
		t.Fatal(err)
	}
	counter := objectcounter.New(describer{reply: "  a white square \n"}, objectcounter.Options{})

	if err := describeOne(context.Background(), counter, path); err != nil {
		t.Fatalf("describeOne failed: %v", err)
	}
	if err := describeOne(context.Background(), counter, filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

type describer struct{ reply string }

func (d describer) Name() string { return "describer" }

func (d describer) SimpleQuery(_ context.Context, _, _ string, _ types.ImagePart) (string, error) {
	return d.reply, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
