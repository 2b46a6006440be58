package main

import (
	"bytes"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPresets(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-list"}, &out, io.Discard))
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "company-seal")
	assert.Contains(t, out.String(), "advocate")
}

func TestRenderSVGFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "stamp.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("shape: oval\nprimary_text: Kamau Traders\ncenter_text: PAID\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", cfgPath, "-o", "-"}, &out, io.Discard))
	svg := out.String()
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "Kamau Traders")
	assert.Contains(t, svg, "PAID")
}

func TestRenderPNGToFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "seal.png")

	var log bytes.Buffer
	require.NoError(t, run([]string{"-preset", "company-seal", "-format", "png", "-scale", "1", "-o", target}, io.Discard, &log))
	assert.Contains(t, log.String(), "wrote")

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
}

func TestRefusesPNGOnTerminal(t *testing.T) {
	orig := isTerminal
	isTerminal = func(io.Writer) bool { return true }
	t.Cleanup(func() { isTerminal = orig })

	err := run([]string{"-format", "png", "-o", "-"}, &bytes.Buffer{}, io.Discard)
	assert.ErrorIs(t, err, errTerminal)
}

func TestRunErrors(t *testing.T) {
	assert.Error(t, run([]string{"-preset", "no-such-preset", "-o", "-"}, io.Discard, io.Discard))
	assert.Error(t, run([]string{"-format", "gif", "-o", "-"}, io.Discard, io.Discard))
	assert.Error(t, run([]string{"-config", "/does/not/exist.yaml"}, io.Discard, io.Discard))
}
