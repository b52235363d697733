package headlessrenderer

import (
	"context"
	"image"
	"os"
	"testing"

	"github.com/jamesrr39/goutil/logpkg"
	"github.com/stretchr/testify/require"
)

func renderForTest(t *testing.T, settings MapSettings) *image.RGBA {
	job := NewSequentialJob(logpkg.NewLogger(os.Stderr, logpkg.LogLevelError), settings)
	img, err := job.Render(context.Background())
	require.NoError(t, err)
	return img
}

func countOpaquePixels(img *image.RGBA) int {
	count := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			count++
		}
	}
	return count
}
