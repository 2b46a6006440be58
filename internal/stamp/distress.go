package stamp

import (
	"image"
	"math"

	"github.com/ojrac/opensimplex-go"
)

const (
	noiseFrequency = 0.8
	noiseOctaves   = 4
	noiseSeed      = 7

	// maxDisplacement is the displacement scale at distress level 1, in view
	// box units.
	maxDisplacement = 8.0
)

func displacementScale(level float64) float64 {
	return clamp(level, 0, 1) * maxDisplacement
}

// Displacement noise for the two axes. Seeds are fixed so repeated renders
// of a config give identical pixels.
var (
	noiseX = opensimplex.NewNormalized(noiseSeed)
	noiseY = opensimplex.NewNormalized(noiseSeed + noiseOctaves)
)

// fractalNoise sums octaves of n, normalized to [0,1).
func fractalNoise(n opensimplex.Noise, x, y float64) float64 {
	sum, amp, norm := 0.0, 1.0, 0.0
	for o := 0; o < noiseOctaves; o++ {
		sum += amp * n.Eval2(x, y)
		norm += amp
		amp /= 2
		x, y = x*2, y*2
	}
	return sum / norm
}

// distress displaces every pixel of src by a noise-driven offset. Noise is
// sampled in view box units so the pattern does not depend on the raster
// scale. Level 0 returns src untouched.
func distress(src *image.RGBA, level, scale float64) *image.RGBA {
	amount := displacementScale(level) * scale
	if amount <= 0 {
		return src
	}

	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			ux, uy := float64(x)/scale*noiseFrequency, float64(y)/scale*noiseFrequency
			dx := (fractalNoise(noiseX, ux, uy) - 0.5) * amount
			dy := (fractalNoise(noiseY, ux, uy) - 0.5) * amount

			sx := x + int(math.Round(dx))
			sy := y + int(math.Round(dy))
			if sx < b.Min.X || sx >= b.Max.X || sy < b.Min.Y || sy >= b.Max.Y {
				continue
			}
			si := src.PixOffset(sx, sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// fade multiplies every premultiplied channel by opacity.
func fade(img *image.RGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	for i := range img.Pix {
		img.Pix[i] = uint8(math.Round(float64(img.Pix[i]) * opacity))
	}
}
