package cluster

import (
	"fmt"
	"math"
	"strconv"
)

var palette = []string{
	"#8b5cf6", "#06b6d4", "#22c55e", "#f59e0b", "#ef4444",
	"#14b8a6", "#eab308", "#3b82f6", "#d946ef", "#f97316",
}

// hueStep rotates colors once the palette wraps so a graph with many
// clusters still gets distinguishable colors.
const hueStep = 47.0

// colorForIndex assigns a stable color to the i-th cluster.
func colorForIndex(i int) string {
	if i < 0 {
		i = -i
	}
	base := palette[i%len(palette)]
	cycle := i / len(palette)
	if cycle == 0 {
		return base
	}
	return rotateHue(base, float64(cycle)*hueStep)
}

// rotateHue shifts a hex color's hue by deg degrees, keeping saturation
// and lightness.
func rotateHue(hex string, deg float64) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return hex
	}
	h, s, l := rgbToHSL(r, g, b)
	h = math.Mod(h+deg, 360)
	if h < 0 {
		h += 360
	}
	r2, g2, b2 := hslToRGB(h, s, l)
	return fmt.Sprintf("#%02x%02x%02x", r2, g2, b2)
}

func parseHex(hex string) (r, g, b float64, ok bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0, false
	}
	ri, err1 := strconv.ParseUint(hex[1:3], 16, 8)
	gi, err2 := strconv.ParseUint(hex[3:5], 16, 8)
	bi, err3 := strconv.ParseUint(hex[5:7], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return float64(ri) / 255, float64(gi) / 255, float64(bi) / 255, true
}

func rgbToHSL(r, g, b float64) (h, s, l float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	l = (max + min) / 2

	if max == min {
		return 0, 0, l
	}
	d := max - min
	if l > 0.5 {
		s = d / (2 - max - min)
	} else {
		s = d / (max + min)
	}
	switch max {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h * 60, s, l
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	hn := h / 360
	conv := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 1.0/2:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return conv(hn + 1.0/3), conv(hn), conv(hn - 1.0/3)
}
