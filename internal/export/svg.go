// Package export renders a result artifact as an SVG heatmap.
package export

import (
	"fmt"
	"math"
	"strings"
)

// FieldToSVG draws the global field as one rect per cell, columns in rank
// order as they appear in the artifact body. cell is the edge length of a
// cell in SVG units.
func FieldToSVG(body []float64, globalW, globalH int, cell float64) string {
	if globalW <= 0 || globalH <= 0 || len(body) != globalW*globalH {
		return ""
	}

	width := float64(globalW) * cell
	height := float64(globalH) * cell

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	lo, hi := bounds(body)
	for x := 0; x < globalW; x++ {
		for y := 0; y < globalH; y++ {
			v := body[x*globalH+y]
			sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>
`, float64(x)*cell, float64(y)*cell, cell, cell, heatColor(v, lo, hi)))
		}
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

func bounds(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// heatColor maps a value onto a cold-to-hot ramp: dark blue through red to
// near white.
func heatColor(v, lo, hi float64) string {
	t := (v - lo) / (hi - lo)
	r := int(255 * math.Min(1, 2*t))
	g := int(255 * math.Max(0, 2*t-1))
	b := int(255 * math.Max(0, 1-2*t) * 0.6)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
