package visualization

import (
	"fmt"
	"image/color"
	"math"
	"sort"
)

// Colormap maps a normalized value in [0, 1] to an opaque color
type Colormap func(t float64) color.NRGBA

var colormaps = map[string]Colormap{
	"hot":   hot,
	"hot_r": func(t float64) color.NRGBA { return hot(1 - t) },
	"gray":  gray,
}

// LookupColormap returns the colormap registered under name
func LookupColormap(name string) (Colormap, error) {
	cmap, ok := colormaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (available: %v)", name, ColormapNames())
	}
	return cmap, nil
}

// ColormapNames lists the registered colormaps in sorted order
func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hot ramps black -> red -> yellow -> white with matplotlib's breakpoints
func hot(t float64) color.NRGBA {
	t = clamp01(t)
	r := 0.0416 + (1-0.0416)*clamp01(t/0.365079)
	g := clamp01((t - 0.365079) / (0.746032 - 0.365079))
	b := clamp01((t - 0.746032) / (1 - 0.746032))
	return color.NRGBA{R: channel(r), G: channel(g), B: channel(b), A: 255}
}

func gray(t float64) color.NRGBA {
	v := channel(clamp01(t))
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

func channel(v float64) uint8 {
	return uint8(math.Round(255 * v))
}
