package visualization

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/floats"

	"lstqc/internal/models"
)

const (
	// margin separates tiles, rows and the title band
	margin = 4

	titleHeight = 20
)

// mosaicAxes is the row order of a mosaic: sagittal, coronal, axial
var mosaicAxes = []string{"x", "y", "z"}

// ErrClosed is returned when a closed display is used
var ErrClosed = errors.New("visualization: display is closed")

// MosaicOptions controls the mosaic layout
type MosaicOptions struct {
	// Cuts is the number of slices shown per axis
	Cuts int

	// TileSize is the height in pixels of every slice tile
	TileSize int

	// LowerPercentile and UpperPercentile bound the intensity window
	LowerPercentile float64
	UpperPercentile float64

	// Title is drawn above the tiles when not empty
	Title string
}

// DefaultMosaicOptions returns a 20-cut mosaic with 96px tiles
func DefaultMosaicOptions() MosaicOptions {
	return MosaicOptions{
		Cuts:            20,
		TileSize:        96,
		LowerPercentile: 2,
		UpperPercentile: 99.8,
	}
}

// OverlayOptions controls how a mask is composited over a mosaic
type OverlayOptions struct {
	// Colormap names a registered colormap, see LookupColormap
	Colormap string

	// Threshold hides every mask value at or below it
	Threshold float64

	// Alpha is the opacity of drawn mask pixels, 0..1
	Alpha float64
}

// DefaultOverlayOptions returns the hot colormap at 0.8 opacity showing all
// positive mask voxels
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{Colormap: "hot", Threshold: 0, Alpha: 0.8}
}

// tile is one slice of the mosaic and where it sits on the canvas
type tile struct {
	axis string
	pos  int
	rect image.Rectangle
}

// Display is a rendered mosaic that overlays can be added to before saving.
// Close releases the canvas; a display must not be used after Close.
type Display struct {
	Title string

	canvas *image.RGBA
	tiles  []tile
	dims   [3]int
	closed bool
}

// CutPositions returns n slice positions along axis, evenly spaced strictly
// inside the bounding box of the non-zero voxels. An all-zero volume uses
// its full extent.
func CutPositions(vol *models.Volume, axis string, n int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of cuts must be positive, got %d", n)
	}
	if _, err := axisLength(vol, axis); err != nil {
		return nil, err
	}
	lo, hi := nonzeroExtent(vol)
	i := axisIndex(axis)
	return spread(lo[i], hi[i], n), nil
}

// nonzeroExtent returns the inclusive bounding box of the non-zero voxels
func nonzeroExtent(vol *models.Volume) (lo, hi [3]int) {
	dims := vol.Dims()
	lo = dims
	hi = [3]int{-1, -1, -1}

	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if vol.At(x, y, z) == 0 {
					continue
				}
				p := [3]int{x, y, z}
				for i := range p {
					lo[i] = min(lo[i], p[i])
					hi[i] = max(hi[i], p[i])
				}
			}
		}
	}

	if hi[0] < 0 {
		return [3]int{}, [3]int{dims[0] - 1, dims[1] - 1, dims[2] - 1}
	}
	return lo, hi
}

func spread(lo, hi, n int) []int {
	positions := make([]int, n)
	step := float64(hi-lo) / float64(n+1)
	for i := range positions {
		positions[i] = lo + int(math.Round(float64(i+1)*step))
	}
	return positions
}

func axisIndex(axis string) int {
	switch axis {
	case "x", "X":
		return 0
	case "y", "Y":
		return 1
	}
	return 2
}

// RenderMosaic draws one row of cuts per axis with an optional title band
func RenderMosaic(vol *models.Volume, opts MosaicOptions) (*Display, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	if opts.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", opts.TileSize)
	}
	if opts.Cuts <= 0 {
		return nil, fmt.Errorf("number of cuts must be positive, got %d", opts.Cuts)
	}

	window, err := ComputeWindow(vol.Data, opts.LowerPercentile, opts.UpperPercentile)
	if err != nil {
		return nil, err
	}

	viewer := NewViewer(vol)

	top := margin
	if opts.Title != "" {
		top += titleHeight
	}

	d := &Display{Title: opts.Title, dims: vol.Dims()}
	planes := make([]*Plane, 0, len(mosaicAxes)*opts.Cuts)
	width := 0

	// Lay out every tile first so the canvas can be sized once
	for row, axis := range mosaicAxes {
		positions, err := CutPositions(vol, axis, opts.Cuts)
		if err != nil {
			return nil, err
		}
		y := top + row*(opts.TileSize+margin)
		x := margin
		for _, pos := range positions {
			plane, err := viewer.ExtractSlice(axis, pos)
			if err != nil {
				return nil, err
			}
			w := max(1, int(math.Round(float64(opts.TileSize)*plane.Aspect())))
			d.tiles = append(d.tiles, tile{
				axis: axis,
				pos:  pos,
				rect: image.Rect(x, y, x+w, y+opts.TileSize),
			})
			planes = append(planes, plane)
			x += w + margin
		}
		width = max(width, x)
	}

	face := basicfont.Face7x13
	if opts.Title != "" {
		width = max(width, font.MeasureString(face, opts.Title).Ceil()+2*margin)
	}
	height := top + len(mosaicAxes)*(opts.TileSize+margin)

	d.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(d.canvas, d.canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for i, t := range d.tiles {
		src := planes[i].Gray(window)
		draw.ApproxBiLinear.Scale(d.canvas, t.rect, src, src.Bounds(), draw.Src, nil)
	}

	if opts.Title != "" {
		drawer := font.Drawer{
			Dst:  d.canvas,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(margin, margin+face.Ascent),
		}
		drawer.DrawString(opts.Title)
	}

	return d, nil
}

// AddOverlay composites mask over every tile. Mask grids that differ from
// the rendered volume are mapped by nearest voxel index.
func (d *Display) AddOverlay(mask *models.Volume, opts OverlayOptions) error {
	if d.closed {
		return ErrClosed
	}
	if err := mask.Validate(); err != nil {
		return fmt.Errorf("invalid mask: %w", err)
	}
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return fmt.Errorf("alpha must be within [0, 1], got %g", opts.Alpha)
	}
	cmap, err := LookupColormap(opts.Colormap)
	if err != nil {
		return err
	}

	vmax := floats.Max(mask.Data)
	if vmax <= opts.Threshold {
		// Nothing above threshold to draw
		return nil
	}

	viewer := NewViewer(mask)
	maskDims := mask.Dims()
	for _, t := range d.tiles {
		i := axisIndex(t.axis)
		pos := mapIndex(t.pos, d.dims[i], maskDims[i])
		plane, err := viewer.ExtractSlice(t.axis, pos)
		if err != nil {
			return err
		}
		layer := plane.Colorize(cmap, opts.Threshold, vmax, opts.Alpha)
		draw.NearestNeighbor.Scale(d.canvas, t.rect, layer, layer.Bounds(), draw.Over, nil)
	}
	return nil
}

// mapIndex maps a voxel index between grids of different length
func mapIndex(pos, from, to int) int {
	if from == to {
		return pos
	}
	mapped := int(math.Floor((float64(pos) + 0.5) * float64(to) / float64(from)))
	return min(max(mapped, 0), to-1)
}

// Image returns the rendered canvas
func (d *Display) Image() (image.Image, error) {
	if d.closed {
		return nil, ErrClosed
	}
	return d.canvas, nil
}

// Save writes the display as a PNG file, replacing any existing file
func (d *Display) Save(path string) error {
	if d.closed {
		return ErrClosed
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := png.Encode(w, d.canvas); err != nil {
		return fmt.Errorf("error encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// Close releases the canvas. Closing twice is not an error.
func (d *Display) Close() error {
	d.closed = true
	d.canvas = nil
	d.tiles = nil
	return nil
}
