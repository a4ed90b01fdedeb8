package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"lstqc/internal/models"
)

// Viewer extracts display-oriented 2D planes from a volume
type Viewer struct {
	// vol holds the 3D volume data
	vol *models.Volume
}

// Plane is a 2D cut through a volume, row 0 at the top of the display
type Plane struct {
	Data   []float64
	Width  int
	Height int

	// PixelWidth and PixelHeight are the physical pixel sizes in mm
	PixelWidth  float64
	PixelHeight float64
}

// NewViewer creates a new viewer over vol
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// axisLength returns the number of positions along axis
func axisLength(vol *models.Volume, axis string) (int, error) {
	switch axis {
	case "x", "X":
		return vol.Width, nil
	case "y", "Y":
		return vol.Height, nil
	case "z", "Z":
		return vol.Depth, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// x gives a sagittal plane, y a coronal plane and z an axial plane; the
// superior (or anterior, for axial cuts) side is at the top.
func (v *Viewer) ExtractSlice(axis string, position int) (*Plane, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	length, err := axisLength(v.vol, axis)
	if err != nil {
		return nil, err
	}
	if position >= length {
		return nil, fmt.Errorf("position %d exceeds %s extent %d", position, axis, length)
	}

	vol := v.vol
	var p *Plane

	switch axis {
	case "x", "X":
		// YZ plane
		p = newPlane(vol.Height, vol.Depth, vol.VoxelSize.Y, vol.VoxelSize.Z)
		for z := 0; z < vol.Depth; z++ {
			for y := 0; y < vol.Height; y++ {
				p.Data[(vol.Depth-1-z)*p.Width+y] = vol.At(position, y, z)
			}
		}

	case "y", "Y":
		// XZ plane
		p = newPlane(vol.Width, vol.Depth, vol.VoxelSize.X, vol.VoxelSize.Z)
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				p.Data[(vol.Depth-1-z)*p.Width+x] = vol.At(x, position, z)
			}
		}

	default:
		// XY plane
		p = newPlane(vol.Width, vol.Height, vol.VoxelSize.X, vol.VoxelSize.Y)
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				p.Data[(vol.Height-1-y)*p.Width+x] = vol.At(x, y, position)
			}
		}
	}

	return p, nil
}

func newPlane(width, height int, pixelWidth, pixelHeight float64) *Plane {
	return &Plane{
		Data:        make([]float64, width*height),
		Width:       width,
		Height:      height,
		PixelWidth:  pixelWidth,
		PixelHeight: pixelHeight,
	}
}

// At returns the value at column x, row y
func (p *Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Aspect returns the physical width over height ratio of the plane
func (p *Plane) Aspect() float64 {
	h := float64(p.Height) * p.PixelHeight
	if h <= 0 {
		return 1
	}
	return float64(p.Width) * p.PixelWidth / h
}

// Gray renders the plane as 8-bit grayscale through the intensity window
func (p *Plane) Gray(w Window) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			value := uint8(math.Round(255 * w.Normalize(p.At(x, y))))
			img.SetGray(x, y, color.Gray{Y: value})
		}
	}
	return img
}

// Colorize maps values above threshold through cmap with a fixed alpha.
// Values at or below threshold stay fully transparent.
func (p *Plane) Colorize(cmap Colormap, threshold, vmax, alpha float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	a := uint8(math.Round(255 * clamp01(alpha)))
	span := vmax - threshold

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			value := p.At(x, y)
			if value <= threshold {
				continue
			}
			t := 1.0
			if span > 0 {
				t = (value - threshold) / span
			}
			c := cmap(t)
			c.A = a
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
