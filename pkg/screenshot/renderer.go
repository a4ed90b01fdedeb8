package screenshot

import (
	"fmt"

	"lstqc/internal/models"
	"lstqc/pkg/nifti"
	"lstqc/pkg/visualization"
)

// Renderer loads volumes and turns them into saved mosaic images.
// The driver only depends on this contract.
type Renderer interface {
	// Load reads a volume; unreadable files yield a *nifti.DecodeError
	Load(path string) (*models.Volume, error)

	// RenderMosaic draws cuts slices per axis under title. The caller
	// must Close the returned display.
	RenderMosaic(vol *models.Volume, cuts int, title string) (*visualization.Display, error)

	// Overlay composites the mask stored at maskPath onto the display
	Overlay(display *visualization.Display, maskPath string, opts visualization.OverlayOptions) error

	// Save writes the display to path
	Save(display *visualization.Display, path string) error
}

// ImageRenderer renders NIfTI volumes with the visualization package
type ImageRenderer struct {
	// Mosaic provides tile size and intensity window; Cuts and Title are
	// set per call
	Mosaic visualization.MosaicOptions
}

// NewImageRenderer returns a renderer using the given mosaic settings
func NewImageRenderer(mosaic visualization.MosaicOptions) *ImageRenderer {
	return &ImageRenderer{Mosaic: mosaic}
}

// Load implements Renderer
func (r *ImageRenderer) Load(path string) (*models.Volume, error) {
	return nifti.Load(path)
}

// RenderMosaic implements Renderer
func (r *ImageRenderer) RenderMosaic(vol *models.Volume, cuts int, title string) (*visualization.Display, error) {
	opts := r.Mosaic
	opts.Cuts = cuts
	opts.Title = title
	return visualization.RenderMosaic(vol, opts)
}

// Overlay implements Renderer
func (r *ImageRenderer) Overlay(display *visualization.Display, maskPath string, opts visualization.OverlayOptions) error {
	mask, err := nifti.Load(maskPath)
	if err != nil {
		return fmt.Errorf("error loading mask: %w", err)
	}
	return display.AddOverlay(mask, opts)
}

// Save implements Renderer
func (r *ImageRenderer) Save(display *visualization.Display, path string) error {
	return display.Save(path)
}
