package models

import (
	"fmt"
)

// Volume represents a 3D anatomical or label volume loaded from disk
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order,
	// x varying fastest: idx = z*Width*Height + y*Width + x
	Data []float64

	// Width is the width of the volume in voxels (x axis)
	Width int

	// Height is the height of the volume in voxels (y axis)
	Height int

	// Depth is the depth of the volume in voxels (z axis)
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zeroed volume with isotropic 1mm voxels
func NewVolume(width, height, depth int) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	return v
}

// Index returns the position of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores value at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Dims returns the grid size along x, y and z
func (v *Volume) Dims() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Validate checks that the grid size matches the data length
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("invalid volume dimensions %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return fmt.Errorf("volume data length %d does not match %dx%dx%d",
			len(v.Data), v.Width, v.Height, v.Depth)
	}
	return nil
}
