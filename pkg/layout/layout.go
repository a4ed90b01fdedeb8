// Package layout derives input and output file locations for a session from
// the fixed pipeline naming convention.
package layout

import (
	"fmt"
	"os"
)

// Naming holds the file name parts of the convention
type Naming struct {
	// FilledSuffix follows "<subject>_<session>" for the lesion-filled T1w scan
	FilledSuffix string `yaml:"filledSuffix"`

	// T1wSuffix follows "<subject>_<session>" for the raw T1w scan
	T1wSuffix string `yaml:"t1wSuffix"`

	// MaskSuffix follows "<subject>_<session>" for the lesion segmentation
	MaskSuffix string `yaml:"maskSuffix"`

	// FilledOutput is the file name of the filled-scan screenshot
	FilledOutput string `yaml:"filledOutput"`

	// OverlayOutput is the file name of the T1w + mask screenshot
	OverlayOutput string `yaml:"overlayOutput"`
}

// DefaultNaming returns the convention used by the lesion segmentation pipeline
func DefaultNaming() Naming {
	return Naming{
		FilledSuffix:  "_T1w-filled.nii.gz",
		T1wSuffix:     "_T1w.nii.gz",
		MaskSuffix:    "_seg-lst.nii.gz",
		FilledOutput:  "T1w_filled.png",
		OverlayOutput: "T1w+mask.png",
	}
}

// Validate reports empty naming parts
func (n Naming) Validate() error {
	parts := []struct {
		name, value string
	}{
		{"filledSuffix", n.FilledSuffix},
		{"t1wSuffix", n.T1wSuffix},
		{"maskSuffix", n.MaskSuffix},
		{"filledOutput", n.FilledOutput},
		{"overlayOutput", n.OverlayOutput},
	}
	for _, p := range parts {
		if p.value == "" {
			return fmt.Errorf("naming.%s must not be empty", p.name)
		}
	}
	return nil
}

// Paths are the resolved locations for one session
type Paths struct {
	FilledInput   string
	T1wInput      string
	MaskInput     string
	OutputDir     string
	FilledOutput  string
	OverlayOutput string
}

// Resolve builds the session paths by plain concatenation so the
// templates are reproduced exactly. It performs no I/O.
func Resolve(n Naming, inputDir, outputDir, subject, session string) Paths {
	inDir := inputDir + "/" + subject + "/" + session + "/"
	prefix := inDir + subject + "_" + session
	outDir := outputDir + "/" + subject + "/" + session

	return Paths{
		FilledInput:   prefix + n.FilledSuffix,
		T1wInput:      prefix + n.T1wSuffix,
		MaskInput:     prefix + n.MaskSuffix,
		OutputDir:     outDir,
		FilledOutput:  outDir + "/" + n.FilledOutput,
		OverlayOutput: outDir + "/" + n.OverlayOutput,
	}
}

// EnsureOutputDir creates the session output directory and its parents.
// An existing directory is not an error.
func EnsureOutputDir(p Paths) error {
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	return nil
}

// Exists reports whether path names an existing regular file
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
