// lstqc renders quality-control screenshots for a lesion segmentation run.
//
// Usage:
//
//	lstqc <input_dir> <output_dir> <roster_file> [--config lstqc.yaml] [--manifest path] [--iteration paired|cross]
//
// For every subject/session listed in the roster it writes
// <output_dir>/<subject>/<session>/T1w_filled.png and T1w+mask.png.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
