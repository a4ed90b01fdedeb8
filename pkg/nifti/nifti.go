// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and .nii.gz).
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"lstqc/internal/models"
)

const (
	headerSize = 348

	// minVoxOffset is the header plus the 4-byte extension flag
	minVoxOffset = 352

	// maxVoxels bounds the grid a header may declare
	maxVoxels = 1 << 28

	// chunkVoxels is how many voxels are read per step; storage grows only
	// as voxel data actually arrives
	chunkVoxels = 1 << 16
)

// NIfTI-1 datatype codes
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

// DecodeError reports a file that is not a readable NIfTI-1 volume
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nifti: %s: %v", e.Reason, e.Err)
	}
	return "nifti: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// header is the 348-byte NIfTI-1 header, field for field
type header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Load reads the volume stored at path. Gzip compression is detected from
// the file contents, not the extension. Every failure, including a file that
// cannot be opened, is a *DecodeError.
func Load(path string) (*models.Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Reason: "opening file", Err: err}
	}
	defer file.Close()

	vol, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

// Decode reads a NIfTI-1 volume from r, decompressing gzip input.
// Only the first frame of 4D data is returned.
func Decode(r io.Reader) (*models.Volume, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, &DecodeError{Reason: "reading header", Err: err}
	}

	var src io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, &DecodeError{Reason: "opening gzip stream", Err: err}
		}
		defer zr.Close()
		src = zr
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, &DecodeError{Reason: "reading header", Err: err}
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == headerSize:
		order = binary.BigEndian
	default:
		return nil, &DecodeError{Reason: "sizeof_hdr is not 348"}
	}

	var h header
	if err := binary.Read(bytes.NewReader(buf), order, &h); err != nil {
		return nil, &DecodeError{Reason: "parsing header", Err: err}
	}

	switch string(h.Magic[:3]) {
	case "n+1":
	case "ni1":
		return nil, &DecodeError{Reason: "split header/image pairs are not supported"}
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("bad magic %q", h.Magic[:])}
	}

	vol, err := geometry(&h)
	if err != nil {
		return nil, err
	}

	// Skip header extensions up to the start of the voxel data
	offset := int64(h.VoxOffset)
	if offset < minVoxOffset {
		offset = minVoxOffset
	}
	if _, err := io.CopyN(io.Discard, src, offset-headerSize); err != nil {
		return nil, &DecodeError{Reason: "seeking to voxel data", Err: err}
	}

	data, err := readVoxels(src, order, &h, vol.Width*vol.Height*vol.Depth)
	if err != nil {
		return nil, err
	}
	vol.Data = data
	return vol, nil
}

// geometry validates the header grid and returns a volume without voxel storage
func geometry(h *header) (*models.Volume, error) {
	rank := int(h.Dim[0])
	if rank < 1 || rank > 7 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid dim[0] %d", rank)}
	}

	// Missing spatial dims count as one voxel
	dims := [3]int{1, 1, 1}
	for i := 0; i < 3 && i < rank; i++ {
		if h.Dim[i+1] <= 0 {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid dim[%d] %d", i+1, h.Dim[i+1])}
		}
		dims[i] = int(h.Dim[i+1])
	}
	if dims[0]*dims[1]*dims[2] > maxVoxels {
		return nil, &DecodeError{Reason: fmt.Sprintf("volume %dx%dx%d is too large", dims[0], dims[1], dims[2])}
	}
	if bytesPerVoxel(h.Datatype) == 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported datatype %d", h.Datatype)}
	}

	vol := &models.Volume{Width: dims[0], Height: dims[1], Depth: dims[2]}
	vol.VoxelSize.X = voxelSize(h.Pixdim[1])
	vol.VoxelSize.Y = voxelSize(h.Pixdim[2])
	vol.VoxelSize.Z = voxelSize(h.Pixdim[3])
	return vol, nil
}

func voxelSize(p float32) float64 {
	v := math.Abs(float64(p))
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return v
}

func bytesPerVoxel(datatype int16) int {
	switch datatype {
	case dtUint8, dtInt8:
		return 1
	case dtInt16, dtUint16:
		return 2
	case dtInt32, dtUint32, dtFloat32:
		return 4
	case dtFloat64:
		return 8
	}
	return 0
}

// readVoxels reads the first n voxels of the stream in chunks
func readVoxels(r io.Reader, order binary.ByteOrder, h *header, n int) ([]float64, error) {
	size := bytesPerVoxel(h.Datatype)

	slope := float64(h.SclSlope)
	inter := float64(h.SclInter)
	scaled := slope != 0 && !math.IsNaN(slope) && !math.IsInf(slope, 0)
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		inter = 0
	}

	data := make([]float64, 0, min(n, chunkVoxels))
	raw := make([]byte, min(n, chunkVoxels)*size)
	for len(data) < n {
		chunk := raw[:min(n-len(data), chunkVoxels)*size]
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, &DecodeError{Reason: "truncated voxel data", Err: err}
			}
			return nil, &DecodeError{Reason: "reading voxel data", Err: err}
		}

		for i := 0; i < len(chunk); i += size {
			v := decodeVoxel(chunk[i:i+size], order, h.Datatype)
			if scaled {
				v = v*slope + inter
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			data = append(data, v)
		}
	}
	return data, nil
}

func decodeVoxel(b []byte, order binary.ByteOrder, datatype int16) float64 {
	switch datatype {
	case dtUint8:
		return float64(b[0])
	case dtInt8:
		return float64(int8(b[0]))
	case dtInt16:
		return float64(int16(order.Uint16(b)))
	case dtUint16:
		return float64(order.Uint16(b))
	case dtInt32:
		return float64(int32(order.Uint32(b)))
	case dtUint32:
		return float64(order.Uint32(b))
	case dtFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case dtFloat64:
		return math.Float64frombits(order.Uint64(b))
	}
	return 0
}

// Encode writes vol as an uncompressed little-endian float32 NIfTI-1 stream
func Encode(w io.Writer, vol *models.Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}

	var h header
	h.SizeofHdr = headerSize
	h.Regular = 'r'
	h.Dim = [8]int16{3, int16(vol.Width), int16(vol.Height), int16(vol.Depth), 1, 1, 1, 1}
	h.Datatype = dtFloat32
	h.Bitpix = 32
	h.Pixdim = [8]float32{1, float32(vol.VoxelSize.X), float32(vol.VoxelSize.Y), float32(vol.VoxelSize.Z), 1, 1, 1, 1}
	h.VoxOffset = minVoxOffset
	h.SclSlope = 1
	h.XYZTUnits = 2 // mm
	h.SformCode = 1
	h.SrowX = [4]float32{float32(vol.VoxelSize.X), 0, 0, 0}
	h.SrowY = [4]float32{0, float32(vol.VoxelSize.Y), 0, 0}
	h.SrowZ = [4]float32{0, 0, float32(vol.VoxelSize.Z), 0}
	copy(h.Magic[:], "n+1\x00")

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	// Empty extension flag
	if _, err := bw.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, v := range vol.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Save writes vol to path, gzip-compressed when path ends in ".gz"
func Save(path string, vol *models.Volume) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if !strings.HasSuffix(path, ".gz") {
		if err := Encode(file, vol); err != nil {
			return fmt.Errorf("error encoding %s: %w", path, err)
		}
		return file.Close()
	}

	zw := gzip.NewWriter(file)
	if err := Encode(zw, vol); err != nil {
		zw.Close()
		return fmt.Errorf("error encoding %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return file.Close()
}
