package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sawpanic/orthofit/internal/atomicio"
)

// Cube files start with a 20 byte little-endian header: the magic "OFCB",
// a format version and the T, Y, X dimensions as uint32. T*Y*X float64
// samples follow in [t][y][x] order.
const (
	cubeMagic   = "OFCB"
	cubeVersion = 1
	headerSize  = 20
)

var (
	// ErrNotCube is returned for files without the cube header.
	ErrNotCube = errors.New("volume: not a cube file")
	// ErrEmptyRegion is returned when a row range selects no rows.
	ErrEmptyRegion = errors.New("volume: empty row range")
)

// Header describes the dimensions stored in a cube file.
type Header struct {
	T, Rows, Cols int
}

func readHeader(r io.Reader) (Header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrNotCube, err)
	}
	if string(raw[:4]) != cubeMagic {
		return Header{}, ErrNotCube
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != cubeVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrNotCube, v)
	}
	return Header{
		T:    int(binary.LittleEndian.Uint32(raw[8:12])),
		Rows: int(binary.LittleEndian.Uint32(raw[12:16])),
		Cols: int(binary.LittleEndian.Uint32(raw[16:20])),
	}, nil
}

// ReadHeader returns the dimensions of the cube file at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("read header %s: %w", path, err)
	}
	return h, nil
}

// ReadRegion reads rows [yStart, yEnd) of every time step from the cube file
// at path. yEnd is clipped to the stored height. Each time slice of the
// range is contiguous on disk and is read with a single ReadAt.
func ReadRegion(path string, yStart, yEnd int) (*Cube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	if yEnd > h.Rows {
		yEnd = h.Rows
	}
	if yStart < 0 || yStart >= yEnd {
		return nil, fmt.Errorf("%s rows [%d,%d) of %d: %w", path, yStart, yEnd, h.Rows, ErrEmptyRegion)
	}

	cube := NewCube(h.T, yEnd-yStart, h.Cols)
	slice := cube.Rows * cube.Cols
	buf := make([]byte, slice*8)
	for t := 0; t < h.T; t++ {
		off := int64(headerSize) + int64((t*h.Rows+yStart)*h.Cols)*8
		if _, err := f.ReadAt(buf, off); err != nil {
			return nil, fmt.Errorf("read %s time step %d: %w", path, t, err)
		}
		dst := cube.Data[t*slice : (t+1)*slice]
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return cube, nil
}

// ReadCube reads the whole cube file at path.
func ReadCube(path string) (*Cube, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	return ReadRegion(path, 0, h.Rows)
}

// WriteCube writes c to path atomically.
func WriteCube(path string, c *Cube) error {
	return atomicio.WriteFile(path, func(w io.Writer) error {
		var hdr [headerSize]byte
		copy(hdr[:4], cubeMagic)
		binary.LittleEndian.PutUint32(hdr[4:8], cubeVersion)
		binary.LittleEndian.PutUint32(hdr[8:12], uint32(c.T))
		binary.LittleEndian.PutUint32(hdr[12:16], uint32(c.Rows))
		binary.LittleEndian.PutUint32(hdr[16:20], uint32(c.Cols))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}

		var sample [8]byte
		for _, v := range c.Data {
			binary.LittleEndian.PutUint64(sample[:], math.Float64bits(v))
			if _, err := w.Write(sample[:]); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		return nil
	})
}
