package earthengine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Minimal NPY (NumPy binary) reader for the structured arrays returned
// by the getPixels endpoint with fileFormat NPY: one record per pixel,
// one field per requested band, C order, little endian.

type npyField struct {
	name  string
	dtype string
}

type npyHeader struct {
	fields  []npyField
	shape   []int
	fortran bool
}

var npyMagic = []byte("\x93NUMPY")

// decodeNPY parses an NPY byte stream into per-field float32 planes of
// rows*cols samples each, keyed by field name in declaration order.
func decodeNPY(data []byte) (fields []string, planes [][]float32, rows, cols int, err error) {
	hdr, body, err := parseNPY(data)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	if hdr.fortran {
		return nil, nil, 0, 0, fmt.Errorf("fortran-ordered NPY not supported")
	}
	if len(hdr.shape) != 2 {
		return nil, nil, 0, 0, fmt.Errorf("expected 2-dimensional NPY array, got shape %v", hdr.shape)
	}
	rows, cols = hdr.shape[0], hdr.shape[1]

	recordSize := 0
	sizes := make([]int, len(hdr.fields))
	for i, f := range hdr.fields {
		size, ok := dtypeSize(f.dtype)
		if !ok {
			return nil, nil, 0, 0, fmt.Errorf("unsupported NPY dtype %q for field %q", f.dtype, f.name)
		}
		sizes[i] = size
		recordSize += size
	}

	count := rows * cols
	if len(body) < count*recordSize {
		return nil, nil, 0, 0, fmt.Errorf("NPY body too short: have %d bytes, need %d", len(body), count*recordSize)
	}

	planes = make([][]float32, len(hdr.fields))
	fields = make([]string, len(hdr.fields))
	for i, f := range hdr.fields {
		planes[i] = make([]float32, count)
		fields[i] = f.name
	}

	offset := 0
	for p := 0; p < count; p++ {
		for i, f := range hdr.fields {
			planes[i][p] = decodeSample(body[offset:offset+sizes[i]], f.dtype)
			offset += sizes[i]
		}
	}
	return fields, planes, rows, cols, nil
}

func parseNPY(data []byte) (npyHeader, []byte, error) {
	var hdr npyHeader
	if len(data) < 10 || string(data[:6]) != string(npyMagic) {
		return hdr, nil, fmt.Errorf("not an NPY stream")
	}
	major := data[6]
	var headerLen, headerStart int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		headerStart = 10
	case 2, 3:
		if len(data) < 12 {
			return hdr, nil, fmt.Errorf("truncated NPY header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		headerStart = 12
	default:
		return hdr, nil, fmt.Errorf("unsupported NPY version %d", major)
	}
	if len(data) < headerStart+headerLen {
		return hdr, nil, fmt.Errorf("truncated NPY header")
	}
	headerStr := string(data[headerStart : headerStart+headerLen])

	var err error
	hdr, err = parseNPYHeaderDict(headerStr)
	if err != nil {
		return hdr, nil, err
	}
	return hdr, data[headerStart+headerLen:], nil
}

// parseNPYHeaderDict parses the Python dict literal NumPy writes, e.g.
// {'descr': [('water', '<f4'), ('label', '|u1')], 'fortran_order': False, 'shape': (128, 128), }
func parseNPYHeaderDict(s string) (npyHeader, error) {
	var hdr npyHeader

	hdr.fortran = strings.Contains(s, "'fortran_order': True")

	shape, err := parseShape(s)
	if err != nil {
		return hdr, err
	}
	hdr.shape = shape

	descrStart := strings.Index(s, "'descr':")
	if descrStart < 0 {
		return hdr, fmt.Errorf("NPY header missing descr")
	}
	rest := s[descrStart+len("'descr':"):]
	rest = strings.TrimLeft(rest, " ")

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return hdr, fmt.Errorf("unterminated descr list")
		}
		quoted := quotedStrings(rest[1:end])
		if len(quoted) == 0 || len(quoted)%2 != 0 {
			return hdr, fmt.Errorf("malformed structured descr: %q", rest[1:end])
		}
		for i := 0; i < len(quoted); i += 2 {
			hdr.fields = append(hdr.fields, npyField{name: quoted[i], dtype: quoted[i+1]})
		}
		return hdr, nil
	}

	// Plain dtype: a single unnamed field
	quoted := quotedStrings(rest)
	if len(quoted) == 0 {
		return hdr, fmt.Errorf("malformed descr: %q", rest)
	}
	hdr.fields = []npyField{{name: "", dtype: quoted[0]}}
	return hdr, nil
}

func parseShape(s string) ([]int, error) {
	idx := strings.Index(s, "'shape':")
	if idx < 0 {
		return nil, fmt.Errorf("NPY header missing shape")
	}
	rest := s[idx+len("'shape':"):]
	open := strings.Index(rest, "(")
	closing := strings.Index(rest, ")")
	if open < 0 || closing < open {
		return nil, fmt.Errorf("malformed shape in NPY header")
	}
	var shape []int
	for _, part := range strings.Split(rest[open+1:closing], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("malformed shape dimension %q: %w", part, err)
		}
		shape = append(shape, n)
	}
	return shape, nil
}

// quotedStrings returns every single-quoted string in s, in order
func quotedStrings(s string) []string {
	var out []string
	for {
		start := strings.IndexByte(s, '\'')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(s[start+1:], '\'')
		if end < 0 {
			return out
		}
		out = append(out, s[start+1:start+1+end])
		s = s[start+1+end+1:]
	}
}

func dtypeSize(dtype string) (int, bool) {
	if len(dtype) < 3 {
		return 0, false
	}
	switch dtype[1:] {
	case "f8", "i8", "u8":
		return 8, true
	case "f4", "i4", "u4":
		return 4, true
	case "i2", "u2":
		return 2, true
	case "i1", "u1", "b1":
		return 1, true
	}
	return 0, false
}

func decodeSample(b []byte, dtype string) float32 {
	kind := dtype[1:]
	switch kind {
	case "f8":
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case "f4":
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case "i8":
		return float32(int64(binary.LittleEndian.Uint64(b)))
	case "u8":
		return float32(binary.LittleEndian.Uint64(b))
	case "i4":
		return float32(int32(binary.LittleEndian.Uint32(b)))
	case "u4":
		return float32(binary.LittleEndian.Uint32(b))
	case "i2":
		return float32(int16(binary.LittleEndian.Uint16(b)))
	case "u2":
		return float32(binary.LittleEndian.Uint16(b))
	case "i1":
		return float32(int8(b[0]))
	default: // u1, b1
		return float32(b[0])
	}
}
