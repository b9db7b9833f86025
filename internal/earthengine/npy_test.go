package earthengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"testing"
)

// buildNPY assembles a version 1 structured NPY stream with one float32
// plane per field, C order
func buildNPY(t *testing.T, fields []string, dtype string, rows, cols int, planes [][]float32) []byte {
	t.Helper()
	descr := ""
	for i, f := range fields {
		if i > 0 {
			descr += ", "
		}
		descr += fmt.Sprintf("('%s', '%s')", f, dtype)
	}
	header := fmt.Sprintf("{'descr': [%s], 'fortran_order': False, 'shape': (%d, %d), }", descr, rows, cols)
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write([]byte("\x93NUMPY"))
	buf.WriteByte(1)
	buf.WriteByte(0)
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(header)))
	buf.Write(lenBytes)
	buf.WriteString(header)

	count := rows * cols
	for p := 0; p < count; p++ {
		for i := range fields {
			switch dtype {
			case "<f4":
				sample := make([]byte, 4)
				binary.LittleEndian.PutUint32(sample, math.Float32bits(planes[i][p]))
				buf.Write(sample)
			case "|u1":
				buf.WriteByte(byte(planes[i][p]))
			default:
				t.Fatalf("buildNPY: unhandled dtype %s", dtype)
			}
		}
	}
	return buf.Bytes()
}

func TestDecodeNPYStructured(t *testing.T) {
	in := [][]float32{
		{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		{1, 2, 3, 4, 5, 6},
	}
	data := buildNPY(t, []string{"water", "label"}, "<f4", 2, 3, in)

	fields, planes, rows, cols, err := decodeNPY(data)
	if err != nil {
		t.Fatalf("decodeNPY: %v", err)
	}
	if rows != 2 || cols != 3 {
		t.Errorf("shape = %dx%d, want 2x3", rows, cols)
	}
	if len(fields) != 2 || fields[0] != "water" || fields[1] != "label" {
		t.Errorf("fields = %v", fields)
	}
	for i := range in {
		for p := range in[i] {
			if planes[i][p] != in[i][p] {
				t.Errorf("plane %d sample %d = %v, want %v", i, p, planes[i][p], in[i][p])
			}
		}
	}
}

func TestDecodeNPYByteField(t *testing.T) {
	in := [][]float32{{1, 0, 7, 255}}
	data := buildNPY(t, []string{"label"}, "|u1", 2, 2, in)

	_, planes, _, _, err := decodeNPY(data)
	if err != nil {
		t.Fatalf("decodeNPY: %v", err)
	}
	want := []float32{1, 0, 7, 255}
	for p := range want {
		if planes[0][p] != want[p] {
			t.Errorf("sample %d = %v, want %v", p, planes[0][p], want[p])
		}
	}
}

func TestDecodeNPYRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"not npy", []byte("PNG\r\n")},
		{"empty", nil},
		{"truncated header", []byte("\x93NUMPY\x01\x00\xff\xff")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, _, _, err := decodeNPY(tc.data); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestDecodeNPYRejectsFortranOrder(t *testing.T) {
	data := buildNPY(t, []string{"water"}, "<f4", 1, 1, [][]float32{{1}})
	data = bytes.Replace(data, []byte("'fortran_order': False"), []byte("'fortran_order': True "), 1)
	if _, _, _, _, err := decodeNPY(data); err == nil {
		t.Error("fortran order should be rejected")
	}
}

func TestDecodeNPYRejectsShortBody(t *testing.T) {
	data := buildNPY(t, []string{"water"}, "<f4", 2, 2, [][]float32{{1, 2, 3, 4}})
	if _, _, _, _, err := decodeNPY(data[:len(data)-4]); err == nil {
		t.Error("short body should be rejected")
	}
}

func TestParseNPYHeaderDictPlainDtype(t *testing.T) {
	hdr, err := parseNPYHeaderDict("{'descr': '<f4', 'fortran_order': False, 'shape': (4, 5), }")
	if err != nil {
		t.Fatalf("parseNPYHeaderDict: %v", err)
	}
	if len(hdr.fields) != 1 || hdr.fields[0].dtype != "<f4" {
		t.Errorf("fields = %+v", hdr.fields)
	}
	if len(hdr.shape) != 2 || hdr.shape[0] != 4 || hdr.shape[1] != 5 {
		t.Errorf("shape = %v", hdr.shape)
	}
}

func TestDtypeSize(t *testing.T) {
	known := map[string]int{
		"<f8": 8, "<f4": 4, "<i8": 8, "<u4": 4, "<i2": 2, "|u1": 1, "|b1": 1,
	}
	for dtype, want := range known {
		size, ok := dtypeSize(dtype)
		if !ok || size != want {
			t.Errorf("dtypeSize(%q) = %d, %v; want %d", dtype, size, ok, want)
		}
	}
	if _, ok := dtypeSize("<c16"); ok {
		t.Error("complex dtype should be unsupported")
	}
	if _, ok := dtypeSize("x"); ok {
		t.Error("malformed dtype should be unsupported")
	}
}
