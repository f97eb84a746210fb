package images

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/jpeg"
)

// DpiType is JFIF density unit.
type DpiType uint8

const (
	DpiNoUnits DpiType = iota
	DpiPxPerInch
	DpiPxPerSm
)

// EnsureJFIFAPP0 inserts JFIF APP0 segment right after SOI unless an APP0
// segment is already there. Returns whether data was changed.
func EnsureJFIFAPP0(jpegData []byte, dpit DpiType, xdensity, ydensity int16) ([]byte, bool, error) {
	if len(jpegData) < 4 {
		return nil, false, errors.New("jpeg too small")
	}
	if jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		return nil, false, errors.New("not a jpeg")
	}
	if jpegData[2] == 0xFF && jpegData[3] == 0xE0 {
		return jpegData, false, nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(jpegData)+18))
	buf.Write(jpegData[:2])
	buf.Write([]byte{0xFF, 0xE0})
	_ = binary.Write(buf, binary.BigEndian, uint16(16))
	buf.Write([]byte("JFIF\x00\x01\x02"))
	buf.WriteByte(byte(dpit))
	_ = binary.Write(buf, binary.BigEndian, uint16(xdensity))
	_ = binary.Write(buf, binary.BigEndian, uint16(ydensity))
	// no thumbnail
	buf.Write([]byte{0, 0})
	buf.Write(jpegData[2:])
	return buf.Bytes(), true, nil
}

// EncodeJPEG encodes img with quality and JFIF header. Go encoder does not
// write APP0, several readers refuse such covers.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	out, _, err := EnsureJFIFAPP0(buf.Bytes(), DpiPxPerInch, 300, 300)
	return out, err
}
