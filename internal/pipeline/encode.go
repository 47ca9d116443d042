package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// ContentType is the response type of an MJPEG stream written with WriteChunk.
const ContentType = "multipart/x-mixed-replace; boundary=frame"

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 80

const chunkHeader = "--frame\r\nContent-Type: image/jpeg\r\n\r\n"

// Encoder compresses an annotated frame.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// JPEGEncoder encodes with image/jpeg.
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder returns an encoder at quality, clamped to [1,100].
func NewJPEGEncoder(quality int) JPEGEncoder {
	return JPEGEncoder{Quality: min(max(quality, 1), 100)}
}

// Encode implements Encoder.
func (e JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("jpeg: nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteChunk writes one multipart part: boundary, header, blank line, the
// JPEG bytes and a trailing CRLF.
func WriteChunk(w io.Writer, jpegData []byte) error {
	if _, err := io.WriteString(w, chunkHeader); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// Chunk returns the multipart part WriteChunk would write.
func Chunk(jpegData []byte) []byte {
	buf := make([]byte, 0, len(chunkHeader)+len(jpegData)+2)
	buf = append(buf, chunkHeader...)
	buf = append(buf, jpegData...)
	return append(buf, '\r', '\n')
}
