package proxy

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding lists the content encodings this engine can reverse.
// It is offered upstream so responses arrive in a form we can decode.
const acceptEncoding = "gzip, deflate, br"

// decodeBody wraps an upstream body in the decoder matching its
// Content-Encoding. The second return reports whether decoding is applied,
// which tells the caller to strip the encoding and length headers.
func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, bool, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, false, err
		}
		return &decodedReader{Reader: gz, decoder: gz, raw: body}, true, nil
	case "deflate":
		fl := flate.NewReader(body)
		return &decodedReader{Reader: fl, decoder: fl, raw: body}, true, nil
	case "br":
		return &decodedReader{Reader: brotli.NewReader(body), raw: body}, true, nil
	default:
		return body, false, nil
	}
}

// decodedReader closes both the decoder and the underlying body.
type decodedReader struct {
	io.Reader
	decoder io.Closer
	raw     io.Closer
}

func (d *decodedReader) Close() error {
	if d.decoder != nil {
		_ = d.decoder.Close()
	}
	return d.raw.Close()
}
