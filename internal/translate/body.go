package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"golang.org/x/net/html/charset"
)

// errUnsupportedMediaType is returned for bodies that are not HL7 text.
var errUnsupportedMediaType = errors.New("unsupported content type")

// messageMediaTypes are the Content-Types accepted for an HL7v2 body. An
// absent Content-Type is treated as text/plain.
var messageMediaTypes = map[string]bool{
	"text/plain":               true,
	"application/hl7-v2":       true,
	"x-application/hl7-v2+er7": true,
	"application/edi-hl7":      true,
}

// readMessageBody reads the request body as text. The charset parameter of
// the Content-Type is honoured; without one the body is sniffed and
// non-UTF-8 input is read as windows-1252, which covers the Latin-1 feeds
// most interfaces still send.
func readMessageBody(req *http.Request) (string, error) {
	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnsupportedMediaType, err)
	}
	if !messageMediaTypes[mediaType] {
		return "", fmt.Errorf("%w: %s", errUnsupportedMediaType, mediaType)
	}
	if req.Body == nil {
		return "", nil
	}

	body := contextReader{ctx: req.Context(), r: req.Body}
	r, err := charset.NewReader(body, contentType)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return "", ctxErr
		}
		// charset sniffing reads ahead; an empty body surfaces as io.EOF.
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("decode charset: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
