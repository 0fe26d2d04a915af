// Package export converts stored codes into formats users download or print.
package export

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const pngDataURIPrefix = "data:image/png;base64,"

var ErrInvalidDataURI = errors.New("invalid image data uri")

// DataURI wraps PNG bytes so they can be stored, copied to the clipboard or embedded in HTML.
func DataURI(png []byte) string {
	return pngDataURIPrefix + base64.StdEncoding.EncodeToString(png)
}

// DecodeDataURI returns the PNG bytes behind a URI produced by DataURI.
func DecodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, pngDataURIPrefix) {
		return nil, ErrInvalidDataURI
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, pngDataURIPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return b, nil
}
