package attachment

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// detectMIME picks the content type from an explicit hint, the file
// extension, or by sniffing the bytes, in that order.
func detectMIME(hint, name string, data []byte) string {
	if hint != "" {
		if mt, _, err := mime.ParseMediaType(hint); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if parsed, _, err := mime.ParseMediaType(mt); err == nil {
				return parsed
			}
			return mt
		}
	}
	if len(data) > 0 {
		mt := http.DetectContentType(data)
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
		return mt
	}
	return "application/octet-stream"
}
