// Package mediatype maps file extensions to MIME types.
//
// The table is fixed on purpose: delivery behavior must not depend on the
// host's mime registry, so we do not consult the stdlib mime package.
package mediatype

import (
	"path"
	"strings"
)

// DefaultType is returned for unknown or missing extensions.
const DefaultType = "application/octet-stream"

var byExt = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"txt":  "text/plain",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
}

// ForExt returns the MIME type for an extension ("css" or ".css",
// any case). Unknown extensions map to DefaultType.
func ForExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if t, ok := byExt[ext]; ok {
		return t
	}
	return DefaultType
}

// ForPath returns the MIME type for a file path based on its extension.
func ForPath(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return DefaultType
	}
	return ForExt(ext)
}
