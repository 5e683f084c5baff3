package handler

import (
	"mime"
	"strings"
)

// mimeTypes covers the extensions a document root usually holds. Anything
// else falls back to the platform table.
var mimeTypes = map[string]string{
	"css":  "text/css",
	"gif":  "image/gif",
	"htm":  "text/html",
	"html": "text/html",
	"ico":  "image/x-icon",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"js":   "text/javascript",
	"json": "application/json",
	"md":   "text/markdown",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"svg":  "image/svg+xml",
	"txt":  "text/plain",
	"wasm": "application/wasm",
	"webp": "image/webp",
	"xml":  "application/xml",
}

// ExtensionToType returns the content type for a file extension given
// without the leading dot, or "" when the extension is unknown.
func ExtensionToType(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" {
		return ""
	}
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension("." + ext)
}

// extension returns the extension of the last segment of p, without the dot.
func extension(p string) string {
	seg := p[strings.LastIndexByte(p, '/')+1:]
	dot := strings.LastIndexByte(seg, '.')
	if dot < 0 {
		return ""
	}
	return seg[dot+1:]
}
