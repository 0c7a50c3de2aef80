package converter

import "strings"

// aliases folds spelling variants onto one canonical token.
var aliases = map[string]string{
	"jpg":      "jpeg",
	"tif":      "tiff",
	"yml":      "yaml",
	"htm":      "html",
	"markdown": "md",
	"mpeg":     "mpg",
	"oga":      "ogg",
}

// Normalize lowercases f, drops a leading dot and resolves aliases.
func Normalize(f string) string {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	if canonical, ok := aliases[f]; ok {
		return canonical
	}
	return f
}

// Aliases returns a copy of the alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}

// mimeTypes maps canonical formats to the content types used when
// serving or mirroring files.
var mimeTypes = map[string]string{
	"png":    "image/png",
	"jpeg":   "image/jpeg",
	"gif":    "image/gif",
	"bmp":    "image/bmp",
	"tiff":   "image/tiff",
	"webp":   "image/webp",
	"svg":    "image/svg+xml",
	"pdf":    "application/pdf",
	"csv":    "text/csv",
	"json":   "application/json",
	"yaml":   "application/yaml",
	"txt":    "text/plain",
	"md":     "text/markdown",
	"html":   "text/html",
	"mp4":    "video/mp4",
	"webm":   "video/webm",
	"mkv":    "video/x-matroska",
	"mov":    "video/quicktime",
	"avi":    "video/x-msvideo",
	"mp3":    "audio/mpeg",
	"wav":    "audio/wav",
	"flac":   "audio/flac",
	"ogg":    "audio/ogg",
	"opus":   "audio/opus",
	"aac":    "audio/aac",
	"m4a":    "audio/mp4",
	"docx":   "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx":   "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"epub":   "application/epub+zip",
	"drawio": "application/vnd.jgraph.mxfile",
	"zip":    "application/zip",
}

// ContentType returns the MIME type for format, or application/octet-stream.
func ContentType(format string) string {
	if ct, ok := mimeTypes[Normalize(format)]; ok {
		return ct
	}
	return "application/octet-stream"
}
