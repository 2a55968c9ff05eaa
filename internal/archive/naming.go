package archive

import (
	"path"
	"regexp"
	"strings"
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// Timestamp renders at as UTC ISO-8601 with millisecond precision and the
// ":" and "." separators replaced by "-", e.g. 2025-02-26T12-00-05-123Z.
func Timestamp(at time.Time) string {
	return timestampReplacer.Replace(at.UTC().Format(isoMillis))
}

// ISO8601 is the listing representation of a timestamp. Lexicographic order
// of these strings equals chronological order.
func ISO8601(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return at.UTC().Format(isoMillis)
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeFilename(s string) string {
	return sanitizeRe.ReplaceAllString(strings.TrimSpace(s), "_")
}

// Filename builds "{prefix}-{timestamp}{ext}".
func Filename(prefix string, f Format, at time.Time) string {
	prefix = sanitizeFilename(prefix)
	if prefix == "" {
		prefix = "backup"
	}
	return prefix + "-" + Timestamp(at) + f.Extension()
}

// ObjectKey places filename under subfolder, or at the bucket root when
// subfolder is empty.
func ObjectKey(subfolder, filename string) string {
	subfolder = NormalizeSubfolder(subfolder)
	if subfolder == "" {
		return filename
	}
	return subfolder + "/" + filename
}

// ListPrefix is the listing prefix for subfolder: "sub/" or "".
func ListPrefix(subfolder string) string {
	subfolder = NormalizeSubfolder(subfolder)
	if subfolder == "" {
		return ""
	}
	return subfolder + "/"
}

func NormalizeSubfolder(subfolder string) string {
	if subfolder == "" {
		return ""
	}
	subfolder = strings.ReplaceAll(subfolder, "\\", "/")
	for strings.Contains(subfolder, "//") {
		subfolder = strings.ReplaceAll(subfolder, "//", "/")
	}
	subfolder = strings.Trim(subfolder, "/")
	if subfolder == "" {
		return ""
	}
	return path.Clean(subfolder)
}

func DisplayName(key string) string {
	return path.Base(key)
}
