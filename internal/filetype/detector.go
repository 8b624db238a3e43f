package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
)

const pdfMIME = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type of data using magic bytes, not the file name
func (d *Detector) Detect(name string, data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)

	log.Debug().Str("file", name).Str("mime", info.MIMEType).Bool("supported", info.Supported).Msg("detected file type")
	if !info.Supported && strings.EqualFold(filepath.Ext(name), ".pdf") {
		log.Warn().Str("file", name).Str("mime", info.MIMEType).Msg("file named .pdf does not look like a PDF")
	}
	return info
}

// RequirePDF returns an InvalidInputTypeError unless data is a PDF document.
func (d *Detector) RequirePDF(name string, data []byte) error {
	info := d.Detect(name, data)
	if !info.Supported {
		return &fault.InvalidInputTypeError{Name: name, MIME: info.MIMEType}
	}
	return nil
}

// classify determines whether the document can be processed
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case mimeType == pdfMIME:
		info.Supported = true
		info.Description = "PDF document"

	case strings.HasPrefix(mimeType, "image/"):
		info.Description = "Image file"

	case strings.HasPrefix(mimeType, "text/"):
		info.Description = "Text file"

	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}
