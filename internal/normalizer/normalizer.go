// Package normalizer converts uploaded cadastral documents into a canonical
// page-image sequence. Raster uploads become a single page; page-based
// documents are rasterized page by page at a fixed DPI.
package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"

	_ "image/gif"
	_ "image/jpeg"
)

// Normalization errors. All are caller-fixable input errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrEmptyDocument     = errors.New("empty document")
)

// MIMEFamily is the declared family of an uploaded document.
type MIMEFamily string

const (
	FamilyRaster MIMEFamily = "image"
	FamilyPaged  MIMEFamily = "application/pdf"
)

// FamilyFromContentType maps an upload Content-Type to a MIME family.
// Anything outside the two supported families maps to the empty family,
// which Normalize rejects.
func FamilyFromContentType(contentType string) MIMEFamily {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return FamilyRaster
	case ct == "application/pdf":
		return FamilyPaged
	default:
		return ""
	}
}

// Page is one canonical page image, PNG-encoded.
type Page struct {
	Index int
	PNG   []byte
}

// Result is the ordered page sequence produced from a document.
// Truncated is set when the document had more pages than the cap allows.
type Result struct {
	Pages     []Page
	Truncated bool
}

// Normalizer turns document bytes into a deterministic page sequence.
// DPI and the page cap are policy knobs fixed at construction, not per-call
// inputs; together with the prompt version they pin the extractor version.
type Normalizer struct {
	dpi      int
	maxPages int
}

// New creates a Normalizer with the given policy knobs.
func New(dpi, maxPages int) *Normalizer {
	return &Normalizer{dpi: dpi, maxPages: maxPages}
}

// Normalize converts the document to its page sequence. It is a pure function
// over the input bytes: same bytes, same result.
func (n *Normalizer) Normalize(data []byte, family MIMEFamily) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	switch family {
	case FamilyRaster:
		return n.normalizeRaster(data)
	case FamilyPaged:
		return n.normalizePaged(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, family)
	}
}

// normalizeRaster wraps a single raster image as a one-page sequence.
// The image is decoded to verify integrity and re-encoded as PNG so every
// downstream consumer sees one codec.
func (n *Normalizer) normalizeRaster(data []byte) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	encoded, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}

	return &Result{Pages: []Page{{Index: 0, PNG: encoded}}}, nil
}

// normalizePaged rasterizes a page-based document in document order,
// stopping at the page cap.
func (n *Normalizer) normalizePaged(data []byte) (*Result, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, ErrEmptyDocument
	}

	count := total
	truncated := false
	if count > n.maxPages {
		count = n.maxPages
		truncated = true
	}

	pages := make([]Page, 0, count)
	for i := 0; i < count; i++ {
		img, err := doc.ImageDPI(i, float64(n.dpi))
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrCorruptDocument, i, err)
		}

		encoded, err := encodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", i, err)
		}

		pages = append(pages, Page{Index: i, PNG: encoded})
	}

	return &Result{Pages: pages, Truncated: truncated}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
