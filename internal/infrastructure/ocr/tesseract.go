// Package ocr reads the name and collector-number bands off a warped card
// image with Tesseract. The pipeline consults it only when visual matching
// is not confident enough to fix an identity on its own.
package ocr

import (
	"fmt"
	"image"
	"log"
	"regexp"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"github.com/cardlens/scanner/internal/domain"
)

// Band locations on the warped card, as fractions of image height/width:
// the card name sits in a strip near the top edge, the collector number in
// a strip along the bottom.
var (
	nameBand   = bandROI{top: 0.05, bottom: 0.14, left: 0.08, right: 0.92}
	numberBand = bandROI{top: 0.88, bottom: 0.98, left: 0.05, right: 0.95}
)

// numberChars restricts the collector-number band to the characters that can
// legally appear in "12/102" style identifiers.
const numberChars = "0123456789/ "

var collectorNumberPattern = regexp.MustCompile(`\b(\d{1,3})\s*/\s*(\d{1,3})\b`)

type bandROI struct {
	top, bottom, left, right float64
}

func (b bandROI) rect(rows, cols int) image.Rectangle {
	return image.Rect(
		int(b.left*float64(cols)),
		int(b.top*float64(rows)),
		int(b.right*float64(cols)),
		int(b.bottom*float64(rows)),
	)
}

// Extractor performs OCR over card text bands.
type Extractor struct {
	client *gosseract.Client
	debug  bool
}

// NewExtractor initializes a Tesseract client tuned for card text.
func NewExtractor() (*Extractor, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("set OCR language: %w", err)
	}
	// Card names are proper nouns; dictionary correction hurts more than it
	// helps ("Gyarados" is not an English word).
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Extractor{client: client}, nil
}

// Close releases Tesseract resources.
func (e *Extractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// SetDebug toggles per-band logging.
func (e *Extractor) SetDebug(enabled bool) { e.debug = enabled }

// Extract reads name and collector number from the warped card image at
// path. A band that cannot be read leaves its field empty with zero
// confidence rather than failing the extraction.
func (e *Extractor) Extract(imagePath string) (domain.CardText, error) {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return domain.CardText{}, fmt.Errorf("%w: cannot read image %s", domain.ErrInvalidRequest, imagePath)
	}
	defer img.Close()
	return e.ExtractFromMat(img)
}

// ExtractFromMat reads both text bands from an in-memory image.
func (e *Extractor) ExtractFromMat(img gocv.Mat) (domain.CardText, error) {
	if img.Empty() {
		return domain.CardText{}, fmt.Errorf("%w: empty image", domain.ErrInvalidRequest)
	}

	var text domain.CardText

	rawName, nameConf, err := e.readBand(img, nameBand, "")
	if err != nil {
		log.Printf("[OCR] name band failed: %v", err)
	} else {
		text.Name = NormalizeName(rawName)
		text.NameConfidence = nameConf
	}

	rawNumber, numConf, err := e.readBand(img, numberBand, numberChars)
	if err != nil {
		log.Printf("[OCR] number band failed: %v", err)
	} else {
		text.CollectorNumber = ParseCollectorNumber(rawNumber)
		if text.CollectorNumber != "" {
			text.NumberConfidence = numConf
		}
	}

	if e.debug {
		log.Printf("[OCR] name=%q (%.0f%%) number=%q (%.0f%%)",
			text.Name, text.NameConfidence*100, text.CollectorNumber, text.NumberConfidence*100)
	}
	return text, nil
}

// readBand crops one band, preprocesses it and runs Tesseract over it.
// Returns the raw text and a mean word confidence in [0,1].
func (e *Extractor) readBand(img gocv.Mat, band bandROI, whitelist string) (string, float64, error) {
	region := img.Region(band.rect(img.Rows(), img.Cols()))
	defer region.Close()

	processed := preprocessBand(region)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", 0, fmt.Errorf("encode band: %w", err)
	}
	defer buf.Close()

	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", 0, fmt.Errorf("set PSM: %w", err)
	}
	if err := e.client.SetWhitelist(whitelist); err != nil && whitelist != "" {
		return "", 0, fmt.Errorf("set whitelist: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("run OCR: %w", err)
	}

	conf := 0.0
	if boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		for _, b := range boxes {
			conf += b.Confidence
		}
		conf /= float64(len(boxes)) * 100.0
	}
	return text, conf, nil
}

// preprocessBand converts a band to a thresholded grayscale image, doubling
// its size first so small print survives binarization.
func preprocessBand(region gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	scaled := gocv.NewMat()
	gocv.Resize(gray, &scaled, image.Pt(0, 0), 2.0, 2.0, gocv.InterpolationCubic)
	gray.Close()

	binary := gocv.NewMat()
	gocv.Threshold(scaled, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	scaled.Close()

	return binary
}

// ParseCollectorNumber pulls a normalized "num/den" collector number out of
// raw OCR text, or "" when none is present.
func ParseCollectorNumber(raw string) string {
	m := collectorNumberPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1] + "/" + m[2]
}

// NormalizeName cleans a raw OCR name band: keeps letters, digits, spaces,
// hyphens and apostrophes, collapses runs of whitespace.
func NormalizeName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteRune(' ')
		case r == '-', r == '\'', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
