package textextract

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrUndecodable       = errors.New("file content is not decodable text")
)

type ExtractedText struct {
	Content  string
	Pages    int
	Metadata map[string]string
}

// Extract dispatches on the file extension of filename.
func Extract(data []byte, filename string) (*ExtractedText, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return extractTXT(data)
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".doc":
		return extractDOC(data)
	default:
		if ext == "" {
			ext = "(none)"
		}
		return nil, fmt.Errorf("%w '%s'. Allowed: %s", ErrUnsupportedFormat, ext, strings.Join(SupportedTypes(), ", "))
	}
}

func SupportedTypes() []string {
	return []string{".txt", ".pdf", ".docx", ".doc"}
}

// IsSupported reports whether filename has an extension Extract accepts.
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, t := range SupportedTypes() {
		if t == ext {
			return true
		}
	}
	return false
}

func extractTXT(data []byte) (*ExtractedText, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return nil, ErrUndecodable
	}
	return &ExtractedText{
		Content:  string(data),
		Pages:    1,
		Metadata: map[string]string{"type": "txt"},
	}, nil
}

func extractPDF(data []byte) (*ExtractedText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			buf.WriteString(text)
			buf.WriteString("\n\n")
		}
	}

	return &ExtractedText{
		Content: buf.String(),
		Pages:   numPages,
		Metadata: map[string]string{
			"type":  "pdf",
			"pages": fmt.Sprintf("%d", numPages),
		},
	}, nil
}

var (
	reParagraphEnd = regexp.MustCompile(`</w:p>`)
	reLineBreak    = regexp.MustCompile(`<w:(?:br|cr)\s*/>`)
	reTab          = regexp.MustCompile(`<w:tab\s*/>`)
	reTag          = regexp.MustCompile(`<[^>]+>`)
	reBlankLines   = regexp.MustCompile(`\n{3,}`)
)

func extractDOCX(data []byte) (*ExtractedText, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}
	defer r.Close()

	return &ExtractedText{
		Content:  wordXMLToText(r.Editable().GetContent()),
		Pages:    1,
		Metadata: map[string]string{"type": "docx"},
	}, nil
}

func wordXMLToText(body string) string {
	body = reParagraphEnd.ReplaceAllString(body, "\n")
	body = reLineBreak.ReplaceAllString(body, "\n")
	body = reTab.ReplaceAllString(body, "\t")
	body = reTag.ReplaceAllString(body, "")
	body = html.UnescapeString(body)
	body = reBlankLines.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// extractDOC handles legacy Word files. Files that are really OOXML with a
// .doc name are read as DOCX; binary files fall back to scanning printable
// text runs.
func extractDOC(data []byte) (*ExtractedText, error) {
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		out, err := extractDOCX(data)
		if err == nil {
			out.Metadata["type"] = "doc"
			return out, nil
		}
	}

	text := printableRuns(data)
	if strings.TrimSpace(text) == "" {
		return nil, ErrUndecodable
	}
	return &ExtractedText{
		Content:  text,
		Pages:    1,
		Metadata: map[string]string{"type": "doc", "mode": "binary-scan"},
	}, nil
}

const minRunLength = 4

// printableRuns collects runs of printable characters from both UTF-16LE
// and 8-bit encodings and keeps whichever yields more text.
func printableRuns(data []byte) string {
	wide := collectRuns(data, 2, func(b []byte) (rune, bool) {
		if b[1] != 0 {
			return 0, false
		}
		return printable(b[0])
	})
	narrow := collectRuns(data, 1, func(b []byte) (rune, bool) {
		return printable(b[0])
	})
	if len(wide) >= len(narrow) {
		return wide
	}
	return narrow
}

func collectRuns(data []byte, width int, decode func([]byte) (rune, bool)) string {
	var out, run strings.Builder
	flush := func() {
		if utf8.RuneCountInString(run.String()) >= minRunLength {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(strings.TrimSpace(run.String()))
		}
		run.Reset()
	}
	for i := 0; i+width <= len(data); i += width {
		r, ok := decode(data[i : i+width])
		if !ok {
			flush()
			continue
		}
		run.WriteRune(r)
	}
	flush()
	return out.String()
}

func printable(b byte) (rune, bool) {
	switch {
	case b == '\r' || b == '\n':
		return '\n', true
	case b == '\t':
		return ' ', true
	case b >= 0x20 && b < 0x7f:
		return rune(b), true
	default:
		return 0, false
	}
}
