package textextract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml":            `<?xml version="1.0" encoding="UTF-8"?><w:document><w:body>` + body + `</w:body></w:document>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_TXT(t *testing.T) {
	out, err := Extract([]byte("\xef\xbb\xbfThe capital of France is Paris."), "notes.TXT")
	require.NoError(t, err)

	assert.Equal(t, "The capital of France is Paris.", out.Content)
	assert.Equal(t, 1, out.Pages)
	assert.Equal(t, "txt", out.Metadata["type"])
}

func TestExtract_TXTRejectsBinary(t *testing.T) {
	_, err := Extract([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01}, "image.txt")
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	tests := []string{"image.png", "archive.zip", "README"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Extract([]byte("data"), name)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.Contains(t, err.Error(), ".pdf")
		})
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("report.PDF"))
	assert.True(t, IsSupported("memo.doc"))
	assert.False(t, IsSupported("image.png"))
	assert.False(t, IsSupported("noext"))
}

func TestExtract_DOCX(t *testing.T) {
	body := `<w:p><w:r><w:t>First paragraph &amp; more.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>line</w:t></w:r></w:p>`

	out, err := Extract(buildDOCX(t, body), "memo.docx")
	require.NoError(t, err)

	assert.Equal(t, "First paragraph & more.\nSecond\tline", out.Content)
	assert.Equal(t, "docx", out.Metadata["type"])
}

func TestExtract_DOCWithOOXMLPayload(t *testing.T) {
	body := `<w:p><w:r><w:t>Legacy name, modern body.</w:t></w:r></w:p>`

	out, err := Extract(buildDOCX(t, body), "memo.doc")
	require.NoError(t, err)
	assert.Equal(t, "Legacy name, modern body.", out.Content)
	assert.Equal(t, "doc", out.Metadata["type"])
}

func TestExtract_DOCBinaryScan(t *testing.T) {
	var data []byte
	data = append(data, 0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1)
	for _, r := range "Quarterly revenue grew" {
		data = append(data, byte(r), 0x00)
	}
	data = append(data, 0xff, 0xff, 0x01, 0x02)

	out, err := Extract(data, "report.doc")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly revenue grew", out.Content)
	assert.Equal(t, "binary-scan", out.Metadata["mode"])
}

func TestWordXMLToText_CollapsesBlankParagraphs(t *testing.T) {
	in := `<w:p><w:t>a</w:t></w:p><w:p></w:p><w:p></w:p><w:p></w:p><w:p><w:t>b</w:t></w:p>`
	assert.Equal(t, "a\n\nb", wordXMLToText(in))
}
