package parser

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, body := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()

	t.Run("Plain text", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("Line one.\r\n\r\n\r\n\r\nLine two.   \n"), 0o644))
		text, err := ExtractText(path)
		require.NoError(t, err)
		assert.Equal(t, "Line one.\n\nLine two.", text)
	})

	t.Run("Too little text", func(t *testing.T) {
		path := filepath.Join(dir, "tiny.txt")
		require.NoError(t, os.WriteFile(path, []byte("  short \n"), 0o644))
		_, err := ExtractText(path)
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := ExtractText(filepath.Join(dir, "image.png"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.False(t, Supported("image.png"))
		assert.True(t, Supported("Slides.PPTX"))
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := ExtractText(filepath.Join(dir, "missing.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Markdown", func(t *testing.T) {
		path := filepath.Join(dir, "readme.md")
		src := "# Neural Networks\n\nThey learn **weights** by [backprop](https://example.com).\n\n- layers\n- neurons\n\n```\ncode line\n```\n"
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
		text, err := ExtractText(path)
		require.NoError(t, err)
		assert.Contains(t, text, "Neural Networks")
		assert.Contains(t, text, "They learn weights by backprop.")
		assert.Contains(t, text, "layers")
		assert.Contains(t, text, "code line")
		assert.NotContains(t, text, "**")
		assert.NotContains(t, text, "https://example.com")
	})

	t.Run("Slides in numeric order", func(t *testing.T) {
		path := filepath.Join(dir, "deck.pptx")
		slide := func(s string) string {
			return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + s + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		}
		writeZip(t, path, map[string]string{
			"ppt/slides/slide10.xml":           slide("Tenth slide text"),
			"ppt/slides/slide2.xml":            slide("Second slide text"),
			"ppt/slides/slide1.xml":            slide("First slide text"),
			"ppt/slides/_rels/slide1.xml.rels": "<Relationships/>",
			"ppt/presentation.xml":             "<p:presentation xmlns:p=\"p\"/>",
		})
		text, err := ExtractText(path)
		require.NoError(t, err)
		assert.Equal(t, "First slide text\n\nSecond slide text\n\nTenth slide text", text)
	})

	t.Run("Word document", func(t *testing.T) {
		path := filepath.Join(dir, "essay.docx")
		body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="w"><w:body>` +
			`<w:p><w:r><w:t>Photosynthesis converts light</w:t></w:r><w:r><w:t xml:space="preserve"> into energy.</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>Chlorophyll absorbs light.</w:t></w:r></w:p>` +
			`</w:body></w:document>`
		writeZip(t, path, map[string]string{
			"word/document.xml":            body,
			"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
			"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		})
		text, err := ExtractText(path)
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis converts light into energy.\nChlorophyll absorbs light.", text)
	})

	t.Run("Workbooks", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "Term"))
		require.NoError(t, f.SetCellValue("Sheet1", "B1", "Definition"))
		require.NoError(t, f.SetCellValue("Sheet1", "A2", "Mitosis"))
		require.NoError(t, f.SetCellValue("Sheet1", "B2", "Cell division"))

		for _, name := range []string{"glossary.xlsx", "glossary.xlsm"} {
			path := filepath.Join(dir, name)
			require.NoError(t, f.SaveAs(path))
			text, err := ExtractText(path)
			require.NoError(t, err, name)
			assert.Contains(t, text, "Sheet: Sheet1", name)
			assert.Contains(t, text, "Mitosis\tCell division", name)
		}
		require.NoError(t, f.Close())
	})
}

func TestXMLText(t *testing.T) {
	text, err := xmlText(`<a:p xmlns:a="a"><a:r><a:t>one</a:t></a:r><a:tab/><a:r><a:t>two</a:t></a:r></a:p><a:p><a:t>three</a:t></a:p>`, "t", "p")
	require.NoError(t, err)
	assert.Equal(t, "one\ttwo\nthree\n", text)

	_, err = xmlText(`<a:p><a:t>broken`, "t", "p")
	assert.Error(t, err)
}

func TestCheckText(t *testing.T) {
	assert.ErrorIs(t, CheckText(""), ErrNoText)
	assert.ErrorIs(t, CheckText("a b c d e f g h i"), ErrNoText)
	assert.NoError(t, CheckText("abcdefghij"))
}
