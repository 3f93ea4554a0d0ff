package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

func parsePDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw document.xml.
	return xmlText(r.Editable().GetContent(), "t", "p")
}

var slideNumber = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func parsePPTX(path string) (string, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNumber.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	texts := make([]string, 0, len(slides))
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		text, err := xmlText(string(data), "t", "p")
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.n, err)
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\n\n"), nil
}

func parseXLSX(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		fmt.Fprintf(&text, "Sheet: %s\n", sheet.Name)
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			writeRow(&text, cells)
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

// parseWorkbook reads the macro and template workbook variants.
func parseWorkbook(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", name, err)
		}
		fmt.Fprintf(&text, "Sheet: %s\n", name)
		for _, row := range rows {
			writeRow(&text, row)
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

func writeRow(b *strings.Builder, cells []string) {
	line := strings.TrimSpace(strings.Join(cells, "\t"))
	if line == "" {
		return
	}
	b.WriteString(line)
	b.WriteString("\n")
}

// xmlText concatenates the character data of every textTag element and ends a line at each
// closing paraTag. Namespaces are ignored, so it serves WordprocessingML and DrawingML alike.
func xmlText(content, textTag, paraTag string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textTag:
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}
