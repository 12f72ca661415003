package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plainParagraphs(t *testing.T) {
	e := NewExtractor()
	content := []byte("Skilled therapy must be reasonable.\nIt must be necessary.\n\n  \n\r\nPlan of care certified by physician.\n")
	got, err := e.ExtractBytes(content, ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := []string{
		"Skilled therapy must be reasonable.\nIt must be necessary.",
		"Plan of care certified by physician.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello\x80world"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(got) != 1 || got[0] != "hello�world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_unknownExtensionIsPlain(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("raw content"), ".xyz")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(got) != 1 || got[0] != "raw content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_excelRows(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "CPT")
	f.SetCellValue("Sheet1", "B1", "Description")
	f.SetCellValue("Sheet1", "A3", "97110")
	f.SetCellValue("Sheet1", "B3", "Therapeutic exercise")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := []string{"CPT\tDescription", "97110\tTherapeutic exercise"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

// docxWithParagraphs returns .docx bytes whose body has one <w:p> per paragraph, each
// split into two runs to check run concatenation.
func docxWithParagraphs(docPath string, paragraphs ...string) []byte {
	var body bytes.Buffer
	for _, p := range paragraphs {
		half := len(p) / 2
		body.WriteString(`<w:p w:rsidR="00AB"><w:pPr><w:pStyle w:val="Normal"/></w:pPr><w:r><w:t xml:space="preserve">` +
			p[:half] + `</w:t></w:r><w:r><w:t>` + p[half:] + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if docPath != docxDocumentXMLPath {
		ct, _ := w.Create(contentTypesPath)
		_, _ = ct.Write([]byte(`<Types><Override ContentType="` + docxMainContentType + `" PartName="/` + docPath + `"/></Types>`))
	}
	fw, _ := w.Create(docPath)
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `<w:p/></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtractBytes_docxParagraphs(t *testing.T) {
	content := docxWithParagraphs(docxDocumentXMLPath, "Subjective: pain 4/10", "Assessment &amp; plan")
	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := []string{"Subjective: pain 4/10", "Assessment & plan"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_docxContentTypesPart(t *testing.T) {
	content := docxWithParagraphs("word/document2.xml", "Content from document2")
	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(got) != 1 || got[0] != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	if _, err := e.ExtractBytes(buf.Bytes(), ".docx"); err == nil {
		t.Error("expected error when document.xml is missing")
	}
}

func TestExtractBytes_pdfInvalid(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("%PDF-garbage"), ".pdf"); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestExtract_files(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(txt, []byte("Para one\n\nPara two"), 0600); err != nil {
		t.Fatal(err)
	}
	xlsx := filepath.Join(dir, "codes.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(xlsx); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	e := NewExtractor()
	got, err := e.Extract(txt)
	if err != nil || got != "Para one\n\nPara two" {
		t.Errorf("Extract(txt) = %q, %v", got, err)
	}
	got, err = e.Extract(xlsx)
	if err != nil || got != "Searchable text" {
		t.Errorf("Extract(xlsx) = %q, %v", got, err)
	}
	if _, err := e.Extract(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".DOCX", ".txt"} {
		if !Supported(ext) {
			t.Errorf("%s should be supported", ext)
		}
	}
	if Supported(".pptx") {
		t.Error(".pptx should not be supported")
	}
}
