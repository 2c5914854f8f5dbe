package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	doc := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + body + `</w:t></w:r></w:p></w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractTextFromBytes_ZipDocxNormalizes(t *testing.T) {
	data := buildDocx(t, "This Agreement is made by and between the parties.")

	text, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "contract.docx")
	if err != nil {
		t.Fatalf("expected docx to extract from zip mime, got error: %v", err)
	}
	if !strings.Contains(text, "by and between") {
		t.Fatalf("extracted text missing body: %q", text)
	}
}

func TestExtractTextFromBytes_PlainText(t *testing.T) {
	text, err := ExtractTextFromBytes(context.Background(), []byte("plain contract text"), "text/plain; charset=utf-8", "contract.txt")
	if err != nil {
		t.Fatalf("plain text extract: %v", err)
	}
	if text != "plain contract text" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractTextFromBytes_OctetStreamUsesExtension(t *testing.T) {
	text, err := ExtractTextFromBytes(context.Background(), []byte("# Terms\nBody"), "application/octet-stream", "terms.md")
	if err != nil {
		t.Fatalf("markdown extract: %v", err)
	}
	if !strings.Contains(text, "Terms") {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractTextFromBytes_RealZipRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	_, err = ExtractTextFromBytes(context.Background(), buf.Bytes(), "application/zip", "notes.zip")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected unsupported type error, got: %v", err)
	}
}

func TestExtractTextFromBytes_EmptyDocumentIsFatal(t *testing.T) {
	data := buildDocx(t, " ")
	_, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "empty.docx")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected extraction error for empty text, got: %v", err)
	}
}
