package converter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"
)

// Minimal container writers. These produce small but structurally valid
// files of the target type so degraded conversions still open in a viewer.

func renderTextDocument(text, target, title string) ([]byte, error) {
	switch target {
	case "txt", "md":
		return []byte(text), nil
	case "html":
		return wrapHTML(title, text), nil
	case "pdf":
		return textToPDF(text), nil
	case "rtf", "doc":
		// Word opens RTF content regardless of the .doc extension.
		return textToRTF(text), nil
	case "docx":
		return textToDOCX(text)
	case "odt":
		return textToODT(text)
	default:
		return nil, fmt.Errorf("no document container for %q", target)
	}
}

func wrapHTML(title, body string) []byte {
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head>\n<body>\n<pre>")
	b.WriteString(html.EscapeString(body))
	b.WriteString("</pre>\n</body>\n</html>\n")
	return b.Bytes()
}

// textToPDF emits a one-page PDF with the text in a monospace font. Long
// documents are truncated to what fits; this path is a lossy fallback, not
// a typesetter.
func textToPDF(text string) []byte {
	const maxLines = 60

	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}

	var content bytes.Buffer
	content.WriteString("BT\n/F1 10 Tf\n50 780 Td\n12 TL\n")
	for _, line := range lines {
		content.WriteString(fmt.Sprintf("(%s) Tj\nT*\n", escapePDFText(line)))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>",
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		out.WriteString(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", i+1, obj))
	}
	xref := out.Len()
	out.WriteString(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(objects)+1))
	for _, off := range offsets {
		out.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	out.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref))
	return out.Bytes()
}

func escapePDFText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `(`, `\(`)
	s = strings.ReplaceAll(s, `)`, `\)`)
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

func textToRTF(text string) []byte {
	var b bytes.Buffer
	b.WriteString(`{\rtf1\ansi\deff0{\fonttbl{\f0 Courier;}}\f0\fs20 `)
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(escapeRTFText(line))
		b.WriteString(`\par `)
	}
	b.WriteString("}")
	return b.Bytes()
}

func escapeRTFText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r > 127:
			fmt.Fprintf(&b, `\u%d?`, r)
		case r == '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func textToDOCX(text string) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, line := range strings.Split(text, "\n") {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		body.WriteString(escapeXMLText(line))
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	return writeZip(map[string][]byte{
		"[Content_Types].xml": []byte(docxContentTypes),
		"_rels/.rels":         []byte(docxRels),
		"word/document.xml":   body.Bytes(),
	})
}

const odtManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
<manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.text"/>
<manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
</manifest:manifest>`

func textToODT(text string) ([]byte, error) {
	var content bytes.Buffer
	content.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	content.WriteString(`<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" office:version="1.2"><office:body><office:text>`)
	for _, line := range strings.Split(text, "\n") {
		content.WriteString(`<text:p>` + escapeXMLText(line) + `</text:p>`)
	}
	content.WriteString(`</office:text></office:body></office:document-content>`)

	return writeZip(map[string][]byte{
		"mimetype":              []byte("application/vnd.oasis.opendocument.text"),
		"META-INF/manifest.xml": []byte(odtManifest),
		"content.xml":           content.Bytes(),
	})
}

func escapeXMLText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

func writeZip(files map[string][]byte) ([]byte, error) {
	// mimetype first and uncompressed, per the ODF packaging rules; a fixed
	// order keeps output deterministic for the rest.
	names := make([]string, 0, len(files))
	if _, ok := files["mimetype"]; ok {
		names = append(names, "mimetype")
	}
	for _, n := range []string{"[Content_Types].xml", "_rels/.rels", "META-INF/manifest.xml", "word/document.xml", "content.xml"} {
		if _, ok := files[n]; ok && n != "mimetype" {
			names = append(names, n)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if name == "mimetype" {
			hdr.Method = zip.Store
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
