package report

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/ledongthuc/pdf"
)

// PageText is the plain text extracted from one page.
type PageText struct {
	Number int
	Text   string
}

// Inspect reads a PDF back and returns the plain text of every page.
func Inspect(data []byte) (pages []PageText, err error) {
	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = fmt.Errorf("reading pdf: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	n := r.NumPage()
	pages = make([]PageText, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages = append(pages, PageText{Number: i, Text: pageText(p)})
	}
	return pages, nil
}

// pageText walks the page's text operators the way pdf.Page.GetPlainText
// does, but decodes fonts carrying an identity ToUnicode map as UTF-16BE.
// The library only shifts the last byte of a bfrange target, which garbles
// every code point above U+00FF in such fonts.
func pageText(p pdf.Page) string {
	contents := p.V.Key("Contents")
	if contents.Kind() == pdf.Null {
		return ""
	}

	fonts := make(map[string]pdf.TextEncoding)
	for _, name := range p.Fonts() {
		fonts[name] = encoderFor(p.Font(name))
	}

	var sb strings.Builder
	var enc pdf.TextEncoding = rawEncoding{}
	show := func(v pdf.Value) {
		if v.Kind() == pdf.String {
			sb.WriteString(enc.Decode(v.RawString()))
		}
	}

	pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "BT", "T*":
			sb.WriteString("\n")
		case "Tf":
			if len(args) != 2 {
				return
			}
			if e, ok := fonts[args[0].Name()]; ok {
				enc = e
			} else {
				enc = rawEncoding{}
			}
		case "Tj", "'", "\"":
			if len(args) > 0 {
				show(args[len(args)-1])
			}
		case "TJ":
			if len(args) == 1 {
				for i := 0; i < args[0].Len(); i++ {
					show(args[0].Index(i))
				}
			}
		}
	})
	return sb.String()
}

func encoderFor(f pdf.Font) pdf.TextEncoding {
	if f.V.Key("Subtype").Name() == "Type0" && f.V.Key("Encoding").Name() == "Identity-H" && identityToUnicode(f.V.Key("ToUnicode")) {
		return utf16Encoding{}
	}
	return f.Encoder()
}

var identityRange = regexp.MustCompile(`(?i)<0000>\s*<FFFF>\s*<0000>`)

func identityToUnicode(v pdf.Value) bool {
	if v.Kind() != pdf.Stream {
		return false
	}
	rc := v.Reader()
	defer rc.Close()
	cmap, err := io.ReadAll(rc)
	if err != nil {
		return false
	}
	return identityRange.Match(cmap)
}

type utf16Encoding struct{}

func (utf16Encoding) Decode(raw string) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return string(utf16.Decode(units))
}

type rawEncoding struct{}

func (rawEncoding) Decode(raw string) string { return raw }

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename is the attachment name for a job's report.
func Filename(jobNumber string) string {
	s := unsafeFilename.ReplaceAllString(strings.TrimSpace(jobNumber), "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		s = "unassigned"
	}
	return "mitigation-report-" + s + ".pdf"
}
