// Package extract turns raw document bytes into the plain text that is sent
// to the embedding model. Anything that cannot yield text fails with
// errors.ErrContentInvalid.
package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// Func extracts text from one document's bytes.
type Func func(data []byte) (string, error)

type Registry struct {
	funcs map[ingestion.DocumentType]Func
}

// Default returns a registry covering every document type that carries text.
// Images are deliberately absent.
func Default() *Registry {
	r := &Registry{funcs: make(map[ingestion.DocumentType]Func)}
	r.Register(ingestion.TypeText, PlainText)
	r.Register(ingestion.TypeMarkdown, PlainText)
	r.Register(ingestion.TypePDF, PDF)
	r.Register(ingestion.TypeHTML, HTML)
	r.Register(ingestion.TypeURL, HTML)
	return r
}

func (r *Registry) Register(t ingestion.DocumentType, fn Func) {
	r.funcs[t] = fn
}

// Extract returns normalized, non-empty text for data.
func (r *Registry) Extract(t ingestion.DocumentType, data []byte) (string, error) {
	fn, ok := r.funcs[t]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrContentInvalid, "no text extractor for type %s", t)
	}
	if len(data) == 0 {
		return "", apperrors.Newf(apperrors.ErrContentInvalid, "empty %s document", t)
	}
	text, err := fn(data)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.Newf(apperrors.ErrContentInvalid, "no text content in %s document", t)
	}
	return text, nil
}

func PlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return string(data), nil
}

// HTML returns the whitespace-collapsed text of the document body. Text
// nodes are joined with a space so adjacent block elements stay separate
// words.
func HTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrContentInvalid, err, "parsing html")
	}
	doc.Find("script, style, noscript").Remove()
	var parts []string
	textNodes(doc.Find("body"), &parts)
	if len(parts) == 0 {
		textNodes(doc.Selection, &parts)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

func textNodes(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				*parts = append(*parts, t)
			}
			return
		}
		textNodes(c, parts)
	})
}

// PDF concatenates the plain text of every page.
func PDF(data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", apperrors.New(apperrors.ErrContentInvalid, "not a pdf: missing %PDF header")
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.ErrContentInvalid, "parsing pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrContentInvalid, err, "parsing pdf")
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrContentInvalid, err, "reading pdf page %d", i)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Truncate cuts text to at most maxChars runes. maxChars <= 0 disables it.
func Truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i], true
		}
		n++
	}
	return text, false
}
