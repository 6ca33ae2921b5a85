package extract

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	r := Default()

	text, err := r.Extract(ingestion.TypeText, []byte("  hello world \n"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = r.Extract(ingestion.TypeMarkdown, []byte("# Title\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody", text)
}

func TestExtractHTML(t *testing.T) {
	page := []byte(`<html><head><title>t</title><style>p{}</style></head>
<body><h1>Heading</h1><script>var x = 1;</script><p>first   para</p><p>second</p></body></html>`)

	for _, typ := range []ingestion.DocumentType{ingestion.TypeHTML, ingestion.TypeURL} {
		text, err := Default().Extract(typ, page)
		require.NoError(t, err)
		assert.Equal(t, "Heading first para second", text)
	}
}

func TestExtractHTMLSeparatesBlocks(t *testing.T) {
	page := []byte(`<body><ul><li>alpha</li><li>beta</li></ul><div><p>gamma</p><table><tr><td>delta</td><td>epsilon</td></tr></table></div></body>`)

	text, err := HTML(page)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma delta epsilon", text)
}

func TestExtractHTMLWithoutBody(t *testing.T) {
	text, err := HTML([]byte(`<title>only a title</title>`))
	require.NoError(t, err)
	assert.Equal(t, "only a title", text)
}

func TestExtractRejectsUnembeddableContent(t *testing.T) {
	r := Default()
	tests := []struct {
		name string
		typ  ingestion.DocumentType
		data []byte
	}{
		{"image has no extractor", ingestion.TypeImage, []byte{0x89, 'P', 'N', 'G'}},
		{"empty bytes", ingestion.TypeText, nil},
		{"whitespace only", ingestion.TypeText, []byte(" \n\t ")},
		{"empty html body", ingestion.TypeHTML, []byte("<html><body>   </body></html>")},
		{"pdf without header", ingestion.TypePDF, []byte("plain text pretending")},
		{"corrupt pdf", ingestion.TypePDF, []byte("%PDF-1.4\nnot really a pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Extract(tt.typ, tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrContentInvalid)
			assert.True(t, apperrors.IsPermanent(err))
		})
	}
}

func TestPlainTextDropsInvalidUTF8(t *testing.T) {
	text, err := PlainText([]byte{'o', 'k', 0xff, '!'})
	require.NoError(t, err)
	assert.Equal(t, "ok!", text)
}

func TestTruncate(t *testing.T) {
	out, cut := Truncate("héllo", 3)
	assert.True(t, cut)
	assert.Equal(t, "hél", out)

	out, cut = Truncate("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", out)

	out, cut = Truncate("unbounded", 0)
	assert.False(t, cut)
	assert.Equal(t, "unbounded", out)
}

func TestRegisterOverrides(t *testing.T) {
	r := Default()
	r.Register(ingestion.TypeImage, func(data []byte) (string, error) { return "caption", nil })

	text, err := r.Extract(ingestion.TypeImage, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "caption", text)
}
