package merge

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	pdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePDF(t *testing.T, orientation string, pages int, tag string) []byte {
	t.Helper()
	doc := gofpdf.New(orientation, "mm", "A4", "")
	doc.SetFont("Helvetica", "", 14)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Text(20, 20, fmt.Sprintf("%s page %d", tag, i+1))
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

var drawTemplate = regexp.MustCompile(`/(\w+) Do`)

func streamText(t *testing.T, v pdf.Value) string {
	t.Helper()
	rc := v.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// drawnContent returns, for each page of blob, the content streams of the
// form XObjects that page draws.
func drawnContent(t *testing.T, blob []byte) []string {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		var sb strings.Builder
		for _, m := range drawTemplate.FindAllStringSubmatch(streamText(t, page.V.Key("Contents")), -1) {
			sb.WriteString(streamText(t, page.Resources().Key("XObject").Key(m[1])))
		}
		pages = append(pages, sb.String())
	}
	return pages
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(makePDF(t, "P", 3, "a"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = PageCount([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestMergeSinglePageSources(t *testing.T) {
	blobs := [][]byte{makePDF(t, "P", 1, "a"), makePDF(t, "L", 1, "b"), makePDF(t, "P", 1, "c")}
	merged, err := Merge(blobs)
	require.NoError(t, err)

	n, err := PageCount(merged)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMergeIsAdditive(t *testing.T) {
	merged, err := Merge([][]byte{makePDF(t, "P", 2, "a"), makePDF(t, "P", 3, "b")})
	require.NoError(t, err)

	n, err := PageCount(merged)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMergeKeepsEverySourcePageInOrder(t *testing.T) {
	merged, err := Merge([][]byte{
		makePDF(t, "P", 2, "alpha"),
		makePDF(t, "L", 3, "bravo"),
		makePDF(t, "P", 1, "charlie"),
	})
	require.NoError(t, err)

	want := []string{"alpha page 1", "alpha page 2", "bravo page 1", "bravo page 2", "bravo page 3", "charlie page 1"}
	pages := drawnContent(t, merged)
	require.Len(t, pages, len(want))
	for i, tag := range want {
		assert.Contains(t, pages[i], "("+tag+") Tj", "page %d", i+1)
		for j, other := range want {
			if j != i {
				assert.NotContains(t, pages[i], "("+other+") Tj", "page %d", i+1)
			}
		}
	}
}

func TestMergeRejectsBadInput(t *testing.T) {
	_, err := Merge(nil)
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = Merge([][]byte{makePDF(t, "P", 1, "a"), []byte("garbage")})
	assert.Error(t, err)
}

func TestFitCentered(t *testing.T) {
	x, y, w, h := fitCentered(841.89, 595.28, a4WidthPt, a4HeightPt)
	assert.InDelta(t, a4WidthPt, w, 1e-6)
	assert.InDelta(t, 0, x, 1e-6)
	assert.Greater(t, y, 0.0)
	assert.Less(t, h, a4HeightPt)
}
