package booru

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alanbriolat/weeb/downloader"
)

// ProtocolError is an unsuccessful HTTP response from a provider. Its message is the response body, reduced to its
// text content if it was HTML.
type ProtocolError struct {
	URL        string
	StatusCode int
	Body       string
}

func NewProtocolError(resp *downloader.Response) *ProtocolError {
	return &ProtocolError{
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Body:       bodyText(resp),
	}
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return e.Body
}

func bodyText(resp *downloader.Response) string {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" {
		return strings.TrimSpace(resp.Text())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return strings.TrimSpace(resp.Text())
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
