package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// DefaultRelevantHeaders are the request headers that distinguish otherwise identical requests.
var DefaultRelevantHeaders = []string{"Accept", "Authorization"}

// KeyGenerator derives cache keys of the form "METHOD|host|hash", where hash covers the path, the sorted query, the
// relevant headers and the body. Any other header is ignored.
type KeyGenerator struct {
	RelevantHeaders []string
}

func NewKeyGenerator(relevantHeaders ...string) *KeyGenerator {
	if len(relevantHeaders) == 0 {
		relevantHeaders = DefaultRelevantHeaders
	}
	return &KeyGenerator{RelevantHeaders: relevantHeaders}
}

// Key reads the request body if there is one, leaving req.Body readable again afterwards.
func (g *KeyGenerator) Key(req *http.Request) (string, error) {
	body, err := peekBody(req)
	if err != nil {
		return "", err
	}

	h := xxhash.New()
	_, _ = h.WriteString(req.URL.EscapedPath())
	_, _ = h.Write([]byte{0})

	query := req.URL.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, value := range values {
			_, _ = fmt.Fprintf(h, "%s=%s&", name, value)
		}
	}
	_, _ = h.Write([]byte{0})

	for _, name := range g.RelevantHeaders {
		name = textproto.CanonicalMIMEHeaderKey(name)
		for _, value := range req.Header.Values(name) {
			_, _ = fmt.Fprintf(h, "%s:%s\n", name, value)
		}
	}
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)

	return fmt.Sprintf("%s|%s|%016x", req.Method, req.URL.Host, h.Sum64()), nil
}

func peekBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return body, nil
}
