package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store backed by an in-memory fake HTTP transport.
// Only Head, Get, Put and Delete object calls are understood.
func NewMockForTests() *Store {
	return newMockStore(&mockTransport{objects: make(map[string]mockObj)}, "mock-bucket", "")
}

func newMockStore(rt http.RoundTripper, bucket, prefix string) *Store {
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

type mockObj struct {
	body        []byte
	contentType string
	meta        http.Header
}

// mockTransport keeps objects keyed by "<bucket>/<key>" as addressed with path-style URLs.
type mockTransport struct {
	mu      sync.Mutex
	objects map[string]mockObj
	puts    int
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			return mockResponse(http.StatusNotFound, nil, http.Header{}), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {fmt.Sprintf("\"%x\"", len(obj.body))},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}
		for k, v := range obj.meta {
			h[k] = v
		}
		if req.Method == http.MethodHead {
			return mockResponse(http.StatusOK, nil, h), nil
		}
		return mockResponse(http.StatusOK, obj.body, h), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if dec, ok := decodeAWSChunked(body); ok {
				body = dec
			}
		}
		meta := http.Header{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				meta[k] = v
			}
		}
		m.objects[key] = mockObj{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		m.puts++
		return mockResponse(http.StatusOK, nil, http.Header{"Etag": {"\"etag\""}}), nil
	case http.MethodDelete:
		delete(m.objects, key)
		return mockResponse(http.StatusNoContent, nil, http.Header{}), nil
	}
	return mockResponse(http.StatusNotImplemented, nil, http.Header{}), nil
}

func mockResponse(status int, body []byte, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: h}
}

// decodeAWSChunked strips aws-chunked framing (<hex size>\r\n<data>\r\n ... 0\r\n<trailers>)
// from a streamed upload body. Bodies that are not framed are reported as such.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	var out []byte
	rest := b
	for {
		i := bytes.Index(rest, []byte("\r\n"))
		if i <= 0 {
			return nil, false
		}
		sizeField, _, _ := strings.Cut(string(rest[:i]), ";")
		n, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil || n < 0 {
			return nil, false
		}
		rest = rest[i+2:]
		if n == 0 {
			return out, true
		}
		if int64(len(rest)) < n+2 || string(rest[n:n+2]) != "\r\n" {
			return nil, false
		}
		out = append(out, rest[:n]...)
		rest = rest[n+2:]
	}
}
