package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NewMock returns a Store backed by an in-process fake of the S3 REST subset
// the store uses. Reports published against it never leave the process.
func NewMock(bucket string) (*Store, error) {
	rt := &fakeBucket{objects: make(map[string]fakeObject)}
	return New(context.Background(), Config{
		Bucket:          bucket,
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		PathStyle:       true,
		AccessKeyID:     "AKIAMOCK",
		SecretAccessKey: "mock-secret",
	}, WithHTTPClient(&http.Client{Transport: rt}))
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// fakeBucket answers path-style requests of the form /<bucket>/<key>.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	IsTruncated bool          `xml:"IsTruncated"`
	KeyCount    int           `xml:"KeyCount"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix"))
	}
	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeAWSChunked(body); ok {
			body = decoded
		}
		md := map[string]string{}
		for name, vals := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") && len(vals) > 0 {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = vals[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md, modified: time.Now().UTC()}
		return respond(http.StatusOK, nil, http.Header{"ETag": {etag(body)}}), nil
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, http.Header{}), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"ETag":           {etag(obj.body)},
			"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
		}
		for k, v := range obj.metadata {
			h.Set("X-Amz-Meta-"+k, v)
		}
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, nil, h), nil
		}
		return respond(http.StatusOK, obj.body, h), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, http.Header{}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func (f *fakeBucket) list(prefix string) (*http.Response, error) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	res := listResult{KeyCount: len(keys)}
	for _, k := range keys {
		obj := f.objects[k]
		res.Contents = append(res.Contents, listContent{
			Key:          k,
			Size:         int64(len(obj.body)),
			ETag:         etag(obj.body),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	b, err := xml.Marshal(res)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, b, http.Header{"Content-Type": {"application/xml"}}), nil
}

func respond(status int, body []byte, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

func etag(b []byte) string {
	var sum uint32
	for _, c := range b {
		sum = sum*31 + uint32(c)
	}
	return fmt.Sprintf("%q", fmt.Sprintf("%08x", sum))
}

// decodeAWSChunked unwraps the aws-chunked framing the SDK applies to
// streaming uploads: <hex size>[;ext]\r\n<data>\r\n ... 0\r\n.
func decodeAWSChunked(b []byte) ([]byte, bool) {
	var out []byte
	rest := b
	for {
		idx := bytes.Index(rest, []byte("\r\n"))
		if idx < 0 {
			return nil, false
		}
		header := string(rest[:idx])
		if semi := strings.IndexByte(header, ';'); semi >= 0 {
			header = header[:semi]
		}
		size, err := strconv.ParseInt(header, 16, 64)
		if err != nil {
			return nil, false
		}
		rest = rest[idx+2:]
		if size == 0 {
			return out, true
		}
		if int64(len(rest)) < size+2 {
			return nil, false
		}
		out = append(out, rest[:size]...)
		rest = rest[size+2:]
	}
}
