package provider_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

type capture struct {
	method string
	url    string
	body   []byte
}

type fakeTransport struct {
	respStatus int
	respBody   []byte
	captured   *capture
	calls      int
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	var b []byte
	if req.Body != nil {
		b, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	if f.captured != nil {
		f.captured.method = req.Method
		f.captured.url = req.URL.String()
		f.captured.body = b
	}
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func httpClient(rt http.RoundTripper) *http.Client {
	return &http.Client{Transport: rt}
}

func decodeBody(t *testing.T, b []byte, v any) {
	t.Helper()
	if b == nil {
		t.Fatal("no request captured")
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode request body: %v\n%s", err, b)
	}
}
