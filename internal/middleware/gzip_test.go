package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipTestHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		body            string
	}

	tests := []struct {
		name            string
		acceptEncoding  string
		contentEncoding string
		compressBody    bool
		body            string
		want            want
	}{
		{
			name:           "plain request plain response",
			acceptEncoding: "",
			body:           "hello",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				body:            "received: hello",
			},
		},
		{
			name:           "compressed response",
			acceptEncoding: "gzip",
			body:           "hello",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				body:            "received: hello",
			},
		},
		{
			name:            "compressed request",
			contentEncoding: "gzip",
			compressBody:    true,
			body:            "hello",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				body:            "received: hello",
			},
		},
	}

	handler := GzipMiddleware(http.HandlerFunc(gzipTestHandler))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.compressBody {
				var buf bytes.Buffer
				zw := gzip.NewWriter(&buf)
				if _, err := zw.Write([]byte(tt.body)); err != nil {
					t.Fatalf("compress body: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("close gzip writer: %v", err)
				}
				body = &buf
			}

			r := httptest.NewRequest(http.MethodPost, "/echo", body)
			if tt.acceptEncoding != "" {
				r.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.contentEncoding != "" {
				r.Header.Set("Content-Encoding", tt.contentEncoding)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want.statusCode)
			}
			if got := res.Header.Get("Content-Encoding"); got != tt.want.contentEncoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.want.contentEncoding)
			}

			var reader io.Reader = res.Body
			if tt.want.contentEncoding == "gzip" {
				zr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("gzip reader: %v", err)
				}
				defer zr.Close()
				reader = zr
			}

			got, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(got) != tt.want.body {
				t.Fatalf("body = %q, want %q", string(got), tt.want.body)
			}
		})
	}
}
