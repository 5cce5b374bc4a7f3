package imagehost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *NodeImageClient {
	cfg := DefaultConfig()
	cfg.APIKey = "host-key"
	cfg.UploadURL = srv.URL + "/api/upload"
	cfg.DeleteURL = srv.URL + "/api/v1/delete/"
	return NewNodeImageClient(cfg)
}

func TestNodeImageClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "host-key", r.Header.Get("X-API-Key"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "reference.png", header.Filename)
		assert.Equal(t, []byte("png-bytes"), data)

		json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"image_id": "img-1",
			"links":    map[string]string{"direct": "https://cdn.example/img-1.png"},
		})
	}))
	defer srv.Close()

	hosted, err := newTestClient(srv).Upload(context.Background(), []byte("png-bytes"), "reference.png")
	require.NoError(t, err)
	assert.Equal(t, &Hosted{ID: "img-1", URL: "https://cdn.example/img-1.png"}, hosted)
}

func TestNodeImageClient_UploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		}},
		{"reported failure", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"message":"quota"}`))
		}},
		{"no link", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"image_id":"x"}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := newTestClient(srv).Upload(context.Background(), []byte("x"), "a.png")
			assert.Error(t, err)
		})
	}
}

func TestNodeImageClient_Delete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.Path
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv).Delete(context.Background(), "img-1"))
	assert.Equal(t, "/api/v1/delete/img-1", gotPath)
}

func TestNewNodeImageClient_Defaults(t *testing.T) {
	c := NewNodeImageClient(Config{APIKey: "k"})
	assert.Equal(t, defaultUploadURL, c.UploadURL)
	assert.Equal(t, defaultDeleteURL, c.DeleteURL)
}
