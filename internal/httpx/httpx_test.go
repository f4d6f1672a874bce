package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Abdullah1738/itheum-agent/protocol"
)

func TestClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.Header.Get("address") != "wallet-1" {
			t.Errorf("method=%s address=%q", r.Method, r.Header.Get("address"))
		}
		_, _ = w.Write([]byte(`{"cost":10}`))
	}))
	defer srv.Close()

	var out struct {
		Cost int `json:"cost"`
	}
	if err := New(nil).GetJSON(context.Background(), srv.URL, http.Header{"Address": {"wallet-1"}}, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Cost != 10 {
		t.Fatalf("cost=%d", out.Cost)
	}
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method=%s content-type=%q", r.Method, r.Header.Get("Content-Type"))
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if in["k"] != "v" {
			t.Errorf("body=%v", in)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := New(nil).PostJSON(context.Background(), srv.URL, nil, map[string]string{"k": "v"}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if !out.OK {
		t.Fatalf("ok=false")
	}
}

func TestClient_ErrorCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/500":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/garbage":
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	c := New(srv.Client())
	var out map[string]any

	err := c.GetJSON(context.Background(), srv.URL+"/500", nil, &out)
	if !errors.Is(err, protocol.ErrNetwork) {
		t.Fatalf("500: err=%v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("500: err=%T, want *StatusError", err)
	}
	if se.Code != http.StatusInternalServerError || se.Body != "boom" {
		t.Fatalf("status error=%+v", se)
	}

	if err := c.GetJSON(context.Background(), srv.URL+"/garbage", nil, &out); !errors.Is(err, protocol.ErrMalformedResponse) {
		t.Fatalf("garbage: err=%v", err)
	}

	srv.Close()
	if err := c.GetJSON(context.Background(), srv.URL+"/gone", nil, &out); !errors.Is(err, protocol.ErrNetwork) {
		t.Fatalf("closed server: err=%v", err)
	}
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"api.example:4000/":       "http://api.example:4000",
		" https://api.example// ": "https://api.example",
		"":                        "",
	}
	for in, want := range cases {
		if got := BaseURL(in); got != want {
			t.Fatalf("BaseURL(%q)=%q, want %q", in, got, want)
		}
	}
}
