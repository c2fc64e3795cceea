package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmit(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = map[string]string{}
		for k := range r.PostForm {
			got[k] = r.PostForm.Get(k)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{
		Endpoint: srv.URL,
		FormID:   "form42",
		Hash:     "h",
		Referer:  "https://example.amocrm.ru/",
		Timezone: "Europe/Moscow",
	})

	if !c.Submit(context.Background(), "Иван", "+79161234567", "хочет звонок", "ivan_tg") {
		t.Fatal("expected success on HTTP 200")
	}

	checks := map[string]string{
		"fields[name_1]":           "Иван",
		"fields[581821_1][521181]": "+79161234567",
		"fields[note_2]":           "хочет звонок",
		"fields[656491_1]":         "ivan_tg",
		"form_id":                  "form42",
		"hash":                     "h",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("form field %s = %q, want %q", k, got[k], want)
		}
	}
	for _, k := range []string{"visitor_uid", "form_request_id", "gso_session_uid"} {
		if got[k] == "" {
			t.Errorf("missing per-submission uuid %s", k)
		}
	}
}

func TestSubmitNon200Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, FormID: "f"})
	if c.Submit(context.Background(), "a", "b", "c", "d") {
		t.Fatal("expected failure on non-200")
	}
}

func TestSubmitDisabledWithoutEndpoint(t *testing.T) {
	c := New(Config{})
	if c.Submit(context.Background(), "a", "b", "c", "d") {
		t.Fatal("unconfigured client must report failure without a network call")
	}
}
