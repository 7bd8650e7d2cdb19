package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseReturnsDescriptors(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["text"] != "200 g skyr and a banana" || body["tz"] != "Europe/Ljubljana" {
			t.Errorf("unexpected request body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [
  {"name": "skyr", "brand": "Isey", "qty": 200, "unit": "g", "grams": 200},
  {"name": " banana ", "qty": "1", "grams": null, "notes": "medium"}
]}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "Europe/Ljubljana", time.Second)
	items, err := c.Parse(context.Background(), "200 g skyr and a banana")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Grams == nil || *items[0].Grams != 200 || items[0].Brand != "Isey" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Name != "banana" || items[1].Grams != nil || items[1].Qty == nil || *items[1].Qty != 1 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
}

func TestParseWithoutEndpointIsUnavailable(t *testing.T) {
	t.Parallel()

	c := New("", "", 0)
	if _, err := c.Parse(context.Background(), "skyr"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestParseServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(ts.URL, "", time.Second)
	if _, err := c.Parse(context.Background(), "skyr"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDecodeItemsRejectsInvalidShapes(t *testing.T) {
	t.Parallel()

	tooMany := `{"items": [` +
		`{"name":"a"},{"name":"b"},{"name":"c"},{"name":"d"},{"name":"e"},` +
		`{"name":"f"},{"name":"g"},{"name":"h"},{"name":"i"},{"name":"j"},{"name":"k"}]}`
	cases := map[string]string{
		"not json":     `nope`,
		"missing list": `{"foods": []}`,
		"blank name":   `{"items": [{"name": "  "}]}`,
		"too many":     tooMany,
	}
	for name, raw := range cases {
		if _, err := decodeItems([]byte(raw)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	items, err := decodeItems([]byte(`{"items": []}`))
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty list to decode, got %v %v", items, err)
	}
}

func TestDecodeItemsDropsNonFiniteNumbers(t *testing.T) {
	t.Parallel()

	items, err := decodeItems([]byte(`{"items": [{"name": "oats", "qty": "NaN", "unit": "cup", "grams": "Inf"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items[0].Qty != nil || items[0].Grams != nil {
		t.Fatalf("expected non-finite qty and grams to be dropped, got %+v", items[0])
	}
}
