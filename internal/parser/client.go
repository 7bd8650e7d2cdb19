package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/saadjs/nutrilog/internal/model"
)

const MaxItems = 10

var (
	// ErrUnavailable covers an unconfigured endpoint, transport failures and
	// non-2xx responses.
	ErrUnavailable = errors.New("parser unavailable")
	// ErrInvalid means the parser answered with a payload of the wrong shape.
	ErrInvalid = errors.New("parser returned invalid output")
)

// Client posts free text to an external food parser and returns the foods it
// extracted.
type Client struct {
	endpoint string
	timezone string
	http     *resty.Client
}

func New(endpoint, timezone string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		timezone: timezone,
		http:     client,
	}
}

func (c *Client) Parse(ctx context.Context, text string) ([]model.FoodDescriptor, error) {
	if c == nil || c.endpoint == "" {
		return nil, fmt.Errorf("no parser endpoint configured: %w", ErrUnavailable)
	}
	body := map[string]string{"text": text}
	if c.timezone != "" {
		body["tz"] = c.timezone
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("send parser request: %v: %w", err, ErrUnavailable)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("parser returned status %d: %w", resp.StatusCode(), ErrUnavailable)
	}
	return decodeItems(resp.Body())
}

func decodeItems(raw []byte) ([]model.FoodDescriptor, error) {
	var parsed struct {
		Items *[]rawItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode parser response: %v: %w", err, ErrInvalid)
	}
	if parsed.Items == nil {
		return nil, fmt.Errorf("parser response has no items: %w", ErrInvalid)
	}
	items := *parsed.Items
	if len(items) > MaxItems {
		return nil, fmt.Errorf("parser returned %d items, max %d: %w", len(items), MaxItems, ErrInvalid)
	}
	out := make([]model.FoodDescriptor, 0, len(items))
	for i, it := range items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			return nil, fmt.Errorf("parser item %d has no name: %w", i, ErrInvalid)
		}
		d := model.FoodDescriptor{
			Name:  name,
			Brand: strings.TrimSpace(it.Brand),
			Unit:  strings.TrimSpace(it.Unit),
			Notes: strings.TrimSpace(it.Notes),
		}
		if v, ok := looseNumber(it.Qty); ok {
			d.Qty = &v
		}
		if v, ok := looseNumber(it.Grams); ok && v > 0 {
			d.Grams = &v
		}
		out = append(out, d)
	}
	return out, nil
}

type rawItem struct {
	Name  string `json:"name"`
	Brand string `json:"brand"`
	Qty   any    `json:"qty"`
	Unit  string `json:"unit"`
	Grams any    `json:"grams"`
	Notes string `json:"notes"`
}

func looseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
