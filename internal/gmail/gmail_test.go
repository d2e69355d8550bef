package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/daviddao/mailorders/internal/message"
	"github.com/daviddao/mailorders/internal/resilience"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	svc, err := gm.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return New(svc)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSearch_PagesUntilLimit(t *testing.T) {
	var queries []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages"), r.URL.Path)
		queries = append(queries, r.URL.Query().Get("q"))
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, map[string]any{
				"messages":      []map[string]string{{"id": "a"}, {"id": "b"}},
				"nextPageToken": "p2",
			})
		default:
			writeJSON(w, map[string]any{
				"messages":      []map[string]string{{"id": "c"}, {"id": "d"}},
				"nextPageToken": "p3",
			})
		}
	})

	ids, err := c.Search(context.Background(), "from:stockx.com", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []string{"from:stockx.com", "from:stockx.com"}, queries)
}

func TestSearch_TransientError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend"}}`))
	})

	_, err := c.Search(context.Background(), "x", 10)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGet_ConvertsPayload(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/m1"), r.URL.Path)
		writeJSON(w, map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "From", "value": "StockX <noreply@stockx.com>"},
					{"name": "Subject", "value": "Order Shipped: Dunk Low"},
					{"name": "Date", "value": "Mon, 02 Jun 2025 10:00:00 +0000"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/plain", "body": map[string]any{"data": message.EncodeBase64URL("Order number: 75839201")}},
					{"mimeType": "application/pdf", "filename": "invoice.pdf", "body": map[string]any{"attachmentId": "att"}},
				},
			},
		})
	})

	raw, err := c.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", raw.ID)
	assert.Equal(t, "t1", raw.ThreadID)
	assert.Equal(t, "StockX <noreply@stockx.com>", raw.From)
	assert.Equal(t, "Order Shipped: Dunk Low", raw.Subject)
	require.Len(t, raw.Payload.Parts, 2)
	assert.Equal(t, "invoice.pdf", raw.Payload.Parts[1].Filename)

	text, _ := message.Normalize(raw)
	assert.Equal(t, "Order number: 75839201", text)
}

func TestConvertPart_Nil(t *testing.T) {
	raw := convertMessage(&gm.Message{Id: "x"})
	assert.Nil(t, raw.Payload)
	assert.Empty(t, raw.Subject)
}
