package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/mailorders/internal/types"
)

func TestNormalize_Multipart(t *testing.T) {
	raw := &types.RawMessage{
		ID: "m1",
		Payload: &types.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*types.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*types.MessagePart{
						{MimeType: "text/plain; charset=UTF-8", Data: EncodeBase64URL("Order number: 12345678")},
						{MimeType: "text/html", Data: EncodeBase64URL("<p>Order number: 12345678</p>")},
					},
				},
				{MimeType: "application/pdf", Filename: "invoice.pdf", Data: EncodeBase64URL("%PDF")},
			},
		},
	}

	text, html := Normalize(raw)
	assert.Equal(t, "Order number: 12345678", text)
	assert.Equal(t, "<p>Order number: 12345678</p>", html)
}

func TestNormalize_TopLevelBody(t *testing.T) {
	raw := &types.RawMessage{
		ID:      "m2",
		Payload: &types.MessagePart{MimeType: "text/html", Data: EncodeBase64URL("<b>hi</b>")},
	}
	text, html := Normalize(raw)
	assert.Empty(t, text)
	assert.Equal(t, "<b>hi</b>", html)

	raw.Payload.MimeType = "text/plain"
	text, html = Normalize(raw)
	assert.Equal(t, "<b>hi</b>", text)
	assert.Empty(t, html)
}

func TestNormalize_MalformedPartSkipped(t *testing.T) {
	raw := &types.RawMessage{
		ID: "m3",
		Payload: &types.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*types.MessagePart{
				{MimeType: "text/plain", Data: "!!!not base64!!!"},
				{MimeType: "text/plain", Data: EncodeBase64URL("still here")},
			},
		},
	}
	text, _ := Normalize(raw)
	assert.Equal(t, "still here", text)
}

func TestNormalize_Nil(t *testing.T) {
	text, html := Normalize(nil)
	assert.Empty(t, text)
	assert.Empty(t, html)
}

func TestDecodeBase64URL(t *testing.T) {
	got, err := DecodeBase64URL(EncodeBase64URL("Total Payment $138.00*?>"))
	require.NoError(t, err)
	assert.Equal(t, "Total Payment $138.00*?>", got)

	// Padded standard alphabet is accepted too.
	got, err = DecodeBase64URL("aGk=")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = DecodeBase64URL("a")
	assert.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	body := `<html><head><style>.x{color:red}</style></head><body>
<table><tr><td>Purchase Price:</td><td>$120.00</td></tr></table>
<p>Order&nbsp;number: <b>01-ABCDEFGHJK</b></p><script>var a = 1;</script></body></html>`

	text := HTMLToText(body)
	assert.Contains(t, text, "Purchase Price:\n$120.00")
	assert.Contains(t, text, "Order number: 01-ABCDEFGHJK")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "var a")
}

func TestLinks(t *testing.T) {
	body := `<a href="https://www.ups.com/track?tracknum=1Z999AA10123456784">Track</a><a name="x">no</a>`
	assert.Equal(t, []string{"https://www.ups.com/track?tracknum=1Z999AA10123456784"}, Links(body))
}
