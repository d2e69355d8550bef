// Package message flattens raw mail payloads into text and HTML bodies.
package message

import (
	"encoding/base64"
	"strings"

	"github.com/daviddao/mailorders/internal/types"
	"go.uber.org/zap"
)

// Normalize walks the part tree of raw and returns the concatenated
// text/plain and text/html bodies. Undecodable parts contribute nothing.
func Normalize(raw *types.RawMessage) (text, html string) {
	if raw == nil || raw.Payload == nil {
		return "", ""
	}

	var textBuf, htmlBuf strings.Builder

	// No parts: the top-level body is the whole message.
	if len(raw.Payload.Parts) == 0 {
		body := decodePart(raw.ID, raw.Payload)
		if isHTML(raw.Payload.MimeType) {
			htmlBuf.WriteString(body)
		} else {
			textBuf.WriteString(body)
		}
		return textBuf.String(), htmlBuf.String()
	}

	var walk func(parts []*types.MessagePart)
	walk = func(parts []*types.MessagePart) {
		for _, part := range parts {
			if part == nil {
				continue
			}
			switch {
			case part.Filename != "":
				// Attachments never carry order text.
			case isHTML(part.MimeType):
				htmlBuf.WriteString(decodePart(raw.ID, part))
			case isPlain(part.MimeType):
				textBuf.WriteString(decodePart(raw.ID, part))
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(raw.Payload.Parts)

	return textBuf.String(), htmlBuf.String()
}

func decodePart(id string, part *types.MessagePart) string {
	if part.Data == "" {
		return ""
	}
	decoded, err := DecodeBase64URL(part.Data)
	if err != nil {
		zap.L().Debug("message: undecodable part",
			zap.String("message_id", id),
			zap.String("mime_type", part.MimeType),
			zap.Error(err),
		)
		return ""
	}
	return decoded
}

func isHTML(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/html")
}

func isPlain(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/plain")
}

// DecodeBase64URL decodes Gmail's base64url content. Standard alphabet and
// missing padding are tolerated.
func DecodeBase64URL(data string) (string, error) {
	data = strings.TrimSpace(data)
	data = strings.ReplaceAll(data, "-", "+")
	data = strings.ReplaceAll(data, "_", "/")
	data = strings.TrimRight(data, "=")
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// EncodeBase64URL is the inverse of DecodeBase64URL, used to build payloads
// the same way the Gmail API delivers them.
func EncodeBase64URL(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
