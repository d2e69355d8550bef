// Package gmail is the message source backed by the Gmail API.
package gmail

import (
	"context"

	"github.com/rotisserie/eris"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailorders/internal/resilience"
	"github.com/daviddao/mailorders/internal/types"
)

// pageSize is the largest page the list endpoint returns.
const pageSize = 500

// MessageSummary is the metadata shown when listing search results.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
}

// Client reads one account's mailbox.
type Client struct {
	svc  *gm.Service
	user string
}

// New wraps an authenticated Gmail service.
func New(svc *gm.Service) *Client {
	return &Client{svc: svc, user: "me"}
}

// Search returns up to limit message IDs matching a Gmail query, newest
// first. A limit of zero or less returns every match. Retryable API errors
// are returned as resilience.TransientError.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	var ids []string
	call := c.svc.Users.Messages.List(c.user).Q(query).Context(ctx)
	pageToken := ""
	for {
		size := int64(pageSize)
		if limit > 0 && int64(limit-len(ids)) < size {
			size = int64(limit - len(ids))
		}
		call.MaxResults(size)
		if pageToken != "" {
			call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, eris.Wrapf(resilience.Classify(err), "list messages %q", query)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || (limit > 0 && len(ids) >= limit) {
			break
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Get fetches a complete message by ID.
func (c *Client) Get(ctx context.Context, id string) (*types.RawMessage, error) {
	msg, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(resilience.Classify(err), "get message %s", id)
	}
	return convertMessage(msg), nil
}

// Summaries fetches header metadata for each ID. Messages that fail to load
// are skipped.
func (c *Client) Summaries(ctx context.Context, ids []string) []MessageSummary {
	out := make([]MessageSummary, 0, len(ids))
	for _, id := range ids {
		detail, err := c.svc.Users.Messages.Get(c.user, id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			continue
		}
		h := headerMap(detail.Payload)
		out = append(out, MessageSummary{
			ID:       detail.Id,
			ThreadID: detail.ThreadId,
			From:     h["From"],
			Subject:  defaultStr(h["Subject"], "(no subject)"),
			Date:     h["Date"],
			Snippet:  detail.Snippet,
		})
	}
	return out
}

func convertMessage(msg *gm.Message) *types.RawMessage {
	h := headerMap(msg.Payload)
	return &types.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		From:     h["From"],
		Subject:  h["Subject"],
		Date:     h["Date"],
		Payload:  convertPart(msg.Payload),
	}
}

func convertPart(p *gm.MessagePart) *types.MessagePart {
	if p == nil {
		return nil
	}
	out := &types.MessagePart{MimeType: p.MimeType, Filename: p.Filename}
	if p.Body != nil {
		out.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

// headerMap converts the payload headers into a simple key-value map.
func headerMap(p *gm.MessagePart) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	m := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		m[h.Name] = h.Value
	}
	return m
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
