package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// Selection is the externally visible "currently selected document": a
// document id and an optional owner hint.
type Selection struct {
	DocumentID string `json:"documentId,omitempty"`
	OwnerHint  string `json:"ownerHint,omitempty"`
}

func (s Selection) IsZero() bool {
	return s.DocumentID == ""
}

// Locator renders the selection as a shareable query string such as
// "?character=chr_1&owner=user-1". An empty selection renders as "".
func (s Selection) Locator() string {
	if s.IsZero() {
		return ""
	}
	q := url.Values{}
	q.Set("character", s.DocumentID)
	if s.OwnerHint != "" {
		q.Set("owner", s.OwnerHint)
	}
	return "?" + q.Encode()
}

// ParseLocator reads a selection back from a full link, a query string or
// a bare "character=..&owner=.." fragment. The owner is optional.
func ParseLocator(raw string) (Selection, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return Selection{}, fmt.Errorf("parse locator: %w", err)
	}
	return Selection{
		DocumentID: strings.TrimSpace(q.Get("character")),
		OwnerHint:  strings.TrimSpace(q.Get("owner")),
	}, nil
}
