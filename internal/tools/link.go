package tools

import (
	"context"
	"fmt"
	"regexp"
)

// DefaultLinkLabel is used when link.out gets no label.
const DefaultLinkLabel = "Open full details"

var absoluteHTTP = regexp.MustCompile(`^https?://`)

// Link is the result of link.out.
type Link struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// LinkOut suggests an outbound link. Arguments: {"url", "label"}.
type LinkOut struct{}

func (LinkOut) Name() string { return "link.out" }

func (LinkOut) Run(_ context.Context, args map[string]any) (any, error) {
	url := str(args, "url")
	if !absoluteHTTP.MatchString(url) {
		return nil, fmt.Errorf("%w: link.out requires an absolute http(s) URL", ErrInvalidArgs)
	}
	label := str(args, "label")
	if label == "" {
		label = DefaultLinkLabel
	}
	return Link{URL: url, Label: label}, nil
}
