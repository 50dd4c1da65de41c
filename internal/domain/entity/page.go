package entity

import "encoding/base64"

type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// UIElement is one enumerated interactive element. Index is the number the
// LLM sees in the serialized snapshot.
type UIElement struct {
	Index   int            `json:"index"`
	Tag     string         `json:"tag"`
	Role    string         `json:"role,omitempty"`
	Type    string         `json:"type,omitempty"`
	Name    string         `json:"name,omitempty"`
	Text    string         `json:"text,omitempty"`
	Value   string         `json:"value,omitempty"`
	Options []SelectOption `json:"options,omitempty"`
}

type PageSnapshot struct {
	URL      string
	Title    string
	Axtree   string
	Elements []UIElement
}

type SnapshotOptions struct {
	MaxElements   int
	OnlyViewport  bool
	IncludeHidden bool
}

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

func (s *Screenshot) Base64() string {
	if s == nil || len(s.Data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.Data)
}

type NetworkResponse struct {
	URL      string `json:"url"`
	Status   int    `json:"status"`
	MIMEType string `json:"mime_type,omitempty"`
	Body     string `json:"body,omitempty"`
}
