// ABOUTME: Bot message and rich template types carried inside message facts
// ABOUTME: Templates are a tagged variant keyed by Type with shared quick replies

package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is one logical bot turn.
type Message struct {
	MessageID string          `json:"messageId"`
	Text      string          `json:"text"`
	Template  Template        `json:"template"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IsDebug   bool            `json:"isDebug,omitempty"`
	Idx       int             `json:"idx,omitempty"`
}

// TemplateType selects how a message is rendered.
type TemplateType string

const (
	TemplateText     TemplateType = "TEXT"
	TemplateHint     TemplateType = "HINT"
	TemplateButton   TemplateType = "BUTTON"
	TemplateImage    TemplateType = "IMAGE"
	TemplateVideo    TemplateType = "VIDEO"
	TemplateAudio    TemplateType = "AUDIO"
	TemplateLocation TemplateType = "LOCATION"
	TemplateCarousel TemplateType = "CAROUSEL"
	TemplateChart    TemplateType = "CHART"
)

// Template is the rendering data of a message. Which optional fields are
// set depends on Type.
type Template struct {
	Type         TemplateType `json:"type,omitempty"`
	QuickReplies []QuickReply `json:"quickReplies,omitempty"`

	Text        string           `json:"text,omitempty"`
	Title       string           `json:"title,omitempty"`
	Buttons     []Button         `json:"buttons,omitempty"`
	OriginalURL string           `json:"originalContentUrl,omitempty"`
	PreviewURL  string           `json:"previewImageUrl,omitempty"`
	Duration    int              `json:"duration,omitempty"`
	Location    *Location        `json:"location,omitempty"`
	Columns     []CarouselColumn `json:"columns,omitempty"`
	Chart       *Chart           `json:"chart,omitempty"`
}

// Kind returns the template type, defaulting to TEXT.
func (t Template) Kind() TemplateType {
	if t.Type == "" {
		return TemplateText
	}
	return t.Type
}

// QuickReply is a suggested user response shown under a message.
type QuickReply struct {
	Label  string `json:"label"`
	Text   string `json:"text,omitempty"`
	Action Action `json:"action,omitempty"`
}

// Button is an actionable element of BUTTON and CAROUSEL templates.
type Button struct {
	Label  string `json:"label"`
	Action Action `json:"action"`
}

// Action describes what a button or quick reply does.
type Action struct {
	Type string `json:"type,omitempty"` // "message", "uri", "postback"
	Text string `json:"text,omitempty"`
	URI  string `json:"uri,omitempty"`
	Data string `json:"data,omitempty"`
}

// Location is the payload of a LOCATION template.
type Location struct {
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CarouselColumn is one card of a CAROUSEL template.
type CarouselColumn struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"thumbnailImageUrl,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Chart is the payload of a CHART template. Options are passed through to
// the chart renderer untouched.
type Chart struct {
	ChartType string          `json:"chartType"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// Validate checks that a known template type carries its required data.
// Unknown types are accepted so new server templates degrade to text.
func (t Template) Validate() error {
	switch t.Kind() {
	case TemplateButton:
		if len(t.Buttons) == 0 {
			return fmt.Errorf("%s template requires buttons", t.Type)
		}
	case TemplateImage, TemplateVideo, TemplateAudio:
		if t.OriginalURL == "" {
			return fmt.Errorf("%s template requires originalContentUrl", t.Type)
		}
	case TemplateLocation:
		if t.Location == nil {
			return fmt.Errorf("%s template requires location", t.Type)
		}
	case TemplateCarousel:
		if len(t.Columns) == 0 {
			return fmt.Errorf("%s template requires columns", t.Type)
		}
	case TemplateChart:
		if t.Chart == nil || t.Chart.ChartType == "" {
			return fmt.Errorf("%s template requires chart.chartType", t.Type)
		}
	}
	return nil
}

// AsText returns the template reduced to TEXT, keeping its text and quick
// replies. Used when a template fails Validate.
func (t Template) AsText() Template {
	return Template{
		Type:         TemplateText,
		Text:         t.Text,
		QuickReplies: t.QuickReplies,
	}
}
