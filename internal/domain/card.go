package domain

// Ink describes how the card message is written.
type Ink struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Canvas is the card format chosen in the editor.
type Canvas struct {
	Name        string `json:"name,omitempty"`
	AspectRatio string `json:"aspectRatio"`
}

const (
	ElementTypeText  = "text"
	ElementTypeImage = "image"
)

// CardElement is a decorative element placed on the card. Image elements keep
// only the prompt they were generated from; inline image data is dropped.
type CardElement struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Foil    string `json:"foil,omitempty"`
}

// CardData is the card description carried inside a render request.
type CardData struct {
	Ink              Ink           `json:"ink"`
	Canvas           Canvas        `json:"canvas"`
	Background       string        `json:"background"`
	BackgroundPrompt string        `json:"backgroundPrompt,omitempty"`
	TextColor        string        `json:"textColor,omitempty"`
	FontSize         int           `json:"fontSize,omitempty"`
	Message          string        `json:"message"`
	Elements         []CardElement `json:"elements"`
	PaperTexture     string        `json:"paperTexture"`
	MessageFoil      string        `json:"messageFoil"`
	EnableTilt       bool          `json:"enableTilt,omitempty"`
}

// Compact drops element payloads the renderer never reads so queue messages
// stay small. Text elements keep their content.
func (c CardData) Compact() CardData {
	out := c
	if len(c.Elements) == 0 {
		out.Elements = []CardElement{}
		return out
	}
	out.Elements = make([]CardElement, len(c.Elements))
	for i, el := range c.Elements {
		if el.Type != ElementTypeText {
			el.Content = ""
		}
		out.Elements[i] = el
	}
	return out
}
