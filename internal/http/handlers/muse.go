package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"kairopi/internal/providers/genai"
)

type brainstormBody struct {
	Recipient string `json:"recipient"`
	Memory    string `json:"memory"`
	Vibe      string `json:"vibe"`
}

type polishBody struct {
	Message    string `json:"message"`
	PolishType string `json:"polishType"`
}

type stickerBody struct {
	Prompt            string `json:"prompt"`
	Style             string `json:"style"`
	BackgroundContext string `json:"backgroundContext"`
}

type backgroundsBody struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
}

type doodleBody struct {
	Base64ImageData string `json:"base64ImageData"`
	Prompt          string `json:"prompt"`
}

var polishInstructions = map[string]string{
	"grammar": "Fix spelling and grammar mistakes. Be subtle.",
	"warmer":  "Make the tone slightly warmer and more affectionate. Add empathy.",
	"funnier": "Inject a bit of lighthearted wit and humor based on the existing text.",
}

var stringArraySchema = map[string]any{
	"type":  "ARRAY",
	"items": map[string]any{"type": "STRING"},
}

// MuseBrainstorm drafts three card messages.
func (a *App) MuseBrainstorm(w http.ResponseWriter, r *http.Request) {
	const failure = "Failed to get brainstorm suggestions."
	var body brainstormBody
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt := fmt.Sprintf(`You are "Muse," a creative co-pilot for a card-making app. Your voice is human, authentic, and slightly imperfect. NEVER sound like a corporate marketing email. A user needs help writing a card.

Here's the recipe for the message:
- **Recipient:** %s
- **Core Memory/Story:** %s
- **Desired Vibe:** %s

Generate 3 distinct message options. Maintain the "un-robotic" philosophy. Write with heart.`, body.Recipient, body.Memory, body.Vibe)

	text, err := a.Muse.GenerateText(r.Context(), genai.TextRequest{Prompt: prompt, ResponseSchema: stringArraySchema})
	if err != nil {
		a.museFailed(w, "muse-brainstorm", err, failure)
		return
	}
	var options []string
	if err := json.Unmarshal([]byte(text), &options); err != nil {
		a.museFailed(w, "muse-brainstorm", fmt.Errorf("decode suggestions: %w", err), failure)
		return
	}
	a.json(w, http.StatusOK, options)
}

// PolishMessage lightly edits a message while keeping the author's voice.
func (a *App) PolishMessage(w http.ResponseWriter, r *http.Request) {
	var body polishBody
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	instruction := polishInstructions[body.PolishType]
	text, err := a.Muse.GenerateText(r.Context(), genai.TextRequest{
		Prompt: body.Message,
		SystemInstruction: fmt.Sprintf(`You are a thoughtful editor. Preserve the user's original voice. Only fix genuine errors or slightly enhance based on the user's request: %q`,
			instruction),
	})
	if err != nil {
		a.museFailed(w, "polish-message", err, "Failed to polish message.")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"polishedMessage": text})
}

// GenerateSticker returns a transparent sticker as a data URL.
func (a *App) GenerateSticker(w http.ResponseWriter, r *http.Request) {
	var body stickerBody
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt := fmt.Sprintf(`Expert sticker designer. Generate a single, isolated sticker of a %q in a %q style.
CRITICAL: Output **MUST** be a PNG with a fully transparent background. No background color, halos, or shadows.
CONTEXT: The sticker will be placed on this background, so inform lighting/colors, but DO NOT include the background: %s`,
		body.Prompt, body.Style, body.BackgroundContext)

	img, err := a.Muse.GenerateImage(r.Context(), genai.ImageRequest{Model: a.Config.GeminiImageModel, Prompt: prompt})
	if err != nil {
		a.museFailed(w, "generate-sticker", err, "Failed to generate sticker.")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"imageUrl": img.DataURL()})
}

// GenerateBackgrounds returns four background candidates as JPEG data URLs.
func (a *App) GenerateBackgrounds(w http.ResponseWriter, r *http.Request) {
	var body backgroundsBody
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt := fmt.Sprintf("A beautiful, subtle, high-quality background for a greeting card. Style should be artistic and minimalist, suitable for text overlay. Mood: %s.", body.Prompt)

	images, err := a.Muse.GenerateImages(r.Context(), genai.ImagesRequest{
		Model:          a.Config.ImagenModel,
		Prompt:         prompt,
		AspectRatio:    body.AspectRatio,
		NumberOfImages: 4,
		OutputMimeType: "image/jpeg",
	})
	if err != nil {
		a.museFailed(w, "generate-backgrounds", err, "Failed to generate backgrounds.")
		return
	}
	backgrounds := make([]string, 0, len(images))
	for _, img := range images {
		backgrounds = append(backgrounds, img.DataURL())
	}
	a.json(w, http.StatusOK, map[string][]string{"backgrounds": backgrounds})
}

// EnhanceDoodle redraws a doodle in the requested style.
func (a *App) EnhanceDoodle(w http.ResponseWriter, r *http.Request) {
	const failure = "Failed to enhance doodle."
	var body doodleBody
	if err := decodeJSON(w, r, &body); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	input, err := decodeDataURL(body.Base64ImageData)
	if err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	prompt := fmt.Sprintf(`Expert digital artist. Redraw this doodle in a %q style. Preserve the original's core shape. CRITICAL: Output **MUST** be a PNG with a fully transparent background.`, body.Prompt)

	img, err := a.Muse.GenerateImage(r.Context(), genai.ImageRequest{Model: a.Config.GeminiImageModel, Prompt: prompt, Input: input})
	if err != nil {
		a.museFailed(w, "enhance-doodle", err, failure)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"imageUrl": img.DataURL()})
}

func (a *App) museFailed(w http.ResponseWriter, endpoint string, err error, message string) {
	a.Logger.Error().Err(err).Str("endpoint", endpoint).Msg("muse request failed")
	a.error(w, http.StatusInternalServerError, message)
}

// decodeDataURL accepts "data:<mime>;base64,<data>" and treats the payload
// as PNG, which is what the doodle canvas exports.
func decodeDataURL(raw string) (*genai.InlineImage, error) {
	_, payload, ok := strings.Cut(raw, ",")
	if !ok || payload == "" {
		return nil, fmt.Errorf("base64ImageData must be a data URL")
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("base64ImageData is not valid base64")
	}
	return &genai.InlineImage{MimeType: "image/png", Data: data}, nil
}
