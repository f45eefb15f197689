package video

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"kairopi/internal/domain"
)

const closingDirection = "The video should be about 8 seconds long, cinematic, and beautiful."

// MapAspectRatio picks the video aspect ratio for a card canvas. Square cards
// render square and the portrait "classic" card renders portrait; every other
// canvas renders landscape.
func MapAspectRatio(canvas string) string {
	switch strings.TrimSpace(canvas) {
	case "1:1":
		return "1:1"
	case "3:4":
		return "9:16"
	default:
		return "16:9"
	}
}

// ComposePrompt describes the finished card after the scene prompt. The output
// depends only on its inputs and keeps the card's element order.
func ComposePrompt(card domain.CardData, scene string) string {
	var b strings.Builder

	if scene = strings.TrimRight(strings.TrimSpace(clean(scene)), "."); scene != "" {
		b.WriteString(scene + ". ")
	}
	b.WriteString("The video ends by revealing a greeting card. The card looks like this:")

	switch bgPrompt, bg := clean(card.BackgroundPrompt), clean(card.Background); {
	case bgPrompt != "":
		b.WriteString(" The background is artistic and minimalist, in a style of " + strconv.Quote(bgPrompt) + ".")
	case isImageReference(bg):
		b.WriteString(" The background is an artistic generated image.")
	case bg != "":
		b.WriteString(" The background is a solid color: " + bg + ".")
	}

	if texture := clean(card.PaperTexture); texture != "" && texture != "matte" {
		b.WriteString(" The card has a physical texture of " + texture + ".")
	}

	b.WriteString(" The main message says " + strconv.Quote(clean(card.Message)) + ", " + inkDescription(card.Ink) + ".")

	if foil := clean(card.MessageFoil); foil != "" && foil != "none" {
		b.WriteString(" The text has a shimmering " + foil + " foil effect.")
	}

	if decorations := describeElements(card.Elements); len(decorations) > 0 {
		b.WriteString(" It's decorated with stickers: " + strings.Join(decorations, ", ") + ".")
	}

	b.WriteString(" ")
	b.WriteString(closingDirection)
	return b.String()
}

func inkDescription(ink domain.Ink) string {
	if strings.EqualFold(clean(ink.Type), "handwriting") {
		return "written in the sender's own handwriting"
	}
	font := strings.TrimPrefix(clean(ink.Value), "font-")
	if font == "" {
		font = "serif"
	}
	return "written in an elegant " + font + " font"
}

func describeElements(elements []domain.CardElement) []string {
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		switch {
		case el.Type == domain.ElementTypeText && clean(el.Content) != "":
			out = append(out, "a small note that reads "+strconv.Quote(clean(el.Content)))
		case clean(el.Prompt) != "":
			desc := "a sticker of a " + strconv.Quote(clean(el.Prompt))
			if foil := clean(el.Foil); foil != "" && foil != "none" {
				desc += " with a " + foil + " foil finish"
			}
			out = append(out, desc)
		}
	}
	return out
}

func isImageReference(bg string) bool {
	return strings.HasPrefix(bg, "data:") || strings.HasPrefix(bg, "http://") || strings.HasPrefix(bg, "https://")
}

// clean NFC-normalizes user text so canonically equal input composes to the
// same bytes.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
