package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.aimuz.me/holdtalk/langdetect"
	"go.aimuz.me/holdtalk/llm"
)

const (
	requestWithScreen = "Here is my question/request: %s\n" +
		"Please help me with this, taking into account the screenshot of my current work context."
	requestPlain = "Here is my question/request: %s"
)

// LanguageDetector guesses the ISO 639-1 code of a text.
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// PromptBuilder is the default Contextualizer. It attaches the screenshot
// as an image and, when a detector is set, asks for the reply in the
// speaker's language.
type PromptBuilder struct {
	SystemPrompt string
	Detector     LanguageDetector // optional
}

// Contextualize implements Contextualizer.
func (b *PromptBuilder) Contextualize(_ context.Context, text, screenshot string) (Request, error) {
	if text == "" {
		return Request{}, nil
	}

	user := llm.Message{Role: "user", Content: fmt.Sprintf(requestPlain, text)}
	req := Request{}
	if screenshot != "" {
		img, err := llm.LoadImage(screenshot)
		if err != nil {
			slog.Warn("load screenshot, continuing without", "path", screenshot, "error", err)
		} else {
			user.Content = fmt.Sprintf(requestWithScreen, text)
			user.Images = []llm.Image{*img}
			req.Screenshot = screenshot
		}
	}

	system := b.SystemPrompt
	if b.Detector != nil {
		if code, ok := b.Detector.Detect(text); ok {
			req.Language = code
			system += fmt.Sprintf("\nReply in %s.", langdetect.Name(code))
		}
	}

	if system != "" {
		req.Messages = append(req.Messages, llm.Message{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, user)
	return req, nil
}
