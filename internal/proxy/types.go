package proxy

// ChatRequest is the OpenAI-compatible chat completion request sent to
// OpenRouter.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Plugins  []Plugin  `json:"plugins,omitempty"`
}

// Message is one chat turn. Content is always sent in the multi-part form so
// images can ride along with text.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a text or image part of a message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image as a URL or a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Plugin enables an OpenRouter plugin such as "web" search.
type Plugin struct {
	ID string `json:"id"`
}

// ChatResponse is the subset of the completion response we read.
type ChatResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice is one completion alternative.
type Choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason,omitempty"`
}
