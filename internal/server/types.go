package server

// ChatEvent is one server-sent event of POST /v1/chat.
type ChatEvent struct {
	// Type is "progress", "done" or "error".
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

type ErrorResponse struct {
	Success  bool   `json:"success"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	MIMEType string `json:"mime_type,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type NotesResponse struct {
	Notes interface{} `json:"notes"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}
