package conversation

// Turn roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a text fragment or inline file data. Exactly one field is set.
type Part struct {
	InlineData *InlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

// InlineData carries file bytes embedded in the request as base64.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// TextTurn builds a single-part text turn.
func TextTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Clone returns a copy of turns that shares no slices with the input.
func Clone(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = Turn{Role: t.Role, Parts: append([]Part(nil), t.Parts...)}
	}
	return out
}
