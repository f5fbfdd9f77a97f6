package conversation

// SystemInstruction is injected as the first turn of every new conversation.
const SystemInstruction = "Отвечай всегда на русском языке, если вопрос не содержит другого указания. " +
	"Если есть прикрепленный файл, внимательно его проанализируй. " +
	"**НИКОГДА не используй блоки кода Markdown (тройные обратные кавычки ` ``` `) в ответе**, " +
	"даже если ты отвечаешь программным кодом. Просто выводи текст."

// SystemTurn returns the system-instruction turn.
func SystemTurn() Turn {
	return TextTurn(RoleUser, SystemInstruction)
}

// Assemble builds the contents sent to the model: history, the system
// instruction when history is empty, then the current user turn. Inline
// data precedes the prompt text when both fileData and mimeType are set.
// The caller's history slice is never modified.
func Assemble(prompt, fileData, mimeType string, history []Turn) []Turn {
	contents := make([]Turn, 0, len(history)+2)
	if len(history) == 0 {
		contents = append(contents, SystemTurn())
	} else {
		contents = append(contents, history...)
	}

	parts := make([]Part, 0, 2)
	if fileData != "" && mimeType != "" {
		parts = append(parts, Part{InlineData: &InlineData{MimeType: mimeType, Data: fileData}})
	}
	parts = append(parts, Part{Text: prompt})

	return append(contents, Turn{Role: RoleUser, Parts: parts})
}
