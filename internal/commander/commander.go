package commander

import "context"

// Commander is the chat transport abstraction used by the bot.
type Commander interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	GetMe(ctx context.Context) (User, error)
	SendMessage(ctx context.Context, msg OutgoingMessage) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	GetFile(ctx context.Context, fileID string) (File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
	SetMyCommands(ctx context.Context, commands []BotCommand) error
}

// Chat types that require an explicit mention before the bot answers.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
)

const (
	ParseModeMarkdownV2 = "MarkdownV2"
	ActionTyping        = "typing"
)

// Update represents an incoming update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents a source message.
type Message struct {
	MessageID int64       `json:"message_id"`
	Chat      Chat        `json:"chat"`
	From      *User       `json:"from,omitempty"`
	Text      *string     `json:"text,omitempty"`
	Caption   *string     `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *Document   `json:"document,omitempty"`
	Date      int64       `json:"date"`
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// IsGroup reports whether the chat is a group or supergroup.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup || c.Type == ChatSupergroup
}

type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot,omitempty"`
	Username string `json:"username,omitempty"`
}

// PhotoSize is one resolution of a photo. Telegram lists them smallest first.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// File is the getFile result. FilePath is relative to the file download base.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// OutgoingMessage is a sendMessage request. Zero ReplyTo sends a plain message.
type OutgoingMessage struct {
	ChatID    int64
	Text      string
	ParseMode string
	ReplyTo   int64
}
