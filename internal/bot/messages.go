package bot

import cmdpkg "github.com/Orion-Gemini/ORION-WEBCAM/internal/commander"

// Commands is the menu registered for private chats.
var Commands = []cmdpkg.BotCommand{
	{Command: "start", Description: "Начать работу с ботом"},
	{Command: "help", Description: "Показать список команд"},
	{Command: "reset", Description: "Очистить историю диалога"},
}

// ChunkSize keeps each MarkdownV2 reply under Telegram's 4096 character cap.
const ChunkSize = 4000

const (
	msgStart = "👋 Привет! Я — Gemini Proxy Bot, сфокусированный на анализе текста и файлов.\n" +
		"Задавай вопросы или прикрепи фото/документ (PDF, TXT) с вопросом для анализа!"
	msgHelp = "📘 Команды:\n" +
		"/start — начать\n" +
		"/help — список команд\n" +
		"/reset — очистить историю диалога\n\n" +
		"💬 В группе используй @, чтобы бот ответил. Бот помнит контекст последних сообщений.\n" +
		"🖼️ Анализ: Отправьте фото или документ (PDF, TXT) с подписью, упомянув бота (@ваш_бот), для анализа."
	msgResetDone     = "✅ История диалога была очищена. Начните новый разговор."
	msgResetEmpty    = "⚠️ История диалога уже пуста."
	msgResetFailed   = "❌ Не удалось очистить историю: %v"
	msgMentionHint   = "💬 Задайте свой вопрос сразу после упоминания меня!"
	msgThinking      = "⌛ Думаю..."
	msgFormatFailed  = "❌ Извините, произошла ошибка форматирования. Вот текст без форматирования:\n\n"
	msgTextFailed    = "❌ Произошла ошибка при обработке запроса. Подробнее: %v"
	msgUnsupported   = "Извините, я не могу обработать файл типа: `%s`. Поддерживаются только изображения, PDF и TXT."
	msgFileLoading   = "1️⃣ Загружаю и анализирую ваш файл (%s)..."
	msgFileAnalyzing = "2️⃣ Анализирую файл с помощью Gemini..."
	msgFileFailed    = "❌ Произошла ошибка при обработке файла. Подробнее: %v"
)
