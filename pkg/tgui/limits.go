package tgui

// Telegram Bot API size limits, in UTF-16 code units; rune counts are used as
// a close approximation.
const (
	MaxMessageLen = 4096
	MaxCaptionLen = 1024
)
