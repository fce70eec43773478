package telegram

import "gopkg.in/telebot.v3"

// Client sends outbound messages to participants' private chats. Match result announcements
// depend on it rather than on the bot itself.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
