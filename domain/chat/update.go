package chat

import "strings"

// Update is a single incoming text message
type Update struct {
	ChatID    int64
	MessageID int
	From      string
	Text      string
}

// Command returns the bot command without its leading slash and any
// "@botname" suffix, or "" if the message is free text. A bare "/" or
// "/@botname" has no command name and also yields "".
func (u Update) Command() string {
	text := strings.TrimSpace(u.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	cmd := strings.Fields(text)[0][1:]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// IsCommand returns true if the message is a bot command
func (u Update) IsCommand() bool {
	return u.Command() != ""
}
