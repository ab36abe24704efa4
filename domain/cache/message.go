package cache

// Message is one turn of a structured conversation prompt.
type Message struct {
	role    string
	content string
}

// NewMessage creates a Message.
func NewMessage(role, content string) Message {
	return Message{role: role, content: content}
}

// Role returns the speaker role.
func (m Message) Role() string { return m.role }

// Content returns the message text.
func (m Message) Content() string { return m.content }

// Prompt is either a plain string or an ordered conversation. Pre-processors
// serialise it to the exact string that is embedded and stored.
type Prompt struct {
	text     string
	messages []Message
	isText   bool
}

// NewTextPrompt creates a plain-string Prompt.
func NewTextPrompt(text string) Prompt {
	return Prompt{text: text, isText: true}
}

// NewConversationPrompt creates a structured conversation Prompt.
func NewConversationPrompt(messages []Message) Prompt {
	cp := make([]Message, len(messages))
	copy(cp, messages)
	return Prompt{messages: cp}
}

// IsText reports whether the prompt is a plain string.
func (p Prompt) IsText() bool { return p.isText }

// Text returns the plain-string form.
func (p Prompt) Text() string { return p.text }

// Messages returns the conversation turns.
func (p Prompt) Messages() []Message {
	cp := make([]Message, len(p.messages))
	copy(cp, p.messages)
	return cp
}

// Empty reports whether the prompt carries no content at all.
func (p Prompt) Empty() bool {
	if p.isText {
		return p.text == ""
	}
	return len(p.messages) == 0
}
