// Package process holds the pre-processors that serialise a prompt into the
// exact string that is embedded and stored, and the post-processor that picks
// the served answer from a ranked candidate list. Query and insert sides must
// use the same serialisation for a given configuration so identical
// conversations hit exactly.
package process

import (
	"fmt"
	"strings"

	"github.com/codefuse-ai/modelcache/domain/cache"
)

// Multi-splicing separators. A conversation serialises to
// "<role>###<content>|||<role>###<content>…".
const (
	roleSeparator    = "###"
	messageSeparator = "|||"
)

// PreProcessor serialises a prompt into its embed input.
type PreProcessor func(prompt cache.Prompt) (string, error)

// Mode names a pre-processor pairing, fixed by the embedding-model profile.
type Mode string

// Supported pre-processor modes.
const (
	// ModeLastContent embeds only the content of the last message.
	ModeLastContent Mode = "last_content"
	// ModeLastContentWithRole embeds "<role>: <content>" of the last message.
	ModeLastContentWithRole Mode = "last_content_with_role"
	// ModeMultiSplicing embeds the whole conversation spliced together.
	ModeMultiSplicing Mode = "multi_splicing"
)

// ParseMode parses a pre-processor mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLastContent:
		return ModeLastContent, nil
	case ModeLastContentWithRole:
		return ModeLastContentWithRole, nil
	case ModeMultiSplicing:
		return ModeMultiSplicing, nil
	default:
		return "", fmt.Errorf("%w: unknown pre-processor mode %q", cache.ErrConfig, s)
	}
}

// For returns the pre-processor of a mode. The same function serves the
// query and insert paths so the two stay in lock-step.
func For(mode Mode) PreProcessor {
	switch mode {
	case ModeLastContent:
		return LastContent
	case ModeMultiSplicing:
		return MultiSplicing
	default:
		return LastContentWithRole
	}
}

// LastContent serialises a prompt to the content of its last message.
func LastContent(prompt cache.Prompt) (string, error) {
	if prompt.IsText() {
		return prompt.Text(), nil
	}
	messages := prompt.Messages()
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: empty conversation", cache.ErrValidation)
	}
	return messages[len(messages)-1].Content(), nil
}

// LastContentWithRole serialises a prompt to "<role>: <content>" of its last
// message.
func LastContentWithRole(prompt cache.Prompt) (string, error) {
	if prompt.IsText() {
		return prompt.Text(), nil
	}
	messages := prompt.Messages()
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: empty conversation", cache.ErrValidation)
	}
	last := messages[len(messages)-1]
	return last.Role() + ": " + last.Content(), nil
}

// MultiSplicing serialises every message of the conversation.
func MultiSplicing(prompt cache.Prompt) (string, error) {
	if prompt.IsText() {
		return prompt.Text(), nil
	}
	messages := prompt.Messages()
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: empty conversation", cache.ErrValidation)
	}

	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString(messageSeparator)
		}
		b.WriteString(m.Role())
		b.WriteString(roleSeparator)
		b.WriteString(m.Content())
	}
	return b.String(), nil
}

// MultiAnalysis is the inverse of MultiSplicing: it parses a spliced string
// back into conversation turns. Content containing the role separator is
// rejoined; a segment without separators becomes a role-only message.
func MultiAnalysis(spliced string) []cache.Message {
	segments := strings.Split(spliced, messageSeparator)
	messages := make([]cache.Message, 0, len(segments))
	for _, segment := range segments {
		parts := strings.SplitN(segment, roleSeparator, 2)
		if len(parts) == 2 {
			messages = append(messages, cache.NewMessage(parts[0], parts[1]))
			continue
		}
		messages = append(messages, cache.NewMessage(segment, ""))
	}
	return messages
}
