package domain

// Message is a single entry in a conversation timeline.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Role string

const (
	SystemRole    Role = "system"
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)

func SystemMessage(content string) Message {
	return Message{Role: SystemRole, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: UserRole, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: AssistantRole, Content: content}
}
