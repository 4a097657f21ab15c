package transport

import (
	"encoding/json"

	"vcanalyst/internal/research"
)

// Frame types exchanged on the streaming channel.
const (
	FrameProgress = "progress"
	FrameResult   = "result"
	FrameError    = "error"
	FrameContent  = "content"
	FrameToolCall = "tool_call"
	FrameFinal    = "final"
)

// ToolAddDashboardCard is the only tool call the client acts on.
const ToolAddDashboardCard = "add_dashboard_card"

// Frame is one server-to-client message. Which fields are set depends on
// Type.
type Frame struct {
	Type       string          `json:"type"`
	Message    string          `json:"message,omitempty"`
	Percentage float64         `json:"percentage,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Content    string          `json:"content,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Arguments  *ToolArguments  `json:"arguments,omitempty"`
}

type ToolArguments struct {
	Card json.RawMessage `json:"card"`
}

type ToolCall struct {
	Tool      string        `json:"tool"`
	Arguments ToolArguments `json:"arguments"`
}

// ResearchHello is the first message on /ws/research.
type ResearchHello struct {
	Credential  string `json:"credential"`
	CompanyName string `json:"companyName"`
}

// ResearchRequest carries the name under both spellings; backends read
// either companyName or company_name.
type ResearchRequest struct {
	CompanyName      string `json:"companyName"`
	CompanyNameSnake string `json:"company_name"`
}

type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatHello is the first message on /ws/chat.
type ChatHello struct {
	Credential   string          `json:"credential"`
	Message      string          `json:"message"`
	History      []HistoryEntry  `json:"history"`
	ResearchData research.Record `json:"research_data"`
}

type ChatRequest struct {
	Message      string          `json:"message"`
	History      []HistoryEntry  `json:"history"`
	ResearchData research.Record `json:"research_data"`
}

type ChatResponse struct {
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type BasicsRequest struct {
	CompanyName string `json:"company_name"`
}

type Health struct {
	Status string `json:"status"`
}
