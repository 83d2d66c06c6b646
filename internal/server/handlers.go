// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/jolks/mcp-pingr/internal/errors"
	"github.com/jolks/mcp-pingr/internal/model"
)

// taskView is a task as shown to clients, with its computed display flags
type taskView struct {
	*model.Task
	Overdue bool   `json:"overdue"`
	DueAt   string `json:"dueAt,omitempty"`
}

// tasksView is the list_tasks payload
type tasksView struct {
	Revision int64       `json:"revision"`
	Tasks    []*taskView `json:"tasks"`
}

// parsePreview is the parse_time payload
type parsePreview struct {
	Found     bool                 `json:"found"`
	Reference *model.TimeReference `json:"timeReference,omitempty"`
	Timestamp *int64               `json:"timestamp,omitempty"`
	DueAt     string               `json:"dueAt,omitempty"`
}

func newTaskView(t *model.Task, now time.Time) *taskView {
	v := &taskView{Task: t, Overdue: t.Overdue(now)}
	if due, ok := t.Due(); ok {
		v.DueAt = due.In(now.Location()).Format(time.RFC3339)
	}
	return v
}

// extractParams extracts parameters from a tool request
func extractParams(request *protocol.CallToolRequest, params interface{}) error {
	raw := request.RawArguments
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, params); err != nil {
		return errors.InvalidInput(fmt.Sprintf("invalid parameters: %v", err))
	}
	return nil
}

// extractTaskIDParam extracts the task ID parameter from a request
func extractTaskIDParam(request *protocol.CallToolRequest) (string, error) {
	var params TaskIDParams
	if err := extractParams(request, &params); err != nil {
		return "", err
	}

	if params.ID == "" {
		return "", errors.InvalidInput("task ID is required")
	}

	return params.ID, nil
}

func createTextResponse(text string) *protocol.CallToolResult {
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			&protocol.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// createJSONResponse marshals v into a single text content
func createJSONResponse(v interface{}) (*protocol.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to marshal response: %w", err))
	}
	return createTextResponse(string(data)), nil
}

// createSuccessResponse creates a success response
func createSuccessResponse(message string) (*protocol.CallToolResult, error) {
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// createErrorResponse creates an error response
func createErrorResponse(err error) (*protocol.CallToolResult, error) {
	// The error goes back as the second return value so the MCP layer reports it
	return nil, err
}

// createTaskResponse creates a response with a single task
func createTaskResponse(task *model.Task, now time.Time) (*protocol.CallToolResult, error) {
	return createJSONResponse(newTaskView(task, now))
}

// createTasksResponse creates a response with multiple tasks
func createTasksResponse(tasks []*model.Task, now time.Time, revision int64) (*protocol.CallToolResult, error) {
	views := make([]*taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t, now))
	}
	return createJSONResponse(tasksView{Revision: revision, Tasks: views})
}

// validateContent rejects empty reminder text
func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.InvalidInput("missing required field: content")
	}
	return nil
}
