// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
)

// ToolDefinition represents a tool that can be registered with the MCP server
type ToolDefinition struct {
	// Name is the name of the tool
	Name string

	// Description is a brief description of what the tool does
	Description string

	// Handler is the function that will be called when the tool is invoked
	Handler server.ToolHandlerFunc

	// Parameters is the parameter schema for the tool (can be a struct)
	Parameters interface{}
}

// emptyParams is the schema of tools without arguments
type emptyParams struct{}

// toolDefinitions lists every tool the server exposes
func (s *MCPServer) toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "create_task",
			Description: "Creates a reminder; a French time expression in the content schedules a notification",
			Handler:     s.handleCreateTask,
			Parameters:  CreateTaskParams{},
		},
		{
			Name:        "list_tasks",
			Description: "Lists reminders, newest first",
			Handler:     s.handleListTasks,
			Parameters:  ListTasksParams{},
		},
		{
			Name:        "get_task",
			Description: "Gets a reminder by ID",
			Handler:     s.handleGetTask,
			Parameters:  TaskIDParams{},
		},
		{
			Name:        "edit_task",
			Description: "Replaces a reminder's content and reschedules it from the new text",
			Handler:     s.handleEditTask,
			Parameters:  EditTaskParams{},
		},
		{
			Name:        "complete_task",
			Description: "Marks a reminder as done",
			Handler:     s.handleCompleteTask,
			Parameters:  TaskIDParams{},
		},
		{
			Name:        "delete_task",
			Description: "Deletes a reminder",
			Handler:     s.handleDeleteTask,
			Parameters:  TaskIDParams{},
		},
		{
			Name:        "reset_tasks",
			Description: "Deletes every reminder",
			Handler:     s.handleResetTasks,
			Parameters:  emptyParams{},
		},
		{
			Name:        "export_tasks",
			Description: "Returns all reminders in their storage format",
			Handler:     s.handleExportTasks,
			Parameters:  emptyParams{},
		},
		{
			Name:        "parse_time",
			Description: "Shows which time expression a text contains and when it would fire",
			Handler:     s.handleParseTime,
			Parameters:  ParseTimeParams{},
		},
	}
}

// registerToolsDeclarative sets up all the MCP tools
func (s *MCPServer) registerToolsDeclarative() {
	for _, tool := range s.toolDefinitions() {
		registerToolWithError(s.server, tool)
	}
}

// registerToolWithError registers a tool with error handling
func registerToolWithError(srv *server.Server, def ToolDefinition) {
	tool, err := protocol.NewTool(def.Name, def.Description, def.Parameters)
	if err != nil {
		// Schemas are static, a failure here is a programming error
		panic(err)
	}

	srv.RegisterTool(tool, def.Handler)
}
