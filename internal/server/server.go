// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/config"
	"github.com/jolks/mcp-pingr/internal/errors"
	"github.com/jolks/mcp-pingr/internal/logging"
	"github.com/jolks/mcp-pingr/internal/model"
	"github.com/jolks/mcp-pingr/internal/timeref"
)

// TaskStore is the task mutation API exposed as tools
type TaskStore interface {
	CreateFromText(ctx context.Context, content string) (*model.Task, error)
	Get(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context) []*model.Task
	EditFromText(ctx context.Context, id, content string) (*model.Task, error)
	Complete(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Export(ctx context.Context) ([]byte, error)
}

// TaskIDParams holds the ID parameter used by multiple handlers
type TaskIDParams struct {
	ID string `json:"id" description:"the ID of the task to get/complete/delete"`
}

// ListTasksParams defines parameters for listing tasks
type ListTasksParams struct {
	IncludeCompleted bool `json:"include_completed,omitempty" description:"also return completed tasks"`
}

// CreateTaskParams defines parameters for creating a task
type CreateTaskParams struct {
	Content string `json:"content" description:"reminder text, may contain a French time expression such as 'dans 10 minutes', 'demain à 14h' or 'vendredi'"`
}

// EditTaskParams defines parameters for editing a task
type EditTaskParams struct {
	ID      string `json:"id" description:"the ID of the task to edit"`
	Content string `json:"content" description:"full new reminder text. Keep the time expression to keep the schedule and append +N/-N to shift it, e.g. 'dans 10 minutes appeler Marc +5'. Text without a time expression clears the schedule"`
}

// ParseTimeParams defines parameters for previewing a time expression
type ParseTimeParams struct {
	Text string `json:"text" description:"text to scan for a time expression"`
}

// MCPServer represents the MCP reminder server
type MCPServer struct {
	store          TaskStore
	parser         *timeref.Parser
	resolver       *timeref.Resolver
	clock          clock.Clock
	server         *server.Server
	address        string
	port           int
	stopCh         chan struct{}
	wg             sync.WaitGroup
	config         *config.Config
	logger         *logging.Logger
	revision       atomic.Int64
	shutdownMutex  sync.Mutex
	isShuttingDown bool
}

// ConfigureLogging builds the process logger from cfg and installs it as the
// default. With the stdio transport, logs go to a file so they do not mix
// with JSON-RPC traffic on stdout.
func ConfigureLogging(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)

	logPath := cfg.Logging.FilePath
	if strings.TrimSpace(logPath) == "" && cfg.Server.TransportMode == "stdio" {
		execPath, err := os.Executable()
		if err != nil {
			execPath = cfg.Server.Name
		}
		logPath = filepath.Join(filepath.Dir(execPath), fmt.Sprintf("%s.log", cfg.Server.Name))
	}

	var logger *logging.Logger
	if logPath != "" {
		var err error
		logger, err = logging.FileLogger(logPath, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
	} else {
		logger = logging.New(logging.Options{Level: level})
	}

	logging.SetDefaultLogger(logger)
	if logPath != "" {
		logger.Infof("Logging to %s", logPath)
	}
	return logger, nil
}

// NewMCPServer creates a new MCP reminder server
func NewMCPServer(cfg *config.Config, store TaskStore, clk clock.Clock) (*MCPServer, error) {
	// Create default config if not provided
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clk == nil {
		clk = clock.System{}
	}
	logger := logging.GetDefaultLogger()

	mcpServer := &MCPServer{
		store:    store,
		parser:   timeref.NewParser(),
		resolver: timeref.NewResolver(cfg.Scheduler.DefaultHour),
		clock:    clk,
		address:  cfg.Server.Address,
		port:     cfg.Server.Port,
		stopCh:   make(chan struct{}),
		config:   cfg,
		logger:   logger,
	}

	// Create transport based on mode
	var svrTransport transport.ServerTransport
	var err error

	switch cfg.Server.TransportMode {
	case "stdio":
		logger.Infof("Using stdio transport")
		svrTransport = transport.NewStdioServerTransport()
	case "sse":
		addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
		logger.Infof("Using SSE transport on %s", addr)

		svrTransport, err = transport.NewSSEServerTransport(addr)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to create SSE transport: %w", err))
		}
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported transport mode: %s", cfg.Server.TransportMode))
	}

	mcpServer.server, err = server.NewServer(
		svrTransport,
		server.WithServerInfo(protocol.Implementation{
			Name:    cfg.Server.Name,
			Version: cfg.Server.Version,
		}),
	)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to create MCP server: %w", err))
	}

	return mcpServer, nil
}

// Start starts the MCP server
func (s *MCPServer) Start(ctx context.Context) error {
	s.registerToolsDeclarative()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.server.Run(); err != nil {
			s.logger.Errorf("Error running MCP server: %v", err)
			return
		}
	}()

	// Listen for context cancellation
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping MCP server: %v", err)
		}
	}()

	return nil
}

// Stop stops the MCP server
func (s *MCPServer) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}

	s.isShuttingDown = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Internal(fmt.Errorf("error shutting down MCP server: %w", err))
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.wg.Wait()
	return nil
}

// TasksChanged bumps the revision reported by list_tasks. It is wired to the
// scheduler's and the store's change signals.
func (s *MCPServer) TasksChanged() {
	s.revision.Add(1)
}

// Revision returns the current task collection revision
func (s *MCPServer) Revision() int64 {
	return s.revision.Load()
}

// handleListTasks lists active tasks, or all of them with include_completed
func (s *MCPServer) handleListTasks(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListTasksParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling list_tasks request (include_completed=%t)", params.IncludeCompleted)

	all := s.store.List(ctx)
	filtered := make([]*model.Task, 0, len(all))
	for _, t := range all {
		if params.IncludeCompleted || !t.Completed {
			filtered = append(filtered, t)
		}
	}

	return createTasksResponse(filtered, s.clock.Now(), s.Revision())
}

// handleGetTask gets a specific task by ID
func (s *MCPServer) handleGetTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	taskID, err := extractTaskIDParam(request)
	if err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling get_task request for task %s", taskID)

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return createErrorResponse(err)
	}

	return createTaskResponse(task, s.clock.Now())
}

// handleCreateTask adds a new reminder
func (s *MCPServer) handleCreateTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params CreateTaskParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if err := validateContent(params.Content); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling create_task request")

	task, err := s.store.CreateFromText(ctx, params.Content)
	if err != nil {
		return createErrorResponse(err)
	}
	s.TasksChanged()

	return createTaskResponse(task, s.clock.Now())
}

// handleEditTask replaces a task's content and derives the schedule change from it
func (s *MCPServer) handleEditTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params EditTaskParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.ID == "" {
		return createErrorResponse(errors.InvalidInput("task ID is required"))
	}
	if err := validateContent(params.Content); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling edit_task request for task %s", params.ID)

	task, err := s.store.EditFromText(ctx, params.ID, params.Content)
	if err != nil {
		return createErrorResponse(err)
	}
	s.TasksChanged()

	return createTaskResponse(task, s.clock.Now())
}

// handleCompleteTask marks a task as done
func (s *MCPServer) handleCompleteTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	taskID, err := extractTaskIDParam(request)
	if err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling complete_task request for task %s", taskID)

	if err := s.store.Complete(ctx, taskID); err != nil {
		return createErrorResponse(err)
	}
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return createErrorResponse(err)
	}
	s.TasksChanged()

	return createTaskResponse(task, s.clock.Now())
}

// handleDeleteTask removes a task
func (s *MCPServer) handleDeleteTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	taskID, err := extractTaskIDParam(request)
	if err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling delete_task request for task %s", taskID)

	if err := s.store.Delete(ctx, taskID); err != nil {
		return createErrorResponse(err)
	}
	s.TasksChanged()

	return createSuccessResponse(fmt.Sprintf("Task %s deleted successfully", taskID))
}

// handleResetTasks wipes every task
func (s *MCPServer) handleResetTasks(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	s.logger.Debugf("Handling reset_tasks request")

	if err := s.store.Reset(ctx); err != nil {
		return createErrorResponse(err)
	}
	s.TasksChanged()

	return createSuccessResponse("All tasks deleted")
}

// handleExportTasks returns the whole collection in its on-disk format
func (s *MCPServer) handleExportTasks(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	s.logger.Debugf("Handling export_tasks request")

	data, err := s.store.Export(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createTextResponse(string(data)), nil
}

// handleParseTime previews which time expression a text contains and when it
// would fire
func (s *MCPServer) handleParseTime(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ParseTimeParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	ref := s.parser.Parse(strings.ToLower(params.Text))
	preview := parsePreview{Found: ref != nil, Reference: ref}
	if ref != nil {
		if at, ok := s.resolver.Resolve(ref, s.clock.Now()); ok {
			preview.Timestamp = model.Millis(at)
			preview.DueAt = at.Format(time.RFC3339)
		}
	}

	return createJSONResponse(preview)
}
