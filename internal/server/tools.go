package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"reconciliation-task-service/internal/filematch"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/internal/upload"
	"reconciliation-task-service/pkg/errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func (s *Server) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(mcp.NewTool("reconciliation_start",
		mcp.WithDescription("Start an asynchronous reconciliation task over previously uploaded files. Returns a task_id to poll."),
		mcp.WithObject("schema",
			mcp.Required(),
			mcp.Description("Reconciliation schema: sides, field roles, key role, tolerance, cleaning rules and validations."),
		),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Absolute paths of the input files, as returned by file_upload."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("callback_url",
			mcp.Description("Optional URL to POST the terminal status to."),
		),
	), s.handleStart)

	srv.AddTool(mcp.NewTool("reconciliation_status",
		mcp.WithDescription("Report a task's current status and progress."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier from reconciliation_start.")),
	), s.handleStatus)

	srv.AddTool(mcp.NewTool("reconciliation_result",
		mcp.WithDescription("Fetch the result artifact of a completed task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier from reconciliation_start.")),
	), s.handleResult)

	srv.AddTool(mcp.NewTool("reconciliation_cancel",
		mcp.WithDescription("Cancel a pending or running task. Canceling a finished task is a no-op."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier from reconciliation_start.")),
	), s.handleCancel)

	srv.AddTool(mcp.NewTool("reconciliation_list_tasks",
		mcp.WithDescription("List all known tasks in creation order."),
	), s.handleListTasks)

	srv.AddTool(mcp.NewTool("file_upload",
		mcp.WithDescription("Store data files for later reconciliation. Each file succeeds or fails on its own."),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Files to store: {filename, data|base64, mime_type?, related_id?}."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename":   map[string]any{"type": "string"},
					"data":       map[string]any{"type": "string"},
					"base64":     map[string]any{"type": "string"},
					"mime_type":  map[string]any{"type": "string"},
					"related_id": map[string]any{"type": "string"},
				},
				"required": []string{"filename"},
			}),
		),
	), s.handleFileUpload)
}

// toolJSON renders a tool response as a JSON text block.
func toolJSON(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	if re, ok := errors.AsReconcilerError(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", re.Code, re.Message)), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (s *Server) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	schemaArg, ok := args["schema"].(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("schema must be an object"), nil
	}
	sc, err := schema.FromMap(schemaArg)
	if err != nil {
		return toolError(err)
	}

	files, err := stringSlice(args["files"])
	if err != nil {
		return mcp.NewToolResultError("files must be an array of strings"), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultError("files must not be empty"), nil
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return toolError(errors.FileError(errors.CodeFileNotFound, f, err))
		}
	}
	// Classification problems surface here, before the task is queued.
	if _, err := filematch.Classify(files, sc); err != nil {
		return toolError(err)
	}

	callbackURL, _ := args["callback_url"].(string)

	taskID, err := s.manager.Create(sc, files, callbackURL)
	if err != nil {
		return toolError(err)
	}
	return toolJSON(map[string]string{
		"task_id": taskID,
		"status":  "pending",
		"message": "reconciliation task queued",
	})
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.manager.Status(taskID)
	if err != nil {
		return toolError(err)
	}
	return toolJSON(snap)
}

func (s *Server) handleResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.manager.Result(taskID)
	if err != nil {
		return toolError(err)
	}
	return toolJSON(result)
}

func (s *Server) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.manager.Cancel(taskID); err != nil {
		return toolError(err)
	}
	snap, err := s.manager.Status(taskID)
	if err != nil {
		return toolError(err)
	}
	return toolJSON(snap)
}

func (s *Server) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolJSON(map[string]interface{}{"tasks": s.manager.List()})
}

func (s *Server) handleFileUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["files"].([]interface{})
	if !ok || len(raw) == 0 {
		return mcp.NewToolResultError("files must be a non-empty array"), nil
	}

	inputs := make([]upload.FileInput, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("each file must be an object"), nil
		}
		in := upload.FileInput{}
		in.Filename, _ = entry["filename"].(string)
		in.Data, _ = entry["data"].(string)
		in.Base64, _ = entry["base64"].(string)
		in.MimeType, _ = entry["mime_type"].(string)
		in.RelatedID, _ = entry["related_id"].(string)
		inputs = append(inputs, in)
	}

	return toolJSON(map[string]interface{}{"results": s.store.Save(inputs)})
}

func stringSlice(v interface{}) ([]string, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("not a string: %v", item)
		}
		out = append(out, s)
	}
	return out, nil
}
