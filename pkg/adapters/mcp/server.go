package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/aretw0/xrlt"
	"github.com/aretw0/xrlt/pkg/domain"
)

// SheetsURI is the resource listing the available sheets.
const SheetsURI = "xrlt://sheets"

// TransformResponse is the structured result of the transform tools.
type TransformResponse struct {
	Sheet  string `json:"sheet,omitempty" jsonschema_description:"The sheet that was transformed"`
	Output string `json:"output" jsonschema_description:"The serialized result document"`
}

// Engine defines the interface required by the MCP server to interact with XRLT.
type Engine interface {
	TransformSheet(ctx context.Context, name string, params domain.Params) (string, error)
	TransformBytes(ctx context.Context, data []byte, params domain.Params) (string, error)
	Sheets() ([]string, error)
}

// Server wraps the XRLT Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("xrlt-mcp", strings.TrimSpace(xrlt.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: transform
	transformTool := mcp.NewTool("transform",
		mcp.WithDescription("Transform a requestsheet by name and return the resulting document."),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Sheet name relative to the sheet root, e.g. index.xrl")),
		mcp.WithString("params", mcp.Description("JSON object of request parameters; values are converted to strings")),
		mcp.WithOutputSchema[TransformResponse](),
	)
	s.mcpServer.AddTool(transformTool, mcp.NewStructuredToolHandler(s.handleTransform))

	// TOOL: transform_source
	sourceTool := mcp.NewTool("transform_source",
		mcp.WithDescription("Transform an inline requestsheet and return the resulting document."),
		mcp.WithString("source", mcp.Required(), mcp.Description("The requestsheet XML")),
		mcp.WithString("params", mcp.Description("JSON object of request parameters; values are converted to strings")),
		mcp.WithOutputSchema[TransformResponse](),
	)
	s.mcpServer.AddTool(sourceTool, mcp.NewStructuredToolHandler(s.handleTransformSource))

	// TOOL: list_sheets
	s.mcpServer.AddTool(mcp.NewTool("list_sheets",
		mcp.WithDescription("List the requestsheets available to the engine."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.sheetsJSON()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleTransform(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TransformResponse, error) {
	name, _ := args["sheet"].(string)
	if name == "" {
		return TransformResponse{}, errors.New("sheet is required")
	}
	params, err := toParams(args["params"])
	if err != nil {
		return TransformResponse{}, err
	}

	out, err := s.engine.TransformSheet(ctx, name, params)
	if err != nil {
		s.logger.Warn("MCP transform failed", "sheet", name, "error", err)
		return TransformResponse{}, fmt.Errorf("transform failed: %w", err)
	}
	return TransformResponse{Sheet: name, Output: out}, nil
}

func (s *Server) handleTransformSource(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TransformResponse, error) {
	source, _ := args["source"].(string)
	if strings.TrimSpace(source) == "" {
		return TransformResponse{}, errors.New("source is required")
	}
	params, err := toParams(args["params"])
	if err != nil {
		return TransformResponse{}, err
	}

	out, err := s.engine.TransformBytes(ctx, []byte(source), params)
	if err != nil {
		return TransformResponse{}, fmt.Errorf("transform failed: %w", err)
	}
	return TransformResponse{Output: out}, nil
}

// toParams accepts an object, or a JSON object encoded as a string, and
// converts every value to its string form.
func toParams(raw any) (domain.Params, error) {
	params := domain.Params{}
	if s, ok := raw.(string); ok && s != "" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("params must be a JSON object: %w", err)
		}
		raw = decoded
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return params, nil
	}
	for k, v := range m {
		if v == nil {
			continue
		}
		str, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		params[k] = str
	}
	return params, nil
}

func (s *Server) sheetsJSON() ([]byte, error) {
	sheets, err := s.engine.Sheets()
	if err != nil {
		return nil, err
	}
	if sheets == nil {
		sheets = []string{}
	}
	return json.Marshal(sheets)
}

func (s *Server) registerResources() {
	// EXPOSE: xrlt://sheets
	s.mcpServer.AddResource(mcp.NewResource(SheetsURI, "Available requestsheets",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := s.sheetsJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to list sheets: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SheetsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
