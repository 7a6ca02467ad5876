package mcpadapter

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stackatlas/stackatlas/internal/core/domain"
	"github.com/stackatlas/stackatlas/internal/core/ports"
)

// Server exposes the ask operation as an MCP tool over stdio, so editor and
// agent clients can query the stack without going through the HTTP API.
type Server struct {
	answerer ports.QuestionAnswerer
	mcp      *server.MCPServer
}

func NewServer(answerer ports.QuestionAnswerer, version string) *Server {
	s := &Server{answerer: answerer}

	mcpServer := server.NewMCPServer("stackatlas", version,
		server.WithToolCapabilities(false),
	)
	mcpServer.AddTool(askTool(), s.handleAsk)

	s.mcp = mcpServer
	return s
}

func askTool() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Answer a question about the indexed infrastructure stack. Combines vector search, reranking and graph traversal, and returns a cited answer."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer."),
		),
		mcp.WithNumber("top_k",
			mcp.Description("How many vector-search candidates to consider."),
		),
		mcp.WithNumber("rerank_top_n",
			mcp.Description("How many candidates to keep after reranking."),
		),
		mcp.WithArray("source_types",
			mcp.Description("Restrict retrieval to chunks from these source types."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := domain.Query{
		Text:        question,
		TopK:        request.GetInt("top_k", 0),
		RerankTopN:  request.GetInt("rerank_top_n", 0),
		SourceTypes: request.GetStringSlice("source_types", nil),
	}

	result, err := s.answerer.Execute(ctx, query)
	if err != nil {
		// The stage-tagged message is the user-facing diagnosis; the tool
		// protocol carries it as an error result, not a transport failure.
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result.Answer), nil
}

// ServeStdio blocks, serving the MCP protocol on stdin/stdout until the
// client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
