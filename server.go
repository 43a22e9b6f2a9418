package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// StructureResourceURI identifies the full database structure resource.
const StructureResourceURI = "postgres://database/structure"

// Server handles MCP protocol over stdio, backed by a single PostgreSQL
// database. Each request opens no shared mutable state beyond the pooled
// connections, so concurrent tool calls are safe without locking.
type Server struct {
	cfg         *Config
	db          *sql.DB
	inspector   *Inspector
	initialized bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer opens the database described by cfg, verifies reachability,
// pins the session pool to read-only transactions, and returns a Server
// ready to Run.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, &ConfigError{Err: errors.Wrap(err, "open database")}
	}

	db.SetMaxIdleConns(MaxConnectionsIdle)
	db.SetMaxOpenConns(MaxConnectionsOpen)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, pingCancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer pingCancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &ConfigError{Err: errors.Wrap(err, "connect to database")}
	}

	// Defense in depth under the syntactic read-only validation.
	if _, err := db.ExecContext(ctx, "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"); err != nil {
		logError("Warning: Could not set read-only mode: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)

	return &Server{
		cfg:       cfg,
		db:        db,
		inspector: NewInspector(db, NewExecutor(db, cfg.MaxRows)),
		ctx:       serverCtx,
		cancel:    serverCancel,
	}, nil
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	reader := bufio.NewReader(os.Stdin)

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		response := s.handleMessage([]byte(line))
		if response != nil {
			responseBytes, err := json.Marshal(response)
			if err != nil {
				logError("Failed to marshal response: %v", err)
				continue
			}
			fmt.Println(string(responseBytes))
		}
	}
}

func (s *Server) handleMessage(data []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &Error{
				Code:    ParseError,
				Message: "Parse error",
				Data:    err.Error(),
			},
		}
	}

	if req.JSONRPC != "2.0" {
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    InvalidRequest,
				Message: "Invalid JSON-RPC version",
			},
		}
	}

	return s.handleRequest(&req)
}

func (s *Server) handleRequest(req *JSONRPCRequest) *JSONRPCResponse {
	var result any
	var err *Error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized":
		// Notification, no response needed
		return nil
	case "tools/list":
		result, err = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(req.Params)
	case "resources/list":
		result, err = s.handleListResources()
	case "resources/read":
		result, err = s.handleReadResource(req.Params)
	case "prompts/list":
		result, err = s.handleListPrompts()
	case "prompts/get":
		result, err = s.handleGetPrompt(req.Params)
	case "ping":
		result = map[string]any{}
	default:
		err = &Error{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   err,
	}
}

// queryContext derives the per-call deadline owned by the handler layer.
func (s *Server) queryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.cfg.QueryTimeout())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Close releases all resources
func (s *Server) Close() error {
	s.Shutdown()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[pginspect] "+format+"\n", args...)
}
