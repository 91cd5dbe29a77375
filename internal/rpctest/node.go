// Package rpctest provides a scripted JSON-RPC node for tests.
package rpctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Handler answers one method call. Returning an *Error controls the JSON-RPC
// error code; any other error maps to -32000.
type Handler func(params []json.RawMessage) (interface{}, error)

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Node is an httptest server speaking JSON-RPC 2.0 over HTTP.
type Node struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
}

// NewNode starts a node that is closed when the test ends.
func NewNode(t testing.TB) *Node {
	n := &Node{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.Server.Close)
	return n
}

func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// HandleResult answers method with a fixed result.
func (n *Node) HandleResult(method string, result interface{}) {
	n.Handle(method, func([]json.RawMessage) (interface{}, error) {
		return result, nil
	})
}

// HandleError answers method with a fixed JSON-RPC error.
func (n *Node) HandleError(method string, code int, message string) {
	n.Handle(method, func([]json.RawMessage) (interface{}, error) {
		return nil, &Error{Code: code, Message: message}
	})
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &Error{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
	} else {
		result, err := h(req.Params)
		switch e := err.(type) {
		case nil:
			if result == nil {
				result = json.RawMessage("null")
			}
			resp.Result = result
		case *Error:
			resp.Error = e
		default:
			resp.Error = &Error{Code: -32000, Message: err.Error()}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
