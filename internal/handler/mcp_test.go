package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(&backend.Mock{}, Config{})

	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(&backend.Mock{}, Config{})
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expected := map[string]bool{
		"get_cart":              false,
		"add_line_item":         false,
		"set_addresses":         false,
		"list_shipping_options": false,
		"set_shipping_method":   false,
		"select_payment_method": false,
		"checkout_steps":        false,
		"place_order":           false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expected[tool.Name]; ok {
			expected[tool.Name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPAddLineItem(t *testing.T) {
	cart := &model.Cart{ID: "cart_mcp", RegionID: "reg_tw"}
	var added string
	mock := &backend.Mock{
		CreateCartFunc: func(ctx context.Context, req *backend.CreateCartRequest) (*model.Cart, error) {
			return cart, nil
		},
		AddLineItemFunc: func(ctx context.Context, cartID, variantID string, quantity int) (*model.Cart, error) {
			added = cartID + "/" + variantID
			return cart, nil
		},
	}
	_, mux := testHandler(mock, Config{})
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "add_line_item", map[string]interface{}{
		"locale":     "tw",
		"variant_id": "variant_1",
		"quantity":   1,
	})

	if result.IsError {
		t.Fatalf("tool error: %+v", result.Content)
	}
	if added != "cart_mcp/variant_1" {
		t.Errorf("AddLineItem = %s, want cart_mcp/variant_1", added)
	}
	if !strings.Contains(resultText(result), `"cart_id":"cart_mcp"`) {
		t.Errorf("session not returned: %s", resultText(result))
	}
}

func TestMCPSessionCarriedInInput(t *testing.T) {
	mock := storedCart(&model.Cart{
		ID:              "cart_1",
		Email:           "mei@example.com",
		ShippingAddress: &model.Address{Address1: "1 Main St"},
	})
	_, mux := testHandler(mock, Config{})
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "checkout_steps", map[string]interface{}{
		"session": session.State{Cart: "cart_1", Cache: "cache_1"},
		"step":    "payment",
	})

	if result.IsError {
		t.Fatalf("tool error: %+v", result.Content)
	}
	text := resultText(result)
	if !strings.Contains(text, `"redirect":"delivery"`) {
		t.Errorf("expected redirect to delivery: %s", text)
	}
	if n := mock.CallCount("RetrieveCart"); n != 1 {
		t.Errorf("RetrieveCart calls = %d, want 1", n)
	}
}

func TestMCPToolError(t *testing.T) {
	_, mux := testHandler(&backend.Mock{}, Config{})
	sessionID := initMCPSession(t, mux)

	// No cart in the session.
	result := callTool(t, mux, sessionID, "place_order", map[string]interface{}{})

	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(resultText(result), "VALIDATION_ERROR") {
		t.Errorf("error text = %s", resultText(result))
	}
}

func TestMCPMissingRequiredField(t *testing.T) {
	_, mux := testHandler(&backend.Mock{}, Config{})
	sessionID := initMCPSession(t, mux)

	args, _ := json.Marshal(map[string]interface{}{"locale": "tw"})
	body, _ := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: "add_line_item", Arguments: args},
	})
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	// Should still return 200, with error in the result
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestToolSession(t *testing.T) {
	s := toolSession(nil)
	if s.Cart != "" || s.Cache == "" {
		t.Errorf("toolSession(nil) = %+v, want fresh cache ID", s)
	}

	in := &session.State{Cart: "cart_1", Cache: "c1", Token: "leak"}
	s = toolSession(in)
	if s.Cart != "cart_1" || s.Cache != "c1" || s.Token != "" {
		t.Errorf("toolSession() = %+v", s)
	}
}

// callTool invokes tools/call and decodes the tool result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]interface{}) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})
	if resp.Error != nil {
		t.Fatalf("Unexpected JSON-RPC error: %+v", resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse tool result: %v", err)
	}
	return result
}

func resultText(r callToolResult) string {
	var b strings.Builder
	for _, c := range r.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}

func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	return resp
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}
