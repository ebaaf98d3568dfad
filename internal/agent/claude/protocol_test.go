package claude

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prettycode/internal/agent"
)

func TestNewPermissionResponseAllow(t *testing.T) {
	input := map[string]any{"file_path": "/tmp/a.go"}
	resp := newPermissionResponse("req_1", input, agent.Allowed())

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "control_response", decoded["type"])
	payload := decoded["response"].(map[string]any)
	assert.Equal(t, "success", payload["subtype"])
	assert.Equal(t, "req_1", payload["request_id"])

	result := payload["response"].(map[string]any)
	assert.Equal(t, "allow", result["behavior"])
	assert.Equal(t, map[string]any{"file_path": "/tmp/a.go"}, result["updatedInput"])
}

func TestNewPermissionResponseAllowNilInput(t *testing.T) {
	resp := newPermissionResponse("req_2", nil, agent.Allowed())

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	// updatedInput must marshal as an object, never null.
	var decoded struct {
		Response struct {
			Response struct {
				UpdatedInput json.RawMessage `json:"updatedInput"`
			} `json:"response"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.JSONEq(t, "{}", string(decoded.Response.Response.UpdatedInput))
}

func TestNewPermissionResponseDeny(t *testing.T) {
	resp := newPermissionResponse("req_3", nil, agent.DeniedInterrupt("Operation stopped by user"))

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	result := decoded["response"].(map[string]any)["response"].(map[string]any)
	assert.Equal(t, "deny", result["behavior"])
	assert.Equal(t, "Operation stopped by user", result["message"])
	assert.Equal(t, true, result["interrupt"])
}

func TestUserTextMessagePlain(t *testing.T) {
	msg := userTextMessage("hello", nil)

	body := msg["message"].(map[string]any)
	assert.Equal(t, "user", msg["type"])
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, "hello", body["content"])
}

func TestUserTextMessageWithAttachments(t *testing.T) {
	msg := userTextMessage("look at this", []agent.Attachment{
		{MediaType: "image/png", Data: "aGVsbG8="},
	})

	body := msg["message"].(map[string]any)
	blocks, ok := body["content"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)

	image := blocks[0].(map[string]any)
	assert.Equal(t, "image", image["type"])
	source := image["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/png", source["media_type"])
	assert.Equal(t, "aGVsbG8=", source["data"])

	text := blocks[1].(map[string]any)
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "look at this", text["text"])
}

func TestUserTextMessageAttachmentsOnly(t *testing.T) {
	msg := userTextMessage("", []agent.Attachment{
		{MediaType: "image/jpeg", Data: "ZGF0YQ=="},
	})

	body := msg["message"].(map[string]any)
	blocks := body["content"].([]any)
	assert.Len(t, blocks, 1, "no empty text block")
}

func TestNewInterruptRequest(t *testing.T) {
	req := newInterruptRequest()

	assert.Equal(t, "control_request", req.Type)
	assert.NotEmpty(t, req.RequestID)
	assert.Equal(t, map[string]string{"subtype": "interrupt"}, req.Request)
}

func TestParseCanUseToolRequest(t *testing.T) {
	line := []byte(`{"type":"control_request","request_id":"r1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"ls"}}}`)

	var req controlRequest
	require.NoError(t, json.Unmarshal(line, &req))
	assert.Equal(t, "control_request", req.Type)
	assert.Equal(t, "r1", req.RequestID)

	var inner canUseToolRequest
	require.NoError(t, json.Unmarshal(req.Request, &inner))
	assert.Equal(t, subtypeCanUseTool, inner.Subtype)
	assert.Equal(t, "Bash", inner.ToolName)
	assert.Equal(t, map[string]any{"command": "ls"}, inner.Input)
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs(Config{PermissionMode: "default"})
	assert.Equal(t, []string{
		"--print",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", "default",
	}, args)
}

func TestBuildArgsResumeAndExtra(t *testing.T) {
	args := buildArgs(Config{
		PermissionMode: "plan",
		Resume:         "sess-9",
		ExtraArgs:      []string{"--model", "opus"},
	})

	assert.Contains(t, args, "--resume")
	assert.Contains(t, args, "sess-9")
	assert.Equal(t, []string{"--model", "opus"}, args[len(args)-2:])

	idx := -1
	for i, a := range args {
		if a == "--permission-mode" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "plan", args[idx+1])
}
