package mcp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/security"
	"github.com/felixgeelhaar/paysync/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *mcp.Server {
	return mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})
}

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := newTestServer()

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		name, _ := tool["name"].(string)
		names[name] = true
	}
	for _, want := range []string{
		"cli.health",
		"billing.status",
		"billing.list",
		"billing.sign",
		"billing.replay",
		"billing.sync",
		"account.delete",
	} {
		assert.True(t, names[want], "%s tool should be registered", want)
	}
}

func TestRegisterCLITools_RequiresApp(t *testing.T) {
	assert.Error(t, RegisterCLITools(nil, ToolDependencies{App: &cli.App{}}))
	assert.Error(t, RegisterCLITools(newTestServer(), ToolDependencies{}))
}

func TestRegisterResourcesAndPrompts(t *testing.T) {
	srv := newTestServer()
	deps := ToolDependencies{App: &cli.App{}}

	require.NoError(t, RegisterResources(srv, deps))
	require.NoError(t, RegisterPrompts(srv, deps))
	assert.Error(t, RegisterResources(nil, deps))
	assert.Error(t, RegisterPrompts(nil, deps))
}

func TestParseUUID(t *testing.T) {
	_, err := parseUUID("")
	assert.Error(t, err)

	_, err = parseUUID("not-a-uuid")
	assert.Error(t, err)

	id, err := parseUUID("3f6c1d2e-8a4b-4c5d-9e7f-0a1b2c3d4e5f")
	require.NoError(t, err)
	assert.Equal(t, "3f6c1d2e-8a4b-4c5d-9e7f-0a1b2c3d4e5f", id.String())
}

func TestLoadWebhookPayload(t *testing.T) {
	payload, err := loadWebhookPayload("", "", `{"event_type":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"event_type":"x"}`, string(payload))

	_, err = loadWebhookPayload("", "", "")
	assert.Error(t, err)

	_, err = loadWebhookPayload("", "", strings.Repeat("a", security.MaxPayloadBytes+1))
	assert.ErrorIs(t, err, security.ErrPayloadTooLarge)
}

func TestLoadWebhookPayload_PathsConfinedToPayloadDir(t *testing.T) {
	dir := t.TempDir()
	inside := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(inside, []byte(`{"event_type":"y"}`), 0o600))
	outside := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(outside, []byte(`{}`), 0o600))

	_, err := loadWebhookPayload("", inside, "")
	assert.ErrorContains(t, err, "MCP_PAYLOAD_DIR", "no directory configured")

	payload, err := loadWebhookPayload(dir, inside, "")
	require.NoError(t, err)
	assert.Equal(t, `{"event_type":"y"}`, string(payload))

	_, err = loadWebhookPayload(dir, outside, "")
	assert.ErrorContains(t, err, "escapes base directory")

	_, err = loadWebhookPayload(dir, filepath.Join(dir, "..", filepath.Base(filepath.Dir(outside)), "event.json"), "")
	assert.Error(t, err)
}

func TestPayloadDir(t *testing.T) {
	assert.Empty(t, payloadDir(nil))
	assert.Empty(t, payloadDir(&cli.App{}))
	assert.Equal(t, "/srv/payloads", payloadDir(&cli.App{Config: &config.Config{MCPPayloadDir: "/srv/payloads"}}))
}
