//go:build contract

package contract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sirchat/internal/providers"
	"sirchat/internal/proxy"
)

const replayBaseURL = "https://replay.local"

var chatCompletionsRoute = replayKey("POST", "/chat/completions")

func newReplayProxy(t *testing.T, reg providers.Registration, routes map[string]replayRoute) *proxy.Proxy {
	t.Helper()

	factory := providers.NewProviderFactory()
	factory.Add(reg)
	desc, err := factory.Create(providers.ProviderConfig{Type: reg.Type, BaseURL: replayBaseURL, APIKey: "sk-server"})
	require.NoError(t, err)

	return proxy.New(desc, proxy.Options{HTTPClient: newReplayHTTPClient(t, routes)})
}
