package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clipverse/backend/internal/logging"
)

func TestConnectWithoutURLIsNoop(t *testing.T) {
	pub := Connect("", nil)
	_, ok := pub.(Noop)
	require.True(t, ok)
	require.NoError(t, pub.Publish(context.Background(), SubjectSuspensionExpired, map[string]string{"id": "u1"}))
	require.NoError(t, pub.Close())
}

func TestEnvelopeUsesRequestID(t *testing.T) {
	ctx := logging.WithRequestID(context.Background(), "req-42")
	env := NewEnvelope(ctx, SubjectAssetReady, map[string]string{"videoId": "v1"})

	require.Equal(t, "req-42", env.CorrelationID)
	require.Equal(t, SubjectAssetReady, env.Type)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"correlationId":"req-42"`)

	env = NewEnvelope(context.Background(), SubjectAssetReady, nil)
	require.NotEmpty(t, env.CorrelationID)
}
