// Package testnats runs a throwaway NATS server for event publisher tests.
package testnats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "nats:2.10-alpine"

var (
	shared     *Server
	sharedErr  error
	sharedOnce sync.Once
)

// Server is a NATS container shared by every test in the binary. The
// testcontainers reaper removes it when the binary exits.
type Server struct {
	URL string
}

// Start returns the shared server, starting it on first use. Skipped under -short.
func Start(t *testing.T) *Server {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping NATS-backed test in short mode")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = start(context.Background())
	})
	require.NoError(t, sharedErr, "nats container failed to start")
	return shared
}

func start(ctx context.Context) (*Server, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		return nil, fmt.Errorf("resolve nats endpoint: %w", err)
	}
	return &Server{URL: endpoint}, nil
}

// Subscribe listens on subject for the rest of the test. The subscription
// is flushed, so anything published after it returns is delivered.
func (s *Server) Subscribe(t *testing.T, subject string) *nats.Subscription {
	t.Helper()

	conn, err := nats.Connect(s.URL, nats.Name("student-records-test"))
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	sub, err := conn.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())
	return sub
}

// NextJSON waits for the next message on sub and decodes its payload into v.
func NextJSON(t *testing.T, sub *nats.Subscription, v interface{}) *nats.Msg {
	t.Helper()

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg.Data, v))
	return msg
}
