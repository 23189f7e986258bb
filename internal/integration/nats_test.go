//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ieltswriter/ieltswriter/internal/config"
	inats "github.com/ieltswriter/ieltswriter/internal/nats"
	"github.com/ieltswriter/ieltswriter/internal/stats"
)

func setupNATSContainer(t *testing.T) *inats.Client {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--jetstream", "--store_dir", "/data"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { natsContainer.Terminate(ctx) })

	host, _ := natsContainer.Host(ctx)
	port, _ := natsContainer.MappedPort(ctx, "4222")

	client, err := inats.NewClient(ctx, config.NATSConfig{
		URL: fmt.Sprintf("nats://%s:%s", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func userIDByEmail(t *testing.T, env *TestEnv, email string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	require.NoError(t, env.Pool.QueryRow(t.Context(), `SELECT id FROM users WHERE email = $1`, email).Scan(&id))
	return id
}

func TestAttemptGradedEventsFoldIntoStats(t *testing.T) {
	env := SetupTestEnv(t)
	client := setupNATSContainer(t)

	email := "events@example.com"
	RegisterUser(t, env, email, "password123")
	userID := userIDByEmail(t, env, email)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := stats.NewConsumer(env.Stats, inats.NewConsumerManager(client.JetStream()))
	go func() { _ = consumer.Start(ctx) }()

	publisher := inats.NewPublisher(client.JetStream())
	event := inats.AttemptGraded{
		EntryID:  uuid.New(),
		UserID:   userID,
		TaskType: "task1",
		Score:    7,
		GradedAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.PublishAttemptGraded(ctx, event))

	require.Eventually(t, func() bool {
		return env.Stats.Get(ctx, userID).TotalAttempts == 1
	}, 15*time.Second, 200*time.Millisecond)

	// A redelivered publish of the same entry is dropped by the stream.
	require.NoError(t, publisher.PublishAttemptGraded(ctx, event))
	time.Sleep(2 * time.Second)

	rec := env.Stats.Get(ctx, userID)
	assert.Equal(t, 1, rec.TotalAttempts)
	assert.Equal(t, 7.0, rec.Task1Average)
}
