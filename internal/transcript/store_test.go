// Package transcript provides integration tests for the SurrealDB store.
package transcript

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

var testStore *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// testing.Short() panics unless the test flags are parsed first.
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testStore, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testStore.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testCtx(t *testing.T) context.Context {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func userMessage(conv, user, content string) models.Message {
	return models.Message{
		ConversationID: conv,
		MessageID:      uuid.New().String(),
		Role:           models.RoleUser,
		UserID:         user,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Active:         true,
	}
}

func TestAppendAndQueryOrdering(t *testing.T) {
	ctx := testCtx(t)
	conv := "user1-chat-order"

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		msg := userMessage(conv, "user1", fmt.Sprintf("message %d", i))
		msg.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, testStore.AppendMessage(ctx, msg))
	}

	msgs, err := testStore.Messages(ctx, conv, true)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp),
			"messages must be ordered by timestamp")
	}
	assert.Equal(t, "message 0", msgs[0].Content)
	assert.Equal(t, "message 2", msgs[2].Content)
}

func TestAppendDuplicateMessageID(t *testing.T) {
	ctx := testCtx(t)

	msg := userMessage("user1-chat-dup", "user1", "first")
	require.NoError(t, testStore.AppendMessage(ctx, msg))

	msg.Content = "second"
	err := testStore.AppendMessage(ctx, msg)
	require.Error(t, err)
}

func TestSoftDeleteVisibility(t *testing.T) {
	ctx := testCtx(t)
	conv := "user1-chat-softdel"

	for i := 0; i < 2; i++ {
		require.NoError(t, testStore.AppendMessage(ctx, userMessage(conv, "user1", fmt.Sprintf("turn %d", i))))
	}

	require.NoError(t, testStore.SoftDelete(ctx, conv))

	active, err := testStore.Messages(ctx, conv, true)
	require.NoError(t, err)
	assert.Empty(t, active, "active-only read must hide soft-deleted messages")

	all, err := testStore.Messages(ctx, conv, false)
	require.NoError(t, err)
	assert.Len(t, all, 2, "soft delete must not remove messages")
}

func TestLatestByOwnerGroupsPerConversation(t *testing.T) {
	ctx := testCtx(t)
	owner := "owner-latest"

	base := time.Now().UTC()
	for _, conv := range []string{owner + "-chat1", owner + "-chat2"} {
		for i := 0; i < 2; i++ {
			msg := userMessage(conv, owner, fmt.Sprintf("%s content %d", conv, i))
			msg.Timestamp = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, testStore.AppendMessage(ctx, msg))
		}
	}

	summaries, err := testStore.LatestByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, summaries, 2, "one summary per conversation")
	for _, s := range summaries {
		assert.Contains(t, s.Title, "content 1", "summary must preview the newest message")
	}
}

func TestNextTurnAtomicUnderConcurrency(t *testing.T) {
	ctx := testCtx(t)
	const workers = 8

	var wg sync.WaitGroup
	results := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := testStore.NextTurn(ctx, "concurrent-user")
			assert.NoError(t, err)
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for n := range results {
		assert.False(t, seen[n], "turn counter value %d allocated twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestJobLifecycle(t *testing.T) {
	ctx := testCtx(t)

	jobID := uuid.New().String()
	require.NoError(t, testStore.CreateJob(ctx, jobID, "user1-chat-job", "user1"))

	job, err := testStore.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "running", job.Status)
	assert.Nil(t, job.CompletedAt)

	ref := "/configs/" + jobID + "/main.tf"
	require.NoError(t, testStore.FinishJob(ctx, jobID, "succeeded", &ref, nil))

	job, err = testStore.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", job.Status)
	require.NotNil(t, job.ResultRef)
	assert.Equal(t, ref, *job.ResultRef)
	assert.NotNil(t, job.CompletedAt)

	jobs, err := testStore.JobsByOwner(ctx, "user1")
	require.NoError(t, err)
	assert.NotEmpty(t, jobs)
}

func TestGetJobNotFound(t *testing.T) {
	ctx := testCtx(t)

	_, err := testStore.GetJob(ctx, "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSoftDeleteMissingConversation(t *testing.T) {
	ctx := testCtx(t)

	err := testStore.SoftDelete(ctx, "user1-chat-never-existed")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStoreRecordsMetrics(t *testing.T) {
	ctx := testCtx(t)
	conv := "user9-chat-metrics"

	mc := metrics.NewCollector()
	testStore.SetMetrics(mc)
	t.Cleanup(func() { testStore.SetMetrics(nil) })

	require.NoError(t, testStore.AppendMessage(ctx, userMessage(conv, "user9", "hello")))
	_, err := testStore.Messages(ctx, conv, true)
	require.NoError(t, err)

	snap := mc.Snapshot()
	assert.EqualValues(t, 1, snap.Operations[metrics.OpTranscriptAppend].Count)
	assert.EqualValues(t, 1, snap.Operations[metrics.OpTranscriptQuery].Count)
}

func TestPreviewTitle(t *testing.T) {
	assert.Equal(t, "short message", previewTitle("short message"))

	long := strings.Repeat("a", 60)
	assert.Equal(t, strings.Repeat("a", 50)+"...", previewTitle(long))

	// Multi-byte content must not be cut mid-rune.
	multi := strings.Repeat("ü", 60)
	got := previewTitle(multi)
	assert.Equal(t, strings.Repeat("ü", 50)+"...", got)
	assert.True(t, utf8.ValidString(got))
}
