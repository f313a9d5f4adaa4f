//go:build integration

package notificationservice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	fsdriver "github.com/tinywideclouds/go-expo-push/internal/storage/firestore"
	"github.com/tinywideclouds/go-expo-push/internal/storage/subscription"
	"github.com/tinywideclouds/go-expo-push/notificationservice"
	"github.com/tinywideclouds/go-expo-push/notificationservice/config"
	"github.com/tinywideclouds/go-expo-push/pkg/expo"
)

const (
	liveToken = "ExponentPushToken[integ-live-0001]"
	goneToken = "ExponentPushToken[integ-gone-0002]"
)

// --- FAKE EXPO ---

// fakeExpo answers push/send with one ticket per entry. goneToken is reported
// as DeviceNotRegistered.
type fakeExpo struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (f *fakeExpo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var batch []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.entries = append(f.entries, batch...)
	f.mu.Unlock()

	tickets := make([]map[string]any, len(batch))
	for i, entry := range batch {
		if entry["to"] == goneToken {
			tickets[i] = map[string]any{
				"status":  "error",
				"message": "not registered",
				"details": map[string]any{"error": "DeviceNotRegistered"},
			}
			continue
		}
		tickets[i] = map[string]any{"status": "ok", "id": uuid.NewString()}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": tickets})
}

func (f *fakeExpo) Recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		if to, ok := e["to"].(string); ok {
			out = append(out, to)
		}
	}
	return out
}

func (f *fakeExpo) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// --- TEST ---

func TestNotificationService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-integ"

	// 1. Emulators
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { fsClient.Close() })

	t.Run("Full Lifecycle: Subscribe -> Publish -> Push -> Self-Heal", func(t *testing.T) {
		// Arrange
		topicID := "push-success-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		fake := &fakeExpo{}
		expoServer := httptest.NewServer(fake)
		t.Cleanup(expoServer.Close)

		docs := fsdriver.NewDriver(fsClient, "expo-"+uuid.NewString(), "", logger)
		manager := subscription.NewManager(subscription.NewStore(docs), logger)
		client := expo.New(
			expo.WithBaseURL(expoServer.URL),
			expo.WithSubscriptions(manager),
			expo.WithLogger(logger),
		)

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		svc, err := notificationservice.New(
			&config.Config{ListenAddr: ":0", NumPipelineWorkers: 2},
			consumer,
			client,
			func(h http.Handler) http.Handler { return h }, // No-op Auth
			logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { svc.Start(svcCtx) }()
		t.Cleanup(func() { svc.Shutdown(context.Background()) })

		// Step A: Subscribe both tokens to the channel
		err = client.Subscribe(ctx, "Breaking-News", []string{liveToken, goneToken})
		require.NoError(t, err)

		// Step B: Publish a channel push without explicit recipients
		req := map[string]any{
			"channel":  "breaking-news",
			"messages": []map[string]any{{"title": "Hello", "body": "World"}},
		}
		payload, _ := json.Marshal(req)
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		// Assert: Expo received one entry per subscriber
		require.Eventually(t, func() bool {
			return fake.Count() == 2
		}, 10*time.Second, 100*time.Millisecond)
		assert.ElementsMatch(t, []string{liveToken, goneToken}, fake.Recipients())

		// Assert: the unregistered token was dropped from the channel
		require.Eventually(t, func() bool {
			tokens, err := client.Subscriptions(ctx, "breaking-news")
			return err == nil && len(tokens) == 1 && tokens[0] == liveToken
		}, 10*time.Second, 100*time.Millisecond)
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
