package pubsub

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dorank/internal/stats"
)

func TestBuildMessageReport(t *testing.T) {
	t.Parallel()

	msg := stats.Message{
		Channel:     "C03FBG24G",
		ResponseURL: "https://hooks.slack.test/secret",
		Visibility:  stats.VisibilityBroadcast,
		Report:      &stats.Report{CycleID: "cycle-1", Trigger: stats.TriggerScheduled},
	}
	out, err := buildMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, "report", out.Attributes["kind"])
	require.Equal(t, "cycle-1", out.Attributes["cycle_id"])
	require.Equal(t, "scheduled", out.Attributes["trigger"])
	require.NotContains(t, string(out.Data), "hooks.slack.test", "response urls stay out of the payload")

	var decoded stats.Message
	require.NoError(t, json.Unmarshal(out.Data, &decoded))
	require.Equal(t, "cycle-1", decoded.Report.CycleID)
}

func TestBuildMessageError(t *testing.T) {
	t.Parallel()

	out, err := buildMessage(context.Background(), stats.Message{Channel: "C1", ErrorText: "fetch failed"})
	require.NoError(t, err)
	require.Equal(t, "error", out.Attributes["kind"])
	_, ok := out.Attributes["cycle_id"]
	require.False(t, ok)
}

func TestNotifyWithoutPublisher(t *testing.T) {
	t.Parallel()

	require.Error(t, New(nil).Notify(context.Background(), stats.Message{}))
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	c.Set("tracestate", "x")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	keys := c.Keys()
	sort.Strings(keys)
	require.Equal(t, []string{"traceparent", "tracestate"}, keys)
}
