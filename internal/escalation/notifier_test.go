package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (r *recordingTransport) Send(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingTransport) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func taskIDs(n models.Notification) []string {
	out := make([]string, 0, len(n.Tasks))
	for _, t := range n.Tasks {
		out = append(out, t.ID)
	}
	return out
}

const hour = int64(3600)

func overdue(id string) models.Task {
	return models.Task{ID: id, CurrentState: "IN_PROGRESS", AgeSeconds: 7 * hour, AgeFormatted: "7 hrs 0 min 0 sec"}
}

func complete(id string) models.Task {
	return models.Task{ID: id, CurrentState: models.StateComplete, AgeSeconds: 8 * hour}
}

func newNotifier(tr Transport) *Notifier {
	return New(tr, logging.Discard(), Options{
		To: []string{"ops@example.com"},
		CC: []string{"admin@example.com"},
	})
}

func TestOverdue(t *testing.T) {
	threshold := 6 * time.Hour
	tests := map[string]struct {
		task models.Task
		want bool
	}{
		"two and a half hours":    {task: models.Task{ID: "A", AgeSeconds: 9000}, want: false},
		"exactly at threshold":    {task: models.Task{ID: "A", AgeSeconds: 21600}, want: false},
		"one second past":         {task: models.Task{ID: "A", AgeSeconds: 21601}, want: true},
		"complete and old":        {task: complete("A"), want: false},
		"lowercase complete":      {task: models.Task{ID: "A", CurrentState: "complete", AgeSeconds: 8 * hour}, want: true},
		"missing timestamp age 0": {task: models.Task{ID: "A", AgeFormatted: "N/A"}, want: false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overdue(tt.task, threshold))
		})
	}
}

func TestNotifier_StageSchedule(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		start := time.Now()
		n.Evaluate(context.Background(), []models.Task{overdue("T1"), overdue("T2"), {ID: "T3", AgeSeconds: 100}})

		sent := tr.all()
		require.Len(t, sent, 1)
		assert.Equal(t, models.Stage1, sent[0].Stage)
		assert.Equal(t, []string{"T1", "T2"}, taskIDs(sent[0]))
		assert.Equal(t, []string{"ops@example.com"}, sent[0].To)
		assert.Empty(t, sent[0].CC)

		tracked := n.Tracked()
		require.Len(t, tracked, 2)
		require.NotNil(t, tracked[0].NextReminder)
		assert.WithinDuration(t, start.Add(30*time.Minute), *tracked[0].NextReminder, 0)
		assert.Equal(t, 1, n.Pending())

		time.Sleep(30*time.Minute + time.Second)
		synctest.Wait()
		sent = tr.all()
		require.Len(t, sent, 2)
		assert.Equal(t, models.Stage2, sent[1].Stage)
		assert.Equal(t, []string{"T1", "T2"}, taskIDs(sent[1]))
		assert.Empty(t, sent[1].CC)
		assert.Equal(t, sent[0].BatchID, sent[1].BatchID)
		assert.WithinDuration(t, start.Add(60*time.Minute), *n.Tracked()[0].NextReminder, 0)

		time.Sleep(30 * time.Minute)
		synctest.Wait()
		sent = tr.all()
		require.Len(t, sent, 3)
		assert.Equal(t, models.Stage3, sent[2].Stage)
		assert.Equal(t, []string{"admin@example.com"}, sent[2].CC)

		for _, tk := range n.Tracked() {
			assert.Equal(t, models.Stage3, tk.Stage)
			assert.Nil(t, tk.NextReminder)
		}
		assert.Equal(t, 0, n.Pending())

		// Nothing else fires.
		time.Sleep(5 * time.Hour)
		synctest.Wait()
		assert.Len(t, tr.all(), 3)
	})
}

func TestNotifier_Dedup(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		for i := 0; i < 3; i++ {
			n.Evaluate(context.Background(), []models.Task{overdue("T1")})
			time.Sleep(time.Minute)
		}
		synctest.Wait()

		sent := tr.all()
		require.Len(t, sent, 1)
		assert.Equal(t, models.Stage1, sent[0].Stage)
		assert.Equal(t, 1, n.Pending())
	})
}

func TestNotifier_NewlyOverdueGetOwnBatch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		time.Sleep(10 * time.Minute)
		n.Evaluate(context.Background(), []models.Task{overdue("T1"), overdue("T2")})

		sent := tr.all()
		require.Len(t, sent, 2)
		assert.Equal(t, []string{"T2"}, taskIDs(sent[1]))
		assert.NotEqual(t, sent[0].BatchID, sent[1].BatchID)
		assert.Equal(t, 2, n.Pending())

		// First batch reminder only carries T1.
		time.Sleep(20*time.Minute + time.Second)
		synctest.Wait()
		sent = tr.all()
		require.Len(t, sent, 3)
		assert.Equal(t, []string{"T1"}, taskIDs(sent[2]))
	})
}

func TestNotifier_AutoClearCancelsReminders(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		time.Sleep(10 * time.Minute)
		n.Evaluate(context.Background(), []models.Task{complete("T1")})

		assert.Empty(t, n.Tracked())
		assert.Equal(t, 0, n.Pending())

		time.Sleep(2 * time.Hour)
		synctest.Wait()
		assert.Len(t, tr.all(), 1)
	})
}

func TestNotifier_ClearAfterStage2(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		time.Sleep(45 * time.Minute)
		synctest.Wait()
		require.Len(t, tr.all(), 2)

		n.Evaluate(context.Background(), []models.Task{complete("T1")})
		time.Sleep(time.Hour)
		synctest.Wait()
		assert.Len(t, tr.all(), 2)
		assert.Equal(t, 0, n.Pending())
	})
}

func TestNotifier_PartialClearExcludesResolvedTask(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1"), overdue("T2")})
		n.Evaluate(context.Background(), []models.Task{complete("T1"), overdue("T2")})
		assert.Equal(t, 1, n.Pending())

		time.Sleep(61 * time.Minute)
		synctest.Wait()

		sent := tr.all()
		require.Len(t, sent, 3)
		assert.Equal(t, []string{"T2"}, taskIDs(sent[1]))
		assert.Equal(t, []string{"T2"}, taskIDs(sent[2]))
	})
}

func TestNotifier_AbsentTaskKeepsTracking(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		n.Evaluate(context.Background(), nil)

		tracked := n.Tracked()
		require.Len(t, tracked, 1)
		assert.Equal(t, "T1", tracked[0].TaskID)

		// Reappearing does not alert again; reminders keep going.
		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		time.Sleep(31 * time.Minute)
		synctest.Wait()

		sent := tr.all()
		require.Len(t, sent, 2)
		assert.Equal(t, models.Stage2, sent[1].Stage)
	})
}

func TestNotifier_RealertAfterClear(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		n.Evaluate(context.Background(), []models.Task{complete("T1")})
		n.Evaluate(context.Background(), []models.Task{overdue("T1")})

		sent := tr.all()
		require.Len(t, sent, 2)
		assert.NotEqual(t, sent[0].BatchID, sent[1].BatchID)
	})
}

func TestNotifier_SendFailureCountsAsSent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{err: errors.New("smtp: 421 try later")}
		n := newNotifier(tr)
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		assert.Len(t, tr.all(), 1)

		tracked := n.Tracked()
		require.Len(t, tracked, 1)
		assert.Equal(t, models.Stage1, tracked[0].Stage)

		time.Sleep(31 * time.Minute)
		synctest.Wait()
		assert.Len(t, tr.all(), 2)
		assert.Equal(t, models.Stage2, n.Tracked()[0].Stage)
	})
}

func TestNotifier_CustomSchedule(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := New(tr, logging.Discard(), Options{
			Threshold:   time.Hour,
			Stage2Delay: 5 * time.Minute,
			Stage3Delay: 10 * time.Minute,
		})
		defer n.Stop()

		n.Evaluate(context.Background(), []models.Task{{ID: "T1", AgeSeconds: 2 * hour}})
		time.Sleep(11 * time.Minute)
		synctest.Wait()
		assert.Len(t, tr.all(), 3)
	})
}

func TestNotifier_Stop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tr := &recordingTransport{}
		n := newNotifier(tr)

		n.Evaluate(context.Background(), []models.Task{overdue("T1")})
		n.Stop()
		assert.Equal(t, 0, n.Pending())

		time.Sleep(2 * time.Hour)
		synctest.Wait()
		assert.Len(t, tr.all(), 1)
	})
}

func TestNotifier_NilTransport(t *testing.T) {
	n := New(nil, logging.Discard(), Options{})
	defer n.Stop()

	n.Evaluate(context.Background(), []models.Task{overdue("T1")})
	assert.Len(t, n.Tracked(), 1)
}
