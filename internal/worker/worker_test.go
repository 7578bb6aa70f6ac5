package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/convo"
	"github.com/suPer8Hu/rpg-chat/internal/store/rabbitmq"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

// acker records acknowledgements and reports each one on events.
type acker struct {
	events chan string
}

func newAcker() *acker { return &acker{events: make(chan string, 8)} }

func (a *acker) Ack(uint64, bool) error { a.events <- "ack"; return nil }

func (a *acker) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.events <- "requeue"
	} else {
		a.events <- "nack"
	}
	return nil
}

func (a *acker) Reject(uint64, bool) error { a.events <- "reject"; return nil }

func (a *acker) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-a.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no acknowledgement")
		return ""
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRunner) Run(_ context.Context, req convo.Request) (*convo.Response, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &convo.Response{Turns: []convo.Turn{{Speaker: "Olive", Text: "heard " + req.PlayerText, Speak: true}}}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeRetrier struct {
	mu   sync.Mutex
	msgs []rabbitmq.JobMessage
}

func (f *fakeRetrier) PublishRetry(_ context.Context, msg rabbitmq.JobMessage, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func openRepo(t *testing.T) (*chat.Repo, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(chat.Models()...))
	return chat.NewRepo(gdb), gdb
}

func queueJob(t *testing.T, repo *chat.Repo, id string, status chat.JobStatus) {
	t.Helper()
	body, err := json.Marshal(convo.Request{SessionID: "s1", PlayerText: "hello", Characters: []convo.CharacterRef{{Name: "Olive"}}})
	require.NoError(t, err)
	require.NoError(t, repo.CreateJob(context.Background(), &chat.Job{ID: id, SessionID: "s1", Request: string(body), Status: status}))
}

func delivery(a *acker, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, DeliveryTag: 1, Body: []byte(body)}
}

// start runs the pool and returns the delivery channel plus a stop func that
// cancels and waits for Run to return.
func start(t *testing.T, p *Pool) (chan<- amqp.Delivery, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan amqp.Delivery)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, msgs) }()
	return msgs, func() {
		cancel()
		assert.NoError(t, <-done)
	}
}

func TestPool_RunsQueuedJob(t *testing.T) {
	repo, _ := openRepo(t)
	queueJob(t, repo, "job-1", chat.JobQueued)
	run := &fakeRunner{}
	msgs, stop := start(t, New(repo, run, &fakeRetrier{}, Options{Concurrency: 2}, nil))
	defer stop()

	a := newAcker()
	msgs <- delivery(a, `{"job_id":"job-1","attempt":1}`)
	assert.Equal(t, "ack", a.next(t))

	j, err := repo.GetJobByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, chat.JobSucceeded, j.Status)
	assert.Equal(t, 1, j.Attempts)
	require.NotNil(t, j.Result)

	var resp convo.Response
	require.NoError(t, json.Unmarshal([]byte(*j.Result), &resp))
	assert.Equal(t, []convo.Turn{{Speaker: "Olive", Text: "heard hello", Speak: true}}, resp.Turns)
}

func TestPool_FailedTurnIsRecordedOnce(t *testing.T) {
	repo, _ := openRepo(t)
	queueJob(t, repo, "job-1", chat.JobQueued)
	run := &fakeRunner{err: errors.New("model call failed: boom")}
	retry := &fakeRetrier{}
	msgs, stop := start(t, New(repo, run, retry, Options{Concurrency: 1}, nil))
	defer stop()

	a := newAcker()
	msgs <- delivery(a, `{"job_id":"job-1"}`)
	assert.Equal(t, "ack", a.next(t))

	j, err := repo.GetJobByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, chat.JobFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Equal(t, "model call failed: boom", *j.Error)
	assert.Empty(t, retry.msgs)

	// redelivery of a finished job is acknowledged without running again
	msgs <- delivery(a, `{"job_id":"job-1"}`)
	assert.Equal(t, "ack", a.next(t))
	assert.Equal(t, 1, run.count())
}

func TestPool_DeadLettersBadAndUnknownMessages(t *testing.T) {
	repo, _ := openRepo(t)
	run := &fakeRunner{}
	msgs, stop := start(t, New(repo, run, &fakeRetrier{}, Options{Concurrency: 1}, nil))
	defer stop()

	a := newAcker()
	msgs <- delivery(a, `not json`)
	assert.Equal(t, "nack", a.next(t))

	msgs <- delivery(a, `{"job_id":""}`)
	assert.Equal(t, "nack", a.next(t))

	msgs <- delivery(a, `{"job_id":"missing"}`)
	assert.Equal(t, "nack", a.next(t))
	assert.Zero(t, run.count())
}

func TestPool_TransientErrorsRetryThenFail(t *testing.T) {
	repo, gdb := openRepo(t)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	retry := &fakeRetrier{}
	msgs, stop := start(t, New(repo, &fakeRunner{}, retry, Options{Concurrency: 1, MaxAttempts: 3}, nil))
	defer stop()

	a := newAcker()
	msgs <- delivery(a, `{"job_id":"job-1","attempt":1}`)
	assert.Equal(t, "ack", a.next(t))
	require.Len(t, retry.msgs, 1)
	assert.Equal(t, rabbitmq.JobMessage{JobID: "job-1", Attempt: 2}, retry.msgs[0])

	msgs <- delivery(a, `{"job_id":"job-1","attempt":3}`)
	assert.Equal(t, "nack", a.next(t))
	assert.Len(t, retry.msgs, 1)
}

func TestPool_ReturnsWhenDeliveriesClose(t *testing.T) {
	repo, _ := openRepo(t)
	msgs := make(chan amqp.Delivery)
	close(msgs)

	err := New(repo, &fakeRunner{}, &fakeRetrier{}, Options{}, nil).Run(context.Background(), msgs)
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
}

func TestNew_ClampsConcurrency(t *testing.T) {
	assert.Equal(t, 2, New(nil, nil, nil, Options{}, nil).opts.Concurrency)
	assert.Equal(t, 50, New(nil, nil, nil, Options{Concurrency: 500}, nil).opts.Concurrency)
	p := New(nil, nil, nil, Options{Concurrency: 4}, nil)
	assert.Equal(t, 4, p.opts.Concurrency)
	assert.Equal(t, 3, p.opts.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.opts.RetryDelay)
}
