package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ServiceOptions) *Service {
	t.Helper()
	withCleanRegistry(t)
	Register(testSchema())
	return NewService(opts)
}

// peopleCSV returns a file of n valid rows whose first names are p2, p3, ...
func peopleCSV(n int) string {
	var b strings.Builder
	b.WriteString("First Name,Last Name\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "p%d,Test\n", i+2)
	}
	return b.String()
}

// previewedSession creates a session with n valid rows in the preview step.
func previewedSession(t *testing.T, svc *Service, n int) string {
	t.Helper()
	id, err := svc.CreateSession("people")
	require.NoError(t, err)
	content := peopleCSV(n)
	_, err = svc.Upload(id, "people.csv", strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	_, err = svc.Preview(id)
	require.NoError(t, err)
	return id
}

// blockingCreator blocks every create until released or its context ends.
type blockingCreator struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingCreator() *blockingCreator {
	return &blockingCreator{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (c *blockingCreator) CreateEntity(ctx context.Context, _ Record) (Entity, error) {
	select {
	case c.started <- struct{}{}:
	default:
	}
	select {
	case <-c.release:
		return Entity{ID: "x"}, nil
	case <-ctx.Done():
		return Entity{}, ctx.Err()
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestService_CreateSession(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})

	id, err := svc.CreateSession("people")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, svc.SessionCount())

	snap, err := svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, StepUpload, snap.Step)

	_, err = svc.CreateSession("invoices")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestService_ImportFlow(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id := previewedSession(t, svc, 120)

	creator := &fakeCreator{failRows: map[string]bool{"p7": true}}
	require.NoError(t, svc.StartImport(context.Background(), id, creator))

	result, err := svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 120, result.TotalRows)
	assert.Equal(t, 119, result.SuccessfulRows)
	assert.Equal(t, 1, result.FailedRows)

	snap, err := svc.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, StepComplete, snap.Step)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 7, snap.Result.Errors[0].Row)

	require.NoError(t, svc.WaitForUploads(waitCtx(t)))
	assert.Equal(t, 0, svc.UploadLimiterStatus().Active)
}

func TestService_SubscribeProgress(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id := previewedSession(t, svc, 120)

	creator := newBlockingCreator()
	require.NoError(t, svc.StartImport(context.Background(), id, creator))

	ch, err := svc.SubscribeProgress(id)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, 120, first.Total)
	assert.False(t, first.Done)

	close(creator.release)

	var last CommitProgress
	for p := range ch {
		assert.GreaterOrEqual(t, p.Processed, last.Processed)
		last = p
	}
	assert.True(t, last.Done)
	assert.Equal(t, 120, last.Processed)
	assert.Equal(t, 120, last.Successful)
	assert.Equal(t, 100, last.Percent())
}

func TestService_SubscribeProgressAfterCompletion(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id := previewedSession(t, svc, 3)

	require.NoError(t, svc.StartImport(context.Background(), id, &fakeCreator{}))
	_, err := svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)

	ch, err := svc.SubscribeProgress(id)
	require.NoError(t, err)
	p, ok := <-ch
	require.True(t, ok)
	assert.True(t, p.Done)
	_, ok = <-ch
	assert.False(t, ok, "channel is closed once the final progress is sent")
}

func TestService_CancelImport(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id := previewedSession(t, svc, 80)

	creator := newBlockingCreator()
	require.NoError(t, svc.StartImport(context.Background(), id, creator))

	select {
	case <-creator.started:
	case <-time.After(5 * time.Second):
		t.Fatal("commit never started")
	}

	_, err := svc.Reset(id)
	assert.ErrorIs(t, err, ErrInvalidTransition, "reset is rejected while importing")

	require.NoError(t, svc.CancelImport(id))

	result, err := svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, 80, result.TotalRows)
	assert.Equal(t, 0, result.SuccessfulRows)
	assert.Equal(t, 80, result.FailedRows)
	assert.Equal(t, MsgImportCancelled, result.Errors[79].Message)

	assert.ErrorIs(t, svc.CancelImport(id), ErrNotImporting)
}

func TestService_StartImportFromWrongStep(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id, err := svc.CreateSession("people")
	require.NoError(t, err)

	err = svc.StartImport(context.Background(), id, &fakeCreator{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, svc.UploadLimiterStatus().Active, "slot is released on failure")

	_, err = svc.WaitForResult(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotImporting)
}

func TestService_TooManyConcurrentImports(t *testing.T) {
	svc := newTestService(t, ServiceOptions{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond})
	first := previewedSession(t, svc, 5)
	second := previewedSession(t, svc, 5)

	creator := newBlockingCreator()
	require.NoError(t, svc.StartImport(context.Background(), first, creator))

	err := svc.StartImport(context.Background(), second, &fakeCreator{})
	assert.ErrorIs(t, err, ErrTooManyUploads)

	snap, err := svc.Snapshot(second)
	require.NoError(t, err)
	assert.Equal(t, StepPreview, snap.Step, "rejected import leaves the session in preview")

	close(creator.release)
	_, err = svc.WaitForResult(waitCtx(t), first)
	require.NoError(t, err)
	require.NoError(t, svc.WaitForUploads(waitCtx(t)))
}

func TestService_WrongStepRejectedWithoutWaitingForSlot(t *testing.T) {
	svc := newTestService(t, ServiceOptions{MaxConcurrent: 1, MaxWait: 10 * time.Second})
	first := previewedSession(t, svc, 5)
	idle, err := svc.CreateSession("people")
	require.NoError(t, err)
	empty, err := svc.CreateSession("people")
	require.NoError(t, err)
	content := "First Name,Last Name\n,Test\n"
	_, err = svc.Upload(empty, "people.csv", strings.NewReader(content), -1)
	require.NoError(t, err)
	_, err = svc.Preview(empty)
	require.NoError(t, err)

	creator := newBlockingCreator()
	require.NoError(t, svc.StartImport(context.Background(), first, creator))

	start := time.Now()
	err = svc.StartImport(context.Background(), idle, &fakeCreator{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = svc.StartImport(context.Background(), empty, &fakeCreator{})
	assert.ErrorIs(t, err, ErrNoValidRows)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, svc.UploadLimiterStatus().Active)

	close(creator.release)
	_, err = svc.WaitForResult(waitCtx(t), first)
	require.NoError(t, err)
	require.NoError(t, svc.WaitForUploads(waitCtx(t)))
}

func TestService_RecordsWhoStartedImport(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id := previewedSession(t, svc, 3)

	meta := RequestMetadata{IPAddress: "203.0.113.7", UserAgent: "importer/1.0", RequestID: "req-1"}
	ctx := ContextWithRequestMetadata(context.Background(), meta)
	require.NoError(t, svc.StartImport(ctx, id, &fakeCreator{}))
	_, err := svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)

	snap, err := svc.Snapshot(id)
	require.NoError(t, err)
	require.NotNil(t, snap.StartedBy)
	assert.Equal(t, meta, *snap.StartedBy)

	snap, err = svc.Reset(id)
	require.NoError(t, err)
	assert.Nil(t, snap.StartedBy)
}

func TestService_SessionNotFound(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	const id = "missing"

	_, err := svc.Snapshot(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Upload(id, "a.csv", strings.NewReader("a\n1\n"), -1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.UpdateMapping(id, "a", "first_name")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Preview(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Reset(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.StartImport(context.Background(), id, &fakeCreator{}), ErrSessionNotFound)
	assert.ErrorIs(t, svc.CancelImport(id), ErrSessionNotFound)
	_, err = svc.SubscribeProgress(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.CloseSession(id), ErrSessionNotFound)
	assert.ErrorIs(t, svc.WriteErrorReport(id, &bytes.Buffer{}), ErrSessionNotFound)
}

func TestService_CloseSession(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id, err := svc.CreateSession("people")
	require.NoError(t, err)

	require.NoError(t, svc.CloseSession(id))
	assert.Equal(t, 0, svc.SessionCount())
	_, err = svc.Snapshot(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_WriteErrorReport(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	id, err := svc.CreateSession("people")
	require.NoError(t, err)
	content := "First Name,Last Name\nJane,Smith\n,Hassan\nLina,Saleh\n"
	_, err = svc.Upload(id, "people.csv", strings.NewReader(content), -1)
	require.NoError(t, err)
	_, err = svc.Preview(id)
	require.NoError(t, err)

	require.NoError(t, svc.StartImport(context.Background(), id, &fakeCreator{failRows: map[string]bool{"Lina": true}}))
	_, err = svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteErrorReport(id, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"3", "first_name", StageValidation, "First name is required", ""}, records[1])
	assert.Equal(t, "4", records[2][0])
	assert.Equal(t, StageCommit, records[2][2])
}

func TestService_ExpireIdleSessions(t *testing.T) {
	svc := newTestService(t, ServiceOptions{SessionTTL: time.Hour})

	idle, err := svc.CreateSession("people")
	require.NoError(t, err)
	importing := previewedSession(t, svc, 3)
	fresh, err := svc.CreateSession("people")
	require.NoError(t, err)

	creator := newBlockingCreator()
	require.NoError(t, svc.StartImport(context.Background(), importing, creator))

	later := time.Now().Add(2 * time.Hour)
	hs, err := svc.lookup(fresh)
	require.NoError(t, err)
	hs.mu.Lock()
	hs.lastUsed = later
	hs.mu.Unlock()

	assert.Equal(t, 1, svc.ExpireIdleSessions(later))

	_, err = svc.Snapshot(idle)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Snapshot(importing)
	assert.NoError(t, err, "sessions with a running commit are kept")

	close(creator.release)
	_, err = svc.WaitForResult(waitCtx(t), importing)
	require.NoError(t, err)
}

func TestService_StartSessionJanitorStops(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.StartSessionJanitor(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
