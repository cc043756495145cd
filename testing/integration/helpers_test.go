package integration

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/formz"
	ftesting "github.com/zoobzio/formz/testing"
)

// waitFor polls a condition until it returns true or timeout is reached.
// Uses short polling intervals for fast tests with reliable results.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// syncPair is two services sharing a store: a writer driven from the test
// goroutine and a watching reader confined to its own loop.
type syncPair struct {
	loop      *formz.Loop
	writerSvc *formz.Service[ftesting.FieldConfig]
	writer    *formz.Form[ftesting.FieldConfig]
	reader    *formz.Form[ftesting.FieldConfig]
}

func newSyncPair(t *testing.T, ctx context.Context, writerStore, readerStore formz.Store) *syncPair {
	t.Helper()
	loop := formz.NewLoop()
	go loop.Run(ctx) //nolint:errcheck // Ends with ctx

	writerSvc := formz.NewService[ftesting.FieldConfig](ftesting.ProfileDefinition{}).Store(writerStore)
	readerSvc := formz.NewService[ftesting.FieldConfig](ftesting.ProfileDefinition{
		Options: []formz.NodeOption{formz.WithScheduler(loop)},
	}).Store(readerStore)

	p := &syncPair{
		loop:      loop,
		writerSvc: writerSvc,
		writer:    formz.NewForm(writerSvc, "profile"),
		reader:    formz.NewForm(readerSvc, "profile"),
	}
	if err := p.writer.Start(ctx); err != nil {
		t.Fatalf("writer Start() error = %v", err)
	}

	var startErr error
	if err := loop.Do(ctx, func() { startErr = p.reader.Start(ctx) }); err != nil {
		t.Fatalf("loop error = %v", err)
	}
	if startErr != nil {
		t.Fatalf("reader Start() error = %v", startErr)
	}
	go p.reader.Watch(ctx) //nolint:errcheck // Ends with ctx

	t.Cleanup(func() {
		_ = p.writer.Close(context.Background())
		_ = loop.Do(ctx, func() { _ = p.reader.Close(context.Background()) })
	})
	return p
}

// typeValue writes v at path on the writer as a UI change.
func (p *syncPair) typeValue(path string, v any) {
	g := p.writer.Group()
	p.writerSvc.Coordinator().MarkAsUIChange(g)
	g.Get(path).SetValue(v)
}

// readerValue reads a value from the reader on its loop.
func (p *syncPair) readerValue(ctx context.Context, path string) any {
	var v any
	_ = p.loop.Do(ctx, func() { v = p.reader.Group().Get(path).Value() })
	return v
}
