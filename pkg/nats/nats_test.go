package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/zoobzio/formz"
)

func setupNATS(t *testing.T) jetstream.KeyValue {
	t.Helper()
	ctx := context.Background()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine", tcnats.WithArgument("store_dir", "/tmp/nats"))
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	nc, err := nats.Connect(endpoint)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
	})

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("failed to create jetstream: %v", err)
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: "forms",
	})
	if err != nil {
		t.Fatalf("failed to create kv bucket: %v", err)
	}

	return kv
}

func TestStore_GetSetDelete(t *testing.T) {
	store := New(setupNATS(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := store.Get(ctx, "signup"); !errors.Is(err, formz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "signup", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, err := store.Get(ctx, "signup")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != `{"v":1}` {
		t.Errorf("Get() = %q", data)
	}
	if err := store.Delete(ctx, "signup"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "signup"); !errors.Is(err, formz.ErrNotFound) {
		t.Errorf("expected ErrNotFound after Delete, got %v", err)
	}
}

func TestStore_WatchEmitsInitialValue(t *testing.T) {
	store := New(setupNATS(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value := []byte(`{"port": 8080}`)
	if err := store.Set(ctx, "profile", value); err != nil {
		t.Fatalf("failed to put initial value: %v", err)
	}

	ch, err := store.Watch(ctx, "profile")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != string(value) {
			t.Errorf("expected %q, got %q", value, data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}
}

func TestStore_WatchEmitsOnChangeAndSkipsDeletes(t *testing.T) {
	store := New(setupNATS(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.Set(ctx, "profile", []byte(`{"v": 1}`)); err != nil {
		t.Fatalf("failed to put initial value: %v", err)
	}

	ch, err := store.Watch(ctx, "profile")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Drain initial value
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}

	if err := store.Delete(ctx, "profile"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Set(ctx, "profile", []byte(`{"v": 2}`)); err != nil {
		t.Fatalf("failed to update value: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 2}` {
			t.Errorf("expected updated value, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestStore_WatchClosesOnContextCancel(t *testing.T) {
	store := New(setupNATS(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ch, err := store.Watch(ctx, "missing")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}
