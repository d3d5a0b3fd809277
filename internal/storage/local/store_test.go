package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/regionscan/regionscan/internal/storage"
)

func TestPutGetListDelete(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"exports/T/export=a/part-00001.parquet", "exports/T/export=a/part-00000.parquet", "exports/T/export=b/part-00000.parquet"} {
		if _, err := store.Put(ctx, key, bytes.NewBufferString(key), int64(len(key)), storage.PutOptions{}); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, "exports/T/export=a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "exports/T/export=a/part-00000.parquet" {
		t.Fatalf("List() = %+v", objects)
	}

	reader, err := store.Get(ctx, objects[1].Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	payload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || string(payload) != objects[1].Key {
		t.Fatalf("Get() payload = %q, err = %v", payload, err)
	}

	if err := store.Delete(ctx, objects[1].Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, objects[1].Key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrObjectNotFound", err)
	}
	if err := store.Delete(ctx, objects[1].Key); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestListMissingPrefixIsEmpty(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	objects, err := store.List(context.Background(), "nothing/here")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 0 {
		t.Fatalf("List() = %+v", objects)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected traversal error")
	}
}
