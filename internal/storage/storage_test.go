package storage

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
)

func TestDeleteAllFallsBackToSingleDeletes(t *testing.T) {
	store := &mapStore{failKey: "b"}
	err := DeleteAll(context.Background(), store, []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected error for failing key")
	}
	if !slices.Equal(store.deleted, []string{"a", "c"}) {
		t.Fatalf("deleted = %v, want [a c]", store.deleted)
	}
}

func TestDeleteAllPrefersBatch(t *testing.T) {
	store := &batchStore{}
	if err := DeleteAll(context.Background(), store, []string{"a", "b"}); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if store.batches != 1 || len(store.deleted) != 0 {
		t.Fatalf("batches = %d single deletes = %v", store.batches, store.deleted)
	}
	if err := DeleteAll(context.Background(), store, nil); err != nil {
		t.Fatalf("DeleteAll(nil) error = %v", err)
	}
	if store.batches != 1 {
		t.Fatalf("batches = %d, want no call for empty key list", store.batches)
	}
}

type mapStore struct {
	failKey string
	deleted []string
}

func (m *mapStore) Put(context.Context, string, io.Reader, int64, PutOptions) (ObjectInfo, error) {
	return ObjectInfo{}, errors.New("not implemented")
}

func (m *mapStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, ErrObjectNotFound
}

func (m *mapStore) List(context.Context, string) ([]ObjectInfo, error) {
	return nil, nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	if key == m.failKey {
		return errors.New("access denied")
	}
	m.deleted = append(m.deleted, key)
	return nil
}

type batchStore struct {
	mapStore
	batches int
}

func (b *batchStore) DeleteMany(context.Context, []string) error {
	b.batches++
	return nil
}
