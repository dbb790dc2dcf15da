package records

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
)

func TestMemoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	for _, id := range []string{"b", "a", "c"} {
		if err := r.Insert(ctx, models.KindSilos, models.Record{"id": id}); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}
	if err := r.Insert(ctx, models.KindSilos, models.Record{"id": "a"}); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}

	list, _ := r.List(ctx, models.KindSilos)
	if len(list) != 3 || list[0].ID() != "b" || list[2].ID() != "c" {
		t.Fatalf("unexpected order: %v", list)
	}

	if err := r.Update(ctx, models.KindSilos, models.Record{"id": "a", "name": "A"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := r.Get(ctx, models.KindSilos, "a")
	if err != nil || got["name"] != "A" {
		t.Fatalf("Get after update: %v %v", got, err)
	}

	// returned records are copies
	got["name"] = "mutated"
	again, _ := r.Get(ctx, models.KindSilos, "a")
	if again["name"] != "A" {
		t.Fatalf("repository leaked its record")
	}

	if err := r.Delete(ctx, models.KindSilos, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ = r.List(ctx, models.KindSilos)
	if len(list) != 2 || list[0].ID() != "a" {
		t.Fatalf("unexpected list after delete: %v", list)
	}
}

func TestMemoryRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	if _, err := r.Get(ctx, models.KindUsers, "x"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("Get: expected ErrorNotFound, got %v", err)
	}
	if err := r.Update(ctx, models.KindUsers, models.Record{"id": "x"}); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("Update: expected ErrorNotFound, got %v", err)
	}
	if err := r.Delete(ctx, models.KindUsers, "x"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("Delete: expected ErrorNotFound, got %v", err)
	}
	list, err := r.List(ctx, models.KindUsers)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("List of empty kind: %#v %v", list, err)
	}
}
