package replay

import (
	"reflect"
	"testing"
)

func TestSplitBatches(t *testing.T) {
	got, err := SplitBatches(1, 6, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Batch{
		{From: 1, To: 2},
		{From: 3, To: 4},
		{From: 5, To: 6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}
}

func TestSplitBatchesUneven(t *testing.T) {
	got, err := SplitBatches(4, 8, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Batch{{From: 4, To: 6}, {From: 7, To: 8}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}
}

func TestSplitBatchesSingle(t *testing.T) {
	got, err := SplitBatches(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Batch{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}
}

func TestSplitBatchesInvalid(t *testing.T) {
	if _, err := SplitBatches(10, 9, 1); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := SplitBatches(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}
