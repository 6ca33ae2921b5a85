package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkMemoryTryBeginNew measures admitting fresh document ids.
func BenchmarkMemoryTryBeginNew(b *testing.B) {
	l := NewMemory(Policy{MaxAttempts: 3, LeaseTimeout: time.Hour})
	ctx := context.Background()
	ids := make([]string, b.N)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%d", i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := l.TryBegin(ctx, ids[i]); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryTryBeginRedelivery measures the duplicate path, where every
// call finds the document already completed.
func BenchmarkMemoryTryBeginRedelivery(b *testing.B) {
	l := NewMemory(Policy{MaxAttempts: 3, LeaseTimeout: time.Hour})
	ctx := context.Background()
	if _, _, err := l.TryBegin(ctx, "doc"); err != nil {
		b.Fatal(err)
	}
	if _, err := l.MarkCompleted(ctx, "doc", 1); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if r, _, _ := l.TryBegin(ctx, "doc"); r != AlreadyCompleted {
				b.Errorf("got %v", r)
				return
			}
		}
	})
}
