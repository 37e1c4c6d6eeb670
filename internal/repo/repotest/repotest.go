// Package repotest holds the behavior every Repository backend must share.
package repotest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

// Run exercises r against the Repository contract. newRepo must return an
// empty store on every call.
func Run(t *testing.T, newRepo func(t *testing.T) repo.Repository) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, r repo.Repository)
	}{
		{"FetchMissingGroupInitializesEmpty", testFetchMissing},
		{"AddAppendsInOrder", testAddOrder},
		{"AddDoesNotDeduplicate", testAddNoDedup},
		{"RemoveCaseInsensitiveAndIdempotent", testRemove},
		{"BulkReplaceOverwrites", testBulkReplace},
		{"UpdateOneMatchesByName", testUpdateOne},
		{"GroupsAreIsolated", testIsolation},
		{"RecordFieldsSurvive", testFieldsSurvive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo(t))
		})
	}
}

// Rec builds a minimal valid record.
func Rec(name string) domain.Record {
	s, err := domain.NewService(name, "https://"+name+".example.com", nil, domain.KindHTTP)
	if err != nil {
		panic(err)
	}
	return s.ToRecord()
}

func names(recs []domain.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustFetch(t *testing.T, r repo.Repository, group string) []domain.Record {
	t.Helper()
	recs, err := r.FetchAll(context.Background(), group)
	if err != nil {
		t.Fatalf("FetchAll(%s): %v", group, err)
	}
	return recs
}

func testFetchMissing(t *testing.T, r repo.Repository) {
	if recs := mustFetch(t, r, "fresh"); len(recs) != 0 {
		t.Fatalf("want empty, got %v", names(recs))
	}
	ids, err := r.ListGroupIDs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, id := range ids {
		if id == "fresh" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fetched group should be initialized, ids=%v", ids)
	}
}

func testAddOrder(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	for _, n := range []string{"c", "a", "b"} {
		if err := r.Add(ctx, "g", Rec(n)); err != nil {
			t.Fatalf("Add(%s): %v", n, err)
		}
	}
	if got := names(mustFetch(t, r, "g")); !equal(got, []string{"c", "a", "b"}) {
		t.Fatalf("order not preserved: %v", got)
	}
}

func testAddNoDedup(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	_ = r.Add(ctx, "g", Rec("x"))
	_ = r.Add(ctx, "g", Rec("x"))
	if got := mustFetch(t, r, "g"); len(got) != 2 {
		t.Fatalf("repository must not deduplicate, got %v", names(got))
	}
}

func testRemove(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	_ = r.Add(ctx, "g", Rec("Alpha"))
	_ = r.Add(ctx, "g", Rec("beta"))

	if err := r.Remove(ctx, "g", "ALPHA"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := names(mustFetch(t, r, "g")); !equal(got, []string{"beta"}) {
		t.Fatalf("after remove: %v", got)
	}
	if err := r.Remove(ctx, "g", "alpha"); err != nil {
		t.Fatalf("second Remove should be a no-op, got %v", err)
	}
	if err := r.Remove(ctx, "never-written", "x"); err != nil {
		t.Fatalf("Remove on empty group: %v", err)
	}
}

func testBulkReplace(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	_ = r.Add(ctx, "g", Rec("old"))
	if err := r.BulkReplace(ctx, "g", []domain.Record{Rec("n1"), Rec("n2")}); err != nil {
		t.Fatalf("BulkReplace: %v", err)
	}
	if got := names(mustFetch(t, r, "g")); !equal(got, []string{"n1", "n2"}) {
		t.Fatalf("after replace: %v", got)
	}
	if err := r.BulkReplace(ctx, "g", nil); err != nil {
		t.Fatalf("BulkReplace(nil): %v", err)
	}
	if got := mustFetch(t, r, "g"); len(got) != 0 {
		t.Fatalf("want empty, got %v", names(got))
	}
}

func testUpdateOne(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	_ = r.Add(ctx, "g", Rec("a"))
	_ = r.Add(ctx, "g", Rec("b"))

	upd := Rec("B")
	upd.Status = string(domain.StatusUnhealthy)
	if err := r.UpdateOne(ctx, "g", upd); err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	got := mustFetch(t, r, "g")
	if len(got) != 2 || got[1].Status != string(domain.StatusUnhealthy) || got[0].Status != string(domain.StatusUnknown) {
		t.Fatalf("unexpected records after update: %+v", got)
	}
	if err := r.UpdateOne(ctx, "g", Rec("missing")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testIsolation(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	_ = r.Add(ctx, "g1", Rec("one"))
	_ = r.Add(ctx, "g2", Rec("two"))
	_ = r.Remove(ctx, "g1", "two")

	if got := names(mustFetch(t, r, "g1")); !equal(got, []string{"one"}) {
		t.Fatalf("g1: %v", got)
	}
	if got := names(mustFetch(t, r, "g2")); !equal(got, []string{"two"}) {
		t.Fatalf("g2: %v", got)
	}
	ids, err := r.ListGroupIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(ids)
	if !equal(ids, []string{"g1", "g2"}) {
		t.Fatalf("group ids: %v", ids)
	}
}

func testFieldsSurvive(t *testing.T, r repo.Repository) {
	ctx := context.Background()
	port := 443
	code := 503
	ttfb := 0.5
	ts := "2025-08-18T12:00:00.123456"
	disabled := false
	in := domain.Record{
		Name: "full", URL: "example.com", Port: &port, TransportKind: "http",
		Enabled: &disabled, Status: "cert_expired",
		LastTimeHealthy: &ts, LastHTTPResponseStatusCode: &code, TimeToFirstByte: &ttfb, ExpireDate: &ts,
	}
	if err := r.BulkReplace(ctx, "g", []domain.Record{in}); err != nil {
		t.Fatal(err)
	}
	got := mustFetch(t, r, "g")
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
	out := got[0]
	if out.Port == nil || *out.Port != 443 || out.Enabled == nil || *out.Enabled ||
		out.LastTimeHealthy == nil || *out.LastTimeHealthy != ts ||
		out.LastHTTPResponseStatusCode == nil || *out.LastHTTPResponseStatusCode != 503 ||
		out.TimeToFirstByte == nil || *out.TimeToFirstByte != 0.5 || out.Status != "cert_expired" {
		t.Fatalf("fields lost: %+v", out)
	}
}
