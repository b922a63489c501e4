package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	logx "praypal/pkg/logx"
)

func intPtr(v int) *int { return &v }

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{}
	for _, driver := range []string{"sqlite", "badger"} {
		path := filepath.Join(t.TempDir(), "praypal.db")
		if driver == "badger" {
			path = filepath.Join(t.TempDir(), "badger")
		}
		st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestPreferenceLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ignore := cmpopts.IgnoreFields(Preference{}, "UpdatedAt")

	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			if _, ok, err := st.GetPreference(ctx, 42); err != nil || ok {
				t.Fatalf("GetPreference(missing) = ok %v err %v", ok, err)
			}

			if err := st.PutPreference(ctx, 42, "Singapore", nil); err != nil {
				t.Fatalf("PutPreference: %v", err)
			}
			got, ok, err := st.GetPreference(ctx, 42)
			if err != nil || !ok {
				t.Fatalf("GetPreference: ok %v err %v", ok, err)
			}
			want := Preference{SubscriberID: 42, Location: "Singapore", Active: true}
			if diff := cmp.Diff(want, got, ignore); diff != "" {
				t.Fatalf("after put (-want +got):\n%s", diff)
			}

			if err := st.PutPreference(ctx, 42, "Singapore", intPtr(10)); err != nil {
				t.Fatal(err)
			}
			if err := st.Deactivate(ctx, 42); err != nil {
				t.Fatalf("Deactivate: %v", err)
			}
			got, _, _ = st.GetPreference(ctx, 42)
			if !got.Inactive() || got.LeadTime == nil || *got.LeadTime != InactiveLeadTime {
				t.Fatalf("after deactivate: %+v", got)
			}

			// A fresh preference reactivates.
			if err := st.PutPreference(ctx, 42, "Jakarta", intPtr(5)); err != nil {
				t.Fatal(err)
			}
			got, _, _ = st.GetPreference(ctx, 42)
			want = Preference{SubscriberID: 42, Location: "Jakarta", LeadTime: intPtr(5), Active: true}
			if diff := cmp.Diff(want, got, ignore); diff != "" {
				t.Fatalf("after reactivation (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListSubscriberIDsSorted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			for _, id := range []int64{300, 7, 42} {
				if err := st.PutPreference(ctx, id, "Mecca", nil); err != nil {
					t.Fatal(err)
				}
			}
			_ = st.Deactivate(ctx, 7)
			ids, err := st.ListSubscriberIDs(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]int64{7, 42, 300}, ids); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeactivateUnknownIsNoop(t *testing.T) {
	t.Parallel()
	for driver, st := range openDrivers(t) {
		if err := st.Deactivate(context.Background(), 999); err != nil {
			t.Fatalf("%s: Deactivate(unknown) = %v", driver, err)
		}
		if _, ok, _ := st.GetPreference(context.Background(), 999); ok {
			t.Fatalf("%s: deactivate created a record", driver)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo", Path: t.TempDir()}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
