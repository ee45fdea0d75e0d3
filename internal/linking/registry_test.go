package linking

import (
	"reflect"
	"testing"
)

func TestLinkUnionIdempotent(t *testing.T) {
	r := NewRegistry()
	key := EPAKey("2", 1, 3)

	r.Link(key, "ev-a", "ev-b")
	r.Link(key, "ev-b", "ev-c")

	got := r.Get(key)
	want := []string{"ev-a", "ev-b", "ev-c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get(%s) = %v, want %v", key, got, want)
	}
}

func TestLinkEmptyInputsIgnored(t *testing.T) {
	r := NewRegistry()
	r.Link("", "ev-a")
	r.Link("REQ-1")
	r.Link("REQ-1", "")

	if len(r.All()) != 0 {
		t.Errorf("expected no entries, got %v", r.All())
	}
}

func TestUnlinkAbsentIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Link("REQ-7", "ev-a")

	r.Unlink("REQ-7", "ev-missing")
	r.Unlink("REQ-other", "ev-a")

	if got := r.Get("REQ-7"); !reflect.DeepEqual(got, []string{"ev-a"}) {
		t.Errorf("unlink of absent id mutated the set: %v", got)
	}
}

func TestUnlinkDropsEmptyKey(t *testing.T) {
	r := NewRegistry()
	r.Link("REQ-7", "ev-a")
	r.Unlink("REQ-7", "ev-a")

	if got := r.Get("REQ-7"); got != nil {
		t.Errorf("expected nil for emptied key, got %v", got)
	}
}

func TestForEPALevelHidesOtherLevels(t *testing.T) {
	r := NewRegistry()
	r.Link(EPAKey("1", 0, 0), "ev-a")
	r.Link(EPAKey("2", 0, 0), "ev-b")
	r.Link(GSATKey("communication", 1), "ev-c")
	r.Link("criterion-9", "ev-d")

	got := r.ForEPALevel("2")

	if _, hidden := got["EPA-L1-0-0"]; hidden {
		t.Error("level-1 key should be hidden at level 2")
	}
	if _, hidden := got["GSAT-communication-1"]; hidden {
		t.Error("GSAT keys should be hidden on EPA forms")
	}
	if !reflect.DeepEqual(got["EPA-L2-0-0"], []string{"ev-b"}) {
		t.Errorf("level-2 key missing or wrong: %v", got)
	}
	if !reflect.DeepEqual(got["criterion-9"], []string{"ev-d"}) {
		t.Errorf("plain requirement ids should pass through: %v", got)
	}
}

func TestDropEvidenceRemovesFromEveryKey(t *testing.T) {
	r := NewRegistry()
	r.Link("REQ-1", "ev-a", "ev-b")
	r.Link("REQ-2", "ev-a")

	r.DropEvidence("ev-a")

	if r.Contains("REQ-1", "ev-a") || r.Contains("REQ-2", "ev-a") {
		t.Error("ev-a should be gone from every key")
	}
	if !r.Contains("REQ-1", "ev-b") {
		t.Error("unrelated ids must survive")
	}
}

func TestKeyEncoding(t *testing.T) {
	if got := EPAKey("1", 0, 0); got != "EPA-L1-0-0" {
		t.Errorf("EPAKey = %q", got)
	}
	if got := GSATKey("teaching", 2); got != "GSAT-teaching-2" {
		t.Errorf("GSATKey = %q", got)
	}
}
