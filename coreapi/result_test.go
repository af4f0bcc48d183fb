package coreapi

import "testing"

func TestResultJSONReportsDataOnSuccess(t *testing.T) {
	r := OK("fs.stat", "3", map[string]any{"size": 10})
	out := r.JSON()
	if out["seq"] != "3" || out["source"] != "fs.stat" {
		t.Fatalf("unexpected envelope: %v", out)
	}
	if _, ok := out["err"]; ok {
		t.Fatal("expected no err key on a successful result")
	}
	data, ok := out["data"].(map[string]any)
	if !ok || data["size"] != 10 {
		t.Fatalf("expected data to round-trip, got %v", out["data"])
	}
}

func TestResultJSONReportsErrOnFailure(t *testing.T) {
	r := Failed("fs.open", "1", NotOpenError(ID(5)))
	out := r.JSON()
	if _, ok := out["data"]; ok {
		t.Fatal("expected no data key on a failed result")
	}
	errOut, ok := out["err"].(map[string]any)
	if !ok {
		t.Fatalf("expected an err map, got %v", out["err"])
	}
	if errOut["type"] != string(KindNotOpen) || errOut["id"] != uint64(5) {
		t.Fatalf("unexpected err payload: %v", errOut)
	}
}

func TestResultJSONReportsUnsolicitedSeqMarker(t *testing.T) {
	r := OK("tcp.event", UnsolicitedSeq, nil)
	out := r.JSON()
	if out["seq"] != UnsolicitedSeq {
		t.Fatalf("expected seq to carry the unsolicited marker, got %v", out["seq"])
	}
}
