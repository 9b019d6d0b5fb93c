package task

import "testing"

func TestHeaderAppendError(t *testing.T) {
	var h Header
	h.AppendError("first failure")
	h.AppendError("second failure")

	if !h.HasError {
		t.Fatalf("expected HasError to be true")
	}
	want := "first failure\r\nsecond failure"
	if h.ErrorMessage != want {
		t.Fatalf("ErrorMessage = %q, want %q", h.ErrorMessage, want)
	}
}

func TestHeaderAppendErrorIgnoresBlank(t *testing.T) {
	var h Header
	h.AppendError("   ")
	if h.HasError {
		t.Fatalf("blank message must not flip HasError")
	}
}

func TestHeaderClaimed(t *testing.T) {
	h := Header{}
	if h.Claimed() {
		t.Fatalf("empty identify code must not be claimed")
	}
	h.IdentifyCode = "node-a"
	if !h.Claimed() {
		t.Fatalf("expected claimed once identify code is set")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := &Import{Header: Header{Code: 1}, DataPath: "/tmp/1.dat"}
	clone := Clone(original).(*Import)
	clone.DataPath = "/tmp/2.dat"
	if original.DataPath == clone.DataPath {
		t.Fatalf("clone must not alias the original")
	}

	exportOriginal := &Export{QueryList: []QueryInfo{{TableName: "a"}}}
	exportClone := Clone(exportOriginal).(*Export)
	exportClone.QueryList[0].TableName = "b"
	if exportOriginal.QueryList[0].TableName == "b" {
		t.Fatalf("clone must copy QueryList backing array")
	}
}

func TestIDGeneratorMonotonic(t *testing.T) {
	gen := NewIDGenerator(3)
	previous := int64(0)
	for i := 0; i < 10_000; i++ {
		next := gen.Next()
		if next <= previous {
			t.Fatalf("id generator produced non-increasing id: %d after %d", next, previous)
		}
		previous = next
	}
}

func TestIDGeneratorNodeFolding(t *testing.T) {
	gen := NewIDGenerator(idNodeMax + 5)
	if gen.nodeID != 5 {
		t.Fatalf("expected node id to fold into range, got %d", gen.nodeID)
	}
}
