package id_test

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/enrich/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"EntityID", id.NewEntityID, "ent_"},
		{"TicketID", id.NewTicketID, "tkt_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewTicketID()
	parsed, err := id.ParseTicketID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseTicketID(id.NewEntityID().String()); err == nil {
		t.Error("ParseTicketID accepted an entity id")
	}
	if _, err := id.ParseEntityID(id.NewTicketID().String()); err == nil {
		t.Error("ParseEntityID accepted a ticket id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestKeysSortByCreation(t *testing.T) {
	ids := make([]string, 0, 10)
	for range 10 {
		ids = append(ids, id.NewTicketID().String())
		time.Sleep(2 * time.Millisecond)
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("sequentially generated ticket ids are not in lexical order")
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	type record struct {
		ID    id.ID `msgpack:"id"`
		Owner id.ID `msgpack:"owner"`
	}

	in := record{ID: id.NewTicketID()}
	data, err := msgpack.Marshal(&in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out record
	if err := msgpack.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("ID = %q, want %q", out.ID, in.ID)
	}
	if !out.Owner.IsNil() {
		t.Errorf("Owner = %q, want nil", out.Owner)
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewEntityID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}
}
