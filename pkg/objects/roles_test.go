package objects

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRoleTable_LookupOrder(t *testing.T) {
	table := RoleTable{
		"FS20_state": {Role: "switch", Type: ValueBoolean},
		"state":      {Role: "text"},
	}

	c := table.StateCommon("FS20", "state", "11")
	if c.Role != "switch" || c.Type != ValueBoolean {
		t.Errorf("device-specific template not used: %+v", c)
	}

	c = table.StateCommon("HMS", "state", "11")
	if c.Role != "text" || c.Type != ValueString {
		t.Errorf("field template not used: %+v", c)
	}

	c = table.StateCommon("HMS", "val", 3.0)
	if c.Role != DefaultRole || c.Type != ValueNumber || !c.Read || !c.Write {
		t.Errorf("default fallback wrong: %+v", c)
	}
	if c.Name != "val" {
		t.Errorf("name = %q", c.Name)
	}
}

func TestBuiltinRoles_RSSI(t *testing.T) {
	c := BuiltinRoles().StateCommon("FS20", "rssi", -59.0)
	if c.Role != "value.rssi" || c.Type != ValueNumber || c.Unit != "dBm" || c.Write {
		t.Errorf("rssi template = %+v", c)
	}
}

func TestRoleTable_LoadRoleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := "FS20_cmd:\n  role: level\n  type: number\nval:\n  role: value.temperature\n  unit: \"°C\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table := BuiltinRoles()
	if err := table.LoadRoleFile(path); err != nil {
		t.Fatalf("LoadRoleFile: %v", err)
	}
	if tpl := table["FS20_cmd"]; tpl.Role != "level" || tpl.Type != ValueNumber {
		t.Errorf("FS20_cmd = %+v", tpl)
	}
	if tpl := table["val"]; tpl.Unit != "°C" {
		t.Errorf("val = %+v", tpl)
	}
	if _, ok := table["rssi"]; !ok {
		t.Error("builtin entries must survive the merge")
	}

	if err := table.LoadRoleFile(filepath.Join(dir, "missing.yaml")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}

func TestRoleTable_MergeNative(t *testing.T) {
	table := RoleTable{}
	table.MergeNative(map[string]any{
		"cmd":  "switch",
		"peak": map[string]any{"role": "value.power", "type": "number", "unit": "W"},
		"bad":  42.0,
	})
	if table["cmd"].Role != "switch" {
		t.Errorf("cmd = %+v", table["cmd"])
	}
	if tpl := table["peak"]; tpl.Role != "value.power" || tpl.Type != ValueNumber || tpl.Unit != "W" {
		t.Errorf("peak = %+v", tpl)
	}
	if _, ok := table["bad"]; ok {
		t.Error("non-template values must be skipped")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.CreateObjectIfAbsent(ctx, "FS20.1A2B3C", Object{Type: TypeDevice})
	if err != nil || !created {
		t.Fatalf("first create = %v, %v", created, err)
	}
	created, _ = s.CreateObjectIfAbsent(ctx, "FS20.1A2B3C", Object{Type: TypeState})
	if created {
		t.Error("second create must be a no-op")
	}
	obj, err := s.GetObject(ctx, "FS20.1A2B3C")
	if err != nil || obj.Type != TypeDevice || obj.ID != "FS20.1A2B3C" {
		t.Errorf("GetObject = %+v, %v", obj, err)
	}
	if _, err := s.GetObject(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetState(ctx, "EM.0102.total", Coerce("x", ValueNumber), true); err != nil {
		t.Fatal(err)
	}
	st, err := s.GetState(ctx, "EM.0102.total")
	if err != nil || st.Val != nil || !st.Ack {
		t.Errorf("NaN should persist as nil: %+v, %v", st, err)
	}

	s.CreateObjectIfAbsent(ctx, "HMS.1234", Object{Type: TypeDevice})
	list, _ := s.ListObjects(ctx, "FS20.")
	if len(list) != 1 || list[0].ID != "FS20.1A2B3C" {
		t.Errorf("ListObjects = %+v", list)
	}
}
