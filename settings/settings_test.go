package settings

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	if _, ok := s.Value("missing"); ok {
		t.Error("missing key reported present")
	}

	s.SetValue("theme", "dark")
	if v, ok := s.Value("theme"); !ok || v != "dark" {
		t.Errorf("Value = %q, %v", v, ok)
	}

	s.SetStringList("Plugins/Ignored", []string{"a", "b"})
	if got := s.StringList("Plugins/Ignored"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("StringList = %v", got)
	}

	s.Remove("theme")
	if _, ok := s.Value("theme"); ok {
		t.Error("removed key still present")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings", "host.yaml")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s.SetValue("theme", "dark")
	s.SetStringList("Plugins/ForceEnabled", []string{"exp"})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.Value("theme"); !ok || v != "dark" {
		t.Errorf("Value after reload = %q, %v", v, ok)
	}
	if got := reopened.StringList("Plugins/ForceEnabled"); !reflect.DeepEqual(got, []string{"exp"}) {
		t.Errorf("StringList after reload = %v", got)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Value("anything"); ok {
		t.Error("fresh store should be empty")
	}
}

func TestFileStoreUnchangedSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("save without changes should not create the file")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("values: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Error("corrupt settings file should fail to open")
	}
}

func TestSetValueWithDefault(t *testing.T) {
	s := NewMemStore()

	SetValueWithDefault(s, "mode", "fast", "fast")
	if _, ok := s.Value("mode"); ok {
		t.Error("default value should not be stored")
	}

	SetValueWithDefault(s, "mode", "slow", "fast")
	if v, _ := s.Value("mode"); v != "slow" {
		t.Errorf("Value = %q", v)
	}

	// Writing the default again removes the override.
	SetValueWithDefault(s, "mode", "fast", "fast")
	if _, ok := s.Value("mode"); ok {
		t.Error("override should be removed when reset to default")
	}
}

func TestSetStringListWithDefault(t *testing.T) {
	s := NewMemStore()

	SetStringListWithDefault(s, "Plugins/Ignored", nil, nil)
	if got := s.StringList("Plugins/Ignored"); got != nil {
		t.Errorf("StringList = %v", got)
	}

	SetStringListWithDefault(s, "Plugins/Ignored", []string{"a"}, nil)
	if got := s.StringList("Plugins/Ignored"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("StringList = %v", got)
	}
}

func TestRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{URL: "not-a-url"})
	if err == nil {
		t.Error("invalid redis URL should fail")
	}
}
