package config

import (
	"errors"
	"testing"
)

func TestSettingsMissing(t *testing.T) {
	s := Settings{EndpointURL: "https://svc.example", Category: "101-G"}
	missing := s.Missing(KeyEndpointURL, KeyVolunteerCode, KeyCategory)
	if len(missing) != 1 || missing[0] != KeyVolunteerCode {
		t.Fatalf("Missing = %v", missing)
	}
	if _, err := s.With("torch", "on"); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestLiveSaveRereads(t *testing.T) {
	p := NewMemoryProvider(Settings{EndpointURL: "https://old.example"})
	live, err := NewLive(p)
	if err != nil {
		t.Fatalf("NewLive: %v", err)
	}
	if live.Settings().EndpointURL != "https://old.example" {
		t.Fatalf("initial = %+v", live.Settings())
	}

	next := Settings{EndpointURL: "https://new.example", VolunteerCode: "42", Category: "100-B"}
	if err := live.Save(next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := live.Settings(); got != next {
		t.Fatalf("after save = %+v", got)
	}
	if v, _ := p.Get(KeyVolunteerCode); v != "42" {
		t.Fatalf("provider not written: %q", v)
	}
}

type failingProvider struct{ *MemoryProvider }

func (failingProvider) Set(string, string) error { return errors.New("disk full") }

func TestLiveSaveError(t *testing.T) {
	p := failingProvider{NewMemoryProvider(Settings{EndpointURL: "https://a"})}
	live, err := NewLive(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := live.Save(Settings{EndpointURL: "https://b"}); err == nil {
		t.Fatal("Save ignored the provider error")
	}
	if live.Settings().EndpointURL != "https://a" {
		t.Fatal("failed save changed the in-memory settings")
	}
}
