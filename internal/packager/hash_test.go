package packager

import (
	"testing"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

func sampleManifest() models.PluginManifest {
	return models.PluginManifest{
		ID: "weather", Name: "Weather", Version: "1.0.0",
		Actions: []models.ActionSpec{
			{Name: "get_weather", Type: models.ActionTypePython, Trigger: models.TriggerManual},
		},
	}
}

func TestVerifyManifestWithoutIntegrityIsTrusted(t *testing.T) {
	valid, message := VerifyManifest(sampleManifest())
	if !valid {
		t.Fatalf("unsigned manifest should verify as valid, got message: %s", message)
	}
	if message != "No integrity lock (unverified plugin)" {
		t.Fatalf("unexpected message: %s", message)
	}
}

func TestSignThenVerifyRoundTrips(t *testing.T) {
	signed, err := SignManifest(sampleManifest(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signed.Integrity == nil || signed.Integrity.SHA256 == "" {
		t.Fatal("expected integrity block to be populated")
	}
	valid, message := VerifyManifest(signed)
	if !valid {
		t.Fatalf("signed manifest should verify: %s", message)
	}
}

func TestVerifyManifestDetectsTamper(t *testing.T) {
	signed, err := SignManifest(sampleManifest(), time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signed.Description = "tampered after signing"

	valid, message := VerifyManifest(signed)
	if valid {
		t.Fatal("tampered manifest should fail verification")
	}
	if message == "" {
		t.Fatal("expected a mismatch message")
	}
}

func TestVerifyManifestRejectsMissingHash(t *testing.T) {
	m := sampleManifest()
	m.Integrity = &models.Integrity{}
	valid, message := VerifyManifest(m)
	if valid {
		t.Fatal("manifest with empty sha256 should not verify")
	}
	if message != "Invalid integrity block: missing sha256" {
		t.Fatalf("unexpected message: %s", message)
	}
}

func TestCanonicalHashIsOrderIndependent(t *testing.T) {
	a := sampleManifest()
	b := models.PluginManifest{
		Version: a.Version, Name: a.Name, ID: a.ID, Actions: a.Actions,
	}
	hashA, err := canonicalManifestHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hashB, err := canonicalManifestHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if hashA != hashB {
		t.Fatalf("hash should not depend on Go struct field order: %s != %s", hashA, hashB)
	}
}
