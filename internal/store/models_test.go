package store

import (
	"testing"

	"github.com/google/uuid"
)

func TestJSONMap_ValueAndScanRoundTrip(t *testing.T) {
	original := JSONMap{"stage": "image_generated", "attempt": float64(2)}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() returned error: %v", err)
	}

	var scanned JSONMap
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan() returned error: %v", err)
	}

	if scanned["stage"] != "image_generated" {
		t.Errorf("expected stage=image_generated, got %v", scanned["stage"])
	}
	if scanned["attempt"] != float64(2) {
		t.Errorf("expected attempt=2, got %v", scanned["attempt"])
	}
}

func TestJSONMap_ScanNil(t *testing.T) {
	var m JSONMap
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) returned error: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil empty map after Scan(nil)")
	}
}

func TestJSONMap_ScanRejectsUnsupportedType(t *testing.T) {
	var m JSONMap
	if err := m.Scan(42); err == nil {
		t.Fatal("expected error scanning an int, got nil")
	}
}

func TestApplyDonationFields(t *testing.T) {
	donation := &Donation{}
	postID := uuid.New()

	applyDonationFields(donation, map[string]interface{}{
		"amount_minor": int64(2500),
		"status":       DonationSucceeded,
		"post_id":      &postID,
		"anonymous":    true,
	})

	if donation.AmountMinor != 2500 {
		t.Errorf("expected amount_minor=2500, got %d", donation.AmountMinor)
	}
	if donation.Status != DonationSucceeded {
		t.Errorf("expected status=%s, got %s", DonationSucceeded, donation.Status)
	}
	if donation.PostID == nil || *donation.PostID != postID {
		t.Errorf("expected post_id=%s, got %v", postID, donation.PostID)
	}
	if !donation.Anonymous {
		t.Error("expected anonymous=true")
	}
}
