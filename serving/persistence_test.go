package serving

import (
	"context"
	"log"
	"os"
	"testing"
	"time"
)

// openTestStore connects to the database named by TEST_POSTGRES_CONN and
// clears the endpoint tables. Tests are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	connString := os.Getenv("TEST_POSTGRES_CONN")
	if connString == "" {
		t.Skip("Skipping test: TEST_POSTGRES_CONN not set")
	}

	store, err := NewStore(connString, log.New(os.Stdout, "TEST: ", log.LstdFlags))
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, "DELETE FROM prediction_log"); err != nil {
		t.Fatalf("Failed to clean up prediction_log: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, "DELETE FROM model_versions"); err != nil {
		t.Fatalf("Failed to clean up model_versions: %v", err)
	}

	return store
}

func TestStore_VersionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	v1 := ModelVersion{
		Model:     "suntimes",
		Version:   "v1",
		Checksum:  "abc",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		IsDefault: true,
	}
	v2 := v1
	v2.Version = "v2"
	v2.CreatedAt = v1.CreatedAt.Add(time.Minute)
	v2.IsDefault = false

	if err := store.SaveVersion(ctx, v1); err != nil {
		t.Fatalf("SaveVersion returned error: %v", err)
	}
	if err := store.SaveVersion(ctx, v2); err != nil {
		t.Fatalf("SaveVersion returned error: %v", err)
	}

	versions, err := store.LoadVersions(ctx, "suntimes")
	if err != nil {
		t.Fatalf("LoadVersions returned error: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(versions))
	}
	if versions[0].Version != "v1" || !versions[0].IsDefault {
		t.Errorf("Unexpected first version: %+v", versions[0])
	}

	// Promoting v2 clears the default flag on v1
	v2.IsDefault = true
	if err := store.SaveVersion(ctx, v2); err != nil {
		t.Fatalf("SaveVersion returned error: %v", err)
	}

	versions, err = store.LoadVersions(ctx, "suntimes")
	if err != nil {
		t.Fatalf("LoadVersions returned error: %v", err)
	}
	for _, mv := range versions {
		if mv.Version == "v1" && mv.IsDefault {
			t.Error("Expected v1 default flag cleared after promoting v2")
		}
		if mv.Version == "v2" && !mv.IsDefault {
			t.Error("Expected v2 to be the default")
		}
	}

	if err := store.DeleteVersion(ctx, "suntimes", "v1"); err != nil {
		t.Fatalf("DeleteVersion returned error: %v", err)
	}
	versions, err = store.LoadVersions(ctx, "suntimes")
	if err != nil {
		t.Fatalf("LoadVersions returned error: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != "v2" {
		t.Errorf("Expected only v2 after delete, got %+v", versions)
	}
}

func TestStore_SavePredictions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	records := []PredictionRecord{
		{
			Timestamp:     now,
			ModelVersion:  "v1",
			Lat:           39.833,
			Lng:           -98.583,
			DayNo:         15,
			UTCOffset:     -6,
			SunriseHour:   7,
			SunriseMinute: 40.32,
			SunsetHour:    17,
			SunsetMinute:  9.64,
		},
		{
			Timestamp:    now + 1,
			ModelVersion: "v1",
			Lat:          80,
			Lng:          0,
			DayNo:        355,
			Error:        "polar night at latitude 80.000 on day 355: sun does not cross the horizon",
		},
	}

	if err := store.SavePredictions(ctx, records); err != nil {
		t.Fatalf("SavePredictions returned error: %v", err)
	}

	count, err := store.CountPredictions(ctx, "v1")
	if err != nil {
		t.Fatalf("CountPredictions returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 records, got %d", count)
	}

	// Empty batch is a no-op
	if err := store.SavePredictions(ctx, nil); err != nil {
		t.Errorf("SavePredictions of empty batch returned error: %v", err)
	}
}

func TestNewStore_EmptyConnString(t *testing.T) {
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	if store != nil {
		t.Error("Expected nil store for empty connection string")
	}
}
