package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"medilink/pkg/domain"
	"medilink/pkg/store"
)

type fakeObjects struct {
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", fmt.Errorf("object %s missing", key)
	}
	return "https://objects.local/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type failingStore struct {
	store.Store
}

func (f *failingStore) AddScan(domain.Scan) error {
	return errors.New("db down")
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *fakeObjects) {
	t.Helper()
	mem := store.NewMemoryStore()
	objects := newFakeObjects()
	a, err := New(Config{Store: mem, Objects: objects})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem, objects
}

func TestUpdateAndGetProfile(t *testing.T) {
	a, _, _ := newTestApp(t)

	saved, err := a.UpdateProfile("patient-1", UpdateProfileInput{
		ChronicDiseases: []string{" asthma ", ""},
		Allergies:       []string{"penicillin"},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if len(saved.ChronicDiseases) != 1 || saved.ChronicDiseases[0] != "asthma" {
		t.Fatalf("list entries should be trimmed and filtered: %+v", saved.ChronicDiseases)
	}

	got, err := a.GetProfile("patient-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.Allergies[0] != "penicillin" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	if _, err := a.GetProfile("nobody"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestUpdateProfilePreservesCreatedAt(t *testing.T) {
	a, mem, _ := newTestApp(t)

	first, err := a.UpdateProfile("patient-1", UpdateProfileInput{Allergies: []string{"dust"}})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := a.UpdateProfile("patient-1", UpdateProfileInput{Allergies: []string{"dust", "pollen"}}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	got, _, _ := mem.GetProfile("patient-1")
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at must survive updates: %v vs %v", got.CreatedAt, first.CreatedAt)
	}
	if len(got.Allergies) != 2 {
		t.Fatalf("update should replace lists: %+v", got.Allergies)
	}
}

func TestUploadScanStoresObjectAndMetadata(t *testing.T) {
	a, mem, objects := newTestApp(t)

	data := []byte("fake image bytes")
	scan, err := a.UploadScan(context.Background(), "patient-1", "prescription.png", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("upload scan: %v", err)
	}
	if scan.ContentType != "image/png" {
		t.Fatalf("content type should come from the extension, got %s", scan.ContentType)
	}
	if !strings.HasPrefix(scan.StorageKey, "scans/patient-1/") {
		t.Fatalf("unexpected storage key: %s", scan.StorageKey)
	}
	if got := objects.objects[scan.StorageKey]; !bytes.Equal(got, data) {
		t.Fatalf("object bytes not stored")
	}
	scans, _ := mem.ListScans("patient-1")
	if len(scans) != 1 || scans[0].FileName != "prescription.png" {
		t.Fatalf("scan metadata not recorded: %+v", scans)
	}

	url, err := a.ScanDownloadURL(context.Background(), "patient-1", scan.ID)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if !strings.Contains(url, scan.StorageKey) {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestUploadScanValidation(t *testing.T) {
	a, mem, _ := newTestApp(t)

	if _, err := a.UploadScan(context.Background(), "patient-1", "notes.exe", strings.NewReader("x"), 1); err == nil {
		t.Fatal("unsupported extension must be rejected")
	}
	if _, err := a.UploadScan(context.Background(), "patient-1", "big.png", strings.NewReader("x"), maxScanBytes+1); err == nil {
		t.Fatal("oversized upload must be rejected")
	}
	if scans, _ := mem.ListScans("patient-1"); len(scans) != 0 {
		t.Fatalf("rejected uploads must not leave metadata: %+v", scans)
	}
}

func TestUploadScanRollsBackObjectOnStoreFailure(t *testing.T) {
	objects := newFakeObjects()
	a, err := New(Config{
		Store:   &failingStore{Store: store.NewMemoryStore()},
		Objects: objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	data := []byte("bytes")
	if _, err := a.UploadScan(context.Background(), "patient-1", "scan.jpg", bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if len(objects.objects) != 0 {
		t.Fatalf("orphaned object left behind: %v", objects.objects)
	}
}

func TestGetMedicalHistoryAssemblesSnapshot(t *testing.T) {
	a, _, _ := newTestApp(t)

	if _, err := a.UpdateProfile("patient-1", UpdateProfileInput{
		ChronicDiseases: []string{"diabetes"},
		PastMedications: []string{"metformin"},
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	data := []byte("img")
	if _, err := a.UploadScan(context.Background(), "patient-1", "rx.jpg", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("seed scan: %v", err)
	}

	history, err := a.GetMedicalHistory(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if history.ChronicDiseases[0] != "diabetes" || history.PastMedications[0] != "metformin" {
		t.Fatalf("profile fields missing: %+v", history)
	}
	if len(history.Scans) != 1 {
		t.Fatalf("scans missing: %+v", history.Scans)
	}

	// Unknown patients get an empty snapshot, not an error.
	empty, err := a.GetMedicalHistory(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("empty history: %v", err)
	}
	if empty.ChronicDiseases == nil || len(empty.ChronicDiseases) != 0 {
		t.Fatalf("expected empty non-nil lists: %+v", empty)
	}
}
