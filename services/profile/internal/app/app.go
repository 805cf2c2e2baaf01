package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"medilink/internal/util"
	"medilink/pkg/domain"
	"medilink/pkg/storage"
	"medilink/pkg/store"
)

// ErrProfileNotFound marks a lookup for a patient with no stored profile.
var ErrProfileNotFound = errors.New("profile not found")

// maxScanBytes caps a prescription scan upload.
const maxScanBytes = 10 << 20

// allowedScanTypes are the content types accepted for scan uploads.
var allowedScanTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"application/pdf": {},
}

// Config holds runtime configuration for the profile application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// App manages patient profiles and prescription scans.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	presignExpiry time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
	}
	return &App{
		store:         dataStore,
		objects:       objects,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// GetMedicalHistory assembles the snapshot fed into triage prompts.
// Profile and scans load concurrently; a patient without a stored
// profile still gets an empty (non-error) snapshot.
func (a *App) GetMedicalHistory(ctx context.Context, patientID string) (domain.MedicalHistory, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return domain.MedicalHistory{}, fmt.Errorf("patient id required")
	}

	var (
		profile domain.PatientProfile
		scans   []domain.Scan
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, ok, err := a.store.GetProfile(patientID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if ok {
			profile = p
		}
		return nil
	})
	g.Go(func() error {
		s, err := a.store.ListScans(patientID)
		if err != nil {
			return fmt.Errorf("list scans: %w", err)
		}
		scans = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.MedicalHistory{}, err
	}

	return domain.MedicalHistory{
		ChronicDiseases: emptyIfNil(profile.ChronicDiseases),
		Allergies:       emptyIfNil(profile.Allergies),
		PastMedications: emptyIfNil(profile.PastMedications),
		Scans:           scans,
	}, nil
}

// GetProfile returns the editable profile record.
func (a *App) GetProfile(patientID string) (domain.PatientProfile, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return domain.PatientProfile{}, fmt.Errorf("patient id required")
	}
	p, ok, err := a.store.GetProfile(patientID)
	if err != nil {
		return domain.PatientProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if !ok {
		return domain.PatientProfile{}, ErrProfileNotFound
	}
	return p, nil
}

// UpdateProfileInput carries the editable profile fields.
type UpdateProfileInput struct {
	ChronicDiseases []string `json:"chronicDiseases"`
	Allergies       []string `json:"allergies"`
	PastMedications []string `json:"pastMedications"`
}

// UpdateProfile creates or replaces the patient's profile.
func (a *App) UpdateProfile(patientID string, in UpdateProfileInput) (domain.PatientProfile, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return domain.PatientProfile{}, fmt.Errorf("patient id required")
	}
	now := time.Now().UTC()
	profile := domain.PatientProfile{
		PatientID:       patientID,
		ChronicDiseases: cleanList(in.ChronicDiseases),
		Allergies:       cleanList(in.Allergies),
		PastMedications: cleanList(in.PastMedications),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.UpsertProfile(profile); err != nil {
		return domain.PatientProfile{}, fmt.Errorf("save profile: %w", err)
	}
	saved, _, err := a.store.GetProfile(patientID)
	if err != nil {
		return domain.PatientProfile{}, fmt.Errorf("reload profile: %w", err)
	}
	return saved, nil
}

// UploadScan stores a prescription scan and records its metadata.
func (a *App) UploadScan(ctx context.Context, patientID, filename string, r io.Reader, size int64) (domain.Scan, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return domain.Scan{}, fmt.Errorf("patient id required")
	}
	if filename == "" {
		return domain.Scan{}, errors.New("filename required")
	}
	if size <= 0 || size > maxScanBytes {
		return domain.Scan{}, fmt.Errorf("scan size must be between 1 byte and %d bytes", maxScanBytes)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, ok := allowedScanTypes[contentType]; !ok {
		return domain.Scan{}, fmt.Errorf("unsupported scan type %s", contentType)
	}

	id := util.NewID()
	storageKey := buildStorageKey(patientID, id, filename)
	scan := domain.Scan{
		ID:          id,
		PatientID:   patientID,
		FileName:    filepath.Base(filename),
		StorageKey:  storageKey,
		ContentType: contentType,
		SizeBytes:   size,
		UploadedAt:  time.Now().UTC(),
	}
	if err := a.objects.Put(ctx, storageKey, r, size, contentType); err != nil {
		return domain.Scan{}, fmt.Errorf("save scan: %w", err)
	}
	if err := a.store.AddScan(scan); err != nil {
		_ = a.objects.Delete(ctx, storageKey)
		return domain.Scan{}, fmt.Errorf("record scan: %w", err)
	}
	return scan, nil
}

// ListScans returns a patient's scan metadata in upload order.
func (a *App) ListScans(patientID string) ([]domain.Scan, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("patient id required")
	}
	return a.store.ListScans(patientID)
}

// ScanDownloadURL returns a short-lived download link for a stored scan.
func (a *App) ScanDownloadURL(ctx context.Context, patientID, scanID string) (string, error) {
	scans, err := a.store.ListScans(patientID)
	if err != nil {
		return "", fmt.Errorf("list scans: %w", err)
	}
	for _, s := range scans {
		if s.ID == scanID {
			return a.objects.PresignGet(ctx, s.StorageKey, a.presignExpiry)
		}
	}
	return "", fmt.Errorf("scan not found")
}

func buildStorageKey(patientID, scanID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("scans/%s/%s%s", patientID, scanID, ext)
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}

func emptyIfNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
