package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,20}$`)

const (
	maxFullNameLength = 100
	// MaxPictureBytes caps an uploaded profile picture.
	MaxPictureBytes = 2 << 20
)

var pictureTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ProfileService reads and updates user profiles. Pictures go to the same
// storage as backups; a nil storage disables picture uploads.
type ProfileService struct {
	store    port.ProfileStore
	pictures port.BackupStorage
	logger   *zap.Logger
	now      func() time.Time
}

// NewProfileService creates a profile service.
func NewProfileService(store port.ProfileStore, pictures port.BackupStorage, logger *zap.Logger) *ProfileService {
	return &ProfileService{store: store, pictures: pictures, logger: logger, now: time.Now}
}

// Get returns the user's profile. A user without one gets a blank profile
// with NeedsProfile set, so the client can send them to the setup screen.
func (s *ProfileService) Get(ctx context.Context, userID, email string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	p, err := s.store.GetProfile(ctx, userID)
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return &domain.UserProfile{
			UserID:       userID,
			Email:        email,
			Currency:     domain.DefaultCurrency,
			NeedsProfile: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	if p.Email == "" {
		p.Email = email
	}
	p.NeedsProfile = p.FullName == "" || p.Username == ""
	return p, nil
}

// Update applies the non-nil fields of req. Usernames are unique across users.
func (s *ProfileService) Update(ctx context.Context, userID, email string, req *domain.UpdateProfileRequest) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	p, err := s.Get(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" || len([]rune(name)) > maxFullNameLength {
			return nil, &domain.ErrValidation{Field: "fullName", Message: fmt.Sprintf("must be 1-%d characters", maxFullNameLength)}
		}
		p.FullName = name
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if !usernamePattern.MatchString(username) {
			return nil, &domain.ErrValidation{
				Field:   "username",
				Message: "must be 3-20 characters of letters, numbers, underscores or dots",
			}
		}
		if username != p.Username {
			if err := s.ensureUsernameFree(ctx, userID, username); err != nil {
				return nil, err
			}
		}
		p.Username = username
	}

	if req.Mobile != nil {
		p.Mobile = strings.TrimSpace(*req.Mobile)
	}

	if req.Currency != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if _, ok := domain.LookupCurrency(code); !ok {
			return nil, &domain.ErrValidation{Field: "currency", Message: "unsupported currency " + code}
		}
		p.Currency = code
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	p.NeedsProfile = p.FullName == "" || p.Username == ""
	s.logger.Info("profile updated", zap.String("user_id", userID))
	return p, nil
}

// UploadPicture stores the image at profile_pictures/<userID>, replacing any
// earlier one, and records where it landed on the profile.
func (s *ProfileService) UploadPicture(ctx context.Context, userID, email, contentType string, content []byte) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.UploadPicture")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("picture.bytes", len(content)))

	if s.pictures == nil {
		return nil, &domain.ErrExternalService{Service: "storage", Err: errors.New("no picture storage configured")}
	}
	if len(content) == 0 {
		return nil, &domain.ErrValidation{Field: "picture", Message: "image is empty"}
	}
	if len(content) > MaxPictureBytes {
		return nil, &domain.ErrValidation{Field: "picture", Message: fmt.Sprintf("image must be at most %d bytes", MaxPictureBytes)}
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !pictureTypes[contentType] {
		return nil, &domain.ErrValidation{Field: "picture", Message: "image must be JPEG, PNG, GIF or WebP"}
	}

	p, err := s.Get(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	location, err := s.pictures.Upload(ctx, "profile_pictures/"+userID, &domain.ExportFile{
		Filename:    userID,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return nil, fmt.Errorf("upload profile picture: %w", err)
	}

	p.ProfilePicture = location
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	s.logger.Info("profile picture updated",
		zap.String("user_id", userID),
		zap.String("location", location),
		zap.Int("bytes", len(content)),
	)
	return p, nil
}

func (s *ProfileService) ensureUsernameFree(ctx context.Context, userID, username string) error {
	owner, err := s.store.FindProfileByUsername(ctx, username)
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if owner.UserID != userID {
		return &domain.ErrConflict{Message: "username is already taken"}
	}
	return nil
}

// Currencies lists the supported display currencies.
func (s *ProfileService) Currencies() []domain.Currency {
	return domain.Currencies
}
