package card

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cardfolio/cardfolio/internal/capture"
)

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// CardInput is the editable draft submitted when creating or updating a
// card. ImageID optionally references a blob produced by CaptureDraft.
type CardInput struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
	ImageID string `json:"image_id"`
}

// Draft is the result of a capture: a stored normalized image plus the
// extracted fields, handed to the client to pre-fill an editable form. It is
// never persisted as a card without explicit submission.
type Draft struct {
	ImageID   string                  `json:"image_id"`
	ImageType string                  `json:"image_type"`
	Fields    capture.ExtractedFields `json:"fields"`
}

// Service implements account, card, and capture operations over the DB,
// blob storage, and OCR engine.
type Service struct {
	db          DB
	storage     Storage
	recognizer  capture.Recognizer
	idGenerator IDGenerator
	timeSource  TimeSource
	sessionTTL  time.Duration
}

// NewService creates a Service with UUID IDs and wall-clock time.
func NewService(db DB, storage Storage, recognizer capture.Recognizer) *Service {
	return NewServiceWithDeps(db, storage, recognizer, uuidGenerator{}, defaultTimeSource{}, DefaultSessionTTL)
}

// NewServiceWithTTL is NewService with a configurable session lifetime.
func NewServiceWithTTL(db DB, storage Storage, recognizer capture.Recognizer, sessionTTL time.Duration) *Service {
	return NewServiceWithDeps(db, storage, recognizer, uuidGenerator{}, defaultTimeSource{}, sessionTTL)
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, storage Storage, recognizer capture.Recognizer, idGen IDGenerator, timeSrc TimeSource, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{
		db:          db,
		storage:     storage,
		recognizer:  recognizer,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessionTTL:  sessionTTL,
	}
}

// Register creates an account. Email addresses are unique and compared
// case-insensitively.
func (s *Service) Register(email, password, name string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	if _, err := s.db.GetUserByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           s.idGenerator.Generate(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    s.timeSource.Now(),
	}
	if err := s.db.SaveUser(user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(email, password string) (*SessionToken, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.db.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	session := &SessionToken{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: s.timeSource.Now().Add(s.sessionTTL),
	}
	if err := s.db.SaveSession(session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return session, nil
}

// Logout invalidates a session token. Unknown tokens are not an error.
func (s *Service) Logout(token string) error {
	return s.db.DeleteSession(token)
}

// Authenticate resolves a session token to its user. Expired sessions are
// deleted and reported as ErrSessionExpired.
func (s *Service) Authenticate(token string) (*User, error) {
	session, err := s.db.GetSession(token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if s.timeSource.Now().After(session.ExpiresAt) {
		_ = s.db.DeleteSession(token)
		return nil, ErrSessionExpired
	}
	user, err := s.db.GetUser(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("looking up session user: %w", err)
	}
	return user, nil
}

// CreateCard stores a card for the owner, optionally attaching a previously
// captured image blob.
func (s *Service) CreateCard(ownerID string, input CardInput) (*Card, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("card name is required")
	}

	now := s.timeSource.Now()
	card := &Card{
		ID:        s.idGenerator.Generate(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(input.Name),
		Title:     strings.TrimSpace(input.Title),
		Company:   strings.TrimSpace(input.Company),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		Website:   strings.TrimSpace(input.Website),
		Address:   strings.TrimSpace(input.Address),
		Notes:     input.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if input.ImageID != "" {
		// The blob must exist; a dangling reference fails the create.
		if _, err := s.storage.Get(input.ImageID); err != nil {
			return nil, fmt.Errorf("captured image not found: %w", err)
		}
		card.ImagePath = input.ImageID
		card.ImageType = "image/jpeg"
	}

	if err := s.db.SaveCard(card); err != nil {
		return nil, fmt.Errorf("saving card: %w", err)
	}
	return card, nil
}

// ListCards returns the user's own cards plus cards shared with them, newest
// first. A non-empty query filters by case-insensitive substring over name,
// title, company, and email.
func (s *Service) ListCards(userID, query string) ([]*Card, error) {
	all, err := s.db.ListCards()
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	cards := make([]*Card, 0)
	for _, c := range all {
		if !c.VisibleTo(userID) {
			continue
		}
		if query != "" && !cardMatches(c, query) {
			continue
		}
		cards = append(cards, c)
	}

	sort.Slice(cards, func(i, j int) bool {
		if cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].ID < cards[j].ID
		}
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

func cardMatches(c *Card, query string) bool {
	for _, field := range []string{c.Name, c.Title, c.Company, c.Email} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// GetCard returns a card visible to the user.
func (s *Service) GetCard(userID, id string) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	if !card.VisibleTo(userID) {
		return nil, ErrForbidden
	}
	return card, nil
}

// DeleteCard removes an owned card and its image blob.
func (s *Service) DeleteCard(userID, id string) error {
	card, err := s.db.GetCard(id)
	if err != nil {
		return fmt.Errorf("getting card for deletion: %w", err)
	}
	if card.OwnerID != userID {
		return ErrForbidden
	}

	if card.ImagePath != "" {
		if err := s.storage.Delete(card.ImagePath); err != nil {
			// The record still goes away; an orphaned blob is recoverable.
			slog.Warn("Failed to delete card image", "path", card.ImagePath, "error", err)
		}
	}
	if err := s.db.DeleteCard(id); err != nil {
		return fmt.Errorf("deleting card: %w", err)
	}
	return nil
}

// ShareCard grants another registered user read access to an owned card.
func (s *Service) ShareCard(ownerID, id, email string) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	if card.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	recipient, err := s.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("recipient: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("looking up recipient: %w", err)
	}
	if recipient.ID == ownerID {
		return nil, fmt.Errorf("cannot share a card with yourself")
	}

	if !card.SharedWithUser(recipient.ID) {
		card.SharedWith = append(card.SharedWith, recipient.ID)
		card.UpdatedAt = s.timeSource.Now()
		if err := s.db.SaveCard(card); err != nil {
			return nil, fmt.Errorf("saving card: %w", err)
		}
	}
	return card, nil
}

// GetCardImage returns the image blob for a card visible to the user.
func (s *Service) GetCardImage(userID, id string) ([]byte, string, error) {
	card, err := s.GetCard(userID, id)
	if err != nil {
		return nil, "", err
	}
	if card.ImagePath == "" {
		return nil, "", fmt.Errorf("card image: %w", ErrNotFound)
	}
	data, err := s.storage.Get(card.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting card image: %w", err)
	}
	return data, card.ImageType, nil
}

// UpdateCardImage replaces an owned card's image with a freshly normalized
// version of the upload.
func (s *Service) UpdateCardImage(userID, id string, data []byte, contentType string) (*Card, error) {
	card, err := s.db.GetCard(id)
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	if card.OwnerID != userID {
		return nil, ErrForbidden
	}

	frame, err := capture.FrameFromUpload(data, contentType)
	if err != nil {
		return nil, err
	}
	img, err := capture.NewNormalizer(capture.DefaultRatio, capture.DefaultWidth).Normalize(frame)
	if err != nil {
		return nil, err
	}

	filename := s.idGenerator.Generate() + ".jpg"
	saved, err := s.storage.Save(filename, img.Data)
	if err != nil {
		return nil, fmt.Errorf("saving card image: %w", err)
	}

	if card.ImagePath != "" && card.ImagePath != saved {
		if err := s.storage.Delete(card.ImagePath); err != nil {
			slog.Warn("Failed to delete replaced card image", "path", card.ImagePath, "error", err)
		}
	}

	card.ImagePath = saved
	card.ImageType = img.ContentType
	card.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveCard(card); err != nil {
		return nil, fmt.Errorf("saving card: %w", err)
	}
	return card, nil
}

// CaptureDraft runs the capture pipeline over an uploaded frame: convert,
// normalize, recognize, extract. The normalized image is stored and the
// extracted fields are returned as an editable draft. OCR failure degrades to
// a draft with empty fields rather than discarding the capture.
func (s *Service) CaptureDraft(ctx context.Context, data []byte, contentType string) (*Draft, error) {
	frame, err := capture.FrameFromUpload(data, contentType)
	if err != nil {
		return nil, err
	}

	// One controller per capture: independent sessions share the recognizer
	// but nothing else. The recognizer's lifecycle is owned by the caller of
	// NewService, so the controller is not closed here.
	ctrl := capture.NewController(&capture.StillCamera{Frame: frame}, s.recognizer, slog.Default())
	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}
	result, err := ctrl.Capture(ctx)
	if err != nil {
		return nil, err
	}

	filename := s.idGenerator.Generate() + ".jpg"
	saved, err := s.storage.Save(filename, result.Image.Data)
	if err != nil {
		return nil, fmt.Errorf("saving captured image: %w", err)
	}

	return &Draft{
		ImageID:   saved,
		ImageType: result.Image.ContentType,
		Fields:    result.Fields,
	}, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
