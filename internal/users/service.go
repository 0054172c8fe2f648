package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/bookclub/internal/assets"
	"github.com/MarcoPoloResearchLab/bookclub/internal/auth"
	"github.com/MarcoPoloResearchLab/bookclub/internal/comments"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingTokens   = errors.New("token issuer is required")
	errMissingAssets   = errors.New("existence checker is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew     = "users.service.new"
	opRegister       = "users.register"
	opLogin          = "users.login"
	opLogout         = "users.logout"
	opSessionActive  = "users.session_active"
	opGetByID        = "users.get_by_id"
	opDeactivate     = "users.deactivate"
	messageNotFound  = "User not registered"
	messageBadKey    = "Private key is not correct"
	messageForbidden = "You do not have access to this operation"

	secondsPerDay = 24 * 60 * 60
)

// TokenIssuer mints the access token handed out on login.
type TokenIssuer interface {
	IssueToken(ctx context.Context, identity auth.Identity) (string, int64, error)
}

// ExistenceChecker is the subset of assets.Checker used before deactivation.
type ExistenceChecker interface {
	Exists(ctx context.Context, kind assets.Kind, id int64) (bool, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Tokens     TokenIssuer
	Assets     ExistenceChecker
	BcryptCost int
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns users, user_login and deactivated_users, and runs the
// deactivation fan-out across the other tables.
type Service struct {
	db         *gorm.DB
	tokens     TokenIssuer
	assets     ExistenceChecker
	bcryptCost int
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Tokens == nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "missing_token_issuer", errMissingTokens)
	}
	if cfg.Assets == nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "missing_existence_checker", errMissingAssets)
	}
	if err := auth.ValidateBcryptCost(cfg.BcryptCost); err != nil {
		return nil, storage.NewError(storage.KindStorageFailure, opServiceNew, "invalid_bcrypt_cost", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		tokens:     cfg.Tokens,
		assets:     cfg.Assets,
		bcryptCost: cfg.BcryptCost,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Register creates an active user with a freshly generated private key.
func (s *Service) Register(ctx context.Context, fullName, username string) (Registration, error) {
	fullName = strings.TrimSpace(fullName)
	username = strings.TrimSpace(username)
	if fullName == "" {
		return Registration{}, storage.BadRequest(opRegister, "missing_fullname", "fullname is mandatory")
	}
	if username == "" {
		return Registration{}, storage.BadRequest(opRegister, "missing_username", "username is mandatory")
	}

	plaintext, hash, err := auth.GeneratePrivateKey(s.bcryptCost)
	if err != nil {
		s.logError(opRegister, "key_generation_failed", err)
		return Registration{}, storage.NewError(storage.KindStorageFailure, opRegister, "key_generation_failed", err)
	}

	user := User{
		FullName:         fullName,
		Username:         username,
		PrivateKeyHash:   hash,
		Status:           StatusActive,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		classified := storage.Classify(opRegister, err)
		if !storage.IsKind(classified, storage.KindConstraintViolation) {
			s.logError(opRegister, "user_insert_failed", err, zap.String("username", username))
		}
		return Registration{}, classified
	}
	return Registration{User: user, PrivateKey: plaintext}, nil
}

// GetByID returns an active user.
func (s *Service) GetByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, StatusActive).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, storage.NotFound(opGetByID, messageNotFound)
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.Int64("user_id", id))
		return User{}, storage.Classify(opGetByID, err)
	}
	return user, nil
}

// Login verifies the private key and replaces the login row of username with a new token.
func (s *Service) Login(ctx context.Context, username, privateKey string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return LoginResult{}, storage.BadRequest(opLogin, "missing_username", "username is mandatory")
	}
	if strings.TrimSpace(privateKey) == "" {
		return LoginResult{}, storage.BadRequest(opLogin, "missing_private_key", "privateKey is mandatory")
	}
	db := s.db.WithContext(ctx)

	var user User
	err := db.Where("username = ? AND status = ?", username, StatusActive).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LoginResult{}, storage.NotFound(opLogin, messageNotFound)
	}
	if err != nil {
		s.logError(opLogin, "user_select_failed", err, zap.String("username", username))
		return LoginResult{}, storage.Classify(opLogin, err)
	}

	if err := auth.VerifyPrivateKey(privateKey, user.PrivateKeyHash); err != nil {
		if errors.Is(err, auth.ErrInvalidPrivateKey) {
			return LoginResult{}, storage.NewError(storage.KindUnauthorized, opLogin, "invalid_private_key", err).WithMessage(messageBadKey)
		}
		s.logError(opLogin, "key_verification_failed", err, zap.String("username", username))
		return LoginResult{}, storage.NewError(storage.KindStorageFailure, opLogin, "key_verification_failed", err)
	}

	token, expiresIn, err := s.tokens.IssueToken(ctx, auth.Identity{
		UserID:   user.ID,
		Username: user.Username,
		FullName: user.FullName,
	})
	if err != nil {
		s.logError(opLogin, "token_issue_failed", err, zap.Int64("user_id", user.ID))
		return LoginResult{}, storage.NewError(storage.KindStorageFailure, opLogin, "token_issue_failed", err)
	}

	record := LoginRecord{
		Username:          user.Username,
		Token:             token,
		LoggedInAtSeconds: s.clock().UTC().Unix(),
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "logged_in_at_s", "logged_out_at_s"}),
	}).Create(&record).Error
	if err != nil {
		s.logError(opLogin, "login_save_failed", err, zap.String("username", username))
		return LoginResult{}, storage.Classify(opLogin, err)
	}
	return LoginResult{User: user, Token: token, ExpiresIn: expiresIn}, nil
}

// Logout stamps the logout time on the login row of username.
func (s *Service) Logout(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return storage.BadRequest(opLogout, "missing_username", "username is mandatory")
	}
	loggedOut := s.clock().UTC().Unix()
	update := s.db.WithContext(ctx).
		Model(&LoginRecord{}).
		Where("username = ?", username).
		Update("logged_out_at_s", loggedOut)
	if update.Error != nil {
		s.logError(opLogout, "logout_update_failed", update.Error, zap.String("username", username))
		return storage.Classify(opLogout, update.Error)
	}
	if update.RowsAffected == 0 {
		return storage.BadRequest(opLogout, "login_not_found", "login not found")
	}
	return nil
}

// SessionActive reports whether token is the current login of username and has not been logged out.
func (s *Service) SessionActive(ctx context.Context, username, token string) (bool, error) {
	var record LoginRecord
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		s.logError(opSessionActive, "login_select_failed", err, zap.String("username", username))
		return false, storage.Classify(opSessionActive, err)
	}
	return record.Token == token && record.LoggedOutAtSeconds == nil, nil
}

// Deactivate removes userID and everything attached to it. The independent
// cleanup statements run concurrently and every outcome is collected; the user
// row is only removed, together with its notes and the archive insert, once all
// of them succeeded. A failed cleanup leaves the account in place for a retry.
func (s *Service) Deactivate(ctx context.Context, callerID, userID int64) error {
	exists, err := s.assets.Exists(ctx, assets.KindUser, userID)
	if err != nil {
		return err
	}
	if !exists {
		return storage.BadRequest(opDeactivate, "user_not_found", "user does not exist")
	}
	if callerID != userID {
		return storage.Forbidden(opDeactivate, messageForbidden)
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.runCleanup(ctx, user); err != nil {
		s.logError(opDeactivate, "cleanup_failed", err, zap.Int64("user_id", userID))
		return storage.NewError(storage.KindStorageFailure, opDeactivate, "cleanup_failed", err).
			WithMessage("Error while deactivating user")
	}

	now := s.clock().UTC().Unix()
	archive := DeactivatedUser{
		UserID:               user.ID,
		FullName:             user.FullName,
		Username:             user.Username,
		DeactivatedAtSeconds: now,
		UsageDays:            usageDays(user.CreatedAtSeconds, now),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&notes.Note{}).Error; err != nil {
			return fmt.Errorf("delete notes: %w", err)
		}
		if err := tx.Create(&archive).Error; err != nil {
			return fmt.Errorf("archive user: %w", err)
		}
		if err := tx.Where("id = ?", user.ID).Delete(&User{}).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opDeactivate, "finalize_failed", err, zap.Int64("user_id", userID))
		return storage.NewError(storage.KindStorageFailure, opDeactivate, "finalize_failed", err).
			WithMessage("Error while deactivating user")
	}
	s.loggerOrDefault().Info("user deactivated",
		zap.Int64("user_id", user.ID),
		zap.Int64("usage_days", archive.UsageDays))
	return nil
}

type cleanupStep struct {
	name string
	run  func(db *gorm.DB) error
}

func (s *Service) cleanupSteps(user User) []cleanupStep {
	ownNotes := func(db *gorm.DB) *gorm.DB {
		return db.Model(&notes.Note{}).Select("id").Where("user_id = ?", user.ID)
	}
	return []cleanupStep{
		{name: "comments_by_user", run: func(db *gorm.DB) error {
			return db.Where("user_id = ?", user.ID).Delete(&comments.Comment{}).Error
		}},
		{name: "comments_on_user_notes", run: func(db *gorm.DB) error {
			return db.Where("note_id IN (?)", ownNotes(db)).Delete(&comments.Comment{}).Error
		}},
		{name: "bookmarks_by_user", run: func(db *gorm.DB) error {
			return db.Where("user_id = ?", user.ID).Delete(&notes.SavedNote{}).Error
		}},
		{name: "bookmarks_of_user_notes", run: func(db *gorm.DB) error {
			return db.Where("note_id IN (?)", ownNotes(db)).Delete(&notes.SavedNote{}).Error
		}},
		{name: "login_record", run: func(db *gorm.DB) error {
			return db.Where("username = ?", user.Username).Delete(&LoginRecord{}).Error
		}},
	}
}

func (s *Service) runCleanup(ctx context.Context, user User) error {
	steps := s.cleanupSteps(user)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		combined error
	)
	wg.Add(len(steps))
	for _, step := range steps {
		go func(step cleanupStep) {
			defer wg.Done()
			if err := step.run(s.db.WithContext(ctx)); err != nil {
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", step.name, err))
				mu.Unlock()
			}
		}(step)
	}
	wg.Wait()
	return combined
}

func usageDays(createdAt, now int64) int64 {
	if now <= createdAt {
		return 0
	}
	return (now - createdAt) / secondsPerDay
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("users service error", attrs...)
}
