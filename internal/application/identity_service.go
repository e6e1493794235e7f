package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
	jwtutil "taskquest/pkg/jwt"
)

type Session struct {
	Token        string          `json:"token"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	Account      *models.Account `json:"user"`
	IsNewAccount bool            `json:"isNewUser"`
}

type IdentityServiceImpl struct {
	accounts    repository.Account
	quests      repository.Quest
	verifier    TokenVerifier
	jwt         jwtutil.Config
	questPolicy QuestPolicy
	logger      Logger
	now         func() time.Time
}

func NewIdentityServiceImpl(accounts repository.Account, quests repository.Quest, verifier TokenVerifier, opts Options, logger Logger) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		accounts:    accounts,
		quests:      quests,
		verifier:    verifier,
		jwt:         opts.JWT,
		questPolicy: opts.QuestPolicy,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *IdentityServiceImpl) LoginWithFirebase(ctx context.Context, idToken string) (*Session, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("firebase login is not configured: %w", ErrUnavailable)
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, validationf("idToken is required")
	}

	ident, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	account, isNew, err := s.resolve(ctx, ident)
	if err != nil {
		return nil, err
	}

	if isNew && s.questPolicy == QuestPolicyAutoJoin {
		s.autoJoin(ctx, account)
	}

	token, exp, err := jwtutil.NewToken(s.jwt, account.ID, account.Email, string(account.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("Account %d signed in via firebase (new=%t)", account.ID, isNew)
	return &Session{Token: token, ExpiresAt: exp, Account: account, IsNewAccount: isNew}, nil
}

// resolve finds the account by provider uid, then by email, and creates it
// as a last resort. Role is never touched on an existing account.
func (s *IdentityServiceImpl) resolve(ctx context.Context, ident *ExternalIdentity) (*models.Account, bool, error) {
	if ident.UID == "" {
		return nil, false, fmt.Errorf("%w: token carries no uid", ErrUnauthorized)
	}
	email := strings.ToLower(strings.TrimSpace(ident.Email))
	if email == "" {
		email = fmt.Sprintf("%s@%s", strings.ToLower(ident.UID), firebaseEmailDomain)
	}

	account, err := s.accounts.GetByFirebaseUID(ctx, ident.UID)
	if err != nil {
		return nil, false, storeErr("find account by uid", err)
	}
	if account == nil {
		account, err = s.accounts.GetByEmail(ctx, email)
		if err != nil {
			return nil, false, storeErr("find account by email", err)
		}
	}

	if account != nil {
		if err := s.refresh(ctx, account, ident.UID, email, ident.Phone); err != nil {
			return nil, false, err
		}
		refreshed, err := s.accounts.GetByID(ctx, account.ID)
		if err != nil {
			return nil, false, storeErr("reload account", err)
		}
		return refreshed, false, nil
	}

	uid := ident.UID
	a := &models.Account{
		Username:    handleFromEmail(email),
		Email:       email,
		Role:        models.RoleUser,
		FirebaseUID: &uid,
	}
	if ident.Phone != "" {
		phone := ident.Phone
		a.Phone = &phone
	}

	created, isNew, err := createAccount(ctx, s.accounts, a, s.now(), func(ctx context.Context) (*models.Account, error) {
		return s.findExisting(ctx, email, ident.Phone)
	})
	if err != nil {
		return nil, false, storeErr("create account", err)
	}
	if !isNew {
		if err := s.refresh(ctx, created, ident.UID, email, ident.Phone); err != nil {
			return nil, false, err
		}
	}
	return created, isNew, nil
}

// findExisting looks for the account that won a duplicate-key race. A clash
// on username alone is a different person and is left to the handle retry.
func (s *IdentityServiceImpl) findExisting(ctx context.Context, email, phone string) (*models.Account, error) {
	if a, err := s.accounts.GetByEmail(ctx, email); err != nil || a != nil {
		return a, err
	}
	if phone != "" {
		if a, err := s.accounts.GetByPhone(ctx, phone); err != nil || a != nil {
			return a, err
		}
	}
	return nil, nil
}

func (s *IdentityServiceImpl) refresh(ctx context.Context, account *models.Account, uid, email, phone string) error {
	var patch models.AccountPatch
	changed := false
	if account.FirebaseUID == nil || *account.FirebaseUID != uid {
		patch.FirebaseUID = &uid
		changed = true
	}
	if email != account.Email && !strings.HasSuffix(email, "@"+firebaseEmailDomain) {
		patch.Email = &email
		changed = true
	}
	if phone != "" && (account.Phone == nil || *account.Phone != phone) {
		patch.Phone = &phone
		changed = true
	}
	if !changed {
		return nil
	}
	if err := s.accounts.Update(ctx, account.ID, patch); err != nil {
		return storeErr("refresh account", err)
	}
	return nil
}

func (s *IdentityServiceImpl) autoJoin(ctx context.Context, account *models.Account) {
	quest, err := s.quests.FirstActive(ctx)
	if err != nil {
		s.logger.Warn("auto-join lookup failed for account %d: %v", account.ID, err)
		return
	}
	if quest == nil {
		return
	}
	if _, err := s.quests.AddMember(ctx, quest.ID, account.ID); err != nil {
		s.logger.Warn("auto-join of account %d to quest %d failed: %v", account.ID, quest.ID, err)
		return
	}
	account.QuestIDs = append(account.QuestIDs, quest.ID)
}

func (s *IdentityServiceImpl) Authenticate(tokenStr string) (*jwtutil.Claims, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims, err := jwtutil.ParseToken(s.jwt.Secret, tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !models.Role(claims.Role).Valid() {
		return nil, fmt.Errorf("%w: unknown role", ErrUnauthorized)
	}
	return claims, nil
}
