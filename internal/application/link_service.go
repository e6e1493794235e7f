package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

type IssuedCode struct {
	QuestID   int64     `json:"questId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	DeepLink  string    `json:"deepLink"`
	Reused    bool      `json:"reused"`
	// Overwrote is set when the new code replaced a live code of the other
	// kind; admin and invite codes share the quest's code slot.
	Overwrote bool      `json:"overwrote"`
	AccountID int64     `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
}

type MemberCode struct {
	AccountID      int64      `json:"userId"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	Code           string     `json:"code,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	DeepLink       string     `json:"deepLink,omitempty"`
	TelegramLinked bool       `json:"telegramLinked"`
	IsNewAccount   bool       `json:"isNewUser"`
}

type QuestCodes struct {
	QuestID    int64                   `json:"questId"`
	QuestTitle string                  `json:"questTitle"`
	AdminCode  *IssuedCode             `json:"adminCode,omitempty"`
	Members    []MemberCode            `json:"userCodes"`
	History    []models.QuestCodeEntry `json:"history"`
}

type RedeemResult struct {
	Success      bool            `json:"success"`
	Branch       string          `json:"type,omitempty"`
	Account      *models.Account `json:"user,omitempty"`
	Quest        *models.Quest   `json:"quest,omitempty"`
	IsNewAccount bool            `json:"isNewUser"`
	Reason       string          `json:"message,omitempty"`
}

func failed(reason string) *RedeemResult {
	return &RedeemResult{Reason: reason}
}

type LinkServiceImpl struct {
	accounts      repository.Account
	quests        repository.Quest
	codes         *CodeGenerator
	notifications NotificationService
	notifier      ChatNotifier
	policy        AdminCodePolicy
	botUsername   string
	logger        Logger
	now           func() time.Time
}

func NewLinkServiceImpl(accounts repository.Account, quests repository.Quest, codes *CodeGenerator,
	notifications NotificationService, opts Options, logger Logger) *LinkServiceImpl {
	policy := opts.AdminCodePolicy
	if policy != AdminCodeRotate {
		policy = AdminCodeReuse
	}
	return &LinkServiceImpl{
		accounts:      accounts,
		quests:        quests,
		codes:         codes,
		notifications: notifications,
		policy:        policy,
		botUsername:   opts.BotUsername,
		logger:        logger,
		now:           time.Now,
	}
}

// managedQuest loads the requester and the quest and checks the requester may manage it.
func (s *LinkServiceImpl) managedQuest(ctx context.Context, requesterID, questID int64) (*models.Account, *models.Quest, error) {
	requester, err := s.accounts.GetByID(ctx, requesterID)
	if err != nil {
		return nil, nil, storeErr("load requester", err)
	}
	if requester == nil {
		return nil, nil, ErrUnauthorized
	}
	quest, err := s.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, nil, storeErr("load quest", err)
	}
	if quest == nil {
		return nil, nil, fmt.Errorf("quest %d: %w", questID, ErrNotFound)
	}
	if !canManageQuest(requester, quest) {
		return nil, nil, fmt.Errorf("only the quest creator or an administrator can manage codes: %w", ErrForbidden)
	}
	return requester, quest, nil
}

func (s *LinkServiceImpl) IssueQuestCode(ctx context.Context, requesterID, questID int64) (*IssuedCode, error) {
	_, quest, err := s.managedQuest(ctx, requesterID, questID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if s.policy == AdminCodeReuse && quest.CodeValid(now) && codeKind(*quest.InviteCode) == CodeTypeAdmin {
		issued := s.issued(quest.ID, *quest.InviteCode, now.Add(AdminCodeTTL))
		if quest.InviteCodeExpires != nil {
			issued.ExpiresAt = *quest.InviteCodeExpires
		}
		issued.Reused = true
		return issued, nil
	}

	return s.rotateQuestCode(ctx, quest)
}

func (s *LinkServiceImpl) rotateQuestCode(ctx context.Context, quest *models.Quest) (*IssuedCode, error) {
	questID := quest.ID
	now := s.now()
	if err := s.quests.PurgeExpiredInviteCodes(ctx, now); err != nil {
		s.logger.Warn("failed to purge expired invite codes: %v", err)
	}

	expires := now.Add(AdminCodeTTL)
	code, err := s.codes.Mint(ctx, AdminCodePrefix,
		func(ctx context.Context, c string) (bool, error) { return s.quests.InviteCodeExists(ctx, c, now) },
		func(ctx context.Context, c string) error { return s.quests.SetInviteCode(ctx, questID, c, expires, nil) })
	if err != nil {
		return nil, storeErr("mint admin code", err)
	}

	s.logger.Info("Issued admin code for quest %d", questID)
	issued := s.issued(questID, code, expires)
	issued.Overwrote = overwrites(quest, CodeTypeAdmin, now)
	return issued, nil
}

// overwrites reports whether issuing a code of kind replaces a still valid
// code of the other kind. Admin and invite codes share one slot per quest.
func overwrites(quest *models.Quest, kind string, now time.Time) bool {
	if !quest.CodeValid(now) {
		return false
	}
	current := codeKind(*quest.InviteCode)
	if kind == CodeTypeAdmin {
		return current != CodeTypeAdmin
	}
	return current == CodeTypeAdmin
}

func (s *LinkServiceImpl) issued(questID int64, code string, expires time.Time) *IssuedCode {
	return &IssuedCode{
		QuestID:   questID,
		Code:      code,
		ExpiresAt: expires,
		DeepLink:  deepLink(s.botUsername, code),
	}
}

func (s *LinkServiceImpl) mintUserCode(ctx context.Context, accountID int64, now time.Time) (string, time.Time, error) {
	expires := now.Add(UserCodeTTL)
	code, err := s.codes.Mint(ctx, UserCodePrefix,
		func(ctx context.Context, c string) (bool, error) { return s.accounts.LinkCodeExists(ctx, c, now) },
		func(ctx context.Context, c string) error { return s.accounts.SetLinkCode(ctx, accountID, c, expires) })
	if err != nil {
		return "", time.Time{}, storeErr("mint user code", err)
	}
	return code, expires, nil
}

func (s *LinkServiceImpl) findOrCreateMember(ctx context.Context, email string) (*models.Account, bool, error) {
	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, storeErr("find account", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	a := &models.Account{
		Username: handleFromEmail(email),
		Email:    email,
		Role:     models.RoleUser,
	}
	created, isNew, err := createAccount(ctx, s.accounts, a, s.now(), func(ctx context.Context) (*models.Account, error) {
		return s.accounts.GetByEmail(ctx, email)
	})
	if err != nil {
		return nil, false, storeErr("create account", err)
	}
	return created, isNew, nil
}

func (s *LinkServiceImpl) IssueMemberCodes(ctx context.Context, requesterID, questID int64, emails []string) ([]MemberCode, error) {
	_, quest, err := s.managedQuest(ctx, requesterID, questID)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, raw := range emails {
		email, err := normalizeEmail(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		normalized = append(normalized, email)
	}
	if len(normalized) == 0 {
		return nil, validationf("at least one email is required")
	}

	now := s.now()
	if err := s.accounts.PurgeExpiredLinkCodes(ctx, now); err != nil {
		s.logger.Warn("failed to purge expired link codes: %v", err)
	}

	result := make([]MemberCode, 0, len(normalized))
	memberIDs := make([]int64, 0, len(normalized))
	history := make([]models.QuestCodeEntry, 0, len(normalized))

	for _, email := range normalized {
		account, isNew, err := s.findOrCreateMember(ctx, email)
		if err != nil {
			return nil, err
		}

		code, expires, err := s.mintUserCode(ctx, account.ID, now)
		if err != nil {
			return nil, err
		}

		memberIDs = append(memberIDs, account.ID)
		history = append(history, models.QuestCodeEntry{
			QuestID:   quest.ID,
			AccountID: account.ID,
			Username:  account.Username,
			Code:      code,
			CreatedAt: now,
			ExpiresAt: expires,
		})
		exp := expires
		result = append(result, MemberCode{
			AccountID:      account.ID,
			Username:       account.Username,
			Email:          account.Email,
			Code:           code,
			ExpiresAt:      &exp,
			DeepLink:       deepLink(s.botUsername, code),
			TelegramLinked: account.TelegramLinked,
			IsNewAccount:   isNew,
		})
	}

	if err := s.quests.AddMembersWithHistory(ctx, quest.ID, memberIDs, history); err != nil {
		return nil, storeErr("save quest members", err)
	}

	s.logger.Info("Issued %d user codes for quest %d", len(result), quest.ID)
	return result, nil
}

func (s *LinkServiceImpl) RegenerateCode(ctx context.Context, requesterID, questID int64, codeType string, targetID int64) (*IssuedCode, error) {
	_, quest, err := s.managedQuest(ctx, requesterID, questID)
	if err != nil {
		return nil, err
	}

	switch codeType {
	case CodeTypeAdmin:
		return s.rotateQuestCode(ctx, quest)
	case CodeTypeUser:
	default:
		return nil, validationf("code type must be %q or %q", CodeTypeAdmin, CodeTypeUser)
	}

	if !quest.HasMember(targetID) {
		return nil, validationf("account %d is not a member of quest %d", targetID, quest.ID)
	}
	target, err := s.accounts.GetByID(ctx, targetID)
	if err != nil {
		return nil, storeErr("load account", err)
	}
	if target == nil {
		return nil, fmt.Errorf("account %d: %w", targetID, ErrNotFound)
	}

	now := s.now()
	code, expires, err := s.mintUserCode(ctx, target.ID, now)
	if err != nil {
		return nil, err
	}
	entry := models.QuestCodeEntry{
		QuestID:   quest.ID,
		AccountID: target.ID,
		Username:  target.Username,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: expires,
	}
	if err := s.quests.AddMembersWithHistory(ctx, quest.ID, nil, []models.QuestCodeEntry{entry}); err != nil {
		return nil, storeErr("save code history", err)
	}

	issued := s.issued(quest.ID, code, expires)
	issued.AccountID = target.ID
	issued.Username = target.Username
	return issued, nil
}

func (s *LinkServiceImpl) ListQuestCodes(ctx context.Context, requesterID, questID int64) (*QuestCodes, error) {
	_, quest, err := s.managedQuest(ctx, requesterID, questID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &QuestCodes{QuestID: quest.ID, QuestTitle: quest.Title, Members: []MemberCode{}}
	if quest.CodeValid(now) && codeKind(*quest.InviteCode) == CodeTypeAdmin {
		out.AdminCode = s.issued(quest.ID, *quest.InviteCode, now.Add(AdminCodeTTL))
		if quest.InviteCodeExpires != nil {
			out.AdminCode.ExpiresAt = *quest.InviteCodeExpires
		}
	}

	for _, id := range quest.MemberIDs {
		member, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return nil, storeErr("load member", err)
		}
		if member == nil || member.IsAdmin() || member.ID == quest.CreatorID {
			continue
		}
		mc := MemberCode{
			AccountID:      member.ID,
			Username:       member.Username,
			Email:          member.Email,
			TelegramLinked: member.TelegramLinked,
		}
		if member.LinkCode != nil && member.LinkCodeExpires != nil && member.LinkCodeExpires.After(now) {
			mc.Code = *member.LinkCode
			mc.ExpiresAt = member.LinkCodeExpires
			mc.DeepLink = deepLink(s.botUsername, mc.Code)
		}
		out.Members = append(out.Members, mc)
	}

	out.History, err = s.quests.CodeHistory(ctx, quest.ID)
	if err != nil {
		return nil, storeErr("load code history", err)
	}
	return out, nil
}

func (s *LinkServiceImpl) IssueInviteCode(ctx context.Context, requesterID, questID int64, expiresInHours int, maxMembers *int) (*IssuedCode, error) {
	_, quest, err := s.managedQuest(ctx, requesterID, questID)
	if err != nil {
		return nil, err
	}
	if expiresInHours == 0 {
		expiresInHours = defaultInviteHours
	}
	if expiresInHours < 0 || expiresInHours > maxInviteHours {
		return nil, validationf("expiresInHours must be between 1 and %d", maxInviteHours)
	}
	if maxMembers != nil && *maxMembers <= 0 {
		return nil, validationf("maxMembers must be positive")
	}

	now := s.now()
	if err := s.quests.PurgeExpiredInviteCodes(ctx, now); err != nil {
		s.logger.Warn("failed to purge expired invite codes: %v", err)
	}
	expires := now.Add(time.Duration(expiresInHours) * time.Hour)
	code, err := s.codes.MintInvite(ctx,
		func(ctx context.Context, c string) (bool, error) { return s.quests.InviteCodeExists(ctx, c, now) },
		func(ctx context.Context, c string) error { return s.quests.SetInviteCode(ctx, quest.ID, c, expires, maxMembers) })
	if err != nil {
		return nil, storeErr("mint invite code", err)
	}

	s.logger.Info("Issued invite code for quest %d", quest.ID)
	issued := s.issued(quest.ID, code, expires)
	issued.Overwrote = overwrites(quest, "invite", now)
	return issued, nil
}

// Redeem links a Telegram identity using an admin, user or legacy invite
// code. A non-nil error is returned only for store failures; the result then
// carries a generic reason.
func (s *LinkServiceImpl) Redeem(ctx context.Context, code string, identity models.TelegramIdentity) (*RedeemResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return failed(ReasonEmptyCode), nil
	}

	var (
		res *RedeemResult
		err error
	)
	switch codeKind(code) {
	case CodeTypeAdmin:
		res, err = s.redeemAdmin(ctx, code, identity)
	case CodeTypeUser:
		res, err = s.redeemUser(ctx, code, identity)
	default:
		res, err = s.redeemInvite(ctx, code, identity)
	}
	if err != nil {
		s.logger.Error("code redemption failed for telegram %d: %v", identity.ID, err)
		return failed(ReasonInternal), err
	}
	if !res.Success {
		s.logger.Debug("code redemption rejected for telegram %d: %s", identity.ID, res.Reason)
		return res, nil
	}

	s.logger.Info("Telegram %d (@%s) linked to account %d via %s code", identity.ID, identity.Username, res.Account.ID, res.Branch)
	s.announce(ctx, res)
	return res, nil
}

// linkedElsewhere reports whether the identity already belongs to another account.
func (s *LinkServiceImpl) linkedElsewhere(ctx context.Context, identity models.TelegramIdentity, accountID int64) (bool, error) {
	owner, err := s.accounts.GetByTelegramID(ctx, identity.ID)
	if err != nil {
		return false, err
	}
	return owner != nil && owner.ID != accountID, nil
}

func (s *LinkServiceImpl) redeemAdmin(ctx context.Context, code string, identity models.TelegramIdentity) (*RedeemResult, error) {
	quest, err := s.quests.GetActiveByInviteCode(ctx, code, s.now())
	if err != nil {
		return nil, err
	}
	if quest == nil {
		return failed(ReasonInvalidAdminCode), nil
	}
	creator, err := s.accounts.GetByID(ctx, quest.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return failed(ReasonCreatorMissing), nil
	}
	if taken, err := s.linkedElsewhere(ctx, identity, creator.ID); err != nil {
		return nil, err
	} else if taken {
		return failed(ReasonTelegramTaken), nil
	}

	if err := s.accounts.LinkTelegram(ctx, creator.ID, identity, ""); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, creator.ID)
	if err != nil {
		return nil, err
	}
	return &RedeemResult{Success: true, Branch: CodeTypeAdmin, Account: account, Quest: quest}, nil
}

func (s *LinkServiceImpl) redeemUser(ctx context.Context, code string, identity models.TelegramIdentity) (*RedeemResult, error) {
	account, err := s.accounts.GetByLinkCode(ctx, code, s.now())
	if err != nil {
		return nil, err
	}
	if account == nil {
		return failed(ReasonInvalidUserCode), nil
	}
	if len(account.QuestIDs) == 0 {
		return failed(ReasonNoQuest), nil
	}
	quest, err := s.quests.GetByID(ctx, account.QuestIDs[0])
	if err != nil {
		return nil, err
	}
	if quest == nil || !quest.IsActive {
		return failed(ReasonQuestInactive), nil
	}
	if taken, err := s.linkedElsewhere(ctx, identity, account.ID); err != nil {
		return nil, err
	} else if taken {
		return failed(ReasonTelegramTaken), nil
	}

	if err := s.accounts.LinkTelegram(ctx, account.ID, identity, code); err != nil {
		// the code was rotated or consumed since the lookup
		if errors.Is(err, repository.ErrNotFound) {
			return failed(ReasonInvalidUserCode), nil
		}
		return nil, err
	}
	account, err = s.accounts.GetByID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &RedeemResult{Success: true, Branch: CodeTypeUser, Account: account, Quest: quest}, nil
}

func (s *LinkServiceImpl) redeemInvite(ctx context.Context, code string, identity models.TelegramIdentity) (*RedeemResult, error) {
	quest, err := s.quests.GetActiveByInviteCode(ctx, code, s.now())
	if err != nil {
		return nil, err
	}
	if quest == nil {
		return failed(ReasonInvalidInvite), nil
	}

	account, err := s.accounts.GetByTelegramID(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if account == nil && identity.Username != "" {
		account, err = s.accounts.GetByTelegramUsername(ctx, identity.Username)
		if err != nil {
			return nil, err
		}
		// a handle match only counts for an account with no other chat bound
		if account != nil && account.TelegramID != nil && *account.TelegramID != identity.ID {
			s.logger.Warn("telegram %d presented handle %q bound to account %d, creating a new account",
				identity.ID, identity.Username, account.ID)
			account = nil
		}
	}

	if account == nil || !quest.HasMember(account.ID) {
		if quest.MaxMembers != nil {
			n, err := s.quests.CountMembers(ctx, quest.ID)
			if err != nil {
				return nil, err
			}
			if n >= *quest.MaxMembers {
				return failed(fmt.Sprintf(reasonQuestFullFormat, quest.Title, *quest.MaxMembers)), nil
			}
		}
	}

	isNew := false
	if account == nil {
		account, isNew, err = s.createFromTelegram(ctx, identity)
		if err != nil {
			return nil, err
		}
	}
	if !isNew {
		if err := s.accounts.LinkTelegram(ctx, account.ID, identity, ""); err != nil {
			return nil, err
		}
	}

	if _, err := s.quests.AddMember(ctx, quest.ID, account.ID); err != nil {
		return nil, err
	}

	account, err = s.accounts.GetByID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	quest, err = s.quests.GetByID(ctx, quest.ID)
	if err != nil {
		return nil, err
	}
	return &RedeemResult{Success: true, Branch: "invite", Account: account, Quest: quest, IsNewAccount: isNew}, nil
}

func (s *LinkServiceImpl) createFromTelegram(ctx context.Context, identity models.TelegramIdentity) (*models.Account, bool, error) {
	username := sanitizeHandle(identity.Username)
	if identity.Username == "" {
		username = fmt.Sprintf("user_%d", identity.ID)
	}
	tgID := identity.ID
	a := &models.Account{
		Username:         username,
		Email:            fmt.Sprintf("%d@%s", identity.ID, telegramEmailDomain),
		Role:             models.RoleUser,
		TelegramID:       &tgID,
		TelegramUsername: identity.Username,
		TelegramLinked:   true,
	}
	return createAccount(ctx, s.accounts, a, s.now(), func(ctx context.Context) (*models.Account, error) {
		return s.accounts.GetByTelegramID(ctx, identity.ID)
	})
}

func (s *LinkServiceImpl) announce(ctx context.Context, res *RedeemResult) {
	account, quest := res.Account, res.Quest

	s.notifications.Emit(models.EventMemberJoined, map[string]any{
		"questId":    quest.ID,
		"questTitle": quest.Title,
		"userId":     account.ID,
		"username":   account.Username,
		"type":       res.Branch,
		"isNewUser":  res.IsNewAccount,
	})

	if s.notifier == nil || account.ID == quest.CreatorID {
		return
	}
	// best effort: the creator hears about new links only if their own chat is linked
	creator, err := s.accounts.GetByID(ctx, quest.CreatorID)
	if err != nil || creator == nil || !creator.TelegramLinked || creator.TelegramID == nil {
		if err != nil {
			s.logger.Warn("failed to load quest creator %d: %v", quest.CreatorID, err)
		}
		return
	}

	handle := account.Username
	if account.TelegramUsername != "" {
		handle = "@" + account.TelegramUsername
	}
	text := fmt.Sprintf("%s linked their Telegram account to quest \"%s\".", handle, quest.Title)
	if err := s.notifier.NotifyChat(*creator.TelegramID, text); err != nil {
		s.logger.Warn("failed to notify quest creator %d: %v", creator.ID, err)
	}
}
