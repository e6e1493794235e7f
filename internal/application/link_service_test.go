package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
	jwtutil "taskquest/pkg/jwt"
)

func TestMemberCodeLinksTelegramOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	codes, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"Alice@Example.com", "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}
	if len(codes) != 1 {
		t.Fatalf("expected duplicate emails to collapse, got %d codes", len(codes))
	}
	alice := codes[0]
	if !alice.IsNewAccount || alice.Username != "alice" || alice.Email != "alice@example.com" {
		t.Fatalf("unexpected member code %+v", alice)
	}
	if !strings.HasPrefix(alice.Code, UserCodePrefix) {
		t.Fatalf("code %q lacks user prefix", alice.Code)
	}
	if alice.DeepLink != "https://t.me/quest_bot?start=auth_"+alice.Code {
		t.Fatalf("unexpected deep link %q", alice.DeepLink)
	}

	res, err := env.svc.Links.Redeem(ctx, strings.ToLower(alice.Code), models.TelegramIdentity{ID: 555, Username: "alice_tg"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !res.Success || res.Branch != CodeTypeUser {
		t.Fatalf("expected user branch success, got %+v", res)
	}
	if res.Account.ID != alice.AccountID || !res.Account.TelegramLinked || res.Account.TelegramUsername != "alice_tg" {
		t.Fatalf("account not linked: %+v", res.Account)
	}
	if res.Account.Role != models.RoleUser {
		t.Fatalf("member role = %s", res.Account.Role)
	}
	if res.Quest.ID != quest.ID {
		t.Fatalf("redeemed into quest %d, want %d", res.Quest.ID, quest.ID)
	}

	again, err := env.svc.Links.Redeem(ctx, alice.Code, models.TelegramIdentity{ID: 555, Username: "alice_tg"})
	if err != nil {
		t.Fatalf("second Redeem: %v", err)
	}
	if again.Success || again.Reason != ReasonInvalidUserCode {
		t.Fatalf("consumed code redeemed again: %+v", again)
	}

	listed, err := env.svc.Links.ListQuestCodes(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("ListQuestCodes: %v", err)
	}
	if len(listed.Members) != 1 || listed.Members[0].Code != "" || !listed.Members[0].TelegramLinked {
		t.Fatalf("unexpected member listing %+v", listed.Members)
	}
	if len(listed.History) != 1 || listed.History[0].Code != alice.Code {
		t.Fatalf("unexpected history %+v", listed.History)
	}

	found := false
	for _, typ := range env.sink.types() {
		if typ == models.EventMemberJoined {
			found = true
		}
	}
	if !found {
		t.Fatalf("member_joined not published, got %v", env.sink.types())
	}
}

func TestIssueMemberCodesRejectsInvalidEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	_, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"ok@example.com", "not-an-email"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got, _ := env.store.repos().Account.GetByEmail(ctx, "ok@example.com"); got != nil {
		t.Fatalf("account created despite invalid batch")
	}
}

func TestAdminCodeReusePolicy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{AdminCodePolicy: AdminCodeReuse}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	first, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	if first.Reused || !strings.HasPrefix(first.Code, AdminCodePrefix) {
		t.Fatalf("unexpected first code %+v", first)
	}
	second, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	if !second.Reused || second.Code != first.Code {
		t.Fatalf("expected reuse of %s, got %+v", first.Code, second)
	}

	rotated, err := env.svc.Links.RegenerateCode(ctx, admin.ID, quest.ID, CodeTypeAdmin, 0)
	if err != nil {
		t.Fatalf("RegenerateCode: %v", err)
	}
	if rotated.Code == first.Code {
		t.Fatalf("regenerate kept the old code")
	}
}

func TestAdminCodeRotatePolicy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{AdminCodePolicy: AdminCodeRotate}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	first, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	second, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	if second.Reused || second.Code == first.Code {
		t.Fatalf("rotate policy reused %s", first.Code)
	}

	res, err := env.svc.Links.Redeem(ctx, first.Code, models.TelegramIdentity{ID: 1})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Success || res.Reason != ReasonInvalidAdminCode {
		t.Fatalf("replaced admin code still works: %+v", res)
	}
}

func TestAdminCodeLinksCreatorAndNotifiesOnMemberLink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	adm, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	res, err := env.svc.Links.Redeem(ctx, adm.Code, models.TelegramIdentity{ID: 100, Username: "boss_tg"})
	if err != nil || !res.Success {
		t.Fatalf("admin redeem: %+v, %v", res, err)
	}
	if res.Branch != CodeTypeAdmin || res.Account.ID != admin.ID {
		t.Fatalf("admin code linked the wrong account: %+v", res)
	}
	if len(env.notifier.messages()) != 0 {
		t.Fatalf("creator notified about their own link")
	}

	codes, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"alice@example.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}
	if _, err := env.svc.Links.Redeem(ctx, codes[0].Code, models.TelegramIdentity{ID: 200, Username: "alice_tg"}); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	msgs := env.notifier.messages()
	if len(msgs) != 1 || msgs[0].chatID != 100 || !strings.Contains(msgs[0].text, "@alice_tg") {
		t.Fatalf("unexpected creator notifications %+v", msgs)
	}
}

func TestRedeemRejectsTelegramLinkedElsewhere(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	codes, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"alice@example.com", "bob@example.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}
	shared := models.TelegramIdentity{ID: 777, Username: "shared"}
	if res, err := env.svc.Links.Redeem(ctx, codes[0].Code, shared); err != nil || !res.Success {
		t.Fatalf("first redeem: %+v, %v", res, err)
	}
	res, err := env.svc.Links.Redeem(ctx, codes[1].Code, shared)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Success || res.Reason != ReasonTelegramTaken {
		t.Fatalf("expected rejection, got %+v", res)
	}

	bob, _ := env.store.repos().Account.GetByID(ctx, codes[1].AccountID)
	if bob.TelegramLinked || bob.LinkCode == nil {
		t.Fatalf("rejected redemption changed bob: %+v", bob)
	}
}

func TestInviteIgnoresHandleBoundToAnotherTelegram(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	adm, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	if res, err := env.svc.Links.Redeem(ctx, adm.Code, models.TelegramIdentity{ID: 111, Username: "boss_tg"}); err != nil || !res.Success {
		t.Fatalf("admin redeem: %+v, %v", res, err)
	}

	invite, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 0, nil)
	if err != nil {
		t.Fatalf("IssueInviteCode: %v", err)
	}
	res, err := env.svc.Links.Redeem(ctx, invite.Code, models.TelegramIdentity{ID: 999, Username: "boss_tg"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !res.Success || res.Account.ID == admin.ID || !res.IsNewAccount {
		t.Fatalf("invite bound to the admin account: %+v", res)
	}

	reloaded, _ := env.store.repos().Account.GetByID(ctx, admin.ID)
	if reloaded.TelegramID == nil || *reloaded.TelegramID != 111 {
		t.Fatalf("admin telegram binding changed: %+v", reloaded.TelegramID)
	}
}

func TestInviteAdoptsUnboundHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")
	carol, err := env.store.repos().Account.Create(ctx, &models.Account{Username: "carol", Email: "carol@example.com", TelegramUsername: "carol_tg"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	invite, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 0, nil)
	if err != nil {
		t.Fatalf("IssueInviteCode: %v", err)
	}
	res, err := env.svc.Links.Redeem(ctx, invite.Code, models.TelegramIdentity{ID: 31, Username: "carol_tg"})
	if err != nil || !res.Success {
		t.Fatalf("Redeem: %+v, %v", res, err)
	}
	if res.Account.ID != carol.ID || res.IsNewAccount || !res.Account.TelegramLinked {
		t.Fatalf("expected carol to be linked, got %+v", res.Account)
	}
}

func TestIssueMemberCodesDisambiguatesHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	env.setNow(time.Date(2025, 1, 1, 12, 0, 0, 4242, time.UTC))
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")
	env.account(t, "bob", "bob@example.com")

	codes, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"bob@other.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}
	if codes[0].Username != "bob_4242" || !codes[0].IsNewAccount {
		t.Fatalf("unexpected member %+v", codes[0])
	}
	created, _ := env.store.repos().Account.GetByID(ctx, codes[0].AccountID)
	if created.Role != models.RoleUser || created.Email != "bob@other.com" {
		t.Fatalf("unexpected account %+v", created)
	}
}

func TestIssueMemberCodesHandleRetryCollides(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	env.setNow(time.Date(2025, 1, 1, 12, 0, 0, 4242, time.UTC))
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")
	env.account(t, "bob", "bob@example.com")
	env.account(t, "bob_4242", "bob2@example.com")

	_, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"bob@other.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if q, _ := env.store.repos().Quest.GetByID(ctx, quest.ID); len(q.MemberIDs) != 1 {
		t.Fatalf("failed batch added members: %v", q.MemberIDs)
	}
}

// rotatingAccounts swaps the account's link code right after it is looked up.
type rotatingAccounts struct {
	repository.Account
}

func (r rotatingAccounts) GetByLinkCode(ctx context.Context, code string, now time.Time) (*models.Account, error) {
	a, err := r.Account.GetByLinkCode(ctx, code, now)
	if err != nil || a == nil {
		return a, err
	}
	if err := r.Account.SetLinkCode(ctx, a.ID, "USR-ROTATED", now.Add(time.Hour)); err != nil {
		return nil, err
	}
	return a, nil
}

func TestRedeemFailsWhenCodeRotatedMidway(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	repos := store.repos()
	repos.Account = rotatingAccounts{repos.Account}
	svc := NewService(repos, Deps{}, Options{
		BotUsername: "quest_bot",
		JWT:         jwtutil.Config{Secret: []byte("test-secret"), ExpireDuration: time.Hour},
	}, nopLogger{})

	admin, err := svc.Accounts.Create(ctx, AccountInput{Username: "boss", Email: "boss@example.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	quest, err := svc.Quests.Create(ctx, admin.ID, QuestInput{Title: "Launch"})
	if err != nil {
		t.Fatalf("Create quest: %v", err)
	}
	codes, err := svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"alice@example.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}

	res, err := svc.Links.Redeem(ctx, codes[0].Code, models.TelegramIdentity{ID: 55, Username: "alice_tg"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Success || res.Reason != ReasonInvalidUserCode {
		t.Fatalf("stale code accepted: %+v", res)
	}
	alice, _ := repos.Account.GetByID(ctx, codes[0].AccountID)
	if alice.TelegramLinked || alice.LinkCode == nil || *alice.LinkCode != "USR-ROTATED" {
		t.Fatalf("stale redemption changed alice: %+v", alice)
	}
}

func TestUserCodeExpires(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	env.setNow(now)

	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")
	codes, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"alice@example.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}
	if !codes[0].ExpiresAt.Equal(now.Add(UserCodeTTL)) {
		t.Fatalf("expires at %v", codes[0].ExpiresAt)
	}

	env.setNow(now.Add(UserCodeTTL + time.Minute))
	res, err := env.svc.Links.Redeem(ctx, codes[0].Code, models.TelegramIdentity{ID: 9})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Success || res.Reason != ReasonInvalidUserCode {
		t.Fatalf("expired code accepted: %+v", res)
	}
}

func TestRegenerateUserCodeReplacesOld(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")
	codes, err := env.svc.Links.IssueMemberCodes(ctx, admin.ID, quest.ID, []string{"alice@example.com"})
	if err != nil {
		t.Fatalf("IssueMemberCodes: %v", err)
	}

	fresh, err := env.svc.Links.RegenerateCode(ctx, admin.ID, quest.ID, CodeTypeUser, codes[0].AccountID)
	if err != nil {
		t.Fatalf("RegenerateCode: %v", err)
	}
	if fresh.Code == codes[0].Code || fresh.AccountID != codes[0].AccountID {
		t.Fatalf("unexpected regenerated code %+v", fresh)
	}
	if res, _ := env.svc.Links.Redeem(ctx, codes[0].Code, models.TelegramIdentity{ID: 5}); res.Success {
		t.Fatalf("superseded code still accepted")
	}
	if res, _ := env.svc.Links.Redeem(ctx, fresh.Code, models.TelegramIdentity{ID: 5}); !res.Success {
		t.Fatalf("regenerated code rejected: %+v", res)
	}

	if _, err := env.svc.Links.RegenerateCode(ctx, admin.ID, quest.ID, "bogus", 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	if _, err := env.svc.Links.RegenerateCode(ctx, admin.ID, quest.ID, CodeTypeUser, 9999); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for non-member, got %v", err)
	}
}

func TestInviteCodeCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	limit := 2
	invite, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 0, &limit)
	if err != nil {
		t.Fatalf("IssueInviteCode: %v", err)
	}
	if len(invite.Code) != inviteCodeLength {
		t.Fatalf("invite code %q has wrong length", invite.Code)
	}

	joined, err := env.svc.Links.Redeem(ctx, invite.Code, models.TelegramIdentity{ID: 11, Username: "carol"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if !joined.Success || !joined.IsNewAccount || joined.Branch != "invite" {
		t.Fatalf("unexpected invite result %+v", joined)
	}
	if joined.Account.Email != "11@telegram.temp" || joined.Account.Username != "carol" {
		t.Fatalf("unexpected telegram account %+v", joined.Account)
	}

	full, err := env.svc.Links.Redeem(ctx, invite.Code, models.TelegramIdentity{ID: 12, Username: "dave"})
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	want := `Quest "Launch" has reached its maximum capacity of 2 members.`
	if full.Success || full.Reason != want {
		t.Fatalf("expected capacity rejection, got %+v", full)
	}

	again, err := env.svc.Links.Redeem(ctx, invite.Code, models.TelegramIdentity{ID: 11, Username: "carol"})
	if err != nil || !again.Success || again.IsNewAccount {
		t.Fatalf("existing member re-redeem: %+v, %v", again, err)
	}
}

func TestAdminAndInviteCodesReportOverwrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	adm, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	if adm.Overwrote {
		t.Fatalf("first admin code reported an overwrite")
	}

	invite, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 0, nil)
	if err != nil {
		t.Fatalf("IssueInviteCode: %v", err)
	}
	if !invite.Overwrote {
		t.Fatalf("invite code replaced the admin code silently")
	}
	if res, _ := env.svc.Links.Redeem(ctx, adm.Code, models.TelegramIdentity{ID: 1}); res.Success {
		t.Fatalf("overwritten admin code still accepted")
	}

	again, err := env.svc.Links.IssueQuestCode(ctx, admin.ID, quest.ID)
	if err != nil {
		t.Fatalf("IssueQuestCode: %v", err)
	}
	if again.Reused || !again.Overwrote {
		t.Fatalf("unexpected admin code %+v", again)
	}

	rotated, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 0, nil)
	if err != nil {
		t.Fatalf("IssueInviteCode: %v", err)
	}
	if !rotated.Overwrote {
		t.Fatalf("expected overwrite of the admin code")
	}
	next, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 0, nil)
	if err != nil {
		t.Fatalf("IssueInviteCode: %v", err)
	}
	if next.Overwrote {
		t.Fatalf("invite replacing an invite reported an overwrite")
	}
}

func TestIssueInviteCodeValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	if _, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, maxInviteHours+1, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for long expiry, got %v", err)
	}
	zero := 0
	if _, err := env.svc.Links.IssueInviteCode(ctx, admin.ID, quest.ID, 1, &zero); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero capacity, got %v", err)
	}
}

func TestCodeManagementRequiresManager(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})
	admin := env.account(t, "boss", "boss@example.com")
	other := env.account(t, "eve", "eve@example.com")
	quest := env.quest(t, admin.ID, "Launch")

	if _, err := env.svc.Links.IssueQuestCode(ctx, other.ID, quest.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := env.svc.Links.ListQuestCodes(ctx, other.ID, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRedeemUnknownAndEmptyCodes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{}, Deps{})

	cases := map[string]string{
		"   ":       ReasonEmptyCode,
		"ADMZZZZZZ": ReasonInvalidAdminCode,
		"USRZZZZZZ": ReasonInvalidUserCode,
		"ZZZZZZZZ":  ReasonInvalidInvite,
	}
	for code, reason := range cases {
		res, err := env.svc.Links.Redeem(ctx, code, models.TelegramIdentity{ID: 1})
		if err != nil {
			t.Fatalf("Redeem(%q): %v", code, err)
		}
		if res.Success || res.Reason != reason {
			t.Errorf("Redeem(%q) = %+v, want reason %q", code, res, reason)
		}
	}
}
