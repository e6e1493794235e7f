package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"
)

// memStore is an in-memory stand-in for the PostgreSQL repositories. It
// mirrors the constraints the schema enforces: first-user promotion, unique
// columns, membership set semantics and the immutable task quest.
type memStore struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	quests   map[int64]*models.Quest
	tasks    map[int64]*models.Task
	members  map[int64][]int64 // quest id -> account ids in join order
	history  map[int64][]models.QuestCodeEntry
	commands map[string]models.BotCommand
	joined   map[[2]int64]int64 // (quest, account) -> join sequence
	joinSeq  int64
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[int64]*models.Account),
		quests:   make(map[int64]*models.Quest),
		tasks:    make(map[int64]*models.Task),
		members:  make(map[int64][]int64),
		history:  make(map[int64][]models.QuestCodeEntry),
		commands: make(map[string]models.BotCommand),
		joined:   make(map[[2]int64]int64),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memAccounts struct{ *memStore }
type memQuests struct{ *memStore }
type memTasks struct{ *memStore }
type memCommands struct{ *memStore }

func (m *memStore) repos() *repository.Repository {
	return &repository.Repository{
		Account:    memAccounts{m},
		Quest:      memQuests{m},
		Task:       memTasks{m},
		BotCommand: memCommands{m},
	}
}

func (m *memStore) accountCopy(a *models.Account) *models.Account {
	c := *a
	c.QuestIDs = nil
	for qid, ids := range m.members {
		for _, id := range ids {
			if id == a.ID {
				c.QuestIDs = append(c.QuestIDs, qid)
			}
		}
	}
	sort.Slice(c.QuestIDs, func(i, j int) bool {
		return m.joined[[2]int64{c.QuestIDs[i], a.ID}] < m.joined[[2]int64{c.QuestIDs[j], a.ID}]
	})
	return &c
}

func (m *memStore) addMember(questID, accountID int64) bool {
	for _, id := range m.members[questID] {
		if id == accountID {
			return false
		}
	}
	m.members[questID] = append(m.members[questID], accountID)
	m.joinSeq++
	m.joined[[2]int64{questID, accountID}] = m.joinSeq
	return true
}

func (m *memStore) questCopy(q *models.Quest) *models.Quest {
	c := *q
	c.MemberIDs = append([]int64(nil), m.members[q.ID]...)
	return &c
}

func (m *memStore) uniqueTaken(skip int64, pred func(a *models.Account) bool) bool {
	for _, a := range m.accounts {
		if a.ID != skip && pred(a) {
			return true
		}
	}
	return false
}

func (r memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(a.Email)
	if r.uniqueTaken(0, func(x *models.Account) bool {
		return x.Username == a.Username || x.Email == email ||
			(a.Phone != nil && x.Phone != nil && *x.Phone == *a.Phone) ||
			(a.TelegramID != nil && x.TelegramID != nil && *x.TelegramID == *a.TelegramID) ||
			(a.FirebaseUID != nil && x.FirebaseUID != nil && *x.FirebaseUID == *a.FirebaseUID)
	}) {
		return nil, repository.ErrDuplicate
	}

	c := *a
	c.ID = r.id()
	c.Email = email
	c.IsFirstUser = len(r.accounts) == 0
	c.Role = models.RoleUser
	if c.IsFirstUser {
		c.Role = models.RoleAdmin
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.accounts[c.ID] = &c
	return r.accountCopy(&c), nil
}

func (r memAccounts) find(pred func(a *models.Account) bool) *models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if a := r.accounts[id]; pred(a) {
			return r.accountCopy(a)
		}
	}
	return nil
}

func (r memAccounts) GetByID(_ context.Context, id int64) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id }), nil
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	email = strings.ToLower(email)
	return r.find(func(a *models.Account) bool { return a.Email == email }), nil
}

func (r memAccounts) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Username == username }), nil
}

func (r memAccounts) GetByPhone(_ context.Context, phone string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.Phone != nil && *a.Phone == phone }), nil
}

func (r memAccounts) GetByFirebaseUID(_ context.Context, uid string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.FirebaseUID != nil && *a.FirebaseUID == uid }), nil
}

func (r memAccounts) GetByTelegramID(_ context.Context, telegramID int64) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.TelegramID != nil && *a.TelegramID == telegramID }), nil
}

func (r memAccounts) GetByTelegramUsername(_ context.Context, username string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.TelegramUsername == username }), nil
}

func (r memAccounts) GetByLinkCode(_ context.Context, code string, now time.Time) (*models.Account, error) {
	return r.find(func(a *models.Account) bool {
		return a.LinkCode != nil && *a.LinkCode == code && a.LinkCodeExpires != nil && a.LinkCodeExpires.After(now)
	}), nil
}

func (r memAccounts) List(_ context.Context) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, *r.accountCopy(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAccounts) Update(_ context.Context, id int64, patch models.AccountPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.Role != nil && *patch.Role != a.Role {
		return repository.ErrConstraint
	}
	if patch.Email != nil && r.uniqueTaken(id, func(x *models.Account) bool { return x.Email == strings.ToLower(*patch.Email) }) {
		return repository.ErrDuplicate
	}
	if patch.Username != nil && r.uniqueTaken(id, func(x *models.Account) bool { return x.Username == *patch.Username }) {
		return repository.ErrDuplicate
	}
	if patch.Username != nil {
		a.Username = *patch.Username
	}
	if patch.Email != nil {
		a.Email = strings.ToLower(*patch.Email)
	}
	if patch.Phone != nil {
		p := *patch.Phone
		a.Phone = &p
	}
	if patch.FirebaseUID != nil {
		u := *patch.FirebaseUID
		a.FirebaseUID = &u
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (r memAccounts) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	for qid, ids := range r.members {
		kept := ids[:0]
		for _, x := range ids {
			if x != id {
				kept = append(kept, x)
			}
		}
		r.members[qid] = kept
	}
	return nil
}

func (r memAccounts) LinkCodeExists(ctx context.Context, code string, now time.Time) (bool, error) {
	a, _ := r.GetByLinkCode(ctx, code, now)
	return a != nil, nil
}

func (r memAccounts) SetLinkCode(_ context.Context, id int64, code string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.uniqueTaken(id, func(x *models.Account) bool { return x.LinkCode != nil && *x.LinkCode == code }) {
		return repository.ErrDuplicate
	}
	c := code
	e := expires
	a.LinkCode, a.LinkCodeExpires = &c, &e
	return nil
}

func (r memAccounts) PurgeExpiredLinkCodes(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.LinkCode != nil && a.LinkCodeExpires != nil && !a.LinkCodeExpires.After(now) {
			a.LinkCode, a.LinkCodeExpires = nil, nil
		}
	}
	return nil
}

func (r memAccounts) LinkTelegram(_ context.Context, id int64, identity models.TelegramIdentity, linkCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if linkCode != "" && (a.LinkCode == nil || *a.LinkCode != linkCode) {
		return repository.ErrNotFound
	}
	if r.uniqueTaken(id, func(x *models.Account) bool { return x.TelegramID != nil && *x.TelegramID == identity.ID }) {
		return repository.ErrDuplicate
	}
	tg := identity.ID
	a.TelegramID = &tg
	a.TelegramUsername = identity.Username
	a.TelegramLinked = true
	if linkCode != "" {
		a.LinkCode, a.LinkCodeExpires = nil, nil
	}
	return nil
}

func (r memQuests) Create(_ context.Context, q *models.Quest) (*models.Quest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *q
	c.ID = r.id()
	c.CreatedAt = time.Now()
	c.MemberIDs = nil
	r.quests[c.ID] = &c
	r.addMember(c.ID, c.CreatorID)
	return r.questCopy(&c), nil
}

func (r memQuests) GetByID(_ context.Context, id int64) (*models.Quest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quests[id]
	if !ok {
		return nil, nil
	}
	return r.questCopy(q), nil
}

func (r memQuests) GetActiveByInviteCode(_ context.Context, code string, now time.Time) (*models.Quest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quests {
		if q.InviteCode != nil && *q.InviteCode == code && q.IsActive &&
			(q.InviteCodeExpires == nil || q.InviteCodeExpires.After(now)) {
			return r.questCopy(q), nil
		}
	}
	return nil, nil
}

func (r memQuests) FirstActive(_ context.Context) (*models.Quest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first *models.Quest
	for _, q := range r.quests {
		if q.IsActive && (first == nil || q.ID < first.ID) {
			first = q
		}
	}
	if first == nil {
		return nil, nil
	}
	return r.questCopy(first), nil
}

func (r memQuests) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quests), nil
}

func (r memQuests) List(_ context.Context) ([]models.Quest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Quest
	for _, q := range r.quests {
		out = append(out, *r.questCopy(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memQuests) ListForAccount(ctx context.Context, accountID int64) ([]models.Quest, error) {
	a, _ := memAccounts(r).GetByID(ctx, accountID)
	if a == nil {
		return nil, nil
	}
	var out []models.Quest
	for _, qid := range a.QuestIDs {
		if q, _ := r.GetByID(ctx, qid); q != nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r memQuests) Update(_ context.Context, q *models.Quest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.quests[q.ID]
	if !ok {
		return repository.ErrNotFound
	}
	code, exp := cur.InviteCode, cur.InviteCodeExpires
	c := *q
	c.InviteCode, c.InviteCodeExpires = code, exp
	c.MemberIDs = nil
	r.quests[q.ID] = &c
	return nil
}

func (r memQuests) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.quests, id)
	delete(r.members, id)
	return nil
}

func (r memQuests) InviteCodeExists(_ context.Context, code string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quests {
		if q.InviteCode != nil && *q.InviteCode == code && (q.InviteCodeExpires == nil || q.InviteCodeExpires.After(now)) {
			return true, nil
		}
	}
	return false, nil
}

func (r memQuests) SetInviteCode(_ context.Context, id int64, code string, expires time.Time, maxMembers *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quests[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, other := range r.quests {
		if other.ID != id && other.InviteCode != nil && *other.InviteCode == code {
			return repository.ErrDuplicate
		}
	}
	c, e := code, expires
	q.InviteCode, q.InviteCodeExpires = &c, &e
	if maxMembers != nil {
		n := *maxMembers
		q.MaxMembers = &n
	}
	return nil
}

func (r memQuests) PurgeExpiredInviteCodes(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quests {
		if q.InviteCode != nil && q.InviteCodeExpires != nil && !q.InviteCodeExpires.After(now) {
			q.InviteCode, q.InviteCodeExpires = nil, nil
		}
	}
	return nil
}

func (r memQuests) AddMember(_ context.Context, questID, accountID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quests[questID]; !ok {
		return false, repository.ErrNotFound
	}
	return r.addMember(questID, accountID), nil
}

func (r memQuests) RemoveMember(_ context.Context, questID, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.members[questID]
	kept := ids[:0]
	for _, id := range ids {
		if id != accountID {
			kept = append(kept, id)
		}
	}
	r.members[questID] = kept
	return nil
}

func (r memQuests) CountMembers(_ context.Context, questID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[questID]), nil
}

func (r memQuests) AddMembersWithHistory(_ context.Context, questID int64, accountIDs []int64, entries []models.QuestCodeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quests[questID]; !ok {
		return repository.ErrNotFound
	}
	for _, id := range accountIDs {
		r.addMember(questID, id)
	}
	r.history[questID] = append(r.history[questID], entries...)
	return nil
}

func (r memQuests) CodeHistory(_ context.Context, questID int64) ([]models.QuestCodeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.QuestCodeEntry(nil), r.history[questID]...), nil
}

func (r memTasks) Create(_ context.Context, t *models.Task) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if (t.Status == models.StatusCompleted) != t.Completed {
		return nil, repository.ErrConstraint
	}
	c := *t
	c.ID = r.id()
	c.CreatedAt = time.Now()
	r.tasks[c.ID] = &c
	out := c
	return &out, nil
}

func (r memTasks) GetByID(_ context.Context, id int64) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r memTasks) list(pred func(t *models.Task) bool) []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if pred(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r memTasks) ListByAssignee(_ context.Context, accountID int64) ([]models.Task, error) {
	return r.list(func(t *models.Task) bool { return t.AssigneeID == accountID }), nil
}

func (r memTasks) ListByQuest(_ context.Context, questID int64) ([]models.Task, error) {
	return r.list(func(t *models.Task) bool { return t.QuestID == questID }), nil
}

func (r memTasks) Update(_ context.Context, t *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.QuestID != t.QuestID || (t.Status == models.StatusCompleted) != t.Completed {
		return repository.ErrConstraint
	}
	c := *t
	r.tasks[t.ID] = &c
	return nil
}

func (r memTasks) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r memTasks) ReassignUnfinished(_ context.Context, questID, fromID, toID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tasks {
		if t.QuestID == questID && t.AssigneeID == fromID && !t.Completed {
			t.AssigneeID = toID
			n++
		}
	}
	return n, nil
}

func (r memTasks) LatestDeadline(_ context.Context, questID int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *time.Time
	for _, t := range r.tasks {
		if t.QuestID == questID && t.Deadline != nil && (latest == nil || t.Deadline.After(*latest)) {
			d := *t.Deadline
			latest = &d
		}
	}
	return latest, nil
}

func (r memCommands) ListActive(_ context.Context) ([]models.BotCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BotCommand
	for _, c := range r.commands {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out, nil
}

func (r memCommands) GetByCommand(_ context.Context, command string) (*models.BotCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commands[command]
	if !ok || !c.IsActive {
		return nil, nil
	}
	return &c, nil
}
