package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskquest/internal/models"
	"taskquest/internal/repository"

	"github.com/xuri/excelize/v2"
)

type ReportServiceImpl struct {
	quests   repository.Quest
	accounts repository.Account
	tasks    repository.Task
	sheets   SheetPublisher
	logger   Logger
}

func NewReportServiceImpl(quests repository.Quest, accounts repository.Account, tasks repository.Task,
	sheets SheetPublisher, logger Logger) *ReportServiceImpl {
	return &ReportServiceImpl{
		quests:   quests,
		accounts: accounts,
		tasks:    tasks,
		sheets:   sheets,
		logger:   logger,
	}
}

type questReport struct {
	quest   *models.Quest
	members []models.Account
	tasks   []models.Task
	names   map[int64]string
}

func (s *ReportServiceImpl) collect(ctx context.Context, requesterID, questID int64) (*questReport, error) {
	requester, err := s.accounts.GetByID(ctx, requesterID)
	if err != nil {
		return nil, storeErr("load requester", err)
	}
	if requester == nil {
		return nil, ErrUnauthorized
	}
	quest, err := s.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, storeErr("load quest", err)
	}
	if quest == nil {
		return nil, fmt.Errorf("quest %d: %w", questID, ErrNotFound)
	}
	if !canManageQuest(requester, quest) {
		return nil, fmt.Errorf("only the quest creator or an administrator can export it: %w", ErrForbidden)
	}

	r := &questReport{quest: quest, names: make(map[int64]string)}
	for _, id := range quest.MemberIDs {
		m, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return nil, storeErr("load member", err)
		}
		if m != nil {
			r.members = append(r.members, *m)
			r.names[m.ID] = m.Username
		}
	}
	r.tasks, err = s.tasks.ListByQuest(ctx, quest.ID)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return r, nil
}

func (r *questReport) rosterRows() [][]interface{} {
	rows := [][]interface{}{{"ID", "Username", "Email", "Role", "Telegram", "Open tasks", "Done tasks"}}
	for _, m := range r.members {
		open, done := 0, 0
		for _, t := range r.tasks {
			if t.AssigneeID != m.ID {
				continue
			}
			if t.Completed {
				done++
			} else {
				open++
			}
		}
		telegram := ""
		if m.TelegramLinked {
			telegram = "@" + m.TelegramUsername
		}
		rows = append(rows, []interface{}{m.ID, m.Username, m.Email, string(m.Role), telegram, open, done})
	}
	return rows
}

func (r *questReport) taskRows() [][]interface{} {
	rows := [][]interface{}{{"ID", "Title", "Status", "Priority", "Assignee", "Deadline"}}
	for _, t := range r.tasks {
		deadline := ""
		if t.Deadline != nil {
			deadline = t.Deadline.Format(time.DateOnly)
		}
		rows = append(rows, []interface{}{t.ID, t.Title, string(t.Status), string(t.Priority), r.names[t.AssigneeID], deadline})
	}
	return rows
}

func (s *ReportServiceImpl) ExportQuestXLSX(ctx context.Context, requesterID, questID int64) ([]byte, string, error) {
	r, err := s.collect(ctx, requesterID, questID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, excelRosterSheet, r.rosterRows()); err != nil {
		return nil, "", err
	}
	if err := writeSheet(f, excelTasksSheet, r.taskRows()); err != nil {
		return nil, "", err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("failed to drop default sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("quest_%d_%s.xlsx", r.quest.ID, slug(r.quest.Title)), nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "B", "C", 24); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "export"
	}
	return b.String()
}

func (s *ReportServiceImpl) SyncQuestSheet(ctx context.Context, requesterID, questID int64) (string, error) {
	if s.sheets == nil {
		return "", fmt.Errorf("google sheets is not configured: %w", ErrUnavailable)
	}
	r, err := s.collect(ctx, requesterID, questID)
	if err != nil {
		return "", err
	}

	rows := r.rosterRows()
	rows = append(rows, []interface{}{})
	rows = append(rows, r.taskRows()...)

	url, err := s.sheets.PublishQuest(ctx, r.quest.ID, r.quest.Title, rows)
	if err != nil {
		return "", fmt.Errorf("failed to sync quest sheet: %w", err)
	}
	s.logger.Info("Quest %d synced to %s", r.quest.ID, url)
	return url, nil
}
