package integration

import (
	"context"
	"fmt"
	"sync"

	"taskquest/pkg/sheets"
)

const reportRange = "A1:Z1000"

// QuestSheets keeps one spreadsheet per quest and overwrites it on every sync.
// The quest to spreadsheet mapping lives in memory, so a restart creates
// fresh spreadsheets on the next sync.
type QuestSheets struct {
	client     sheets.Client
	ownerEmail string

	mu    sync.Mutex
	books map[int64]spreadsheet
}

type spreadsheet struct {
	id  string
	url string
}

func NewQuestSheets(client sheets.Client, ownerEmail string) *QuestSheets {
	return &QuestSheets{
		client:     client,
		ownerEmail: ownerEmail,
		books:      make(map[int64]spreadsheet),
	}
}

func (s *QuestSheets) PublishQuest(ctx context.Context, questID int64, title string, rows [][]interface{}) (string, error) {
	book, err := s.ensure(ctx, questID, title)
	if err != nil {
		return "", err
	}
	if err := s.client.ReplaceValues(ctx, book.id, reportRange, rows); err != nil {
		return "", err
	}
	return book.url, nil
}

func (s *QuestSheets) ensure(ctx context.Context, questID int64, title string) (spreadsheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if book, ok := s.books[questID]; ok {
		return book, nil
	}

	id, url, err := s.client.CreateSpreadsheet(ctx, fmt.Sprintf("TaskQuest: %s", title))
	if err != nil {
		return spreadsheet{}, err
	}
	if url == "" {
		url = fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s", id)
	}
	if s.ownerEmail != "" {
		if err := s.client.ShareWith(ctx, id, s.ownerEmail, "writer"); err != nil {
			return spreadsheet{}, err
		}
	}

	book := spreadsheet{id: id, url: url}
	s.books[questID] = book
	return book, nil
}
