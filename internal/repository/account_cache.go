package repository

import (
	lru "github.com/hashicorp/golang-lru"
)

// AccountCache maps Telegram ids to account ids for the bot's hot path.
type AccountCache struct {
	cache *lru.Cache
}

func NewAccountCache(size int) (*AccountCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &AccountCache{cache: c}, nil
}

func (c *AccountCache) Get(telegramID int64) (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.cache.Get(telegramID)
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

func (c *AccountCache) Set(telegramID, accountID int64) {
	if c == nil {
		return
	}
	c.cache.Add(telegramID, accountID)
}

func (c *AccountCache) Delete(telegramID int64) {
	if c == nil {
		return
	}
	c.cache.Remove(telegramID)
}

// Size returns the number of cached entries.
func (c *AccountCache) Size() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
