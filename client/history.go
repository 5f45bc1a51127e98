package client

import (
	"context"
)

// historyPageSize is how many events one underlying request fetches.
const historyPageSize = 50

// HistoryIterator walks a device's location history newest first,
// fetching pages lazily. It is not restartable: once consumed, build a
// new iterator to read the history again.
//
//	it := device.History(100)
//	for it.Next(ctx) {
//	    loc := it.Location()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type HistoryIterator struct {
	client   *Client
	deviceID string
	limit    int

	page      []*Location
	pos       int
	offset    int
	yielded   int
	exhausted bool
	done      bool
	err       error
}

func newHistoryIterator(c *Client, deviceID string, limit int) *HistoryIterator {
	return &HistoryIterator{
		client:   c,
		deviceID: deviceID,
		limit:    limit,
	}
}

// Next advances the iterator, issuing a request when the current page
// is exhausted. It returns false when the limit is reached, the
// history ends, or an error occurred (check Err).
func (it *HistoryIterator) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}
	if it.limit > 0 && it.yielded >= it.limit {
		it.done = true
		return false
	}

	if it.pos >= len(it.page) {
		if it.exhausted {
			it.done = true
			return false
		}
		if !it.fetchPage(ctx) {
			return false
		}
	}

	it.pos++
	it.yielded++
	return true
}

func (it *HistoryIterator) fetchPage(ctx context.Context) bool {
	pageSize := historyPageSize
	if it.limit > 0 {
		if remaining := it.limit - it.yielded; remaining < pageSize {
			pageSize = remaining
		}
	}

	page, err := it.client.getEvents(ctx, it.deviceID, pageSize, it.offset)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	if len(page) == 0 {
		it.done = true
		return false
	}

	it.page = page
	it.pos = 0
	it.offset += len(page)

	// A short page means the stream ends after this page.
	if len(page) < pageSize {
		it.exhausted = true
	}
	return true
}

// Location returns the record the last successful Next call advanced
// to.
func (it *HistoryIterator) Location() *Location {
	if it.pos == 0 || it.pos > len(it.page) {
		return nil
	}
	return it.page[it.pos-1]
}

// Err returns the first error the iterator hit, if any.
func (it *HistoryIterator) Err() error {
	return it.err
}
