package store

import (
	"sort"
	"strings"

	"cybersync/internal/models"
)

// MergeGroups folds raw chunks into the grouped items a listing shows. Chunks
// sharing a GroupKey collapse into one item: texts joined in storage order,
// tags unioned, CreatedAt taken from the oldest chunk and UpdatedAt from the
// newest. Input must already be sorted oldest first, which is what the store
// listing guarantees.
func MergeGroups(chunks []models.MemoryChunk) []models.MemoryItem {
	byKey := make(map[string]*models.MemoryItem)
	var order []string

	for i := range chunks {
		c := &chunks[i]
		key := c.GroupKey
		if key == "" {
			key = c.ID.Hex()
		}

		item, ok := byKey[key]
		if !ok {
			item = &models.MemoryItem{
				ID:        key,
				Title:     c.Title,
				MemType:   c.MemType,
				Text:      c.Text,
				Tags:      append([]string(nil), c.Tags...),
				Chunks:    1,
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
				DeletedAt: c.DeletedAt,
			}
			byKey[key] = item
			order = append(order, key)
			continue
		}

		item.Chunks++
		if c.Text != "" {
			if item.Text != "" {
				item.Text += "\n"
			}
			item.Text += c.Text
		}
		item.Tags = unionTags(item.Tags, c.Tags)
		if c.CreatedAt.Before(item.CreatedAt) {
			item.CreatedAt = c.CreatedAt
		}
		if c.UpdatedAt.After(item.UpdatedAt) {
			item.UpdatedAt = c.UpdatedAt
		}
		// An item counts as deleted only while every chunk carries the marker.
		if c.DeletedAt == nil {
			item.DeletedAt = nil
		}
	}

	items := make([]models.MemoryItem, 0, len(order))
	for _, key := range order {
		items = append(items, *byKey[key])
	}
	return items
}

func unionTags(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range b {
		if !seen[strings.ToLower(t)] {
			a = append(a, t)
			seen[strings.ToLower(t)] = true
		}
	}
	sort.Strings(a)
	return a
}
