// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "usage-"
	fileSuffix = ".jsonl"
	dayLayout  = "2006-01-02"
)

// =============================================================================
// USAGE STORAGE
// =============================================================================

// Storage persists usage records as one JSON-lines file per day.
type Storage struct {
	dir string
}

// NewStorage creates the storage directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, errors.New("usage directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Storage) Dir() string {
	return s.dir
}

func (s *Storage) path(day time.Time) string {
	return filepath.Join(s.dir, filePrefix+day.Format(dayLayout)+fileSuffix)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Append adds a record to the file of its day.
func (s *Storage) Append(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(truncateDay(r.Time)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load returns the records of the days from..to, inclusive, oldest first.
// Lines that cannot be decoded are skipped.
func (s *Storage) Load(from, to time.Time) ([]Record, error) {
	days, err := s.days()
	if err != nil {
		return nil, err
	}
	first := truncateDay(from)
	last := truncateDay(to)

	var records []Record
	for _, day := range days {
		if day.Before(first) || day.After(last) {
			continue
		}
		dayRecords, err := s.readDay(day)
		if err != nil {
			return nil, err
		}
		records = append(records, dayRecords...)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})
	return records, nil
}

func (s *Storage) readDay(day time.Time) ([]Record, error) {
	f, err := os.Open(s.path(day))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}

// days lists the days that have a file, in order.
func (s *Storage) days() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var days []time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		day, err := time.ParseInLocation(dayLayout,
			strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), time.Local)
		if err != nil {
			continue // Skip invalid filenames
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// DeleteBefore removes the files of days before the day of before.
func (s *Storage) DeleteBefore(before time.Time) (int, error) {
	days, err := s.days()
	if err != nil {
		return 0, err
	}
	cutoff := truncateDay(before)
	removed := 0
	for _, day := range days {
		if !day.Before(cutoff) {
			break
		}
		if err := os.Remove(s.path(day)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Size returns the total size of stored usage data in bytes.
func (s *Storage) Size() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// truncateDay returns local midnight of t's day.
func truncateDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
