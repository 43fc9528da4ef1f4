// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps an offline copy of conversations in SQLite.
//
// The backend is the source of truth. The cache holds the last fetched
// message list of each conversation and the last fetched conversation list,
// so both can be shown, marked stale, when the backend is unreachable.
//
// # Usage
//
//	cache, err := storage.Open(storage.DefaultConfig(path))
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	err = cache.SaveConversation(ctx, id, msgs)
//	msgs, err := cache.LoadConversation(ctx, id)
//
// # Storage Location
//
// The database lives at ~/.flai/cache.db unless storage.cache_path is set.
package storage
