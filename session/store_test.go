// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vern-tools/vern/lib/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.Data = filepath.Join(root, "data")
	cfg.Paths.State = filepath.Join(root, "state")
	store, err := NewStore(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestCreateLoadRoundTrip(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	created, err := store.Create("work", "You are terse.", "gpt-4o")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.SystemPrompt != "You are terse." || created.Model != "gpt-4o" {
		t.Errorf("created session = %+v", created)
	}

	loaded, err := store.Load("work")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SID != "work" || loaded.SystemPrompt != "You are terse." || loaded.Model != "gpt-4o" {
		t.Errorf("loaded session = %+v", loaded)
	}
	if len(loaded.Messages) != 0 {
		t.Errorf("new session has %d messages, want 0", len(loaded.Messages))
	}
}

func TestCreateUsesDefaults(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	created, err := store.Create("plain", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.SystemPrompt != store.defaultSystem {
		t.Errorf("SystemPrompt = %q, want default", created.SystemPrompt)
	}
	if created.Model != store.defaultModel {
		t.Errorf("Model = %q, want default", created.Model)
	}
}

func TestCreateDuplicate(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("dup", "", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := store.Create("dup", "", "")
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("second Create error = %v, want ErrSessionExists", err)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	_, err := store.Load("ghost")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load error = %v, want ErrSessionNotFound", err)
	}
}

func TestInvalidSID(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	for _, sid := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := store.Create(sid, "", ""); err == nil {
			t.Errorf("Create(%q) succeeded, want error", sid)
		}
		if store.Exists(sid) {
			t.Errorf("Exists(%q) = true, want false", sid)
		}
	}
}

func TestAppendPersists(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("chat", "", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.AppendUser("chat", "Hello"); err != nil {
		t.Fatalf("AppendUser failed: %v", err)
	}
	if err := store.AppendAssistant("chat", "Hi there"); err != nil {
		t.Fatalf("AppendAssistant failed: %v", err)
	}

	// A fresh store over the same directories must see the history.
	fresh, err := NewStore(&config.Config{
		Paths: config.PathsConfig{Data: store.dataDir, State: filepath.Dir(store.trashDir)},
		Session: config.SessionConfig{
			DefaultModel:        store.defaultModel,
			DefaultSystemPrompt: store.defaultSystem,
		},
	}, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	loaded, err := fresh.Load("chat")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("history length = %d, want 2", len(loaded.Messages))
	}
	if loaded.Messages[0].Content != "Hello" || loaded.Messages[1].Content != "Hi there" {
		t.Errorf("history = %+v", loaded.Messages)
	}
}

func TestSetSystemPromptAndModel(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("tune", "", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.SetSystemPrompt("tune", "Answer in French."); err != nil {
		t.Fatalf("SetSystemPrompt failed: %v", err)
	}
	if err := store.SetModel("tune", "gpt-4o"); err != nil {
		t.Fatalf("SetModel failed: %v", err)
	}
	loaded, err := store.Load("tune")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SystemPrompt != "Answer in French." {
		t.Errorf("SystemPrompt = %q", loaded.SystemPrompt)
	}
	if loaded.Model != "gpt-4o" {
		t.Errorf("Model = %q", loaded.Model)
	}
}

func TestResetPreservesSystemAndModel(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("wipe", "Keep me.", "gpt-4o"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.AppendUser("wipe", "Hello"); err != nil {
		t.Fatalf("AppendUser failed: %v", err)
	}
	if err := store.Reset("wipe"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	loaded, err := store.Load("wipe")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 0 {
		t.Errorf("history length after reset = %d, want 0", len(loaded.Messages))
	}
	if loaded.SystemPrompt != "Keep me." || loaded.Model != "gpt-4o" {
		t.Errorf("session after reset = %+v", loaded)
	}
}

func TestExistsRejectsPlainFile(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	// A stray file where the session directory should be.
	path := filepath.Join(store.dataDir, dirPrefix+"broken")
	if err := os.WriteFile(path, []byte("junk"), 0600); err != nil {
		t.Fatalf("writing stray file: %v", err)
	}
	if store.Exists("broken") {
		t.Error("Exists = true for a plain file")
	}
}

func TestRemoveMovesToTrashWithDedup(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	for i := 0; i < 2; i++ {
		if _, err := store.Create("temp", "", ""); err != nil {
			t.Fatalf("Create round %d failed: %v", i, err)
		}
		if err := store.Remove("temp"); err != nil {
			t.Fatalf("Remove round %d failed: %v", i, err)
		}
		if store.Exists("temp") {
			t.Fatalf("session still exists after Remove round %d", i)
		}
	}

	// Both generations survive in the trash under distinct names.
	first := filepath.Join(store.trashDir, dirPrefix+"temp")
	second := filepath.Join(store.trashDir, dirPrefix+"temp-1")
	for _, path := range []string{first, second} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("trash entry %s missing", path)
		}
	}

	if err := store.Remove("temp"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Remove of missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestCloseEmptiesTrash(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("gone", "", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Remove("gone"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(store.trashDir); !os.IsNotExist(err) {
		t.Errorf("trash directory survives Close: %v", err)
	}
}

func TestOneshotArtifactNumbering(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("shots", "", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.AddOneshotArtifact("shots", "q", "a"); err != nil {
			t.Fatalf("AddOneshotArtifact %d failed: %v", i, err)
		}
	}
	for _, name := range []string{"oneshot-1.json", "oneshot-2.json", "oneshot-3.json"} {
		if _, err := os.Stat(filepath.Join(store.dir("shots"), name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}

	// The conversation history stays untouched.
	loaded, err := store.Load("shots")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 0 {
		t.Errorf("history length = %d, want 0", len(loaded.Messages))
	}
}

func TestListOrderingAndPreview(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	long := strings.Repeat("A detailed persona. ", 10)
	for _, sid := range []string{"Beta", "10", "alpha", "2"} {
		if _, err := store.Create(sid, long, ""); err != nil {
			t.Fatalf("Create(%q) failed: %v", sid, err)
		}
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var order []string
	for _, info := range infos {
		order = append(order, info.SID)
	}
	want := []string{"2", "10", "alpha", "Beta"}
	if len(order) != len(want) {
		t.Fatalf("List returned %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("List order = %v, want %v", order, want)
		}
	}
	for _, info := range infos {
		if n := len([]rune(info.SystemPreview)); n > 70 {
			t.Errorf("preview for %q is %d runes, want <= 70", info.SID, n)
		}
	}
}

func TestLoadToleratesCorruptConversation(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("hurt", "Survivor.", "gpt-4o"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	path := filepath.Join(store.dir("hurt"), conversationFile)
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("corrupting conversation: %v", err)
	}

	// Evict the cache so Load goes back to disk.
	store.mutex.Lock()
	delete(store.entries, "hurt")
	store.mutex.Unlock()

	loaded, err := store.Load("hurt")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 0 {
		t.Errorf("history length = %d, want 0", len(loaded.Messages))
	}
	if loaded.SystemPrompt != "Survivor." || loaded.Model != "gpt-4o" {
		t.Errorf("session = %+v, want system and model preserved", loaded)
	}
}

func TestLoadMissingModelFallsBack(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("old", "", "gpt-4o"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.Remove(filepath.Join(store.dir("old"), modelFile)); err != nil {
		t.Fatalf("removing model file: %v", err)
	}
	store.mutex.Lock()
	delete(store.entries, "old")
	store.mutex.Unlock()

	loaded, err := store.Load("old")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Model != store.defaultModel {
		t.Errorf("Model = %q, want default %q", loaded.Model, store.defaultModel)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()
	store := testStore(t)

	if _, err := store.Create("iso", "", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.AppendUser("iso", "first"); err != nil {
		t.Fatalf("AppendUser failed: %v", err)
	}
	before, err := store.Load("iso")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.AppendUser("iso", "second"); err != nil {
		t.Fatalf("AppendUser failed: %v", err)
	}
	if len(before.Messages) != 1 {
		t.Errorf("snapshot mutated: %d messages, want 1", len(before.Messages))
	}
}
