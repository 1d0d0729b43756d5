// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/vern-tools/vern/lib/config"
	"github.com/vern-tools/vern/lib/llm"
)

var (
	// ErrSessionNotFound reports an operation against a session that
	// does not exist on disk.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists reports a Create against an existing session.
	ErrSessionExists = errors.New("session already exists")
)

// Store owns the session directory tree. All methods are safe for
// concurrent use: a store-level mutex guards the cache map and a
// per-session mutex serializes mutate-then-persist steps, so two
// writers never interleave on the same session's files.
//
// Loaded sessions stay cached for the life of the process; the cache
// is bounded only by the number of distinct sessions touched.
type Store struct {
	dataDir       string
	trashDir      string
	defaultModel  string
	defaultSystem string
	log           *slog.Logger

	mutex   sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mutex   sync.Mutex
	session *Session
}

// NewStore creates the data and trash directories and returns a
// ready store. The trash directory is scoped to this process and is
// removed again by [Store.Close].
func NewStore(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Paths.Data, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	trashDir := filepath.Join(cfg.Paths.State, fmt.Sprintf("trash-%d", os.Getpid()))
	if err := os.MkdirAll(trashDir, 0700); err != nil {
		return nil, fmt.Errorf("creating trash directory: %w", err)
	}
	return &Store{
		dataDir:       cfg.Paths.Data,
		trashDir:      trashDir,
		defaultModel:  cfg.Session.DefaultModel,
		defaultSystem: cfg.Session.DefaultSystemPrompt,
		log:           logger,
		entries:       make(map[string]*entry),
	}, nil
}

// Close removes the process-scoped trash directory. Sessions moved
// there by [Store.Remove] are gone after a clean shutdown; an unclean
// shutdown leaves them recoverable.
func (store *Store) Close() error {
	if err := os.RemoveAll(store.trashDir); err != nil {
		return fmt.Errorf("removing trash directory: %w", err)
	}
	return nil
}

func (store *Store) dir(sid string) string {
	return filepath.Join(store.dataDir, dirPrefix+sid)
}

func validateSID(sid string) error {
	if sid == "" || sid == "." || sid == ".." || strings.ContainsAny(sid, "/\\") {
		return fmt.Errorf("invalid session id %q", sid)
	}
	return nil
}

// Exists reports whether the session directory is present. A plain
// file squatting on the directory name is corrupt state: it is logged
// and reported as not existing.
func (store *Store) Exists(sid string) bool {
	if validateSID(sid) != nil {
		return false
	}
	info, err := os.Stat(store.dir(sid))
	if err != nil {
		return false
	}
	if !info.IsDir() {
		store.log.Warn("session path is not a directory, treating as missing",
			"sid", sid, "path", store.dir(sid))
		return false
	}
	return true
}

// Create makes a new session with the given system prompt and model.
// Empty arguments fall back to the configured defaults. Returns
// [ErrSessionExists] if the session is already present.
func (store *Store) Create(sid, systemPrompt, model string) (*Session, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	if systemPrompt == "" {
		systemPrompt = store.defaultSystem
	}
	if model == "" {
		model = store.defaultModel
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	dir := store.dir(sid)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("creating session %q: %w", sid, ErrSessionExists)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	if err := persistSystem(dir, systemPrompt); err != nil {
		return nil, err
	}
	if err := persistConversation(dir, nil); err != nil {
		return nil, err
	}
	if err := persistModel(dir, model); err != nil {
		return nil, err
	}

	created := &Session{SID: sid, SystemPrompt: systemPrompt, Model: model}
	store.entries[sid] = &entry{session: created}
	return snapshot(created), nil
}

// Load returns a snapshot of the session. The returned struct is the
// caller's to keep; later mutations through the store do not alter it.
// Returns [ErrSessionNotFound] if the session does not exist.
func (store *Store) Load(sid string) (*Session, error) {
	ent, err := store.entry(sid)
	if err != nil {
		return nil, err
	}
	ent.mutex.Lock()
	defer ent.mutex.Unlock()
	return snapshot(ent.session), nil
}

// AppendUser appends a user turn to the history and persists it.
func (store *Store) AppendUser(sid, content string) error {
	return store.appendMessage(sid, llm.UserMessage(content))
}

// AppendAssistant appends an assistant turn to the history and
// persists it.
func (store *Store) AppendAssistant(sid, content string) error {
	return store.appendMessage(sid, llm.AssistantMessage(content))
}

func (store *Store) appendMessage(sid string, message llm.Message) error {
	return store.withSession(sid, func(dir string, session *Session) error {
		appended := append(session.Messages, message)
		if err := persistConversation(dir, appended); err != nil {
			return err
		}
		session.Messages = appended
		return nil
	})
}

// SetSystemPrompt replaces the session's system prompt.
func (store *Store) SetSystemPrompt(sid, systemPrompt string) error {
	return store.withSession(sid, func(dir string, session *Session) error {
		if err := persistSystem(dir, systemPrompt); err != nil {
			return err
		}
		session.SystemPrompt = systemPrompt
		return nil
	})
}

// SetModel replaces the session's model.
func (store *Store) SetModel(sid, model string) error {
	return store.withSession(sid, func(dir string, session *Session) error {
		if err := persistModel(dir, model); err != nil {
			return err
		}
		session.Model = model
		return nil
	})
}

// Reset clears the conversation history. The system prompt and model
// are preserved.
func (store *Store) Reset(sid string) error {
	return store.withSession(sid, func(dir string, session *Session) error {
		if err := persistConversation(dir, nil); err != nil {
			return err
		}
		session.Messages = nil
		return nil
	})
}

// Remove moves the session directory into the trash and evicts it
// from the cache. An earlier trashed session with the same identifier
// is never overwritten: the new arrival gets a numeric suffix.
func (store *Store) Remove(sid string) error {
	if err := validateSID(sid); err != nil {
		return err
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	// Block until any in-flight mutation on this session finishes.
	if ent, ok := store.entries[sid]; ok {
		ent.mutex.Lock()
		defer ent.mutex.Unlock()
	}

	dir := store.dir(sid)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("removing session %q: %w", sid, ErrSessionNotFound)
	}

	target := filepath.Join(store.trashDir, dirPrefix+sid)
	for suffix := 1; ; suffix++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(store.trashDir, fmt.Sprintf("%s%s-%d", dirPrefix, sid, suffix))
	}
	if err := os.Rename(dir, target); err != nil {
		return fmt.Errorf("moving session to trash: %w", err)
	}
	delete(store.entries, sid)
	return nil
}

// AddOneshotArtifact saves a one-shot exchange beside the session as
// an auto-numbered oneshot-N.json file. The conversation history is
// not touched.
func (store *Store) AddOneshotArtifact(sid, query, reply string) error {
	return store.withSession(sid, func(dir string, session *Session) error {
		next, err := nextOneshotNumber(dir)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("oneshot-%d.json", next))
		exchange := []llm.Message{llm.UserMessage(query), llm.AssistantMessage(reply)}
		return writeJSONAtomic(path, exchange)
	})
}

func nextOneshotNumber(dir string) (int, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scanning session directory: %w", err)
	}
	highest := 0
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		trimmed, found := strings.CutPrefix(name, "oneshot-")
		if !found {
			continue
		}
		trimmed, found = strings.CutSuffix(trimmed, ".json")
		if !found {
			continue
		}
		if n, err := strconv.Atoi(trimmed); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// List returns every session on disk with a short system-prompt
// preview. Purely numeric identifiers sort first in ascending value;
// the rest follow case-insensitively.
func (store *Store) List() ([]Info, error) {
	dirEntries, err := os.ReadDir(store.dataDir)
	if err != nil {
		return nil, fmt.Errorf("scanning data directory: %w", err)
	}

	var infos []Info
	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}
		sid, found := strings.CutPrefix(dirEntry.Name(), dirPrefix)
		if !found {
			continue
		}
		systemPrompt := store.readSystem(sid, filepath.Join(store.dataDir, dirEntry.Name()))
		infos = append(infos, Info{SID: sid, SystemPreview: preview(systemPrompt)})
	}

	sort.Slice(infos, func(i, j int) bool {
		return sidLess(infos[i].SID, infos[j].SID)
	})
	return infos, nil
}

func sidLess(a, b string) bool {
	aNumeric := isNumeric(a)
	bNumeric := isNumeric(b)
	switch {
	case aNumeric && bNumeric:
		aNumber, _ := strconv.Atoi(a)
		bNumber, _ := strconv.Atoi(b)
		if aNumber != bNumber {
			return aNumber < bNumber
		}
		return a < b
	case aNumeric:
		return true
	case bNumeric:
		return false
	}
	aLower, bLower := strings.ToLower(a), strings.ToLower(b)
	if aLower != bLower {
		return aLower < bLower
	}
	return a < b
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// entry returns the cached entry for sid, loading the session from
// disk on first touch.
func (store *Store) entry(sid string) (*entry, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if ent, ok := store.entries[sid]; ok {
		return ent, nil
	}
	session, err := store.loadFromDisk(sid)
	if err != nil {
		return nil, err
	}
	ent := &entry{session: session}
	store.entries[sid] = ent
	return ent, nil
}

func (store *Store) withSession(sid string, fn func(dir string, session *Session) error) error {
	ent, err := store.entry(sid)
	if err != nil {
		return err
	}
	ent.mutex.Lock()
	defer ent.mutex.Unlock()
	return fn(store.dir(sid), ent.session)
}

func (store *Store) loadFromDisk(sid string) (*Session, error) {
	dir := store.dir(sid)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("loading session %q: %w", sid, ErrSessionNotFound)
	}

	session := &Session{
		SID:          sid,
		SystemPrompt: store.readSystem(sid, dir),
		Model:        store.readModel(sid, dir),
	}

	data, err := os.ReadFile(filepath.Join(dir, conversationFile))
	if err == nil {
		if err := json.Unmarshal(data, &session.Messages); err != nil {
			// Corrupt history is recoverable as an empty conversation;
			// the system prompt and model survive.
			store.log.Warn("corrupt conversation file, starting with empty history",
				"sid", sid, "error", err)
			session.Messages = nil
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	return session, nil
}

func (store *Store) readSystem(sid, dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, systemFile))
	if err != nil {
		return store.defaultSystem
	}
	var systemPrompt string
	if err := json.Unmarshal(data, &systemPrompt); err != nil {
		store.log.Warn("corrupt system prompt file, using default",
			"sid", sid, "error", err)
		return store.defaultSystem
	}
	return systemPrompt
}

func (store *Store) readModel(sid, dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		return store.defaultModel
	}
	model := strings.TrimSpace(string(data))
	if model == "" {
		return store.defaultModel
	}
	return model
}

func snapshot(session *Session) *Session {
	copied := *session
	copied.Messages = append([]llm.Message(nil), session.Messages...)
	return &copied
}
