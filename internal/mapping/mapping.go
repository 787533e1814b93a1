// Package mapping keeps the bidirectional id tables that link local items to
// their server counterparts.
package mapping

import (
	"fmt"
	"sync"

	"github.com/alexjbarnes/marksync/internal/tree"
)

// Table is one direction pair for a single item kind. LocalToServer and
// ServerToLocal are always exact inverses.
type Table struct {
	LocalToServer map[string]string `json:"localToServer"`
	ServerToLocal map[string]string `json:"serverToLocal"`
}

func newTable() Table {
	return Table{LocalToServer: map[string]string{}, ServerToLocal: map[string]string{}}
}

func (t Table) clone() Table {
	c := newTable()
	for k, v := range t.LocalToServer {
		c.LocalToServer[k] = v
	}

	for k, v := range t.ServerToLocal {
		c.ServerToLocal[k] = v
	}

	return c
}

// Data is the persisted form of the mappings of one account.
type Data struct {
	Bookmarks Table `json:"bookmarks"`
	Folders   Table `json:"folders"`
}

// NewData returns empty tables.
func NewData() Data {
	return Data{Bookmarks: newTable(), Folders: newTable()}
}

// Store persists mapping data for an account.
type Store interface {
	SetMappings(accountID string, data Data) error
}

// Mappings is the live, concurrency safe mapping state of one account
// during a sync pass.
type Mappings struct {
	mu        sync.RWMutex
	accountID string
	store     Store
	data      Data
}

// New wraps data loaded from store. Missing tables are created.
func New(store Store, accountID string, data Data) *Mappings {
	if data.Bookmarks.LocalToServer == nil || data.Bookmarks.ServerToLocal == nil {
		data.Bookmarks = newTable()
	}

	if data.Folders.LocalToServer == nil || data.Folders.ServerToLocal == nil {
		data.Folders = newTable()
	}

	return &Mappings{accountID: accountID, store: store, data: data}
}

func (m *Mappings) table(kind tree.Kind) *Table {
	if kind == tree.KindFolder {
		return &m.data.Folders
	}

	return &m.data.Bookmarks
}

// Get translates id from the from side to the other side.
func (m *Mappings) Get(kind tree.Kind, from tree.Location, id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := m.table(kind)
	if from == tree.Local {
		v, ok := t.LocalToServer[id]
		return v, ok
	}

	v, ok := t.ServerToLocal[id]

	return v, ok
}

// Add links localID and serverID. Earlier links of either id are dropped so
// the tables stay inverse.
func (m *Mappings) Add(kind tree.Kind, localID, serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(kind)
	if old, ok := t.LocalToServer[localID]; ok {
		delete(t.ServerToLocal, old)
	}

	if old, ok := t.ServerToLocal[serverID]; ok {
		delete(t.LocalToServer, old)
	}

	t.LocalToServer[localID] = serverID
	t.ServerToLocal[serverID] = localID
}

// Remove drops the links of localID and serverID. Either may be empty. When
// the two ids are not linked to each other both links are removed
// independently.
func (m *Mappings) Remove(kind tree.Kind, localID, serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(kind)

	if localID != "" {
		if s, ok := t.LocalToServer[localID]; ok {
			delete(t.ServerToLocal, s)
			delete(t.LocalToServer, localID)
		}
	}

	if serverID != "" {
		if l, ok := t.ServerToLocal[serverID]; ok {
			delete(t.LocalToServer, l)
			delete(t.ServerToLocal, serverID)
		}
	}
}

func (m *Mappings) AddFolder(localID, serverID string)   { m.Add(tree.KindFolder, localID, serverID) }
func (m *Mappings) AddBookmark(localID, serverID string) { m.Add(tree.KindBookmark, localID, serverID) }

func (m *Mappings) RemoveFolder(localID, serverID string) {
	m.Remove(tree.KindFolder, localID, serverID)
}

func (m *Mappings) RemoveBookmark(localID, serverID string) {
	m.Remove(tree.KindBookmark, localID, serverID)
}

// Retain drops every link whose local id is not accepted by keepLocal or
// whose server id is not accepted by keepServer. It returns the number of
// links removed.
func (m *Mappings) Retain(kind tree.Kind, keepLocal, keepServer func(id string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(kind)
	removed := 0

	for l, s := range t.LocalToServer {
		if keepLocal(l) && keepServer(s) {
			continue
		}

		delete(t.LocalToServer, l)
		delete(t.ServerToLocal, s)

		removed++
	}

	return removed
}

// Data returns a copy of the current tables.
func (m *Mappings) Data() Data {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Data{Bookmarks: m.data.Bookmarks.clone(), Folders: m.data.Folders.clone()}
}

// Snapshot returns a read-only copy for diffing.
func (m *Mappings) Snapshot() Snapshot {
	return Snapshot{data: m.Data()}
}

// Persist writes the current tables to the store.
func (m *Mappings) Persist() error {
	if m.store == nil {
		return nil
	}

	if err := m.store.SetMappings(m.accountID, m.Data()); err != nil {
		return fmt.Errorf("persisting mappings: %w", err)
	}

	return nil
}

// Snapshot is an immutable view of the mappings.
type Snapshot struct {
	data Data
}

func (s Snapshot) table(kind tree.Kind) Table {
	if kind == tree.KindFolder {
		return s.data.Folders
	}

	return s.data.Bookmarks
}

// MapID translates id of the given kind from the from side to the other.
func (s Snapshot) MapID(kind tree.Kind, from tree.Location, id string) (string, bool) {
	t := s.table(kind)
	if from == tree.Local {
		v, ok := t.LocalToServer[id]
		return v, ok
	}

	v, ok := t.ServerToLocal[id]

	return v, ok
}

// MapItemID translates the id of item to target.
func (s Snapshot) MapItemID(item tree.Item, target tree.Location) (string, bool) {
	if item.GetLocation() == target {
		return item.GetID(), true
	}

	return s.MapID(item.Kind(), item.GetLocation(), item.GetID())
}

// MapParentID translates the parent folder id of item to target.
func (s Snapshot) MapParentID(item tree.Item, target tree.Location) (string, bool) {
	if item.GetLocation() == target {
		return item.GetParentID(), true
	}

	return s.MapID(tree.KindFolder, item.GetLocation(), item.GetParentID())
}
