// Package mls implements a lattice-style multi-level security system:
// addresses hold a numeric clearance level, data is stored tagged with a
// classification level, and access requires the accessor's level to
// dominate the data's level.
package mls

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInvalidLevelCount is returned when constructing a System outside the
// allowed [2, 10] range of permission levels.
var ErrInvalidLevelCount = errors.New("mls: number of levels must be between 2 and 10")

var defaultLevelNames = []string{
	"Public", "Internal", "Confidential", "Secret",
	"Top Secret", "Critical", "Ultra Secret", "Maximum Secret",
	"Cosmic Top Secret", "Beyond Black",
}

// Classification names a single security level.
type Classification struct {
	Level       int    `json:"level"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DataItem is a piece of data tagged with a security level.
type DataItem struct {
	ID            string         `json:"data_id"`
	Content       any            `json:"content"`
	SecurityLevel int            `json:"security_level"`
	Owner         string         `json:"owner"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	AccessLog     []AccessRecord `json:"-"`
}

// AccessRecord notes who accessed a DataItem and when.
type AccessRecord struct {
	Accessor  string    `json:"accessor"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntry records one permission-system action.
type AuditEntry struct {
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// System is a lattice-style multi-level permission system: num_levels
// classifications (1 = lowest, num_levels = highest), a distinguished
// creator at the top level, and all other addresses defaulting to level 1
// on first reference.
type System struct {
	mu sync.Mutex

	numLevels      int
	maxLevel       int
	minLevel       int
	defaultLevel   int
	creatorAddress string

	userLevels      map[string]int
	classifications map[int]Classification
	dataStore       map[string]*DataItem
	auditLog        []AuditEntry
}

// New constructs a System with numLevels classifications (2-10) and
// creatorAddress seeded at the maximum level. levelNames, if it has
// exactly numLevels entries, names each classification; otherwise a
// built-in default naming is used.
func New(numLevels int, creatorAddress string, levelNames []string) (*System, error) {
	if numLevels < 2 || numLevels > 10 {
		return nil, ErrInvalidLevelCount
	}

	s := &System{
		numLevels:      numLevels,
		maxLevel:       numLevels,
		minLevel:       1,
		defaultLevel:   1,
		creatorAddress: creatorAddress,
		userLevels:     map[string]int{creatorAddress: numLevels},
		classifications: map[int]Classification{},
		dataStore:      map[string]*DataItem{},
	}

	names := defaultLevelNames[:numLevels]
	if len(levelNames) == numLevels {
		names = levelNames
	}
	for level := 1; level <= numLevels; level++ {
		s.classifications[level] = Classification{
			Level:       level,
			Name:        names[level-1],
			Description: fmt.Sprintf("Security level %d", level),
		}
	}

	s.logAction("system_init", creatorAddress, map[string]any{
		"num_levels": numLevels,
		"creator":    creatorAddress,
	})
	return s, nil
}

// GetUserLevel returns address's clearance level, registering it at the
// default level on first reference.
func (s *System) GetUserLevel(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLevelLocked(address)
}

func (s *System) getUserLevelLocked(address string) int {
	level, ok := s.userLevels[address]
	if !ok {
		s.userLevels[address] = s.defaultLevel
		s.logActionLocked("user_registered", address, map[string]any{
			"level":         s.defaultLevel,
			"auto_assigned": true,
		})
		return s.defaultLevel
	}
	return level
}

// PromoteUser raises target's level to newLevel. The creator may promote
// anyone to any level; any other promoter must already hold a level above
// target's current level, and may not promote past its own level. Every
// decision, granted or denied, is appended to the audit log.
func (s *System) PromoteUser(promoterAddress, targetAddress string, newLevel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	promoterLevel := s.getUserLevelLocked(promoterAddress)
	targetCurrentLevel := s.getUserLevelLocked(targetAddress)

	if newLevel < s.minLevel || newLevel > s.maxLevel {
		s.denyLocked("promote", promoterAddress, targetAddress, newLevel, "level out of range")
		return false
	}
	if newLevel <= targetCurrentLevel {
		s.denyLocked("promote", promoterAddress, targetAddress, newLevel, "new level does not raise target")
		return false
	}

	if promoterAddress == s.creatorAddress {
		s.userLevels[targetAddress] = newLevel
		s.logActionLocked("promote", promoterAddress, map[string]any{
			"target":     targetAddress,
			"old_level":  targetCurrentLevel,
			"new_level":  newLevel,
			"granted":    true,
			"by_creator": true,
		})
		return true
	}

	if promoterLevel <= targetCurrentLevel {
		s.denyLocked("promote", promoterAddress, targetAddress, newLevel, "promoter lacks standing over target")
		return false
	}
	if newLevel > promoterLevel {
		s.denyLocked("promote", promoterAddress, targetAddress, newLevel, "new level exceeds promoter clearance")
		return false
	}

	s.userLevels[targetAddress] = newLevel
	s.logActionLocked("promote", promoterAddress, map[string]any{
		"target":    targetAddress,
		"old_level": targetCurrentLevel,
		"new_level": newLevel,
		"granted":   true,
	})
	return true
}

// DemoteUser lowers target's level to newLevel. The creator cannot be
// demoted; any other demoter must already hold a level above target's
// current level. Every decision, granted or denied, is appended to the
// audit log.
func (s *System) DemoteUser(demoterAddress, targetAddress string, newLevel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if targetAddress == s.creatorAddress {
		s.denyLocked("demote", demoterAddress, targetAddress, newLevel, "creator cannot be demoted")
		return false
	}
	if newLevel < s.minLevel || newLevel > s.maxLevel {
		s.denyLocked("demote", demoterAddress, targetAddress, newLevel, "level out of range")
		return false
	}

	demoterLevel := s.getUserLevelLocked(demoterAddress)
	targetCurrentLevel := s.getUserLevelLocked(targetAddress)

	if newLevel >= targetCurrentLevel {
		s.denyLocked("demote", demoterAddress, targetAddress, newLevel, "new level does not lower target")
		return false
	}

	if demoterAddress == s.creatorAddress {
		s.userLevels[targetAddress] = newLevel
		s.logActionLocked("demote", demoterAddress, map[string]any{
			"target":     targetAddress,
			"old_level":  targetCurrentLevel,
			"new_level":  newLevel,
			"granted":    true,
			"by_creator": true,
		})
		return true
	}

	if demoterLevel <= targetCurrentLevel {
		s.denyLocked("demote", demoterAddress, targetAddress, newLevel, "demoter lacks standing over target")
		return false
	}

	s.userLevels[targetAddress] = newLevel
	s.logActionLocked("demote", demoterAddress, map[string]any{
		"target":    targetAddress,
		"old_level": targetCurrentLevel,
		"new_level": newLevel,
		"granted":   true,
	})
	return true
}

// denyLocked records a refused promote/demote decision.
func (s *System) denyLocked(action, actor, target string, newLevel int, reason string) {
	s.logActionLocked(action, actor, map[string]any{
		"target":    target,
		"new_level": newLevel,
		"granted":   false,
		"reason":    reason,
	})
}

// CanAccessData reports whether userAddress's level dominates
// securityLevel.
func (s *System) CanAccessData(userAddress string, securityLevel int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLevelLocked(userAddress) >= securityLevel
}

// StoreData stores content under dataID at securityLevel, provided owner's
// clearance dominates that level.
func (s *System) StoreData(dataID string, content any, securityLevel int, ownerAddress string, metadata map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if securityLevel < s.minLevel || securityLevel > s.maxLevel {
		return false
	}
	if s.getUserLevelLocked(ownerAddress) < securityLevel {
		return false
	}

	s.dataStore[dataID] = &DataItem{
		ID:            dataID,
		Content:       content,
		SecurityLevel: securityLevel,
		Owner:         ownerAddress,
		Metadata:      metadata,
		CreatedAt:     time.Now(),
	}

	s.logActionLocked("store_data", ownerAddress, map[string]any{
		"data_id":        dataID,
		"security_level": securityLevel,
	})
	return true
}

// AccessData returns dataID's content if userAddress's clearance
// dominates its classification, recording the access; returns nil (ok
// false) and logs a denial otherwise.
func (s *System) AccessData(userAddress, dataID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.dataStore[dataID]
	if !ok {
		return nil, false
	}

	userLevel := s.getUserLevelLocked(userAddress)
	if userLevel < item.SecurityLevel {
		s.logActionLocked("access_denied", userAddress, map[string]any{
			"data_id":        dataID,
			"required_level": item.SecurityLevel,
			"user_level":     userLevel,
		})
		return nil, false
	}

	item.AccessLog = append(item.AccessLog, AccessRecord{Accessor: userAddress, Timestamp: time.Now()})
	s.logActionLocked("access_data", userAddress, map[string]any{
		"data_id":        dataID,
		"security_level": item.SecurityLevel,
	})
	return item.Content, true
}

// GetAccessibleData returns every DataItem whose classification
// userAddress's clearance dominates.
func (s *System) GetAccessibleData(userAddress string) []*DataItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	userLevel := s.getUserLevelLocked(userAddress)
	out := make([]*DataItem, 0)
	for _, item := range s.dataStore {
		if userLevel >= item.SecurityLevel {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetUsersByLevel returns every address registered at exactly level.
func (s *System) GetUsersByLevel(level int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for addr, userLevel := range s.userLevels {
		if userLevel == level {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}

// GetLevelStatistics returns the count of registered users at each level.
func (s *System) GetLevelStatistics() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[int]int, s.maxLevel-s.minLevel+1)
	for level := s.minLevel; level <= s.maxLevel; level++ {
		stats[level] = 0
	}
	for _, userLevel := range s.userLevels {
		stats[userLevel]++
	}
	return stats
}

// GetClassificationInfo returns the Classification for level, if defined.
func (s *System) GetClassificationInfo(level int) (Classification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classifications[level]
	return c, ok
}

// NumLevels returns the number of classification levels the system was
// constructed with.
func (s *System) NumLevels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numLevels
}

// CreatorAddress returns the address pinned at the maximum level.
func (s *System) CreatorAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creatorAddress
}

func (s *System) logAction(action, actor string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logActionLocked(action, actor, details)
}

func (s *System) logActionLocked(action, actor string, details map[string]any) {
	s.auditLog = append(s.auditLog, AuditEntry{
		Action:    action,
		Actor:     actor,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// AuditFilter narrows GetAuditLog; zero values are ignored. Limit, if > 0,
// keeps only the most recent N matching entries.
type AuditFilter struct {
	Actor  string
	Action string
	Limit  int
}

// GetAuditLog returns audit entries matching filter.
func (s *System) GetAuditLog(filter AuditFilter) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AuditEntry, 0, len(s.auditLog))
	for _, e := range s.auditLog {
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

// wireForm is permissions.json's canonical shape. The classified data
// store itself is not part of this persisted form — only its count — since
// the wire schema names exactly these six fields. Fields are declared in
// alphabetical key order to keep the serialized form sorted-key canonical.
type wireForm struct {
	AuditLog        []AuditEntry           `json:"audit_log"`
	Classifications map[int]Classification `json:"classifications"`
	CreatorAddress  string                 `json:"creator_address"`
	DataCount       int                    `json:"data_count"`
	NumLevels       int                    `json:"num_levels"`
	UserLevels      map[string]int         `json:"user_levels"`
}

// ToJSON serializes the system to its canonical persisted form.
func (s *System) ToJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userLevels := make(map[string]int, len(s.userLevels))
	for addr, lvl := range s.userLevels {
		userLevels[addr] = lvl
	}
	return json.Marshal(wireForm{
		AuditLog:        s.auditLog,
		Classifications: s.classifications,
		CreatorAddress:  s.creatorAddress,
		DataCount:       len(s.dataStore),
		NumLevels:       s.numLevels,
		UserLevels:      userLevels,
	})
}

// FromJSON reconstructs a system from its persisted JSON form. The
// classified data store is not restored (it is not part of the persisted
// wire form); only bookkeeping (levels, classifications, audit log) comes
// back.
func FromJSON(data []byte) (*System, error) {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("mls: unmarshal: %w", err)
	}
	if w.NumLevels < 2 || w.NumLevels > 10 {
		return nil, ErrInvalidLevelCount
	}

	s := &System{
		numLevels:       w.NumLevels,
		maxLevel:        w.NumLevels,
		minLevel:        1,
		defaultLevel:    1,
		creatorAddress:  w.CreatorAddress,
		userLevels:      map[string]int{},
		classifications: w.Classifications,
		dataStore:       map[string]*DataItem{},
		auditLog:        append([]AuditEntry(nil), w.AuditLog...),
	}
	for addr, lvl := range w.UserLevels {
		s.userLevels[addr] = lvl
	}
	if s.classifications == nil {
		s.classifications = map[int]Classification{}
	}
	return s, nil
}
