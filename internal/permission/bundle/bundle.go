// Package bundle groups a flat permission catalog into UI-level
// read/write/manage sets per resource group. It is consumed by the admin
// surface, not the runtime decision path, but shares the catalog's grouping
// rules so both sides classify keys identically.
package bundle

import (
	"sort"
	"strings"

	"github.com/smallbiznis/gatehouse/internal/permission"
)

// Level is the simplified access level a group selection maps to.
type Level string

const (
	LevelNone   Level = "none"
	LevelRead   Level = "read"
	LevelWrite  Level = "write"
	LevelManage Level = "manage"
	// LevelCustom signals the selection cannot be represented by the
	// three-level abstraction and a granular editor is required.
	LevelCustom Level = "custom"
)

var readActions = map[string]struct{}{
	"view": {}, "read": {}, "list": {}, "get": {},
}

var writeActions = map[string]struct{}{
	"create": {}, "update": {}, "delete": {}, "invite": {}, "remove": {},
	"assign": {}, "revoke": {}, "install": {}, "uninstall": {},
	"consume": {}, "close": {}, "run": {}, "simulate": {}, "toggle": {},
}

var manageActions = map[string]struct{}{
	"manage": {}, "admin": {}, "owner": {}, "configure": {},
}

// Permission is one catalog entry as seen by the bundle builder.
type Permission struct {
	ID  string
	Key permission.Key
}

// Group is one resource group with its nested level id sets. Higher levels
// are always supersets of lower ones, so toggling a level in the UI can never
// revoke a capability a lower level still needs.
type Group struct {
	ID     string
	Label  string
	Read   []string
	Write  []string
	Manage []string
}

// Category is a named collection of groups mirroring the catalog's category.
type Category struct {
	Name   string
	Groups []Group
}

// Build groups each category's permissions by key prefix and classifies the
// trailing action into read/write/manage sets.
func Build(catalogByCategory map[string][]Permission) []Category {
	names := make([]string, 0, len(catalogByCategory))
	for name := range catalogByCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]Category, 0, len(names))
	for _, name := range names {
		categories = append(categories, Category{
			Name:   name,
			Groups: buildGroups(catalogByCategory[name]),
		})
	}
	return categories
}

func buildGroups(perms []Permission) []Group {
	type bucket struct {
		label  string
		read   []string
		write  []string
		manage []string
		other  []string
	}

	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for _, perm := range perms {
		groupID, label := groupFor(perm.Key)
		b, ok := buckets[groupID]
		if !ok {
			b = &bucket{label: label}
			buckets[groupID] = b
			order = append(order, groupID)
		}
		switch classify(perm.Key.Action()) {
		case LevelRead:
			b.read = append(b.read, perm.ID)
		case LevelWrite:
			b.write = append(b.write, perm.ID)
		case LevelManage:
			b.manage = append(b.manage, perm.ID)
		default:
			b.other = append(b.other, perm.ID)
		}
	}

	groups := make([]Group, 0, len(order))
	for _, id := range order {
		b := buckets[id]

		read := append([]string(nil), b.read...)

		write := append([]string(nil), read...)
		write = append(write, b.write...)

		manage := append([]string(nil), write...)
		manage = append(manage, b.manage...)
		manage = append(manage, b.other...)

		groups = append(groups, Group{
			ID:     id,
			Label:  b.label,
			Read:   read,
			Write:  write,
			Manage: manage,
		})
	}
	return groups
}

// groupFor derives the group id from the first 2-3 dot segments of the key
// (3 when more than 3 exist) and a human label from the 3rd segment.
func groupFor(key permission.Key) (string, string) {
	segments := key.Segments()
	depth := 2
	if len(segments) > 3 {
		depth = 3
	}
	if depth > len(segments) {
		depth = len(segments)
	}
	groupID := strings.Join(segments[:depth], ".")

	labelSource := segments[depth-1]
	if len(segments) >= 3 {
		labelSource = segments[2]
	}
	return groupID, titleize(labelSource)
}

func classify(action string) Level {
	if _, ok := readActions[action]; ok {
		return LevelRead
	}
	if _, ok := writeActions[action]; ok {
		return LevelWrite
	}
	if _, ok := manageActions[action]; ok {
		return LevelManage
	}
	return LevelCustom
}

// InferGroupLevel reports which level the selected id set represents for the
// group. Only ids belonging to the group count; exact-set equality is checked
// manage first since manage ⊇ write ⊇ read, and anything else with at least
// one selected id is custom.
func InferGroupLevel(group Group, selectedIDs []string) Level {
	selected := make(map[string]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = struct{}{}
	}

	// Manage holds every id in the group.
	groupSelected := make(map[string]struct{})
	for _, id := range group.Manage {
		if _, ok := selected[id]; ok {
			groupSelected[id] = struct{}{}
		}
	}
	if len(groupSelected) == 0 {
		return LevelNone
	}

	if equalsSet(group.Manage, groupSelected) {
		return LevelManage
	}
	if equalsSet(group.Write, groupSelected) {
		return LevelWrite
	}
	if equalsSet(group.Read, groupSelected) {
		return LevelRead
	}
	return LevelCustom
}

func equalsSet(ids []string, selected map[string]struct{}) bool {
	if len(ids) == 0 || len(ids) != len(selected) {
		return false
	}
	for _, id := range ids {
		if _, ok := selected[id]; !ok {
			return false
		}
	}
	return true
}

func titleize(segment string) string {
	parts := strings.FieldsFunc(segment, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
