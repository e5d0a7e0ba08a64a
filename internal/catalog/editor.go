package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"fieldcore/pkg/domain"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ .-]{0,99}$`)

// ValidateFieldName reports whether name may be used for a new field.
func ValidateFieldName(name string) error {
	if strings.EqualFold(name, domain.IdentityField) {
		return domain.ErrInvalidField{Name: name, Reason: "name is reserved"}
	}
	if !fieldNamePattern.MatchString(name) {
		return domain.ErrInvalidField{Name: name, Reason: "name must start with a letter or underscore and use letters, digits, space, '_', '.' or '-'"}
	}
	return nil
}

// editor is the working copy of a scope's catalog inside one transaction.
// It keeps its slices in sync with every write so later steps observe
// earlier ones.
type editor struct {
	tx     domain.Transaction
	actor  domain.Actor
	now    time.Time
	fields []domain.FieldDefinition
	groups []domain.FieldGroup
}

func fieldID(id int64) string { return fmt.Sprint(id) }

func (e *editor) fieldIndex(id int64) (int, error) {
	i := slices.IndexFunc(e.fields, func(f domain.FieldDefinition) bool { return f.ID == id })
	if i < 0 {
		return -1, domain.ErrNotFound{Entity: domain.EntityField, ID: fieldID(id)}
	}
	return i, nil
}

func (e *editor) fieldByName(name string) (domain.FieldDefinition, bool) {
	for _, f := range e.fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return domain.FieldDefinition{}, false
}

func (e *editor) groupIndex(id int64) (int, error) {
	i := slices.IndexFunc(e.groups, func(g domain.FieldGroup) bool { return g.ID == id })
	if i < 0 {
		return -1, domain.ErrNotFound{Entity: domain.EntityFieldGroup, ID: fieldID(id)}
	}
	return i, nil
}

func (e *editor) groupByName(name string) (domain.FieldGroup, bool) {
	for _, g := range e.groups {
		if strings.EqualFold(g.Name, name) {
			return g, true
		}
	}
	return domain.FieldGroup{}, false
}

func nextSort[T any](items []T, sort func(T) int) int {
	next := 1
	for _, item := range items {
		if s := sort(item); s >= next {
			next = s + 1
		}
	}
	return next
}

func (e *editor) defineField(def domain.FieldDefinition) (domain.FieldDefinition, error) {
	def.Name = strings.TrimSpace(def.Name)
	if err := ValidateFieldName(def.Name); err != nil {
		return domain.FieldDefinition{}, err
	}
	if !def.DataType.Valid() {
		return domain.FieldDefinition{}, domain.ErrInvalidField{Name: def.Name, Reason: fmt.Sprintf("unsupported data type %d", def.DataType)}
	}
	if _, taken := e.fieldByName(def.Name); taken {
		return domain.FieldDefinition{}, domain.ErrDuplicateName{Entity: domain.EntityField, Name: def.Name}
	}
	if len(def.AdditionalInfo) > 0 && !json.Valid(def.AdditionalInfo) {
		return domain.FieldDefinition{}, domain.ErrInvalidField{Name: def.Name, Reason: "additional info must be JSON"}
	}
	if strings.TrimSpace(def.DisplayName) == "" {
		def.DisplayName = def.Name
	}
	if def.Sort == 0 {
		def.Sort = nextSort(e.fields, func(f domain.FieldDefinition) int { return f.Sort })
	}
	def.ID = 0
	def.Audit = e.actor.Stamp(e.now)
	created, err := e.tx.InsertField(def)
	if err != nil {
		return domain.FieldDefinition{}, err
	}
	e.fields = append(e.fields, created)
	return created, nil
}

// saveField persists f, which must already be part of the working copy.
func (e *editor) saveField(i int, f domain.FieldDefinition) error {
	e.actor.Touch(&f.Audit, e.now)
	if err := e.tx.UpdateField(f); err != nil {
		return err
	}
	e.fields[i] = f
	return nil
}

func (e *editor) updateField(def domain.FieldDefinition) (domain.FieldDefinition, error) {
	i, err := e.fieldIndex(def.ID)
	if err != nil {
		return domain.FieldDefinition{}, err
	}
	current := e.fields[i]
	if name := strings.TrimSpace(def.Name); name != "" && name != current.Name {
		return domain.FieldDefinition{}, domain.ErrInvalidField{Name: current.Name, Reason: "field name cannot change"}
	}
	if def.DataType != domain.DataTypeUnknown && def.DataType != current.DataType {
		if current.IsSystem {
			return domain.FieldDefinition{}, domain.ErrProtected{Entity: domain.EntityField, ID: fieldID(current.ID), Reason: "system fields cannot be retyped"}
		}
		if !def.DataType.Valid() {
			return domain.FieldDefinition{}, domain.ErrInvalidField{Name: current.Name, Reason: fmt.Sprintf("unsupported data type %d", def.DataType)}
		}
		current.DataType = def.DataType
	}
	if def.DisplayName != "" && def.DisplayName != current.DisplayName {
		if current.IsSystem {
			return domain.FieldDefinition{}, domain.ErrProtected{Entity: domain.EntityField, ID: fieldID(current.ID), Reason: "system fields cannot be renamed"}
		}
		current.DisplayName = def.DisplayName
	}
	if len(def.AdditionalInfo) > 0 && !json.Valid(def.AdditionalInfo) {
		return domain.FieldDefinition{}, domain.ErrInvalidField{Name: current.Name, Reason: "additional info must be JSON"}
	}
	current.Description = def.Description
	current.IsRequired = def.IsRequired
	current.IsHidden = def.IsHidden
	current.IsDisplayField = def.IsDisplayField
	current.AdditionalInfo = def.AdditionalInfo
	if def.Sort != 0 {
		current.Sort = def.Sort
	}
	if err := e.saveField(i, current); err != nil {
		return domain.FieldDefinition{}, err
	}
	return current, nil
}

func (e *editor) renameField(id int64, displayName string) (domain.FieldDefinition, error) {
	i, err := e.fieldIndex(id)
	if err != nil {
		return domain.FieldDefinition{}, err
	}
	f := e.fields[i]
	if f.IsSystem {
		return domain.FieldDefinition{}, domain.ErrProtected{Entity: domain.EntityField, ID: fieldID(id), Reason: "system fields cannot be renamed"}
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.FieldDefinition{}, domain.ErrInvalidField{Name: f.Name, Reason: "display name is required"}
	}
	f.DisplayName = displayName
	if err := e.saveField(i, f); err != nil {
		return domain.FieldDefinition{}, err
	}
	return f, nil
}

func (e *editor) setHidden(id int64, hidden bool) error {
	i, err := e.fieldIndex(id)
	if err != nil {
		return err
	}
	f := e.fields[i]
	if f.IsHidden == hidden {
		return nil
	}
	f.IsHidden = hidden
	return e.saveField(i, f)
}

func (e *editor) updateSorts(sorts map[int64]int) error {
	for id, sort := range sorts {
		i, err := e.fieldIndex(id)
		if err != nil {
			return err
		}
		e.fields[i].Sort = sort
	}
	return e.tx.UpdateFieldSorts(sorts)
}

func (e *editor) invalidateField(id int64) error {
	i, err := e.fieldIndex(id)
	if err != nil {
		return err
	}
	f := e.fields[i]
	if f.IsSystem {
		return domain.ErrProtected{Entity: domain.EntityField, ID: fieldID(id), Reason: "system fields cannot be deleted"}
	}
	f.IsValid = false
	e.actor.Touch(&f.Audit, e.now)
	if err := e.tx.UpdateField(f); err != nil {
		return err
	}
	e.fields = slices.Delete(e.fields, i, i+1)
	for gi, g := range e.groups {
		if !slices.Contains(g.FieldIDs, id) {
			continue
		}
		g.FieldIDs = slices.DeleteFunc(g.FieldIDs, func(fid int64) bool { return fid == id })
		if err := e.saveGroup(gi, g); err != nil {
			return err
		}
	}
	return nil
}

// checkFieldIDs rejects unknown ids and drops duplicates, keeping the first
// occurrence of each id.
func (e *editor) checkFieldIDs(ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, err := e.fieldIndex(id); err != nil {
			return nil, err
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *editor) defineGroup(g domain.FieldGroup) (domain.FieldGroup, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return domain.FieldGroup{}, domain.ErrInvalidField{Name: g.Name, Reason: "group name is required"}
	}
	if _, taken := e.groupByName(g.Name); taken {
		return domain.FieldGroup{}, domain.ErrDuplicateName{Entity: domain.EntityFieldGroup, Name: g.Name}
	}
	ids, err := e.checkFieldIDs(g.FieldIDs)
	if err != nil {
		return domain.FieldGroup{}, err
	}
	g.FieldIDs = ids
	if g.Sort == 0 {
		g.Sort = nextSort(e.groups, func(g domain.FieldGroup) int { return g.Sort })
	}
	if g.IsDefault {
		if err := e.demoteDefault(); err != nil {
			return domain.FieldGroup{}, err
		}
	}
	g.ID = 0
	g.Audit = e.actor.Stamp(e.now)
	created, err := e.tx.InsertGroup(g)
	if err != nil {
		return domain.FieldGroup{}, err
	}
	e.groups = append(e.groups, created)
	return created, nil
}

// demoteDefault clears the default flag so at most one group per scope holds it.
func (e *editor) demoteDefault() error {
	for i, g := range e.groups {
		if g.IsDefault {
			g.IsDefault = false
			if err := e.saveGroup(i, g); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *editor) saveGroup(i int, g domain.FieldGroup) error {
	e.actor.Touch(&g.Audit, e.now)
	if err := e.tx.UpdateGroup(g); err != nil {
		return err
	}
	e.groups[i] = g
	return nil
}

func (e *editor) updateGroup(in domain.FieldGroup) (domain.FieldGroup, error) {
	i, err := e.groupIndex(in.ID)
	if err != nil {
		return domain.FieldGroup{}, err
	}
	g := e.groups[i]
	if name := strings.TrimSpace(in.Name); name != "" && name != g.Name {
		if g.IsSystem {
			return domain.FieldGroup{}, domain.ErrProtected{Entity: domain.EntityFieldGroup, ID: fieldID(g.ID), Reason: "system groups cannot be renamed"}
		}
		if other, taken := e.groupByName(name); taken && other.ID != g.ID {
			return domain.FieldGroup{}, domain.ErrDuplicateName{Entity: domain.EntityFieldGroup, Name: name}
		}
		g.Name = name
	}
	if in.FieldIDs != nil {
		ids, err := e.checkFieldIDs(in.FieldIDs)
		if err != nil {
			return domain.FieldGroup{}, err
		}
		g.FieldIDs = ids
	}
	if in.Sort != 0 {
		g.Sort = in.Sort
	}
	if in.IsDefault && !g.IsDefault {
		if err := e.demoteDefault(); err != nil {
			return domain.FieldGroup{}, err
		}
		g.IsDefault = true
	}
	if err := e.saveGroup(i, g); err != nil {
		return domain.FieldGroup{}, err
	}
	return g, nil
}

func (e *editor) deleteGroup(id int64) error {
	i, err := e.groupIndex(id)
	if err != nil {
		return err
	}
	g := e.groups[i]
	switch {
	case g.IsSystem:
		return domain.ErrProtected{Entity: domain.EntityFieldGroup, ID: fieldID(id), Reason: "system groups cannot be deleted"}
	case g.IsDefault:
		return domain.ErrProtected{Entity: domain.EntityFieldGroup, ID: fieldID(id), Reason: "the default group cannot be deleted"}
	}
	audit := g.Audit
	e.actor.Touch(&audit, e.now)
	if err := e.tx.InvalidateGroup(id, audit); err != nil {
		return err
	}
	e.groups = slices.Delete(e.groups, i, i+1)
	return nil
}

// moveFields detaches ids from every other group and appends the ones the
// target does not hold yet.
func (e *editor) moveFields(groupID int64, ids []int64) (domain.FieldGroup, error) {
	target, err := e.groupIndex(groupID)
	if err != nil {
		return domain.FieldGroup{}, err
	}
	if ids, err = e.checkFieldIDs(ids); err != nil {
		return domain.FieldGroup{}, err
	}
	for i, g := range e.groups {
		if i == target {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(g.FieldIDs), func(id int64) bool { return slices.Contains(ids, id) })
		if len(kept) == len(g.FieldIDs) {
			continue
		}
		g.FieldIDs = kept
		if err := e.saveGroup(i, g); err != nil {
			return domain.FieldGroup{}, err
		}
	}
	g := e.groups[target]
	for _, id := range ids {
		if !slices.Contains(g.FieldIDs, id) {
			g.FieldIDs = append(g.FieldIDs, id)
		}
	}
	if err := e.saveGroup(target, g); err != nil {
		return domain.FieldGroup{}, err
	}
	return g, nil
}

// attachToDefault appends a new field to the scope's default group, if any.
func (e *editor) attachToDefault(id int64) error {
	for i, g := range e.groups {
		if g.IsDefault {
			g.FieldIDs = append(slices.Clone(g.FieldIDs), id)
			return e.saveGroup(i, g)
		}
	}
	return nil
}
