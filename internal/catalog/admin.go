package catalog

import (
	"context"

	"fieldcore/pkg/domain"
)

// DefineField validates and stores a new field. New fields join the default
// group when the scope has one.
func (c *Catalog) DefineField(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	var created domain.FieldDefinition
	err := c.mutate(ctx, func(e *editor) error {
		var err error
		if created, err = e.defineField(def); err != nil {
			return err
		}
		return e.attachToDefault(created.ID)
	})
	return created, err
}

// UpdateField rewrites the mutable attributes of a field. The name is
// immutable and system fields keep their type and display name.
func (c *Catalog) UpdateField(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	var updated domain.FieldDefinition
	err := c.mutate(ctx, func(e *editor) error {
		var err error
		updated, err = e.updateField(def)
		return err
	})
	return updated, err
}

// RenameField changes the display name of a field.
func (c *Catalog) RenameField(ctx context.Context, id int64, displayName string) (domain.FieldDefinition, error) {
	var renamed domain.FieldDefinition
	err := c.mutate(ctx, func(e *editor) error {
		var err error
		renamed, err = e.renameField(id, displayName)
		return err
	})
	return renamed, err
}

// UpdateFieldSorts assigns new sort positions in one transaction.
func (c *Catalog) UpdateFieldSorts(ctx context.Context, sorts map[int64]int) error {
	if len(sorts) == 0 {
		return nil
	}
	return c.mutate(ctx, func(e *editor) error { return e.updateSorts(sorts) })
}

// SetFieldHidden toggles the hidden flag of a field.
func (c *Catalog) SetFieldHidden(ctx context.Context, id int64, hidden bool) error {
	return c.mutate(ctx, func(e *editor) error { return e.setHidden(id, hidden) })
}

// InvalidateField soft deletes a field and removes it from every group.
// Stored values of the field are left in place.
func (c *Catalog) InvalidateField(ctx context.Context, id int64) error {
	return c.mutate(ctx, func(e *editor) error { return e.invalidateField(id) })
}

// DefineGroup stores a new field group.
func (c *Catalog) DefineGroup(ctx context.Context, g domain.FieldGroup) (domain.FieldGroup, error) {
	var created domain.FieldGroup
	err := c.mutate(ctx, func(e *editor) error {
		var err error
		created, err = e.defineGroup(g)
		return err
	})
	return created, err
}

// UpdateGroup renames, reorders or replaces the field list of a group. A nil
// FieldIDs keeps the current list.
func (c *Catalog) UpdateGroup(ctx context.Context, g domain.FieldGroup) (domain.FieldGroup, error) {
	var updated domain.FieldGroup
	err := c.mutate(ctx, func(e *editor) error {
		var err error
		updated, err = e.updateGroup(g)
		return err
	})
	return updated, err
}

// DeleteGroup soft deletes a group. System and default groups are protected.
func (c *Catalog) DeleteGroup(ctx context.Context, id int64) error {
	return c.mutate(ctx, func(e *editor) error { return e.deleteGroup(id) })
}

// MoveFieldsToGroup makes groupID the only group holding fieldIDs.
func (c *Catalog) MoveFieldsToGroup(ctx context.Context, groupID int64, fieldIDs []int64) (domain.FieldGroup, error) {
	var moved domain.FieldGroup
	err := c.mutate(ctx, func(e *editor) error {
		var err error
		moved, err = e.moveFields(groupID, fieldIDs)
		return err
	})
	return moved, err
}
