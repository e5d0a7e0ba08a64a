package core

import (
	"context"

	"fieldcore/pkg/domain"
)

// ListFields returns the valid field definitions ordered by sort.
func (s *Service) ListFields(ctx context.Context) ([]domain.FieldDefinition, error) {
	var out []domain.FieldDefinition
	err := s.run(ctx, "list_fields", func(ctx context.Context) error {
		var err error
		out, err = s.catalog.ListFields(ctx)
		return err
	})
	return out, err
}

// DefineField adds a field and attaches it to the default group.
func (s *Service) DefineField(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	var created domain.FieldDefinition
	err := s.run(ctx, "define_field", func(ctx context.Context) error {
		var err error
		created, err = s.catalog.DefineField(ctx, def)
		return err
	})
	return created, err
}

// UpdateField rewrites the mutable attributes of an existing field.
func (s *Service) UpdateField(ctx context.Context, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	var updated domain.FieldDefinition
	err := s.run(ctx, "update_field", func(ctx context.Context) error {
		var err error
		updated, err = s.catalog.UpdateField(ctx, def)
		return err
	})
	return updated, err
}

// RenameField changes a field's display name.
func (s *Service) RenameField(ctx context.Context, id int64, displayName string) (domain.FieldDefinition, error) {
	var updated domain.FieldDefinition
	err := s.run(ctx, "rename_field", func(ctx context.Context) error {
		var err error
		updated, err = s.catalog.RenameField(ctx, id, displayName)
		return err
	})
	return updated, err
}

// UpdateFieldSorts applies a batch of field id to sort assignments.
func (s *Service) UpdateFieldSorts(ctx context.Context, sorts map[int64]int) error {
	return s.run(ctx, "update_field_sorts", func(ctx context.Context) error {
		return s.catalog.UpdateFieldSorts(ctx, sorts)
	})
}

// SetFieldHidden toggles a field's hidden flag.
func (s *Service) SetFieldHidden(ctx context.Context, id int64, hidden bool) error {
	return s.run(ctx, "set_field_hidden", func(ctx context.Context) error {
		return s.catalog.SetFieldHidden(ctx, id, hidden)
	})
}

// InvalidateField soft deletes a non-system field.
func (s *Service) InvalidateField(ctx context.Context, id int64) error {
	return s.run(ctx, "invalidate_field", func(ctx context.Context) error {
		return s.catalog.InvalidateField(ctx, id)
	})
}

// ListGroups returns the valid field groups ordered by sort.
func (s *Service) ListGroups(ctx context.Context) ([]domain.FieldGroup, error) {
	var out []domain.FieldGroup
	err := s.run(ctx, "list_groups", func(ctx context.Context) error {
		var err error
		out, err = s.catalog.ListGroups(ctx)
		return err
	})
	return out, err
}

// DefineGroup adds a field group.
func (s *Service) DefineGroup(ctx context.Context, g domain.FieldGroup) (domain.FieldGroup, error) {
	var created domain.FieldGroup
	err := s.run(ctx, "define_group", func(ctx context.Context) error {
		var err error
		created, err = s.catalog.DefineGroup(ctx, g)
		return err
	})
	return created, err
}

// UpdateGroup renames, reorders or re-lists a group.
func (s *Service) UpdateGroup(ctx context.Context, g domain.FieldGroup) (domain.FieldGroup, error) {
	var updated domain.FieldGroup
	err := s.run(ctx, "update_group", func(ctx context.Context) error {
		var err error
		updated, err = s.catalog.UpdateGroup(ctx, g)
		return err
	})
	return updated, err
}

// DeleteGroup soft deletes a group that is neither system nor default.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	return s.run(ctx, "delete_group", func(ctx context.Context) error {
		return s.catalog.DeleteGroup(ctx, id)
	})
}

// MoveFieldsToGroup moves fieldIDs out of their current groups into groupID.
func (s *Service) MoveFieldsToGroup(ctx context.Context, groupID int64, fieldIDs []int64) (domain.FieldGroup, error) {
	var updated domain.FieldGroup
	err := s.run(ctx, "move_fields_to_group", func(ctx context.Context) error {
		var err error
		updated, err = s.catalog.MoveFieldsToGroup(ctx, groupID, fieldIDs)
		return err
	})
	return updated, err
}
