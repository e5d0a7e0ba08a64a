package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

// FieldSeed is one entry of a seed file. Type accepts a data type name or
// its numeric code and is inferred from the name when empty.
type FieldSeed struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"displayName" json:"displayName"`
	Description string `yaml:"description" json:"description"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required" json:"required"`
	Hidden      bool   `yaml:"hidden" json:"hidden"`
	System      bool   `yaml:"system" json:"system"`
	Display     bool   `yaml:"display" json:"display"`
	Sort        int    `yaml:"sort" json:"sort"`
	Group       string `yaml:"group" json:"group"`
	Default     any    `yaml:"default" json:"default"`
}

type seedFile struct {
	Fields []FieldSeed `yaml:"fields"`
}

// ParseSeeds decodes a YAML or JSON seed document. Both a bare list and a
// mapping with a "fields" key are accepted.
func ParseSeeds(r io.Reader) ([]FieldSeed, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seeds: %w", err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	var seeds []FieldSeed
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&seeds); err != nil {
			return nil, fmt.Errorf("decode seeds: %w", err)
		}
	case yaml.MappingNode:
		var file seedFile
		if err := doc.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode seeds: %w", err)
		}
		seeds = file.Fields
	default:
		return nil, fmt.Errorf("decode seeds: expected a list or a mapping, got %v", doc.Tag)
	}
	return seeds, nil
}

// InferType guesses a data type from the words of a field name. camelCase,
// snake_case and spaced names are split the same way.
func InferType(name string) domain.DataType {
	words := nameWords(name)
	match := func(suffix bool, keys ...string) bool {
		for _, w := range words {
			for _, k := range keys {
				if w == k || (suffix && strings.HasSuffix(w, k)) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case match(true, "email", "mail"):
		return domain.DataTypeEmail
	case match(true, "phone") || match(false, "tel", "mobile"):
		return domain.DataTypePhone
	case match(true, "date", "time") || match(false, "at", "timestamp"):
		return domain.DataTypeTimestamp
	case match(false, "amount", "price", "budget", "count", "total"):
		return domain.DataTypeNumber
	case match(false, "note", "notes", "description", "remark"):
		return domain.DataTypeLongText
	default:
		return domain.DataTypeShortText
	}
}

func nameWords(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range name {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && len(cur) > 0 && !unicode.IsUpper(cur[len(cur)-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// Definition converts the seed into a field definition. A default value is
// validated strictly against the resolved type and kept in AdditionalInfo.
func (s FieldSeed) Definition() (domain.FieldDefinition, error) {
	name := strings.TrimSpace(s.Name)
	dt, err := s.dataType(name)
	if err != nil {
		return domain.FieldDefinition{}, err
	}
	def := domain.FieldDefinition{
		Name:           name,
		DisplayName:    s.DisplayName,
		Description:    s.Description,
		DataType:       dt,
		Sort:           s.Sort,
		IsRequired:     s.Required,
		IsHidden:       s.Hidden,
		IsSystem:       s.System,
		IsDisplayField: s.Display,
	}
	if s.Default != nil {
		canonical, err := convert.Strict(dt, s.Default)
		if err != nil {
			return domain.FieldDefinition{}, domain.ErrInvalidField{Name: name, Reason: fmt.Sprintf("default: %v", err)}
		}
		info, err := json.Marshal(map[string]any{"default": canonical})
		if err != nil {
			return domain.FieldDefinition{}, fmt.Errorf("encode default of %s: %w", name, err)
		}
		def.AdditionalInfo = info
	}
	return def, nil
}

func (s FieldSeed) dataType(name string) (domain.DataType, error) {
	raw := strings.TrimSpace(s.Type)
	if raw == "" {
		return InferType(name), nil
	}
	if code, err := strconv.Atoi(raw); err == nil {
		if dt := domain.DataType(code); dt.Valid() {
			return dt, nil
		}
	} else if dt, ok := domain.ParseDataType(raw); ok && dt.Valid() {
		return dt, nil
	}
	return domain.DataTypeUnknown, domain.ErrInvalidField{Name: name, Reason: fmt.Sprintf("unknown data type %q", raw)}
}

// SeedFields defines every seeded field that does not exist yet, creating
// the named groups on demand. Existing fields are skipped, so seeding is
// repeatable. It returns the fields it created.
func (c *Catalog) SeedFields(ctx context.Context, r io.Reader) ([]domain.FieldDefinition, error) {
	seeds, err := ParseSeeds(r)
	if err != nil {
		return nil, err
	}
	defs := make([]domain.FieldDefinition, len(seeds))
	for i, s := range seeds {
		if defs[i], err = s.Definition(); err != nil {
			return nil, err
		}
	}
	var created []domain.FieldDefinition
	err = c.mutate(ctx, func(e *editor) error {
		for i, def := range defs {
			if _, exists := e.fieldByName(def.Name); exists {
				continue
			}
			f, err := e.defineField(def)
			if err != nil {
				return err
			}
			created = append(created, f)
			group := strings.TrimSpace(seeds[i].Group)
			if group == "" {
				if err := e.attachToDefault(f.ID); err != nil {
					return err
				}
				continue
			}
			g, ok := e.groupByName(group)
			if !ok {
				if g, err = e.defineGroup(domain.FieldGroup{Name: group}); err != nil {
					return err
				}
			}
			if _, err := e.moveFields(g.ID, []int64{f.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
