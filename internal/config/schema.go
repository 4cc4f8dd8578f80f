package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

const schemaEnvPrefix = "SCHEMA__"

// schemaListKeys are split on commas when overridden from the environment.
var schemaListKeys = map[string]struct{}{
	"num_features": {},
	"mm_columns":   {},
	"int_columns":  {},
}

type schemaDocument struct {
	SchemaVersion string            `koanf:"schema_version"`
	NumFeatures   []string          `koanf:"num_features"`
	MMColumns     []string          `koanf:"mm_columns"`
	DropColumns   string            `koanf:"drop_columns"`
	TargetColumn  string            `koanf:"target_column"`
	GenderColumn  string            `koanf:"gender_column"`
	GenderMapping map[string]int    `koanf:"gender_mapping"`
	RenameColumns map[string]string `koanf:"rename_columns"`
	IntColumns    []string          `koanf:"int_columns"`
}

// LoadSchema merges the YAML schema document with env overrides
// (prefix `SCHEMA__`, e.g. SCHEMA__NUM_FEATURES=Age,Vintage) and validates it.
func LoadSchema(path string) (domain.Schema, error) {
	k := koanf.New(".")
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return domain.Schema{}, domain.WrapError(domain.ErrSchemaMismatch, "load schema", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return domain.Schema{}, domain.WrapError(domain.ErrSchemaMismatch, "parse schema", err)
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return domain.Schema{}, domain.WrapError(domain.ErrSchemaMismatch, "load schema",
			fmt.Errorf("schema_version %q not supported (want v1)", sv))
	}

	if err := k.Load(env.ProviderWithValue(schemaEnvPrefix, "__", schemaEnvValue), nil); err != nil {
		return domain.Schema{}, domain.WrapError(domain.ErrSchemaMismatch, "load schema env", err)
	}

	var doc schemaDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return domain.Schema{}, domain.WrapError(domain.ErrSchemaMismatch, "decode schema", err)
	}
	applySchemaDefaults(&doc)

	schema := domain.Schema{
		NumericColumns: trimAll(doc.NumFeatures),
		MinMaxColumns:  trimAll(doc.MMColumns),
		DropColumn:     strings.TrimSpace(doc.DropColumns),
		TargetColumn:   strings.TrimSpace(doc.TargetColumn),
		GenderColumn:   strings.TrimSpace(doc.GenderColumn),
		GenderMapping:  doc.GenderMapping,
		RenameColumns:  doc.RenameColumns,
		IntColumns:     trimAll(doc.IntColumns),
	}
	if len(schema.NumericColumns) == 0 && len(schema.MinMaxColumns) == 0 {
		return domain.Schema{}, domain.WrapError(domain.ErrSchemaMismatch, "load schema",
			errors.New("num_features and mm_columns are both empty"))
	}
	if err := schema.Validate(); err != nil {
		return domain.Schema{}, err
	}
	return schema, nil
}

func schemaEnvValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, schemaEnvPrefix))
	if _, ok := schemaListKeys[key]; ok {
		return key, trimAll(strings.Split(value, ","))
	}
	return key, value
}

func applySchemaDefaults(d *schemaDocument) {
	if d.TargetColumn == "" {
		d.TargetColumn = "Response"
	}
	if d.GenderColumn == "" {
		d.GenderColumn = "Gender"
	}
	if len(d.GenderMapping) == 0 {
		d.GenderMapping = domain.DefaultGenderMapping()
	}
	if len(d.RenameColumns) == 0 {
		d.RenameColumns = domain.DefaultRenameColumns()
	}
	if len(d.IntColumns) == 0 {
		d.IntColumns = domain.DefaultIntColumns()
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
