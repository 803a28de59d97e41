package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Source is a configured external data input belonging to a project.
type Source struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ProjectID uint              `gorm:"not null;index" json:"projectId"`
	Name      string            `gorm:"not null" json:"name"`
	Type      SourceType        `gorm:"not null" json:"type"`
	Status    SourceStatus      `gorm:"not null;default:pending" json:"status"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	DeletedAt gorm.DeletedAt    `gorm:"index" json:"-"`

	Project *Project      `gorm:"foreignKey:ProjectID" json:"-"`
	Config  *SourceConfig `gorm:"foreignKey:SourceID" json:"config,omitempty"`
}

// SchemaField is one typed field of a target schema.
type SchemaField struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Type     string `json:"type" validate:"required,oneof=string number boolean date"`
	Required bool   `json:"required"`
}

// TargetSchema is the output shape records are mapped into.
type TargetSchema struct {
	Name   string        `json:"name" validate:"required,min=1,max=100"`
	Fields []SchemaField `json:"fields" validate:"dive"`
}

// DeidRule applies one de-identification action to a target field.
// Pattern, when set, limits the substitution to regexp matches within the value.
type DeidRule struct {
	Field   string     `json:"field" validate:"required,min=1,max=100"`
	Action  DeidAction `json:"action" validate:"required,oneof=redact tokenize hash mask remove"`
	Pattern string     `json:"pattern,omitempty" validate:"max=500"`
}

// SourceConfig holds the per-source processing configuration, 1:1 with Source.
type SourceConfig struct {
	ID        uint                                  `gorm:"primaryKey" json:"id"`
	SourceID  uint                                  `gorm:"not null;uniqueIndex" json:"sourceId"`
	Schema    datatypes.JSONType[TargetSchema]      `json:"schema"`
	Mapping   datatypes.JSONType[map[string]string] `json:"mapping"`
	Rules     datatypes.JSONType[[]DeidRule]        `json:"rules"`
	CreatedAt time.Time                             `json:"createdAt"`
	UpdatedAt time.Time                             `json:"updatedAt"`
}

type CreateSourceRequest struct {
	Name     string                 `json:"name" validate:"required,min=1,max=200"`
	Type     SourceType             `json:"type" validate:"required,oneof=file external-ticketing generic-api"`
	Metadata map[string]interface{} `json:"metadata"`
}

type UpdateSourceRequest struct {
	Name     *string                `json:"name" validate:"omitempty,min=1,max=200"`
	Metadata map[string]interface{} `json:"metadata"`
}

type ConfigureSourceRequest struct {
	Schema  TargetSchema      `json:"schema" validate:"required"`
	Mapping map[string]string `json:"mapping"`
	Rules   []DeidRule        `json:"rules" validate:"dive"`
}
