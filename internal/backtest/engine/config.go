package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/pkg/errors"
)

// RunConfig describes a single backtest run: which instrument and window to
// replay, the cost model applied to fills, and any strategy parameter
// overrides.
type RunConfig struct {
	Symbol             string                     `yaml:"symbol" json:"symbol" validate:"required" jsonschema:"title=Symbol,description=Instrument symbol to backtest"`
	Timeframe          datasource.Timeframe       `yaml:"timeframe" json:"timeframe" validate:"required" jsonschema:"title=Timeframe,description=Bar timeframe to fetch"`
	StartTime          optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the backtest period"`
	EndTime            optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the backtest period"`
	InitialCash        float64                    `yaml:"initial_cash" json:"initial_cash" validate:"gt=0" jsonschema:"title=Initial Cash,description=Starting capital in USD,minimum=0"`
	CommissionRate     float64                    `yaml:"commission_rate" json:"commission_rate" validate:"gte=0" jsonschema:"title=Commission Rate,description=Commission charged as a fraction of fill notional,minimum=0"`
	Slippage           float64                    `yaml:"slippage" json:"slippage" validate:"gte=0" jsonschema:"title=Slippage,description=Absolute price slippage applied against the fill,minimum=0"`
	ParameterOverrides map[string]float64         `yaml:"parameters" json:"parameters" jsonschema:"title=Parameters,description=Strategy parameter overrides keyed by parameter name"`
}

// UnmarshalYAML implements custom unmarshaling for RunConfig
func (c *RunConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		Symbol             string               `yaml:"symbol"`
		Timeframe          datasource.Timeframe `yaml:"timeframe"`
		StartTime          *time.Time           `yaml:"start_time"`
		EndTime            *time.Time           `yaml:"end_time"`
		InitialCash        float64              `yaml:"initial_cash"`
		CommissionRate     float64              `yaml:"commission_rate"`
		Slippage           float64              `yaml:"slippage"`
		ParameterOverrides map[string]float64   `yaml:"parameters"`
	}

	var config Config
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.Symbol = config.Symbol
	c.Timeframe = config.Timeframe
	c.InitialCash = config.InitialCash
	c.CommissionRate = config.CommissionRate
	c.Slippage = config.Slippage
	c.ParameterOverrides = config.ParameterOverrides
	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}
	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// Validate checks the config against its struct tags and the known timeframes.
func (c *RunConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid run config", err)
	}

	if _, err := datasource.ParseTimeframe(string(c.Timeframe)); err != nil {
		return err
	}

	return nil
}

// GenerateSchema generates a JSON schema for the RunConfig
func (c *RunConfig) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}
			if t.String() == "datasource.Timeframe" {
				enum := make([]interface{}, 0, len(datasource.AllTimeframes))
				for _, tf := range datasource.AllTimeframes {
					enum = append(enum, string(tf))
				}
				return &jsonschema.Schema{
					Type: "string",
					Enum: enum,
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "run-config"
	schema.Description = "Configuration schema for a backtest run"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the RunConfig
func (c *RunConfig) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// DefaultConfig returns a RunConfig with zero-cost fills and daily bars.
func DefaultConfig(symbol string, initialCash float64) RunConfig {
	return RunConfig{
		Symbol:      symbol,
		Timeframe:   datasource.Timeframe1d,
		InitialCash: initialCash,
		StartTime:   optional.None[time.Time](),
		EndTime:     optional.None[time.Time](),
	}
}
