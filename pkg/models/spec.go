package models

import "fmt"

// TransformationSpec carries the kind-specific parameters handed to the code
// generator. It is a tagged union keyed by Kind: exactly the field matching
// the kind is set, the rest stay nil. This keeps each kind's shape checkable
// at compile time while still serializing to a single JSONB column.
type TransformationSpec struct {
	Kind TransformationKind `json:"kind"`

	Format         *FormatSpec         `json:"format,omitempty"`
	NullFill       *NullFillSpec       `json:"null_fill,omitempty"`
	Referential    *ReferentialSpec    `json:"referential,omitempty"`
	Dedupe         *DedupeSpec         `json:"dedupe,omitempty"`
	Outlier        *OutlierSpec        `json:"outlier,omitempty"`
	Classification *ClassificationSpec `json:"classification,omitempty"`
	Custom         *CustomSpec         `json:"custom,omitempty"`
}

// FormatSpec standardizes value formats (dates, phone numbers, casing).
type FormatSpec struct {
	TargetFormat string `json:"target_format"`
	// SourceFormats lists formats observed in the data, when known.
	SourceFormats []string `json:"source_formats,omitempty"`
	Locale        string   `json:"locale,omitempty"`
}

// NullFillSpec remediates null or missing values.
type NullFillSpec struct {
	// Strategy is one of: constant, mean, median, mode, derive.
	Strategy string `json:"strategy"`
	Constant string `json:"constant,omitempty"`
	// DeriveFrom names the column an imputed value is derived from.
	DeriveFrom string `json:"derive_from,omitempty"`
}

// ReferentialSpec repairs broken references against a lookup table.
type ReferentialSpec struct {
	ReferenceAsset  string `json:"reference_asset"`
	ReferenceColumn string `json:"reference_column"`
	// OnMissing is one of: drop, null, map_closest.
	OnMissing string `json:"on_missing"`
}

// DedupeSpec removes duplicate rows.
type DedupeSpec struct {
	KeyColumns []string `json:"key_columns"`
	// KeepRule is one of: first, last, most_complete.
	KeepRule string `json:"keep_rule"`
}

// OutlierSpec corrects values outside expected bounds.
type OutlierSpec struct {
	LowerBound *float64 `json:"lower_bound,omitempty"`
	UpperBound *float64 `json:"upper_bound,omitempty"`
	// Action is one of: clamp, null, drop.
	Action string `json:"action"`
}

// ClassificationSpec assigns rows to labels.
type ClassificationSpec struct {
	Labels []string `json:"labels"`
	// LabelColumn receives the assigned label.
	LabelColumn string `json:"label_column"`
}

// CustomSpec carries free-form instructions for transformations that fit no
// other kind.
type CustomSpec struct {
	Instructions string            `json:"instructions"`
	Hints        map[string]string `json:"hints,omitempty"`
}

// Validate checks that exactly the field matching Kind is populated.
func (s *TransformationSpec) Validate() error {
	if !ValidKind(s.Kind) {
		return fmt.Errorf("unknown transformation kind %q", s.Kind)
	}

	set := 0
	var matched bool
	for kind, present := range map[TransformationKind]bool{
		KindFormatStandardization: s.Format != nil,
		KindNullRemediation:       s.NullFill != nil,
		KindReferentialFix:        s.Referential != nil,
		KindDeduplication:         s.Dedupe != nil,
		KindOutlierCorrection:     s.Outlier != nil,
		KindClassification:        s.Classification != nil,
		KindCustom:                s.Custom != nil,
	} {
		if present {
			set++
			if kind == s.Kind {
				matched = true
			}
		}
	}

	if set == 0 {
		return fmt.Errorf("spec for kind %q has no parameters", s.Kind)
	}
	if set > 1 {
		return fmt.Errorf("spec for kind %q has parameters for multiple kinds", s.Kind)
	}
	if !matched {
		return fmt.Errorf("spec parameters do not match kind %q", s.Kind)
	}
	return nil
}

// Parameters flattens the active variant into a map for prompt templating.
func (s *TransformationSpec) Parameters() map[string]any {
	params := map[string]any{"kind": string(s.Kind)}

	switch s.Kind {
	case KindFormatStandardization:
		if s.Format != nil {
			params["target_format"] = s.Format.TargetFormat
			if len(s.Format.SourceFormats) > 0 {
				params["source_formats"] = s.Format.SourceFormats
			}
			if s.Format.Locale != "" {
				params["locale"] = s.Format.Locale
			}
		}
	case KindNullRemediation:
		if s.NullFill != nil {
			params["strategy"] = s.NullFill.Strategy
			if s.NullFill.Constant != "" {
				params["constant"] = s.NullFill.Constant
			}
			if s.NullFill.DeriveFrom != "" {
				params["derive_from"] = s.NullFill.DeriveFrom
			}
		}
	case KindReferentialFix:
		if s.Referential != nil {
			params["reference_asset"] = s.Referential.ReferenceAsset
			params["reference_column"] = s.Referential.ReferenceColumn
			params["on_missing"] = s.Referential.OnMissing
		}
	case KindDeduplication:
		if s.Dedupe != nil {
			params["key_columns"] = s.Dedupe.KeyColumns
			params["keep_rule"] = s.Dedupe.KeepRule
		}
	case KindOutlierCorrection:
		if s.Outlier != nil {
			if s.Outlier.LowerBound != nil {
				params["lower_bound"] = *s.Outlier.LowerBound
			}
			if s.Outlier.UpperBound != nil {
				params["upper_bound"] = *s.Outlier.UpperBound
			}
			params["action"] = s.Outlier.Action
		}
	case KindClassification:
		if s.Classification != nil {
			params["labels"] = s.Classification.Labels
			params["label_column"] = s.Classification.LabelColumn
		}
	case KindCustom:
		if s.Custom != nil {
			params["instructions"] = s.Custom.Instructions
			for k, v := range s.Custom.Hints {
				params[k] = v
			}
		}
	}

	return params
}
