// Package model contains domain models passed between pipeline layers.
package model

import (
	"encoding/json"
	"fmt"
)

// ItemKind identifies the shape of a batch input item. The shape is
// decided once, at decode time, and never re-inspected downstream.
type ItemKind int

const (
	// KindUnknown marks an item that carries neither an identifier nor features.
	KindUnknown ItemKind = iota
	// KindIdentifier is a bare item identifier.
	KindIdentifier
	// KindIdentifierWithScope is an identifier plus an optional scope.
	KindIdentifierWithScope
	// KindPrebuilt is a row that already carries a feature vector.
	KindPrebuilt
)

// InputItem is one element of a prediction batch. Exactly one of the
// three supported shapes applies; Kind records which.
type InputItem struct {
	Kind     ItemKind
	ItemID   string
	ScopeID  string
	Features map[string]float64
}

// Identifier builds a bare-identifier input item.
func Identifier(itemID string) InputItem {
	return InputItem{Kind: KindIdentifier, ItemID: itemID}
}

// IdentifierWithScope builds an identifier+scope input item.
func IdentifierWithScope(itemID, scopeID string) InputItem {
	return InputItem{Kind: KindIdentifierWithScope, ItemID: itemID, ScopeID: scopeID}
}

// Prebuilt builds an input item that already carries its feature vector.
func Prebuilt(itemID, scopeID string, features map[string]float64) InputItem {
	return InputItem{Kind: KindPrebuilt, ItemID: itemID, ScopeID: scopeID, Features: features}
}

// itemEnvelope mirrors the object form of an input item on the wire.
type itemEnvelope struct {
	ItemID   string             `json:"itemId,omitempty"`
	ScopeID  string             `json:"scopeId,omitempty"`
	Features map[string]float64 `json:"features,omitempty"`
}

// UnmarshalJSON decodes either a bare string identifier or an object
// carrying an identifier, an optional scope, and optional features.
func (i *InputItem) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return fmt.Errorf("decode item identifier: %w", err)
		}
		*i = Identifier(id)
		return nil
	}

	var env itemEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decode item object: %w", err)
	}

	switch {
	case len(env.Features) > 0:
		*i = Prebuilt(env.ItemID, env.ScopeID, env.Features)
	case env.ItemID != "":
		*i = IdentifierWithScope(env.ItemID, env.ScopeID)
	default:
		*i = InputItem{Kind: KindUnknown, ScopeID: env.ScopeID}
	}
	return nil
}

// MarshalJSON emits the most compact wire form for the item's kind.
func (i InputItem) MarshalJSON() ([]byte, error) {
	if i.Kind == KindIdentifier {
		return json.Marshal(i.ItemID)
	}
	return json.Marshal(itemEnvelope{ItemID: i.ItemID, ScopeID: i.ScopeID, Features: i.Features})
}

// Addressable reports whether the item can produce a prediction at all:
// it either names an item to build features for, or brings its own.
func (i InputItem) Addressable() bool {
	return i.ItemID != "" || len(i.Features) > 0
}

// NormalizedRow is the uniform row shape all input items collapse into.
// It is owned by the pipeline for the lifetime of one batch call.
type NormalizedRow struct {
	Index    int
	ItemID   string
	ScopeID  string
	Features map[string]float64
	BuildErr string // empty unless feature building failed for this row
}

// HasFeatures reports whether the row carries a usable feature vector.
func (r *NormalizedRow) HasFeatures() bool {
	return r.BuildErr == "" && len(r.Features) > 0
}

// RawPrediction is the scoring service's per-row response. Its shape is
// not fully controlled by this system.
type RawPrediction map[string]any

// ItemResult is the per-item outcome of a batch call. For a batch of N
// items exactly N results are produced and result[i].Index == i.
type ItemResult struct {
	Index    int                `json:"index"`
	OK       bool               `json:"ok"`
	Score    float64            `json:"score,omitempty"`
	Label    string             `json:"label,omitempty"`
	ItemID   string             `json:"itemId,omitempty"`
	ScopeID  string             `json:"scopeId,omitempty"`
	Features map[string]float64 `json:"features,omitempty"`
	Raw      RawPrediction      `json:"rawPrediction,omitempty"`
	Reason   string             `json:"reason,omitempty"`
}
